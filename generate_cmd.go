package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/UnamanoDAO/AI-IELTS/internal/job"
	"github.com/UnamanoDAO/AI-IELTS/internal/storage"
	"github.com/UnamanoDAO/AI-IELTS/internal/store"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

var (
	generateAll      bool
	generateForce    bool
	generateMissing  bool
	generateDryRun   bool
	generateWorkers  int
	generateMessages bool

	generateCmd = &cobra.Command{
		Use:   "generate [UNIT | CONVERSATION]",
		Short: "Generate audio for the articles of a unit",
		Long: paragraph(fmt.Sprintf("\n%s audio for every article of a unit (or of all units), upload it and record its URL. With --messages the assistant replies of a chat conversation (or of all conversations) are read aloud instead. Items that already have audio are skipped unless --force is given.",
			keyword("Generate"))),
		Example: paragraph("readaloud generate 3\nreadaloud generate --all\nreadaloud generate 3 --force --engine nls-long\nreadaloud generate --all --dry-run -e mock\nreadaloud generate --messages --missing\nreadaloud generate --messages 42"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runGenerate,
	}
)

func init() {
	generateCmd.Flags().BoolVarP(&generateAll, "all", "a", false, "process every unit")
	generateCmd.Flags().BoolVarP(&generateForce, "force", "f", false, "regenerate articles that already have audio")
	generateCmd.Flags().BoolVar(&generateMissing, "missing", false, "only query items without audio")
	generateCmd.Flags().BoolVarP(&generateMessages, "messages", "m", false, "read assistant chat messages instead of articles")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "write audio to the output directory and leave the database untouched")
	generateCmd.Flags().IntVarP(&generateWorkers, "workers", "w", 0, "concurrent synthesis calls per article (default from config)")
}

func generateFilter(args []string) (store.Filter, error) {
	f := store.Filter{All: generateAll, MissingOnly: generateMissing}
	switch {
	case generateAll && len(args) > 0:
		return f, errors.New("pass either a unit number or --all, not both")
	case generateAll:
		return f, nil
	case len(args) == 0:
		return f, errors.New("missing unit number (or --all)")
	}
	unit, err := strconv.Atoi(args[0])
	if err != nil || unit < 1 {
		return f, fmt.Errorf("invalid unit number %q", args[0])
	}
	f.Unit = unit
	return f, nil
}

func messageFilter(args []string) (store.MessageFilter, error) {
	f := store.MessageFilter{MissingOnly: generateMissing}
	switch {
	case generateAll && len(args) > 0:
		return f, errors.New("pass either a conversation id or --all, not both")
	case len(args) == 0:
		return f, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return f, fmt.Errorf("invalid conversation id %q", args[0])
	}
	f.Conversation = id
	return f, nil
}

// dryRunStore reads from the real store and only logs writes.
type dryRunStore struct {
	*store.ReadingStore
}

func (s dryRunStore) SetAudioURL(_ context.Context, id int64, url string) error {
	log.Info("dry run: not recording audio url", "id", id, "url", url)
	return nil
}

func (s dryRunStore) SetMessageAudioURL(_ context.Context, id int64, url string) error {
	log.Info("dry run: not recording message audio url", "id", id, "url", url)
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var (
		filter   store.Filter
		messages store.MessageFilter
		err      error
	)
	if generateMessages {
		messages, err = messageFilter(args)
	} else {
		filter, err = generateFilter(args)
	}
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	var (
		readings job.Store        = db
		chat     job.MessageStore = db
		uploader tts.Uploader
	)
	if generateDryRun {
		readings, chat = dryRunStore{db}, dryRunStore{db}
		uploader, err = storage.NewLocalUploader(cfg.Job.OutputDir)
	} else {
		uploader, err = storage.NewOSSUploader(cfg.OSSConfig())
	}
	if err != nil {
		return err
	}

	synth, cleanup, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := &job.Runner{
		Store:            readings,
		Messages:         chat,
		Sequencer:        newSequencer(cfg, synth, generateWorkers),
		Uploader:         uploader,
		Segment:          cfg.SegmentConfig(),
		Format:           synth.Info().Format,
		KeyPrefix:        cfg.Job.KeyPrefix,
		MessageKeyPrefix: cfg.Job.MessageKeyPrefix,
		Force:            generateForce,
		ArticleDelay:     cfg.Job.ArticleDelay,
	}

	var (
		sum    job.Summary
		runErr error
	)
	if generateMessages {
		sum, runErr = runner.RunMessages(ctx, messages)
	} else {
		sum, runErr = runner.Run(ctx, filter)
	}
	printSummary(cmd, sum)
	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d %s failed", sum.Failed, sum.Total-sum.Skipped, sum.Kind)
	}
	return nil
}

func printSummary(cmd *cobra.Command, sum job.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s %d  %s %d  %s %d  %s %d  %s\n",
		faint("total"), sum.Total,
		success("succeeded"), sum.Succeeded,
		failure("failed"), sum.Failed,
		faint("skipped"), sum.Skipped,
		faint(sum.Elapsed.Round(time.Millisecond).String()))
	for _, f := range sum.Failures {
		fmt.Fprintf(out, "  %s %s: %v\n", failure("✗"), f.Label, f.Err)
	}
	if sum.Total > 0 && sum.Skipped == sum.Total && !generateForce {
		fmt.Fprintln(out, faint(fmt.Sprintf("  all %s already have audio; use --force to regenerate", sum.Kind)))
	}
}
