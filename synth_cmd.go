package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/UnamanoDAO/AI-IELTS/internal/pipeline"
	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
)

var (
	synthOutput  string
	synthWorkers int

	synthCmd = &cobra.Command{
		Use:   "synth [FILE|-]",
		Short: "Synthesize one text into an audio file",
		Long: paragraph(fmt.Sprintf("\n%s one text through the full pipeline (segment, verify, synthesize, mux) and write the audio to a file. The database and object storage are not used.",
			keyword("Narrate"))),
		Example: paragraph("readaloud synth article.txt -o article.mp3\necho '你好，世界。' | readaloud synth -e gtts -o hello.mp3"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSynth,
	}
)

func init() {
	synthCmd.Flags().StringVarP(&synthOutput, "output", "o", "", "output file (default <input>.<format>)")
	synthCmd.Flags().IntVarP(&synthWorkers, "workers", "w", 0, "concurrent synthesis calls (default from config)")
}

func runSynth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	text, name, err := readInput(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to synthesize: the input is empty")
	}

	segments, err := segment.Split(text, cfg.SegmentConfig())
	if err != nil {
		return err
	}

	synth, cleanup, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	seq := newSequencer(cfg, synth, synthWorkers)
	seq.Progress = func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventSegmentDone:
			log.Info("segment done", "segment", fmt.Sprintf("%d/%d", e.Index+1, e.Total), "size", humanize.Bytes(uint64(e.Bytes)))
		case pipeline.EventSegmentRetry:
			log.Warn("segment retry", "segment", e.Index+1, "attempt", e.Attempt, "error", e.Err)
		case pipeline.EventMuxStarted:
			log.Info("muxing", "segments", e.Total)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("synthesizing", "input", name, "segments", len(segments))
	res, err := seq.Run(ctx, text, segments)
	if err != nil {
		return err
	}

	out := synthOutput
	if out == "" {
		base := strings.TrimSuffix(name, ".txt")
		if name == "stdin" {
			base = "output"
		}
		out = base + "." + synth.Info().Format.Ext()
	}
	if err := os.WriteFile(out, res.Audio, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write audio: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s (%s, %d segments, %s)\n",
		success("✓"), out, humanize.Bytes(uint64(len(res.Audio))), len(res.Segments), res.Elapsed.Round(time.Millisecond))
	return nil
}
