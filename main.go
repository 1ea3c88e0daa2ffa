// Package main provides the entry point for the readaloud CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/UnamanoDAO/AI-IELTS/internal/cache"
	"github.com/UnamanoDAO/AI-IELTS/internal/config"
	"github.com/UnamanoDAO/AI-IELTS/internal/engines"
	"github.com/UnamanoDAO/AI-IELTS/internal/pipeline"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	engineFlag string
	noCache    bool

	rootCmd = &cobra.Command{
		Use:   "readaloud",
		Short: "Turn articles into narrated audio",
		Long: paragraph(
			fmt.Sprintf("\nSplit articles into %s segments, synthesize them and publish one audio file per article.",
				keyword("bounded")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if debug {
				return enableDebugLog()
			}
			return nil
		},
	}
)

// loadConfig decodes and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
	return cfg, nil
}

// readInput reads the file named by arg, or stdin for "-" and for no
// argument when stdin is a pipe.
func readInput(args []string) (string, string, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	if arg == "" {
		if yes, err := stdinIsPipe(); err != nil {
			return "", "", err
		} else if !yes {
			return "", "", errors.New("missing input: pass a file or pipe text to stdin")
		}
		arg = "-"
	}

	if arg == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("unable to read stdin: %w", err)
		}
		return string(b), "stdin", nil
	}

	b, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("unable to open file: %w", err)
	}
	return string(b), filepath.Base(arg), nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// openCache opens the audio cache. It returns nil when the cache is
// disabled or cannot be opened; synthesis works without it.
func openCache(cfg *config.Config) *cache.CacheManager {
	if noCache || !cfg.Cache.Enabled {
		return nil
	}
	m, err := cache.NewCacheManager(cfg.CacheConfig())
	if err != nil {
		log.Warn("audio cache unavailable", "error", err)
		return nil
	}
	return m
}

// newSynthesizer checks and builds the selected engine. The returned cleanup
// closes the engine and the cache.
func newSynthesizer(cfg *config.Config) (tts.Synthesizer, func(), error) {
	engine, err := engines.ValidateEngineSelection(engineFlag, cfg.Engine)
	if err != nil {
		return nil, nil, err
	}

	c := openCache(cfg)
	var audioCache engines.AudioCache
	if c != nil {
		audioCache = c
	}
	opts := cfg.EngineOptions(audioCache)

	if res := engines.CheckEngine(engine, opts); !res.Available {
		if c != nil {
			c.Close()
		}
		if res.Guidance != "" {
			fmt.Fprintln(os.Stderr, paragraph(res.Guidance))
		}
		return nil, nil, res.Error
	}

	synth, err := engines.New(engine, opts)
	if err != nil {
		if c != nil {
			c.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if err := synth.Close(); err != nil {
			log.Warn("closing engine", "error", err)
		}
		if c != nil {
			st := c.Stats()
			log.Debug("audio cache",
				"l1_hits", st.L1Hits,
				"l2_hits", st.L2Hits,
				"misses", st.Misses,
				"hit_rate", fmt.Sprintf("%.0f%%", st.HitRate()*100))
			if err := c.Close(); err != nil {
				log.Warn("closing audio cache", "error", err)
			}
		}
	}

	info := synth.Info()
	log.Info("using engine", "engine", info.Name, "voice", info.Voice, "format", info.Format)
	return synth, cleanup, nil
}

// newSequencer builds the pipeline around synth.
func newSequencer(cfg *config.Config, synth tts.Synthesizer, workers int) *pipeline.Sequencer {
	format := synth.Info().Format
	if format == "" {
		format = cfg.Format()
	}
	if workers <= 0 {
		workers = cfg.Pipeline.Workers
	}
	return &pipeline.Sequencer{
		Synthesizer:  synth,
		Muxer:        cfg.Muxer(format),
		Workers:      workers,
		SegmentDelay: cfg.Pipeline.SegmentDelay,
		MaxLength:    cfg.Segment.MaxLength,
		Retry:        cfg.Retry(),
	}
}

// signalContext is canceled on the first interrupt. A second one exits.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			signal.Stop(sigs)
			return
		}
		log.Warn("interrupted, stopping (press Ctrl+C again to quit)")
		cancel()
		<-sigs
		os.Exit(130)
	}()
	return ctx, cancel
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	cobra.OnInitialize(initConfig)
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is readaloud.yml in the user config directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output, also to a file")
	rootCmd.PersistentFlags().StringVarP(&engineFlag, "engine", "e", "", "synthesis engine (nls, nls-long, dashscope, gtts, mock)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "do not read or write the audio cache")

	config.SetDefaults(viper.GetViper())
	_ = viper.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))

	rootCmd.AddCommand(segmentCmd, synthCmd, generateCmd, cacheCmd, configCmd, manCmd)
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		tryLoadConfigFromDefaultPlaces()
		return
	}
	bindEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.SearchDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	bindEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
		return
	}
	configFile = filepath.Join(dirs[0], config.AppName+".yml")
}

// bindEnv maps READALOUD_SEGMENT_MAX_LENGTH to segment.max_length and so on.
func bindEnv() {
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
