// Package config loads readaloud settings from the config file, the
// environment and command line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/UnamanoDAO/AI-IELTS/internal/engines"
	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// Mux backends.
const (
	MuxFFmpeg = "ffmpeg"
	MuxConcat = "concat"
)

// Config is the effective configuration. Secrets never come from the config
// file and are left out of its YAML form.
type Config struct {
	Engine      string `mapstructure:"engine" yaml:"engine"`
	Fallback    string `mapstructure:"fallback" yaml:"fallback"`
	MaxFailures int    `mapstructure:"max_failures" yaml:"max_failures"`

	Segment   Segment   `mapstructure:"segment" yaml:"segment"`
	Pipeline  Pipeline  `mapstructure:"pipeline" yaml:"pipeline"`
	Job       Job       `mapstructure:"job" yaml:"job"`
	Mux       Mux       `mapstructure:"mux" yaml:"mux"`
	Cache     Cache     `mapstructure:"cache" yaml:"cache"`
	NLS       NLS       `mapstructure:"nls" yaml:"nls"`
	DashScope DashScope `mapstructure:"dashscope" yaml:"dashscope"`
	GTTS      GTTS      `mapstructure:"gtts" yaml:"gtts"`
	OSS       OSS       `mapstructure:"oss" yaml:"oss"`
	Database  Database  `mapstructure:"database" yaml:"database"`

	Secrets Secrets `mapstructure:"-" yaml:"-"`
}

type Segment struct {
	MaxLength int `mapstructure:"max_length" yaml:"max_length"`
	Lookback  int `mapstructure:"lookback" yaml:"lookback"`
}

type Pipeline struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	SegmentDelay  time.Duration `mapstructure:"segment_delay" yaml:"segment_delay"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

type Job struct {
	ArticleDelay time.Duration `mapstructure:"article_delay" yaml:"article_delay"`
	KeyPrefix    string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	// MessageKeyPrefix holds chat message audio.
	MessageKeyPrefix string `mapstructure:"message_key_prefix" yaml:"message_key_prefix"`
	// OutputDir receives audio instead of OSS on dry runs.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

type Mux struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	FFmpeg  string        `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TempDir string        `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type Cache struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir              string        `mapstructure:"dir" yaml:"dir"`
	MemoryMB         int           `mapstructure:"memory_mb" yaml:"memory_mb"`
	DiskMB           int           `mapstructure:"disk_mb" yaml:"disk_mb"`
	TTL              time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CompressionLevel int           `mapstructure:"compression_level" yaml:"compression_level"`
}

type NLS struct {
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	Voice        string        `mapstructure:"voice" yaml:"voice"`
	Format       string        `mapstructure:"format" yaml:"format"`
	SampleRate   int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Volume       int           `mapstructure:"volume" yaml:"volume"`
	SpeechRate   int           `mapstructure:"speech_rate" yaml:"speech_rate"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Regions      []string      `mapstructure:"regions" yaml:"regions"`
	TokenMargin  time.Duration `mapstructure:"token_margin" yaml:"token_margin"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

type DashScope struct {
	Model      string        `mapstructure:"model" yaml:"model"`
	Voice      string        `mapstructure:"voice" yaml:"voice"`
	Format     string        `mapstructure:"format" yaml:"format"`
	SampleRate int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type GTTS struct {
	Language          string        `mapstructure:"language" yaml:"language"`
	Slow              bool          `mapstructure:"slow" yaml:"slow"`
	Binary            string        `mapstructure:"binary" yaml:"binary"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

type OSS struct {
	Region        string `mapstructure:"region" yaml:"region"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

type Database struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	User string `mapstructure:"user" yaml:"user"`
	Name string `mapstructure:"name" yaml:"name"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	voice := tts.DefaultVoice()

	v.SetDefault("engine", string(engines.EngineNLS))
	v.SetDefault("fallback", "")
	v.SetDefault("max_failures", 3)

	v.SetDefault("segment.max_length", segment.DefaultMaxLength)
	v.SetDefault("segment.lookback", segment.DefaultLookbackWindow)

	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.segment_delay", time.Second)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_backoff", time.Second)

	v.SetDefault("job.article_delay", 2*time.Second)
	v.SetDefault("job.key_prefix", "readings/audio")
	v.SetDefault("job.message_key_prefix", "assistant/audio")
	v.SetDefault("job.output_dir", "audio")

	v.SetDefault("mux.backend", MuxFFmpeg)
	v.SetDefault("mux.ffmpeg", "ffmpeg")
	v.SetDefault("mux.timeout", 2*time.Minute)
	v.SetDefault("mux.temp_dir", "")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.memory_mb", 64)
	v.SetDefault("cache.disk_mb", 1024)
	v.SetDefault("cache.ttl", 30*24*time.Hour)
	v.SetDefault("cache.compression_level", 3)

	v.SetDefault("nls.endpoint", engines.DefaultNLSEndpoint)
	v.SetDefault("nls.voice", voice.Name)
	v.SetDefault("nls.format", string(voice.Format))
	v.SetDefault("nls.sample_rate", voice.SampleRate)
	v.SetDefault("nls.volume", voice.Volume)
	v.SetDefault("nls.speech_rate", voice.SpeechRate)
	v.SetDefault("nls.timeout", 60*time.Second)
	v.SetDefault("nls.regions", engines.DefaultTokenRegions)
	v.SetDefault("nls.token_margin", 5*time.Minute)
	v.SetDefault("nls.poll_interval", 5*time.Second)
	v.SetDefault("nls.poll_timeout", 5*time.Minute)

	v.SetDefault("dashscope.model", engines.DefaultDashScopeModel)
	v.SetDefault("dashscope.voice", engines.DefaultDashScopeVoice)
	v.SetDefault("dashscope.format", string(tts.FormatMP3))
	v.SetDefault("dashscope.sample_rate", 22050)
	v.SetDefault("dashscope.timeout", 60*time.Second)

	v.SetDefault("gtts.language", "zh-CN")
	v.SetDefault("gtts.slow", false)
	v.SetDefault("gtts.binary", "gtts-cli")
	v.SetDefault("gtts.timeout", 30*time.Second)
	v.SetDefault("gtts.requests_per_minute", 50)

	v.SetDefault("oss.region", "oss-cn-beijing")
	v.SetDefault("oss.bucket", "")
	v.SetDefault("oss.endpoint", "")
	v.SetDefault("oss.public_base_url", "")

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "")
	v.SetDefault("database.name", "")
}

// Default returns the configuration produced by SetDefaults alone.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Load decodes v into a Config, overlays secrets from the environment and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "decode configuration", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, err
	}
	c.applySecrets(secrets)

	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validFormats = []tts.Format{tts.FormatMP3, tts.FormatWAV, tts.FormatPCM}

// Validate checks values that do not depend on which command runs.
// Credentials are checked later, by the engines and collaborators that use them.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, err := engines.ValidateEngineSelection("", c.Engine); err != nil {
		add("engine %q is not supported (nls, nls-long, dashscope, gtts, mock)", c.Engine)
	}
	if c.Fallback != "" {
		if _, err := engines.ValidateEngineSelection("", c.Fallback); err != nil {
			add("fallback engine %q is not supported", c.Fallback)
		}
	}
	if c.MaxFailures < 0 {
		add("max_failures must not be negative, got %d", c.MaxFailures)
	}

	if err := c.SegmentConfig().Validate(); err != nil {
		add("segment: %v", err)
	}

	if c.Pipeline.Workers < 0 {
		add("pipeline.workers must not be negative, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.RetryAttempts < 1 {
		add("pipeline.retry_attempts must be at least 1, got %d", c.Pipeline.RetryAttempts)
	}
	if c.Pipeline.SegmentDelay < 0 || c.Job.ArticleDelay < 0 {
		add("delays must not be negative")
	}

	if !lo.Contains([]string{MuxFFmpeg, MuxConcat}, c.Mux.Backend) {
		add("mux.backend must be %q or %q, got %q", MuxFFmpeg, MuxConcat, c.Mux.Backend)
	}

	if c.Cache.Enabled {
		if c.Cache.MemoryMB < 1 || c.Cache.DiskMB < 1 {
			add("cache sizes must be at least 1 MB")
		}
		if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
			add("cache.compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
		}
	}

	if !lo.Contains(validFormats, tts.Format(c.NLS.Format)) {
		add("nls.format must be one of %v, got %q", validFormats, c.NLS.Format)
	}
	if c.NLS.Volume < 0 || c.NLS.Volume > 100 {
		add("nls.volume must be between 0 and 100, got %d", c.NLS.Volume)
	}
	if c.NLS.SpeechRate < -500 || c.NLS.SpeechRate > 500 {
		add("nls.speech_rate must be between -500 and 500, got %d", c.NLS.SpeechRate)
	}
	if !lo.Contains(validFormats, tts.Format(c.DashScope.Format)) {
		add("dashscope.format must be one of %v, got %q", validFormats, c.DashScope.Format)
	}

	if _, err := language.Parse(c.GTTS.Language); err != nil {
		add("gtts.language %q is not a valid language tag", c.GTTS.Language)
	}
	if c.GTTS.RequestsPerMinute < 0 {
		add("gtts.requests_per_minute must not be negative, got %d", c.GTTS.RequestsPerMinute)
	}

	if c.Database.Port < 0 || c.Database.Port > 65535 {
		add("database.port %d is out of range", c.Database.Port)
	}

	if len(problems) > 0 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration, strings.Join(problems, "; "), nil)
	}
	return nil
}
