package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/UnamanoDAO/AI-IELTS/internal/engines"
	"github.com/UnamanoDAO/AI-IELTS/internal/mux"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALIYUN_ACCESS_KEY_ID", "ALIYUN_ACCESS_KEY_SECRET", "ALIYUN_TTS_APP_KEY",
		"OSS_ACCESS_KEY_ID", "OSS_ACCESS_KEY_SECRET", "DASHSCOPE_API_KEY",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
	} {
		unsetEnv(t, k)
	}
	old := EnvFiles
	EnvFiles = nil
	t.Cleanup(func() { EnvFiles = old })
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if c.Engine != "nls" || c.Segment.MaxLength != 500 || c.Segment.Lookback != 50 {
		t.Errorf("defaults = %+v", c)
	}
	if c.Job.ArticleDelay != 2*time.Second || c.NLS.PollInterval != 5*time.Second {
		t.Errorf("durations = %v, %v", c.Job.ArticleDelay, c.NLS.PollInterval)
	}
	if c.Job.KeyPrefix != "readings/audio" || c.Job.MessageKeyPrefix != "assistant/audio" {
		t.Errorf("key prefixes = %q, %q", c.Job.KeyPrefix, c.Job.MessageKeyPrefix)
	}
}

func TestDefaultFileMatchesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(DefaultFile)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	var fromFile Config
	if err := v.Unmarshal(&fromFile); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(fromFile, want) {
		t.Errorf("default file decodes to\n%+v\nwant\n%+v", fromFile, want)
	}
}

func TestLoad(t *testing.T) {
	clearSecrets(t)
	t.Setenv("ALIYUN_ACCESS_KEY_ID", "id")
	t.Setenv("ALIYUN_ACCESS_KEY_SECRET", "secret")
	t.Setenv("DB_HOST", "db.internal")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("DB_PASSWORD=hunter2\nDB_HOST=ignored\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	EnvFiles = []string{envFile, filepath.Join(t.TempDir(), "missing.env")}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader("engine: mock\nsegment:\n  max_length: 300\ndatabase:\n  host: file-host\n  user: app\n")); err != nil {
		t.Fatal(err)
	}

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Engine != "mock" || c.Segment.MaxLength != 300 {
		t.Errorf("file values not applied: %+v", c)
	}
	// Process environment beats both .env and the file.
	if c.Database.Host != "db.internal" {
		t.Errorf("database host = %q", c.Database.Host)
	}
	if c.Secrets.DBPassword != "hunter2" {
		t.Errorf("password from .env = %q", c.Secrets.DBPassword)
	}
	if c.Secrets.OSSAccessKeyID != "id" || c.Secrets.OSSAccessKeySecret != "secret" {
		t.Errorf("oss keys did not default to aliyun keys: %+v", c.Secrets)
	}

	sc := c.StoreConfig()
	if sc.Host != "db.internal" || sc.User != "app" || sc.Password != "hunter2" || sc.Port != 3306 {
		t.Errorf("StoreConfig() = %+v", sc)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearSecrets(t)

	v := viper.New()
	SetDefaults(v)
	v.Set("engine", "espeak")
	if _, err := Load(v); !errors.Is(err, tts.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want InvalidConfiguration", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"unknown engine", func(c *Config) { c.Engine = "espeak" }, "engine"},
		{"unknown fallback", func(c *Config) { c.Fallback = "piper" }, "fallback"},
		{"lookback too large", func(c *Config) { c.Segment.Lookback = 600 }, "segment"},
		{"zero length", func(c *Config) { c.Segment.MaxLength = 0 }, "segment"},
		{"negative workers", func(c *Config) { c.Pipeline.Workers = -1 }, "workers"},
		{"no attempts", func(c *Config) { c.Pipeline.RetryAttempts = 0 }, "retry_attempts"},
		{"mux backend", func(c *Config) { c.Mux.Backend = "sox" }, "mux.backend"},
		{"cache size", func(c *Config) { c.Cache.DiskMB = 0 }, "cache sizes"},
		{"nls format", func(c *Config) { c.NLS.Format = "ogg" }, "nls.format"},
		{"volume", func(c *Config) { c.NLS.Volume = 101 }, "nls.volume"},
		{"speech rate", func(c *Config) { c.NLS.SpeechRate = -600 }, "speech_rate"},
		{"language", func(c *Config) { c.GTTS.Language = "not a tag" }, "gtts.language"},
		{"db port", func(c *Config) { c.Database.Port = 99999 }, "database.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			err := c.Validate()
			if !errors.Is(err, tts.ErrInvalidConfiguration) {
				t.Fatalf("err = %v, want InvalidConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	c := Default()
	c.Cache.Enabled = false
	c.Cache.DiskMB = 0
	if err := c.Validate(); err != nil {
		t.Errorf("disabled cache sizes should not be checked: %v", err)
	}
}

func TestEngineOptions(t *testing.T) {
	c := Default()
	c.Fallback = "google"
	c.Secrets = Secrets{AccessKeyID: "id", AccessKeySecret: "secret", AppKey: "app", DashScopeAPIKey: "sk"}

	opts := c.EngineOptions(nil)
	if opts.NLS.AppKey != "app" || opts.Token.AccessKeyID != "id" || opts.DashScope.APIKey != "sk" {
		t.Errorf("credentials not mapped: %+v", opts)
	}
	if opts.NLS.Voice != tts.DefaultVoice() {
		t.Errorf("voice = %+v, want %+v", opts.NLS.Voice, tts.DefaultVoice())
	}
	if opts.Fallback != engines.EngineGoogle || opts.MaxFailures != 3 {
		t.Errorf("fallback = %q after %d", opts.Fallback, opts.MaxFailures)
	}
	if opts.Poller.Interval != 5*time.Second || opts.Poller.MaxWait != 5*time.Minute {
		t.Errorf("poller = %+v", opts.Poller)
	}
	if opts.Cache != nil {
		t.Error("nil cache became non-nil")
	}
}

func TestMuxerAndFormat(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(c *Config)
		format   tts.Format
		wantType string
	}{
		{"ffmpeg", func(c *Config) {}, tts.FormatMP3, "ffmpeg"},
		{"concat", func(c *Config) { c.Mux.Backend = MuxConcat }, tts.FormatMP3, "concat"},
		{"pcm forces concat", func(c *Config) { c.NLS.Format = "pcm" }, tts.FormatPCM, "concat"},
		{"dashscope wav", func(c *Config) { c.Engine = "cosyvoice"; c.DashScope.Format = "wav" }, tts.FormatWAV, "ffmpeg"},
		{"gtts is mp3", func(c *Config) { c.Engine = "gtts"; c.NLS.Format = "wav" }, tts.FormatMP3, "ffmpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			if got := c.Format(); got != tt.format {
				t.Fatalf("Format() = %q, want %q", got, tt.format)
			}
			var got string
			switch m := c.Muxer(c.Format()).(type) {
			case mux.FFmpegMuxer:
				got = "ffmpeg"
				if m.Format != tt.format {
					t.Errorf("muxer format = %q", m.Format)
				}
			case mux.ConcatMuxer:
				got = "concat"
			}
			if got != tt.wantType {
				t.Errorf("Muxer() = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestCacheConfig(t *testing.T) {
	cfg := Default()
	cc := cfg.CacheConfig()
	if cc.MemoryCapacity != 64<<20 || cc.DiskCapacity != 1<<30 || cc.TTL != 720*time.Hour {
		t.Errorf("CacheConfig() = %+v", cc)
	}
}

func TestExpandPath(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("READALOUD_TEST_DIR", "x")

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"~/audio", filepath.Join(home, "audio")},
		{"/tmp/$READALOUD_TEST_DIR", "/tmp/x"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchDirs(t *testing.T) {
	t.Setenv("READALOUD_CONFIG_HOME", "/custom")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	dirs, err := SearchDirs()
	if err != nil {
		t.Fatalf("SearchDirs: %v", err)
	}
	if len(dirs) < 2 || dirs[0] != "/custom" || dirs[1] != filepath.Join("/xdg", AppName) {
		t.Errorf("SearchDirs() = %v", dirs)
	}
}
