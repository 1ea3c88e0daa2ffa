package config

import (
	"github.com/UnamanoDAO/AI-IELTS/internal/cache"
	"github.com/UnamanoDAO/AI-IELTS/internal/engines"
	"github.com/UnamanoDAO/AI-IELTS/internal/mux"
	"github.com/UnamanoDAO/AI-IELTS/internal/pipeline"
	"github.com/UnamanoDAO/AI-IELTS/internal/poll"
	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
	"github.com/UnamanoDAO/AI-IELTS/internal/storage"
	"github.com/UnamanoDAO/AI-IELTS/internal/store"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// SegmentConfig returns the segmenter settings.
func (c *Config) SegmentConfig() segment.Config {
	sc := segment.DefaultConfig()
	sc.MaxLength = c.Segment.MaxLength
	sc.LookbackWindow = c.Segment.Lookback
	return sc
}

// Retry returns the per-segment retry policy.
func (c *Config) Retry() pipeline.Retry {
	r := pipeline.DefaultRetry()
	r.Attempts = c.Pipeline.RetryAttempts
	r.Backoff = c.Pipeline.RetryBackoff
	return r
}

// CacheConfig returns the audio cache settings.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		MemoryCapacity:   int64(c.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(c.Cache.DiskMB) << 20,
		Dir:              c.Cache.Dir,
		CompressionLevel: c.Cache.CompressionLevel,
		TTL:              c.Cache.TTL,
	}
}

// Format returns the audio format of the selected engine.
func (c *Config) Format() tts.Format {
	if e, err := engines.ValidateEngineSelection("", c.Engine); err == nil {
		switch e {
		case engines.EngineDashScope:
			return tts.Format(c.DashScope.Format)
		case engines.EngineGoogle, engines.EngineMock:
			return tts.FormatMP3
		}
	}
	return tts.Format(c.NLS.Format)
}

// EngineOptions returns the settings of every engine. audioCache may be nil.
func (c *Config) EngineOptions(audioCache engines.AudioCache) engines.Options {
	fallback, _ := engines.ValidateEngineSelection("", c.Fallback)

	return engines.Options{
		NLS: engines.NLSConfig{
			Endpoint:        c.NLS.Endpoint,
			AppKey:          c.Secrets.AppKey,
			AccessKeyID:     c.Secrets.AccessKeyID,
			AccessKeySecret: c.Secrets.AccessKeySecret,
			Voice: tts.Voice{
				Name:       c.NLS.Voice,
				Format:     tts.Format(c.NLS.Format),
				SampleRate: c.NLS.SampleRate,
				Volume:     c.NLS.Volume,
				SpeechRate: c.NLS.SpeechRate,
			},
			Timeout: c.NLS.Timeout,
		},
		Token: engines.NLSTokenSource{
			AccessKeyID:     c.Secrets.AccessKeyID,
			AccessKeySecret: c.Secrets.AccessKeySecret,
			Regions:         c.NLS.Regions,
		},
		DashScope: engines.DashScopeConfig{
			APIKey: c.Secrets.DashScopeAPIKey,
			Model:  c.DashScope.Model,
			Voice: tts.Voice{
				Name:       c.DashScope.Voice,
				Format:     tts.Format(c.DashScope.Format),
				SampleRate: c.DashScope.SampleRate,
			},
			Timeout: c.DashScope.Timeout,
		},
		GTTS: engines.GTTSConfig{
			Language:          c.GTTS.Language,
			Slow:              c.GTTS.Slow,
			Binary:            c.GTTS.Binary,
			Timeout:           c.GTTS.Timeout,
			RequestsPerMinute: c.GTTS.RequestsPerMinute,
		},
		Poller: poll.Poller{
			Interval: c.NLS.PollInterval,
			MaxWait:  c.NLS.PollTimeout,
		},
		TokenMargin: c.NLS.TokenMargin,
		Fallback:    fallback,
		MaxFailures: c.MaxFailures,
		Cache:       audioCache,
	}
}

// Muxer returns the configured muxer for format.
func (c *Config) Muxer(format tts.Format) tts.Muxer {
	if c.Mux.Backend == MuxConcat || format == tts.FormatPCM {
		return mux.ConcatMuxer{Format: format, TempDir: c.Mux.TempDir}
	}
	return mux.FFmpegMuxer{
		Format:  format,
		Binary:  c.Mux.FFmpeg,
		TempDir: c.Mux.TempDir,
		Timeout: c.Mux.Timeout,
	}
}

// OSSConfig returns the object storage settings.
func (c *Config) OSSConfig() storage.OSSConfig {
	return storage.OSSConfig{
		Region:          c.OSS.Region,
		Bucket:          c.OSS.Bucket,
		AccessKeyID:     c.Secrets.OSSAccessKeyID,
		AccessKeySecret: c.Secrets.OSSAccessKeySecret,
		Endpoint:        c.OSS.Endpoint,
		PublicBaseURL:   c.OSS.PublicBaseURL,
	}
}

// StoreConfig returns the database settings.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Secrets.DBPassword,
		Database: c.Database.Name,
	}
}
