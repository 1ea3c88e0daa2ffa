package engines

import (
	"fmt"
	"time"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/poll"
	"github.com/UnamanoDAO/AI-IELTS/internal/token"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// Options carries the settings of every engine New can build.
type Options struct {
	NLS       NLSConfig
	Token     NLSTokenSource
	DashScope DashScopeConfig
	GTTS      GTTSConfig
	Poller    poll.Poller

	// TokenMargin is how long before expiry an NLS token is refreshed.
	TokenMargin time.Duration

	// Fallback names a second engine used after MaxFailures consecutive
	// failures of the first. Empty disables fallback.
	Fallback    EngineType
	MaxFailures int

	// Cache, when set, serves repeated segments without synthesizing.
	Cache AudioCache

	Clock clock.Clock
}

// New builds the engine named by engine, wrapped with fallback and caching
// as configured in opts.
func New(engine EngineType, opts Options) (tts.Synthesizer, error) {
	b := &builder{opts: opts}

	primary, err := b.build(engine)
	if err != nil {
		return nil, err
	}

	var s tts.Synthesizer = primary
	if opts.Fallback != EngineNone && opts.Fallback != engine {
		fb, err := b.build(opts.Fallback)
		if err != nil {
			primary.Close()
			return nil, fmt.Errorf("fallback engine: %w", err)
		}
		maxFailures := opts.MaxFailures
		if maxFailures <= 0 {
			maxFailures = 3
		}
		fe, err := NewFallbackEngine(primary, fb, maxFailures)
		if err != nil {
			primary.Close()
			fb.Close()
			return nil, err
		}
		s = fe
	}

	if opts.Cache != nil {
		s = NewCachedEngine(s, opts.Cache)
	}
	return s, nil
}

type builder struct {
	opts   Options
	tokens *token.Provider // shared by the NLS engines
}

func (b *builder) tokenProvider() *token.Provider {
	if b.tokens == nil {
		src := b.opts.Token
		if src.AccessKeyID == "" {
			src.AccessKeyID = b.opts.NLS.AccessKeyID
			src.AccessKeySecret = b.opts.NLS.AccessKeySecret
		}
		if src.Clock == nil {
			src.Clock = b.opts.Clock
		}
		b.tokens = token.NewProvider(&src, b.opts.TokenMargin, b.opts.Clock)
	}
	return b.tokens
}

func (b *builder) build(engine EngineType) (tts.Synthesizer, error) {
	switch engine {
	case EngineNLS:
		cfg := b.opts.NLS
		if cfg.Clock == nil {
			cfg.Clock = b.opts.Clock
		}
		return NewNLSEngine(cfg, b.tokenProvider())
	case EngineNLSLong:
		cfg := b.opts.NLS
		if cfg.Clock == nil {
			cfg.Clock = b.opts.Clock
		}
		return NewLongTextEngine(cfg, b.tokenProvider(), b.opts.Poller)
	case EngineDashScope:
		return NewDashScopeEngine(b.opts.DashScope)
	case EngineGoogle:
		return NewGTTSEngine(b.opts.GTTS)
	case EngineMock:
		return NewMockEngine(), nil
	case EngineNone:
		return nil, ErrNoEngineConfigured
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEngine, engine)
	}
}
