package engines

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// FallbackEngine wraps a primary engine with automatic fallback to a secondary engine
// when the primary fails consistently.
type FallbackEngine struct {
	primary       tts.Synthesizer
	fallback      tts.Synthesizer
	failures      int
	maxFailures   int
	usingFallback bool
	mu            sync.RWMutex
}

// NewFallbackEngine creates a new engine with automatic fallback capability.
// Both engines must produce the same audio format.
func NewFallbackEngine(primary, fallback tts.Synthesizer, maxFailures int) (*FallbackEngine, error) {
	if pf, ff := primary.Info().Format, fallback.Info().Format; pf != ff {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("fallback format %s differs from primary format %s", ff, pf), nil)
	}
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &FallbackEngine{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
	}, nil
}

// Synthesize uses the active engine, switching to the fallback once the
// primary has failed maxFailures times in a row. Cancellation never counts
// as a failure.
func (f *FallbackEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.RLock()
	usingFallback := f.usingFallback
	f.mu.RUnlock()

	if usingFallback {
		return f.fallback.Synthesize(ctx, text)
	}

	audio, err := f.primary.Synthesize(ctx, text)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			log.Info("primary engine recovered", "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return audio, nil
	}
	if ctx.Err() != nil || errors.Is(err, tts.ErrCanceled) {
		return nil, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	log.Warn("primary engine failed", "attempt", failures, "max", f.maxFailures, "error", err)
	switchNow := failures >= f.maxFailures && !f.usingFallback
	if switchNow {
		log.Warn("switching to fallback engine",
			"primary", f.primary.Info().Name, "fallback", f.fallback.Info().Name)
		f.usingFallback = true
	}
	f.mu.Unlock()

	if failures < f.maxFailures {
		return nil, err
	}

	audio, ferr := f.fallback.Synthesize(ctx, text)
	if ferr != nil {
		return nil, fmt.Errorf("both engines failed: primary: %v, fallback: %w", err, ferr)
	}
	return audio, nil
}

// Info returns the active engine's info.
func (f *FallbackEngine) Info() tts.EngineInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.usingFallback {
		return f.fallback.Info()
	}
	return f.primary.Info()
}

// Validate validates the primary, switching to the fallback when the
// primary is unusable and the fallback is not.
func (f *FallbackEngine) Validate(ctx context.Context) error {
	perr := validate(ctx, f.primary)
	if perr == nil {
		return nil
	}
	if ferr := validate(ctx, f.fallback); ferr != nil {
		return fmt.Errorf("both engines unavailable: primary: %v, fallback: %w", perr, ferr)
	}

	f.mu.Lock()
	f.usingFallback = true
	f.mu.Unlock()
	log.Warn("primary engine not available, using fallback", "error", perr)
	return nil
}

func validate(ctx context.Context, s tts.Synthesizer) error {
	if v, ok := s.(tts.Validator); ok {
		return v.Validate(ctx)
	}
	return nil
}

// Close closes both engines.
func (f *FallbackEngine) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}

// Reset attempts to reset to primary engine.
func (f *FallbackEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = 0
	f.usingFallback = false
	log.Info("reset to primary engine")
}

// Status returns the current engine status.
func (f *FallbackEngine) Status() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.usingFallback {
		return fmt.Sprintf("Using fallback engine (primary failed %d times)", f.failures)
	}
	return fmt.Sprintf("Using primary engine (failures: %d/%d)", f.failures, f.maxFailures)
}

var (
	_ tts.Synthesizer = (*FallbackEngine)(nil)
	_ tts.Validator   = (*FallbackEngine)(nil)
)
