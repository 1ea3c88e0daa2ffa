package engines

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/UnamanoDAO/AI-IELTS/internal/cache"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// AudioCache is the subset of the cache manager CachedEngine needs.
type AudioCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// CachedEngine serves repeated segments from an audio cache. Keys cover the
// engine name, voice, format and text, so a voice change never reuses audio.
type CachedEngine struct {
	engine tts.Synthesizer
	cache  AudioCache
}

// NewCachedEngine wraps engine with c.
func NewCachedEngine(engine tts.Synthesizer, c AudioCache) *CachedEngine {
	return &CachedEngine{engine: engine, cache: c}
}

// Synthesize implements tts.Synthesizer. Empty results are never cached.
func (e *CachedEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	info := e.engine.Info()
	key := cache.GenerateCacheKey(info.Name, info.Voice, string(info.Format), text)

	if audio, ok := e.cache.Get(key); ok && len(audio) > 0 {
		log.Debug("segment audio cache hit", "engine", info.Name, "key", key)
		return audio, nil
	}

	audio, err := e.engine.Synthesize(ctx, text)
	if err != nil || len(audio) == 0 {
		return audio, err
	}
	if err := e.cache.Put(key, audio); err != nil {
		log.Warn("failed to cache segment audio", "key", key, "error", err)
	}
	return audio, nil
}

// Info implements tts.Synthesizer.
func (e *CachedEngine) Info() tts.EngineInfo {
	return e.engine.Info()
}

// Validate delegates to the wrapped engine.
func (e *CachedEngine) Validate(ctx context.Context) error {
	return validate(ctx, e.engine)
}

// Close closes the wrapped engine. The cache is owned by the caller.
func (e *CachedEngine) Close() error {
	return e.engine.Close()
}

var (
	_ tts.Synthesizer = (*CachedEngine)(nil)
	_ tts.Validator   = (*CachedEngine)(nil)
	_ AudioCache      = (*cache.CacheManager)(nil)
)
