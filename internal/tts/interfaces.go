package tts

import (
	"context"
)

// Synthesizer is the contract every speech synthesis collaborator adapter
// implements. One call synthesizes one bounded text segment.
// Whether the backend answers synchronously or through an async task that must
// be polled is hidden behind Synthesize.
type Synthesizer interface {
	// Synthesize converts text to an encoded audio buffer (see Info().Format).
	// Implementations must honor ctx cancellation, including while polling.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Info returns engine capabilities and configuration.
	Info() EngineInfo

	// Close releases any resources held by the engine.
	Close() error
}

// Validator is implemented by engines that can check their own setup
// (binaries on PATH, credentials) before a run starts.
type Validator interface {
	Validate(ctx context.Context) error
}

// Muxer concatenates audio buffers of one codec and container into a single
// buffer. It must fail rather than silently drop a malformed input.
type Muxer interface {
	Mux(ctx context.Context, parts [][]byte) ([]byte, error)
}

// Uploader stores a finished audio buffer and returns a publicly resolvable URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
