package engines

import (
	"context"
	"sync"
	"time"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// Silent MPEG-1 Layer III frame: 128 kbit/s, 44.1 kHz, no padding.
const (
	mockFrameSize  = 417
	mockCharsFrame = 4 // characters of text per generated frame
)

var mockFrameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

// MockEngine produces deterministic silent MP3 audio for dry runs and tests.
type MockEngine struct {
	delay time.Duration // Simulated processing delay

	mu           sync.Mutex
	failureError error
	failOn       map[string]error
	calls        int
	texts        []string
}

// NewMockEngine creates a mock engine with no delay.
func NewMockEngine() *MockEngine {
	return &MockEngine{failOn: make(map[string]error)}
}

// SetDelay sets the simulated processing delay.
func (e *MockEngine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// SetFailure makes every call fail with err. A nil err clears it.
func (e *MockEngine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureError = err
}

// FailOn makes calls for exactly text fail with err.
func (e *MockEngine) FailOn(text string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn[text] = err
}

// Synthesize returns one silent frame per few characters of text.
func (e *MockEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, text)
	delay := e.delay
	err := e.failureError
	if ferr, ok := e.failOn[text]; ok {
		err = ferr
	}
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return MockAudio(len([]rune(text))), nil
}

// MockAudio returns the silent MP3 the mock engine produces for a text of
// chars characters.
func MockAudio(chars int) []byte {
	frames := (chars + mockCharsFrame - 1) / mockCharsFrame
	if frames < 1 {
		frames = 1
	}
	out := make([]byte, frames*mockFrameSize)
	for i := 0; i < frames; i++ {
		copy(out[i*mockFrameSize:], mockFrameHeader)
	}
	return out
}

// Calls returns how many times Synthesize was called.
func (e *MockEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Texts returns the texts passed to Synthesize, in call order.
func (e *MockEngine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// Info implements tts.Synthesizer.
func (e *MockEngine) Info() tts.EngineInfo {
	return tts.EngineInfo{
		Name:       "mock",
		Voice:      "mock-voice-1",
		Format:     tts.FormatMP3,
		SampleRate: 44100,
	}
}

// Close implements tts.Synthesizer.
func (e *MockEngine) Close() error {
	return nil
}

var _ tts.Synthesizer = (*MockEngine)(nil)
