package engines

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/UnamanoDAO/AI-IELTS/internal/subprocess"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

const gttsMaxTextSize = 5000

// GTTSEngine implements tts.Synthesizer using gTTS (Google Translate TTS).
// gtts-cli writes MP3 to stdout, which is returned as is. This provides free
// TTS without requiring an API key.
type GTTSEngine struct {
	// Configuration
	language string
	slow     bool
	binary   string
	timeout  time.Duration

	// Rate limiting to avoid being blocked by Google
	rateLimiter *rate.Limiter

	mu sync.RWMutex
}

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Language code (e.g., "en", "zh-CN") - defaults to "en"
	Language string

	// Slow speech (--slow flag) - defaults to false
	Slow bool

	// Binary is the gtts-cli executable - defaults to "gtts-cli"
	Binary string

	// Timeout per call - defaults to 30s
	Timeout time.Duration

	// Rate limit requests per minute to avoid being blocked (defaults to 50)
	RequestsPerMinute int
}

// NewGTTSEngine creates a new gTTS TTS engine.
func NewGTTSEngine(config GTTSConfig) (*GTTSEngine, error) {
	if config.Language == "" {
		config.Language = "en"
	}
	if config.Binary == "" {
		config.Binary = "gtts-cli"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 50 // Conservative default
	}
	if config.RequestsPerMinute < 0 {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("gtts: requests per minute must be positive, got %d", config.RequestsPerMinute), nil)
	}

	return &GTTSEngine{
		language:    config.Language,
		slow:        config.Slow,
		binary:      config.Binary,
		timeout:     config.Timeout,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
	}, nil
}

// Synthesize converts text to MP3 audio using gtts-cli.
func (e *GTTSEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	if n := len([]rune(text)); n > gttsMaxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", n, gttsMaxTextSize)
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	e.mu.RLock()
	args := []string{text, "-l", e.language}
	if e.slow {
		args = append(args, "--slow")
	}
	binary, timeout := e.binary, e.timeout
	e.mu.RUnlock()
	args = append(args, "-o", "-")

	mp3, err := subprocess.Run(ctx, subprocess.Command{
		Name:    binary,
		Args:    args,
		Timeout: timeout,
	})
	if err != nil {
		if errors.Is(err, subprocess.ErrTimeout) {
			return nil, tts.NewError(tts.ErrorCodeSynthesisTimeout, "gtts", err)
		}
		return nil, fmt.Errorf("MP3 generation failed: %w", err)
	}

	// Sanity check: MP3 shouldn't be too large
	if len(mp3) > maxAudioSize {
		return nil, fmt.Errorf("gtts-cli MP3 output too large: %d bytes (max %d)", len(mp3), maxAudioSize)
	}
	return mp3, nil
}

// Info returns engine capabilities and configuration.
func (e *GTTSEngine) Info() tts.EngineInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return tts.EngineInfo{
		Name:        "gtts",
		Voice:       e.language,
		Format:      tts.FormatMP3,
		SampleRate:  24000,
		MaxTextSize: gttsMaxTextSize,
		IsOnline:    true, // Requires internet connection
	}
}

// Validate checks that gtts-cli is installed and runs.
func (e *GTTSEngine) Validate(ctx context.Context) error {
	path, err := subprocess.Available(e.binary)
	if err != nil {
		return fmt.Errorf("%w\n\nInstall with: pip install gtts", err)
	}
	if _, err := subprocess.Run(ctx, subprocess.Command{
		Name:    path,
		Args:    []string{"--help"},
		Timeout: 10 * time.Second,
	}); err != nil {
		return fmt.Errorf("cannot execute gtts-cli: %w", err)
	}
	return nil
}

// Close releases resources held by the engine.
func (e *GTTSEngine) Close() error {
	return nil
}

// SetLanguage changes the language for synthesis.
func (e *GTTSEngine) SetLanguage(language string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = language
}

// Language returns the current language.
func (e *GTTSEngine) Language() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.language
}

var (
	_ tts.Synthesizer = (*GTTSEngine)(nil)
	_ tts.Validator   = (*GTTSEngine)(nil)
)
