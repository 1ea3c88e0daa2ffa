package segment

import (
	"fmt"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

const (
	// DefaultMaxLength is the per-segment character limit used when none is
	// configured. Cloud TTS sync endpoints accept somewhat more; this leaves room.
	DefaultMaxLength = 500

	// DefaultLookbackWindow is how far back from the limit a force-split
	// searches for a weak separator.
	DefaultLookbackWindow = 50

	// DefaultBoundaries are the sentence terminators segments prefer to end on.
	DefaultBoundaries = ".!?\n。！？"

	// DefaultWeakBoundaries are the clause separators used inside a sentence
	// that does not fit in one segment.
	DefaultWeakBoundaries = " ,，;；"
)

// Config controls how text is segmented.
type Config struct {
	// MaxLength is the inclusive upper bound on segment length, in characters.
	MaxLength int

	// LookbackWindow is the number of characters before MaxLength searched for
	// a weak separator when a single sentence has to be cut.
	LookbackWindow int

	// Boundaries holds the strong split characters. Each one stays attached
	// to the text before it.
	Boundaries string

	// WeakBoundaries holds the characters a force-split may cut after.
	WeakBoundaries string
}

// DefaultConfig returns the default segmentation settings.
func DefaultConfig() Config {
	return Config{
		MaxLength:      DefaultMaxLength,
		LookbackWindow: DefaultLookbackWindow,
		Boundaries:     DefaultBoundaries,
		WeakBoundaries: DefaultWeakBoundaries,
	}
}

// WithMaxLength returns a copy of c using max as the segment limit. The
// lookback window is clamped so the copy stays valid for any max >= 1.
func (c Config) WithMaxLength(max int) Config {
	c.MaxLength = max
	if c.LookbackWindow > max {
		c.LookbackWindow = max
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxLength < 1 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("max segment length must be at least 1, got %d", c.MaxLength), nil)
	}
	if c.LookbackWindow < 1 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("lookback window must be at least 1, got %d", c.LookbackWindow), nil)
	}
	if c.LookbackWindow > c.MaxLength {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("lookback window %d exceeds max segment length %d", c.LookbackWindow, c.MaxLength), nil)
	}
	return nil
}
