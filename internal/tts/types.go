package tts

import (
	"strings"
)

// Format is an encoded audio container/codec.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP3, FormatWAV, FormatPCM:
		return f, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type used when uploading audio of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Ext returns the file extension, without the dot.
func (f Format) Ext() string {
	if f == "" {
		return "bin"
	}
	return string(f)
}

// EngineInfo describes engine capabilities and configuration.
type EngineInfo struct {
	Name        string // Engine name (e.g., "nls", "gtts")
	Voice       string // Voice identifier, if the engine has one
	Format      Format // Encoded output format
	SampleRate  int    // Audio sample rate in Hz
	MaxTextSize int    // Maximum characters accepted per call, 0 when unknown
	IsOnline    bool   // Whether the engine requires internet
}

// Voice holds the voice and format parameters sent with every segment.
type Voice struct {
	Name       string
	Format     Format
	SampleRate int
	Volume     int // 0-100
	SpeechRate int // -500..500 for NLS
}

// DefaultVoice returns the voice used by the reading audio scripts.
func DefaultVoice() Voice {
	return Voice{
		Name:       "zhixiaoxia",
		Format:     FormatMP3,
		SampleRate: 24000,
		Volume:     50,
		SpeechRate: 0,
	}
}
