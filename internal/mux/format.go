package mux

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// PCM parameters assumed for raw parts: 16-bit little-endian mono.
const (
	PCMBitDepth = 16
	PCMChannels = 1
)

var (
	// ErrEmptyPart is returned when one of the parts has no bytes.
	ErrEmptyPart = errors.New("empty audio part")

	// ErrFormatMismatch is returned when a part does not look like the
	// muxer's format.
	ErrFormatMismatch = errors.New("audio part does not match format")
)

// Sniff guesses the container of data from its leading bytes. It returns
// "" when the bytes match neither MP3 nor WAV.
func Sniff(data []byte) tts.Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return tts.FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return tts.FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return tts.FormatMP3
	default:
		return ""
	}
}

// ValidateParts checks every part against format. The returned error names
// the first offending part.
func ValidateParts(format tts.Format, parts [][]byte) error {
	for i, p := range parts {
		if err := validatePart(format, p); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

func validatePart(format tts.Format, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPart
	}
	switch format {
	case tts.FormatMP3, tts.FormatWAV:
		if got := Sniff(data); got != format {
			return fmt.Errorf("%w: want %s, got %q", ErrFormatMismatch, format, got)
		}
	case tts.FormatPCM:
		if frame := PCMBitDepth / 8 * PCMChannels; len(data)%frame != 0 {
			return fmt.Errorf("%w: PCM length %d is not aligned to %d-byte samples", ErrFormatMismatch, len(data), frame)
		}
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	return nil
}

// stripID3 removes a leading ID3v2 tag.
func stripID3(data []byte) []byte {
	if len(data) < 10 || !bytes.Equal(data[0:3], []byte("ID3")) {
		return data
	}
	// Tag size is a 28-bit syncsafe integer.
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	end := 10 + size
	if data[5]&0x10 != 0 { // footer present
		end += 10
	}
	if end > len(data) {
		return data
	}
	return data[end:]
}
