package mux

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// ConcatMuxer joins parts without an external tool. MP3 parts are joined
// frame stream to frame stream (ID3 tags after the first part are dropped),
// WAV parts are decoded and re-encoded as one file, PCM is appended.
type ConcatMuxer struct {
	Format tts.Format

	// TempDir holds the scratch file used to encode WAV output.
	TempDir string
}

// Mux implements tts.Muxer.
func (m ConcatMuxer) Mux(ctx context.Context, parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no audio parts to mux")
	}
	if err := ValidateParts(m.Format, parts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	switch m.Format {
	case tts.FormatWAV:
		merged, err := m.concatWAV(parts)
		if err != nil {
			return nil, err
		}
		out = merged
	case tts.FormatMP3:
		var buf bytes.Buffer
		for i, p := range parts {
			if i > 0 {
				p = stripID3(p)
			}
			buf.Write(p)
		}
		out = buf.Bytes()
	default:
		out = bytes.Join(parts, nil)
	}

	log.Debug("concatenated audio", "parts", len(parts), "format", m.Format, "size", humanize.Bytes(uint64(len(out))))
	return out, nil
}

func (m ConcatMuxer) concatWAV(parts [][]byte) ([]byte, error) {
	var (
		merged *audio.IntBuffer
		first  *wav.Decoder
	)
	for i, p := range parts {
		dec := wav.NewDecoder(bytes.NewReader(p))
		if !dec.IsValidFile() {
			return nil, fmt.Errorf("part %d: %w: invalid wav file", i, ErrFormatMismatch)
		}
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("part %d: decode wav: %w", i, err)
		}

		if first == nil {
			first, merged = dec, buf
			continue
		}
		if dec.SampleRate != first.SampleRate || dec.NumChans != first.NumChans ||
			dec.BitDepth != first.BitDepth || dec.WavAudioFormat != first.WavAudioFormat {
			return nil, fmt.Errorf("part %d: %w: %d Hz/%d ch/%d bit differs from %d Hz/%d ch/%d bit",
				i, ErrFormatMismatch, dec.SampleRate, dec.NumChans, dec.BitDepth,
				first.SampleRate, first.NumChans, first.BitDepth)
		}
		merged.Data = append(merged.Data, buf.Data...)
	}

	// The encoder seeks back to patch the header, so it needs a file.
	f, err := os.CreateTemp(m.TempDir, "readaloud-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create wav scratch file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, int(first.SampleRate), int(first.BitDepth), int(first.NumChans), int(first.WavAudioFormat))
	if err := enc.Write(merged); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return os.ReadFile(f.Name())
}

var _ tts.Muxer = ConcatMuxer{}
