// Package mux concatenates per-segment audio into one buffer, either with
// ffmpeg's concat demuxer or natively.
package mux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/UnamanoDAO/AI-IELTS/internal/subprocess"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// FFmpegMuxer writes the parts to a scratch directory and joins them with
// `ffmpeg -f concat -safe 0 -i list -c copy`. Streams are copied, never
// re-encoded, so all parts must share codec parameters.
type FFmpegMuxer struct {
	Format  tts.Format    // container of parts and output, defaults to MP3
	Binary  string        // defaults to "ffmpeg"
	TempDir string        // parent of the scratch directory, defaults to os.TempDir()
	Timeout time.Duration // defaults to 2 minutes
}

// Mux implements tts.Muxer.
func (m FFmpegMuxer) Mux(ctx context.Context, parts [][]byte) ([]byte, error) {
	format := m.Format
	if format == "" {
		format = tts.FormatMP3
	}
	if format == tts.FormatPCM {
		return nil, fmt.Errorf("ffmpeg concat needs a container format, got %s", format)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no audio parts to mux")
	}
	if err := ValidateParts(format, parts); err != nil {
		return nil, err
	}

	binary := m.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	dir, err := os.MkdirTemp(m.TempDir, "readaloud-mux-")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	var list strings.Builder
	for i, p := range parts {
		name := fmt.Sprintf("part_%04d.%s", i, format.Ext())
		if err := os.WriteFile(filepath.Join(dir, name), p, 0o600); err != nil {
			return nil, fmt.Errorf("write part %d: %w", i, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", name)
	}
	listPath := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o600); err != nil {
		return nil, fmt.Errorf("write concat list: %w", err)
	}

	outName := "output." + format.Ext()
	start := time.Now()
	_, err = subprocess.Run(ctx, subprocess.Command{
		Name: binary,
		Args: []string{
			"-hide_banner", "-loglevel", "error", "-y",
			"-f", "concat", "-safe", "0",
			"-i", "list.txt",
			"-c", "copy",
			outName,
		},
		Dir:     dir,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg concat: %w", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, outName))
	if err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("ffmpeg produced empty output")
	}

	log.Debug("muxed audio with ffmpeg",
		"parts", len(parts),
		"size", humanize.Bytes(uint64(len(out))),
		"elapsed", time.Since(start))
	return out, nil
}

// Available reports whether the ffmpeg binary resolves on PATH.
func (m FFmpegMuxer) Available() error {
	binary := m.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	_, err := subprocess.Available(binary)
	return err
}

var _ tts.Muxer = FFmpegMuxer{}
