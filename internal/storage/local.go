package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// LocalUploader writes objects below a directory and returns file:// URLs.
// It is used for dry runs.
type LocalUploader struct {
	Dir string
}

// NewLocalUploader expands a leading ~ in dir and creates it.
func NewLocalUploader(dir string) (*LocalUploader, error) {
	if dir == "" {
		dir = "audio"
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "expand "+dir, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "resolve "+dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "create "+abs, err)
	}
	return &LocalUploader{Dir: abs}, nil
}

// Upload implements tts.Uploader. contentType is ignored.
func (u *LocalUploader) Upload(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := checkUpload(key, data); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", tts.NewError(tts.ErrorCodeCanceled, "upload canceled", err)
	}

	path := filepath.Join(u.Dir, filepath.FromSlash(strings.TrimLeft(key, "/")))
	if rel, err := filepath.Rel(u.Dir, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", tts.NewError(tts.ErrorCodeInvalidConfiguration, fmt.Sprintf("key %q escapes %s", key, u.Dir), nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", tts.NewError(tts.ErrorCodeUploadFailure, "create directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", tts.NewError(tts.ErrorCodeUploadFailure, "write "+path, err)
	}

	log.Debug("saved object locally", "path", path)
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

var _ tts.Uploader = (*LocalUploader)(nil)
