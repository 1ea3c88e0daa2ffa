package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

type fakeBucket struct {
	key     string
	data    []byte
	options int
	err     error
}

func (b *fakeBucket) PutObject(key string, r io.Reader, options ...oss.Option) error {
	if b.err != nil {
		return b.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.key, b.data, b.options = key, data, len(options)
	return nil
}

func newTestOSS(b *fakeBucket, cfg OSSConfig) *OSSUploader {
	return &OSSUploader{cfg: cfg.withDefaults(), bucket: b}
}

func TestOSSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OSSConfig
		wantErr bool
	}{
		{"complete", OSSConfig{Bucket: "b", AccessKeyID: "id", AccessKeySecret: "secret"}, false},
		{"no bucket", OSSConfig{AccessKeyID: "id", AccessKeySecret: "secret"}, true},
		{"no secret", OSSConfig{Bucket: "b", AccessKeyID: "id"}, true},
		{"empty", OSSConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, tts.ErrInvalidConfiguration) {
				t.Errorf("err = %v, want InvalidConfiguration", err)
			}
		})
	}

	if _, err := NewOSSUploader(OSSConfig{}); !errors.Is(err, tts.ErrInvalidConfiguration) {
		t.Errorf("NewOSSUploader: err = %v", err)
	}
}

func TestOSSUploader_Upload(t *testing.T) {
	b := &fakeBucket{}
	u := newTestOSS(b, OSSConfig{Bucket: "creatimage"})

	got, err := u.Upload(context.Background(), "readings/audio/3_17.mp3", []byte("ID3audio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "https://creatimage.oss-cn-beijing.aliyuncs.com/readings/audio/3_17.mp3"; got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
	if b.key != "readings/audio/3_17.mp3" || string(b.data) != "ID3audio" {
		t.Errorf("put %q (%q)", b.key, b.data)
	}
	if b.options != 2 {
		t.Errorf("options = %d, want context and content type", b.options)
	}
}

func TestOSSUploader_PublicBaseURL(t *testing.T) {
	u := newTestOSS(&fakeBucket{}, OSSConfig{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"})
	if got := u.URL("/a/b.mp3"); got != "https://cdn.example.com/a/b.mp3" {
		t.Errorf("URL() = %q", got)
	}
}

func TestOSSUploader_Errors(t *testing.T) {
	svcErr := oss.ServiceError{Code: "AccessDenied", StatusCode: 403}

	tests := []struct {
		name string
		err  error
		key  string
		data []byte
		want *tts.Error
	}{
		{"service error", svcErr, "k.mp3", []byte("x"), tts.ErrUploadFailure},
		{"network error", errors.New("connection reset"), "k.mp3", []byte("x"), tts.ErrUploadFailure},
		{"empty data", nil, "k.mp3", nil, tts.ErrUploadFailure},
		{"empty key", nil, "/", []byte("x"), tts.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestOSS(&fakeBucket{err: tt.err}, OSSConfig{Bucket: "b"})
			url, err := u.Upload(context.Background(), tt.key, tt.data, "audio/mpeg")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if url != "" {
				t.Errorf("url = %q on failure", url)
			}
		})
	}
}

func TestOSSUploader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := newTestOSS(&fakeBucket{err: context.Canceled}, OSSConfig{Bucket: "b"})

	if _, err := u.Upload(ctx, "k.mp3", []byte("x"), ""); !errors.Is(err, tts.ErrCanceled) {
		t.Errorf("err = %v, want Canceled", err)
	}
}

func TestLocalUploader(t *testing.T) {
	dir := t.TempDir()
	u, err := NewLocalUploader(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewLocalUploader: %v", err)
	}

	got, err := u.Upload(context.Background(), "readings/audio/1_2.mp3", []byte("audio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	parsed, err := url.Parse(got)
	if err != nil || parsed.Scheme != "file" {
		t.Fatalf("url = %q", got)
	}
	data, err := os.ReadFile(filepath.FromSlash(parsed.Path))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != "audio" {
		t.Errorf("content = %q", data)
	}
}

func TestLocalUploader_Rejects(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalUploader: %v", err)
	}

	tests := []struct {
		name string
		key  string
		data []byte
	}{
		{"escaping key", "../outside.mp3", []byte("x")},
		{"empty data", "a.mp3", nil},
		{"empty key", "", []byte("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := u.Upload(context.Background(), tt.key, tt.data, ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}
