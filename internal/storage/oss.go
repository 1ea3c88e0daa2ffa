// Package storage puts finished audio somewhere it can be fetched by URL.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// DefaultRegion is the OSS region used when none is configured.
const DefaultRegion = "oss-cn-beijing"

// OSSConfig holds the bucket and credentials of an OSSUploader.
type OSSConfig struct {
	Region          string // e.g. "oss-cn-beijing"
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string

	// Endpoint overrides https://<region>.aliyuncs.com.
	Endpoint string

	// PublicBaseURL overrides https://<bucket>.<region>.aliyuncs.com as the
	// prefix of returned URLs, e.g. for a CDN domain.
	PublicBaseURL string

	Timeout time.Duration
}

func (c OSSConfig) withDefaults() OSSConfig {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Endpoint == "" {
		c.Endpoint = fmt.Sprintf("https://%s.aliyuncs.com", c.Region)
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("https://%s.%s.aliyuncs.com", c.Bucket, c.Region)
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Validate checks that the bucket and credentials are set.
func (c OSSConfig) Validate() error {
	var missing []string
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.AccessKeyID == "" {
		missing = append(missing, "access key id")
	}
	if c.AccessKeySecret == "" {
		missing = append(missing, "access key secret")
	}
	if len(missing) > 0 {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration,
			"oss: missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// objectPutter is the part of *oss.Bucket the uploader needs.
type objectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

// OSSUploader uploads objects to an Aliyun OSS bucket.
type OSSUploader struct {
	cfg    OSSConfig
	bucket objectPutter
}

// NewOSSUploader connects to the configured bucket. No request is made
// until the first upload.
func NewOSSUploader(cfg OSSConfig) (*OSSUploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret,
		oss.Timeout(10, int64(cfg.Timeout/time.Second)))
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "oss client", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "oss bucket "+cfg.Bucket, err)
	}
	return &OSSUploader{cfg: cfg, bucket: bucket}, nil
}

// Upload implements tts.Uploader.
func (u *OSSUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := checkUpload(key, data); err != nil {
		return "", err
	}
	key = strings.TrimLeft(key, "/")

	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}

	start := time.Now()
	if err := u.bucket.PutObject(key, bytes.NewReader(data), opts...); err != nil {
		if ctx.Err() != nil {
			return "", tts.NewError(tts.ErrorCodeCanceled, "upload canceled", ctx.Err())
		}
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) {
			return "", tts.NewError(tts.ErrorCodeUploadFailure,
				fmt.Sprintf("put %s: %s (HTTP %d)", key, svcErr.Code, svcErr.StatusCode), err)
		}
		return "", tts.NewError(tts.ErrorCodeUploadFailure, "put "+key, err)
	}

	url := u.URL(key)
	log.Debug("uploaded object",
		"key", key,
		"size", humanize.Bytes(uint64(len(data))),
		"elapsed", time.Since(start))
	return url, nil
}

// URL returns the public URL of key.
func (u *OSSUploader) URL(key string) string {
	return u.cfg.PublicBaseURL + "/" + strings.TrimLeft(key, "/")
}

func checkUpload(key string, data []byte) error {
	if strings.Trim(key, "/") == "" {
		return tts.NewError(tts.ErrorCodeInvalidConfiguration, "empty object key", nil)
	}
	if len(data) == 0 {
		return tts.NewError(tts.ErrorCodeUploadFailure, "refusing to upload empty object "+key, nil)
	}
	return nil
}

var _ tts.Uploader = (*OSSUploader)(nil)
