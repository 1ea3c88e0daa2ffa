package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/token"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

const (
	DefaultNLSEndpoint = "https://nls-gateway-cn-shanghai.aliyuncs.com"
	nlsSyncPath        = "/stream/v1/tts"

	// NLSMaxTextSize is the largest text the synchronous endpoint accepts.
	NLSMaxTextSize = 600

	maxAudioSize = 50 * 1024 * 1024
)

// NLSConfig configures the Aliyun NLS engines.
type NLSConfig struct {
	Endpoint        string // gateway base URL, defaults to DefaultNLSEndpoint
	AppKey          string
	AccessKeyID     string
	AccessKeySecret string
	Voice           tts.Voice
	Timeout         time.Duration // per HTTP request, defaults to 60s
	Client          *http.Client
	Clock           clock.Clock
}

func (c *NLSConfig) setDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultNLSEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Voice.Name == "" {
		c.Voice = tts.DefaultVoice()
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
}

// NLSEngine synthesizes one segment per request against the synchronous
// NLS REST endpoint.
type NLSEngine struct {
	cfg    NLSConfig
	tokens *token.Provider
}

// NewNLSEngine creates a synchronous NLS engine that authenticates with
// tokens from tokens.
func NewNLSEngine(cfg NLSConfig, tokens *token.Provider) (*NLSEngine, error) {
	if cfg.AppKey == "" {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "nls: app key is required", nil)
	}
	if tokens == nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "nls: token provider is required", nil)
	}
	cfg.setDefaults()
	return &NLSEngine{cfg: cfg, tokens: tokens}, nil
}

type nlsSyncRequest struct {
	AppKey         string `json:"appkey"`
	Text           string `json:"text"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sample_rate"`
	Voice          string `json:"voice"`
	Volume         int    `json:"volume"`
	SpeechRate     int    `json:"speech_rate"`
	EnableSubtitle bool   `json:"enable_subtitle"`
}

// nlsError is the JSON body the gateway returns instead of audio.
type nlsError struct {
	TaskID  string `json:"task_id"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// nlsTokenInvalid is the gateway status for an expired or unknown token.
const nlsTokenInvalid = 40000001

// Synthesize implements tts.Synthesizer.
func (e *NLSEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	if n := len([]rune(text)); n > NLSMaxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", n, NLSMaxTextSize)
	}

	tok, err := e.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}

	v := e.cfg.Voice
	body, err := json.Marshal(nlsSyncRequest{
		AppKey:     e.cfg.AppKey,
		Text:       text,
		Format:     string(v.Format),
		SampleRate: v.SampleRate,
		Voice:      v.Name,
		Volume:     v.Volume,
		SpeechRate: v.SpeechRate,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+nlsSyncPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-MD5", contentMD5(body))
	req.Header.Set("Date", clock.Or(e.cfg.Clock).Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-NLS-Token", tok)
	if e.cfg.AccessKeyID != "" {
		sig := nlsSignature(http.MethodPost, nlsSyncPath, req.Header, e.cfg.AccessKeySecret)
		req.Header.Set("Authorization", "NLS "+e.cfg.AccessKeyID+":"+sig)
	}

	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nls request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize+1))
	if err != nil {
		return nil, fmt.Errorf("read nls response: %w", err)
	}
	if len(data) > maxAudioSize {
		return nil, fmt.Errorf("nls response too large (max %d bytes)", maxAudioSize)
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && strings.HasPrefix(ct, "audio/") {
		log.Debug("nls segment synthesized", "chars", len([]rune(text)), "bytes", len(data))
		return data, nil
	}

	var ne nlsError
	_ = json.Unmarshal(data, &ne)
	if ne.Status == nlsTokenInvalid || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		e.tokens.Invalidate()
		return nil, tts.NewError(tts.ErrorCodeTokenFailure, "nls rejected token",
			fmt.Errorf("status %d: %s", resp.StatusCode, ne.Message))
	}
	if ne.Message != "" {
		return nil, fmt.Errorf("nls error (status %d, code %d): %s", resp.StatusCode, ne.Status, ne.Message)
	}
	return nil, fmt.Errorf("nls unexpected response (status %d, content type %q)", resp.StatusCode, ct)
}

// Info implements tts.Synthesizer.
func (e *NLSEngine) Info() tts.EngineInfo {
	return tts.EngineInfo{
		Name:        "nls",
		Voice:       e.cfg.Voice.Name,
		Format:      e.cfg.Voice.Format,
		SampleRate:  e.cfg.Voice.SampleRate,
		MaxTextSize: NLSMaxTextSize,
		IsOnline:    true,
	}
}

// Validate fetches a token to prove the credentials work.
func (e *NLSEngine) Validate(ctx context.Context) error {
	if _, err := e.tokens.Get(ctx); err != nil {
		return fmt.Errorf("nls: %w", err)
	}
	return nil
}

// Close implements tts.Synthesizer.
func (e *NLSEngine) Close() error {
	e.cfg.Client.CloseIdleConnections()
	return nil
}

var (
	_ tts.Synthesizer = (*NLSEngine)(nil)
	_ tts.Validator   = (*NLSEngine)(nil)
)
