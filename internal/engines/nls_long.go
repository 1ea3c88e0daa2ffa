package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/UnamanoDAO/AI-IELTS/internal/poll"
	"github.com/UnamanoDAO/AI-IELTS/internal/token"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

const (
	nlsAsyncPath = "/rest/v1/tts/async"

	// LongTextMaxTextSize is the largest text one long-text task accepts.
	LongTextMaxTextSize = 100000

	nlsSuccess = 20000000
)

// LongTextEngine synthesizes through the NLS long-text API: the text is
// submitted as a task, the task is polled until it has an audio address,
// and the audio is downloaded from there.
type LongTextEngine struct {
	cfg    NLSConfig
	tokens *token.Provider
	poller poll.Poller
}

// NewLongTextEngine creates a long-text engine. A zero poller uses
// poll.Default().
func NewLongTextEngine(cfg NLSConfig, tokens *token.Provider, poller poll.Poller) (*LongTextEngine, error) {
	if cfg.AppKey == "" {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "nls long text: app key is required", nil)
	}
	if tokens == nil {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "nls long text: token provider is required", nil)
	}
	cfg.setDefaults()
	if poller.Interval == 0 && poller.MaxWait == 0 {
		poller = poll.Default()
	}
	if poller.Clock == nil {
		poller.Clock = cfg.Clock
	}
	return &LongTextEngine{cfg: cfg, tokens: tokens, poller: poller}, nil
}

type asyncRequest struct {
	Header struct {
		AppKey string `json:"appkey"`
		Token  string `json:"token"`
	} `json:"header"`
	Context struct {
		DeviceID string `json:"device_id"`
	} `json:"context"`
	Payload struct {
		EnableNotify bool `json:"enable_notify"`
		TTSRequest   struct {
			Text           string `json:"text"`
			Voice          string `json:"voice"`
			Format         string `json:"format"`
			SampleRate     int    `json:"sample_rate"`
			Volume         int    `json:"volume"`
			SpeechRate     int    `json:"speech_rate"`
			EnableSubtitle bool   `json:"enable_subtitle"`
		} `json:"tts_request"`
	} `json:"payload"`
}

type asyncResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id"`
	Data         struct {
		TaskID       string `json:"task_id"`
		AudioAddress string `json:"audio_address"`
	} `json:"data"`
}

// Synthesize implements tts.Synthesizer.
func (e *LongTextEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	if n := len([]rune(text)); n > LongTextMaxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", n, LongTextMaxTextSize)
	}

	taskID, err := e.submit(ctx, text)
	if err != nil {
		return nil, err
	}
	log.Debug("long text task submitted", "task", taskID, "chars", len([]rune(text)))

	address, err := poll.Await(ctx, e.poller, func(ctx context.Context) (poll.Outcome[string], error) {
		return e.check(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}

	return e.download(ctx, address)
}

func (e *LongTextEngine) submit(ctx context.Context, text string) (string, error) {
	tok, err := e.tokens.Get(ctx)
	if err != nil {
		return "", err
	}

	v := e.cfg.Voice
	var r asyncRequest
	r.Header.AppKey = e.cfg.AppKey
	r.Header.Token = tok
	r.Context.DeviceID = "readaloud-" + uuid.NewString()[:8]
	r.Payload.TTSRequest.Text = text
	r.Payload.TTSRequest.Voice = v.Name
	r.Payload.TTSRequest.Format = string(v.Format)
	r.Payload.TTSRequest.SampleRate = v.SampleRate
	r.Payload.TTSRequest.Volume = v.Volume
	r.Payload.TTSRequest.SpeechRate = v.SpeechRate

	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+nlsAsyncPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var res asyncResponse
	status, err := e.doJSON(req, &res)
	if err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	if status != http.StatusOK || res.ErrorCode != nlsSuccess || res.Data.TaskID == "" {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			e.tokens.Invalidate()
		}
		return "", fmt.Errorf("submit task: status %d, code %d: %s", status, res.ErrorCode, res.ErrorMessage)
	}
	return res.Data.TaskID, nil
}

func (e *LongTextEngine) check(ctx context.Context, taskID string) (poll.Outcome[string], error) {
	tok, err := e.tokens.Get(ctx)
	if err != nil {
		return poll.Outcome[string]{}, err
	}

	q := url.Values{}
	q.Set("appkey", e.cfg.AppKey)
	q.Set("task_id", taskID)
	q.Set("token", tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Endpoint+nlsAsyncPath+"?"+q.Encode(), nil)
	if err != nil {
		return poll.Outcome[string]{}, err
	}

	var res asyncResponse
	status, err := e.doJSON(req, &res)
	if err != nil {
		return poll.Outcome[string]{}, err
	}
	if status != http.StatusOK {
		return poll.Outcome[string]{}, fmt.Errorf("query task: status %d: %s", status, res.ErrorMessage)
	}

	switch {
	case res.ErrorCode == nlsSuccess && res.Data.AudioAddress != "":
		return poll.Done(res.Data.AudioAddress), nil
	case res.ErrorMessage == "RUNNING" || res.ErrorMessage == "QUEUEING":
		log.Debug("long text task pending", "task", taskID, "status", res.ErrorMessage)
		return poll.Pending[string](), nil
	default:
		return poll.Fail[string](fmt.Sprintf("%d %s", res.ErrorCode, res.ErrorMessage)), nil
	}
}

func (e *LongTextEngine) download(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize+1))
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	if len(data) > maxAudioSize {
		return nil, fmt.Errorf("downloaded audio too large (max %d bytes)", maxAudioSize)
	}
	return data, nil
}

func (e *LongTextEngine) doJSON(req *http.Request, v any) (int, error) {
	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

// Info implements tts.Synthesizer.
func (e *LongTextEngine) Info() tts.EngineInfo {
	return tts.EngineInfo{
		Name:        "nls-long",
		Voice:       e.cfg.Voice.Name,
		Format:      e.cfg.Voice.Format,
		SampleRate:  e.cfg.Voice.SampleRate,
		MaxTextSize: LongTextMaxTextSize,
		IsOnline:    true,
	}
}

// Validate fetches a token to prove the credentials work.
func (e *LongTextEngine) Validate(ctx context.Context) error {
	if _, err := e.tokens.Get(ctx); err != nil {
		return fmt.Errorf("nls long text: %w", err)
	}
	return nil
}

// Close implements tts.Synthesizer.
func (e *LongTextEngine) Close() error {
	e.cfg.Client.CloseIdleConnections()
	return nil
}

var (
	_ tts.Synthesizer = (*LongTextEngine)(nil)
	_ tts.Validator   = (*LongTextEngine)(nil)
)
