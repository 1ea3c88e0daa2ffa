package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

const (
	DefaultDashScopeURL   = "wss://dashscope.aliyuncs.com/api-ws/v1/inference/"
	DefaultDashScopeModel = "cosyvoice-v1"
	DefaultDashScopeVoice = "longxiaochun"

	// DashScopeMaxTextSize bounds one continue-task payload.
	DashScopeMaxTextSize = 2000
)

// DashScope streaming protocol actions and events.
const (
	dsActionRun      = "run-task"
	dsActionContinue = "continue-task"
	dsActionFinish   = "finish-task"

	dsEventStarted   = "task-started"
	dsEventFinished  = "task-finished"
	dsEventFailed    = "task-failed"
	dsEventGenerated = "result-generated"
)

// DashScopeConfig configures the DashScope websocket engine.
type DashScopeConfig struct {
	URL     string
	APIKey  string
	Model   string
	Voice   tts.Voice
	Timeout time.Duration // whole session, defaults to 60s
	Dialer  *websocket.Dialer
}

// DashScopeEngine synthesizes through the DashScope duplex websocket API:
// one connection and one task per segment, audio arriving as binary frames.
type DashScopeEngine struct {
	cfg DashScopeConfig
}

// NewDashScopeEngine creates a DashScope engine.
func NewDashScopeEngine(cfg DashScopeConfig) (*DashScopeEngine, error) {
	if cfg.APIKey == "" {
		return nil, tts.NewError(tts.ErrorCodeInvalidConfiguration, "dashscope: api key is required", nil)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultDashScopeURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDashScopeModel
	}
	if cfg.Voice.Name == "" {
		v := tts.DefaultVoice()
		v.Name = DefaultDashScopeVoice
		cfg.Voice = v
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &DashScopeEngine{cfg: cfg}, nil
}

type dsHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type dsMessage struct {
	Header  dsHeader       `json:"header"`
	Payload map[string]any `json:"payload"`
}

func (e *DashScopeEngine) runTask(taskID string) dsMessage {
	v := e.cfg.Voice
	return dsMessage{
		Header: dsHeader{Action: dsActionRun, TaskID: taskID, Streaming: "duplex"},
		Payload: map[string]any{
			"task_group": "audio",
			"task":       "tts",
			"function":   "SpeechSynthesizer",
			"model":      e.cfg.Model,
			"parameters": map[string]any{
				"text_type":   "PlainText",
				"voice":       v.Name,
				"format":      string(v.Format),
				"sample_rate": v.SampleRate,
				"volume":      v.Volume,
				"rate":        1,
				"pitch":       1,
			},
			"input": map[string]any{},
		},
	}
}

// ctxErr reports why ctx ended. The caller's cancellation is returned as
// is; the engine's own session timeout becomes a SynthesisTimeout.
func (e *DashScopeEngine) ctxErr(parent, ctx context.Context) error {
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tts.NewError(tts.ErrorCodeSynthesisTimeout,
			fmt.Sprintf("dashscope: no result within %s", e.cfg.Timeout), ctx.Err())
	}
	return ctx.Err()
}

// Synthesize implements tts.Synthesizer.
func (e *DashScopeEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	if n := len([]rune(text)); n > DashScopeMaxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", n, DashScopeMaxTextSize)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "bearer "+e.cfg.APIKey)
	conn, resp, err := e.cfg.Dialer.DialContext(ctx, e.cfg.URL, header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, e.ctxErr(parent, ctx)
		}
		if resp != nil {
			return nil, fmt.Errorf("dashscope dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dashscope dial: %w", err)
	}
	defer conn.Close()

	// Unblock reads when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	taskID := uuid.NewString()
	if err := conn.WriteJSON(e.runTask(taskID)); err != nil {
		return nil, fmt.Errorf("dashscope run-task: %w", err)
	}

	var audio bytes.Buffer
	started := false
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, e.ctxErr(parent, ctx)
			}
			return nil, fmt.Errorf("dashscope read: %w", err)
		}

		if typ == websocket.BinaryMessage {
			audio.Write(data)
			continue
		}

		var msg dsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("dashscope: invalid event", "error", err)
			continue
		}

		switch msg.Header.Event {
		case dsEventStarted:
			if started {
				continue
			}
			started = true
			cont := dsMessage{
				Header:  dsHeader{Action: dsActionContinue, TaskID: taskID, Streaming: "duplex"},
				Payload: map[string]any{"input": map[string]any{"text": text}},
			}
			if err := conn.WriteJSON(cont); err != nil {
				return nil, fmt.Errorf("dashscope continue-task: %w", err)
			}
			finish := dsMessage{
				Header:  dsHeader{Action: dsActionFinish, TaskID: taskID, Streaming: "duplex"},
				Payload: map[string]any{"input": map[string]any{}},
			}
			if err := conn.WriteJSON(finish); err != nil {
				return nil, fmt.Errorf("dashscope finish-task: %w", err)
			}

		case dsEventGenerated:

		case dsEventFinished:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			log.Debug("dashscope task finished", "task", taskID, "bytes", audio.Len())
			return audio.Bytes(), nil

		case dsEventFailed:
			return nil, fmt.Errorf("dashscope task failed: %s: %s", msg.Header.ErrorCode, msg.Header.ErrorMessage)

		default:
			log.Debug("dashscope: unhandled event", "event", msg.Header.Event)
		}
	}
}

// Info implements tts.Synthesizer.
func (e *DashScopeEngine) Info() tts.EngineInfo {
	return tts.EngineInfo{
		Name:        "dashscope",
		Voice:       e.cfg.Voice.Name,
		Format:      e.cfg.Voice.Format,
		SampleRate:  e.cfg.Voice.SampleRate,
		MaxTextSize: DashScopeMaxTextSize,
		IsOnline:    true,
	}
}

// Close implements tts.Synthesizer.
func (e *DashScopeEngine) Close() error {
	return nil
}

var _ tts.Synthesizer = (*DashScopeEngine)(nil)
