package engines

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dashScopeServer plays the service side of one duplex task. fail makes it
// answer continue-task with task-failed.
func dashScopeServer(t *testing.T, fail bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "bearer sk-test" {
			t.Errorf("Authorization = %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var run dsMessage
		if err := conn.ReadJSON(&run); err != nil {
			t.Errorf("read run-task: %v", err)
			return
		}
		if run.Header.Action != dsActionRun || run.Header.Streaming != "duplex" || run.Payload["model"] != "cosyvoice-v1" {
			t.Errorf("unexpected run-task: %+v", run)
		}
		taskID := run.Header.TaskID
		event := func(name string) dsMessage {
			return dsMessage{Header: dsHeader{TaskID: taskID, Event: name}, Payload: map[string]any{}}
		}

		if err := conn.WriteJSON(event(dsEventStarted)); err != nil {
			return
		}

		var cont dsMessage
		if err := conn.ReadJSON(&cont); err != nil {
			t.Errorf("read continue-task: %v", err)
			return
		}
		input, _ := cont.Payload["input"].(map[string]any)
		if cont.Header.Action != dsActionContinue || input["text"] != "你好，世界。" {
			t.Errorf("unexpected continue-task: %+v", cont)
		}

		if fail {
			msg := event(dsEventFailed)
			msg.Header.ErrorCode = "InvalidParameter"
			msg.Header.ErrorMessage = "bad voice"
			conn.WriteJSON(msg)
			return
		}

		var finish dsMessage
		if err := conn.ReadJSON(&finish); err != nil || finish.Header.Action != dsActionFinish {
			t.Errorf("expected finish-task, got %+v (%v)", finish, err)
			return
		}

		conn.WriteMessage(websocket.BinaryMessage, []byte("chunk1-"))
		conn.WriteJSON(event(dsEventGenerated))
		conn.WriteMessage(websocket.BinaryMessage, []byte("chunk2"))
		conn.WriteJSON(event(dsEventFinished))

		// Wait for the client's close frame.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
}

func newDashScopeTestEngine(t *testing.T, srv *httptest.Server) *DashScopeEngine {
	t.Helper()
	e, err := NewDashScopeEngine(DashScopeConfig{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:  "sk-test",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewDashScopeEngine: %v", err)
	}
	return e
}

func TestDashScopeEngine_Synthesize(t *testing.T) {
	srv := dashScopeServer(t, false)
	defer srv.Close()

	audio, err := newDashScopeTestEngine(t, srv).Synthesize(context.Background(), "你好，世界。")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "chunk1-chunk2" {
		t.Errorf("audio = %q", audio)
	}
}

func TestDashScopeEngine_TaskFailed(t *testing.T) {
	srv := dashScopeServer(t, true)
	defer srv.Close()

	_, err := newDashScopeTestEngine(t, srv).Synthesize(context.Background(), "你好，世界。")
	if err == nil || !strings.Contains(err.Error(), "bad voice") {
		t.Fatalf("err = %v, want task failure", err)
	}
}

// silentDashScopeServer accepts the websocket and never answers.
func silentDashScopeServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestDashScopeEngine_ContextCanceled(t *testing.T) {
	srv := silentDashScopeServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newDashScopeTestEngine(t, srv).Synthesize(ctx, "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if errors.Is(err, tts.ErrSynthesisTimeout) {
		t.Error("caller deadline reported as an engine timeout")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Synthesize did not return promptly after cancellation")
	}
}

func TestDashScopeEngine_SessionTimeout(t *testing.T) {
	srv := silentDashScopeServer()
	defer srv.Close()

	e := newDashScopeTestEngine(t, srv)
	e.cfg.Timeout = 50 * time.Millisecond

	_, err := e.Synthesize(context.Background(), "hello")
	if !errors.Is(err, tts.ErrSynthesisTimeout) {
		t.Fatalf("err = %v, want SynthesisTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should be the session deadline")
	}
	if !tts.IsRetryable(err) || tts.IsFatal(err) {
		t.Error("session timeout should be retryable")
	}
}

func TestNewDashScopeEngine_Defaults(t *testing.T) {
	if _, err := NewDashScopeEngine(DashScopeConfig{}); !errors.Is(err, tts.ErrInvalidConfiguration) {
		t.Errorf("missing key: err = %v", err)
	}

	e, err := NewDashScopeEngine(DashScopeConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewDashScopeEngine: %v", err)
	}
	info := e.Info()
	if info.Voice != DefaultDashScopeVoice || info.Format != tts.FormatMP3 || !info.IsOnline {
		t.Errorf("Info() = %+v", info)
	}
}
