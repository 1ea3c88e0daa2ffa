package job

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/UnamanoDAO/AI-IELTS/internal/engines"
	"github.com/UnamanoDAO/AI-IELTS/internal/mux"
	"github.com/UnamanoDAO/AI-IELTS/internal/pipeline"
	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
	"github.com/UnamanoDAO/AI-IELTS/internal/store"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

type fakeStore struct {
	mu       sync.Mutex
	readings []store.Reading
	listErr  error
	setErr   error
	urls     map[int64]string
	filter   store.Filter
}

func (s *fakeStore) ListReadings(_ context.Context, f store.Filter) ([]store.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	return s.readings, s.listErr
}

func (s *fakeStore) SetAudioURL(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return tts.NewError(tts.ErrorCodeStoreFailure, "update", s.setErr)
	}
	if s.urls == nil {
		s.urls = make(map[int64]string)
	}
	s.urls[id] = url
	return nil
}

type fakeMessages struct {
	mu       sync.Mutex
	messages []store.Message
	filter   store.MessageFilter
	urls     map[int64]string
}

func (s *fakeMessages) ListMessages(_ context.Context, f store.MessageFilter) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	return s.messages, nil
}

func (s *fakeMessages) SetMessageAudioURL(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.urls == nil {
		s.urls = make(map[int64]string)
	}
	s.urls[id] = url
	return nil
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string
}

func (u *fakeUploader) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if key == u.failKey {
		return "", tts.NewError(tts.ErrorCodeUploadFailure, "put "+key, errors.New("503"))
	}
	if contentType != "audio/mpeg" {
		return "", errors.New("unexpected content type " + contentType)
	}
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[key] = data
	return "https://bucket.example.com/" + key, nil
}

type recordingClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *recordingClock) Now() time.Time { return time.Unix(0, 0) }

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func sampleReadings() []store.Reading {
	return []store.Reading{
		{ID: 1, UnitID: 3, UnitNumber: 3, Title: "One", Content: "First article. It has two sentences."},
		{ID: 2, UnitID: 3, UnitNumber: 3, Title: "Two", Content: "Second article.", AudioURL: "https://old/2.mp3"},
		{ID: 3, UnitID: 3, UnitNumber: 3, Title: "Three", Content: "Third article! Short."},
	}
}

type fixture struct {
	store    *fakeStore
	engine   *engines.MockEngine
	uploader *fakeUploader
	clock    *recordingClock
	runner   *Runner
}

func newFixture(readings []store.Reading) *fixture {
	f := &fixture{
		store:    &fakeStore{readings: readings},
		engine:   engines.NewMockEngine(),
		uploader: &fakeUploader{},
		clock:    &recordingClock{},
	}
	f.runner = &Runner{
		Store: f.store,
		Sequencer: &pipeline.Sequencer{
			Synthesizer: f.engine,
			Muxer:       mux.ConcatMuxer{Format: tts.FormatMP3},
			Retry:       pipeline.Retry{Attempts: 1},
		},
		Uploader:     f.uploader,
		Segment:      segment.DefaultConfig().WithMaxLength(20),
		ArticleDelay: 3 * time.Second,
		Clock:        f.clock,
	}
	return f
}

func TestRun_SkipsArticlesWithAudio(t *testing.T) {
	f := newFixture(sampleReadings())

	sum, err := f.runner.Run(context.Background(), store.Filter{Unit: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total != 3 || sum.Succeeded != 2 || sum.Skipped != 1 || sum.Failed != 0 {
		t.Errorf("summary = %s", sum)
	}
	if f.store.filter.Unit != 3 {
		t.Errorf("filter = %+v", f.store.filter)
	}

	want := map[int64]string{
		1: "https://bucket.example.com/readings/audio/3_1.mp3",
		3: "https://bucket.example.com/readings/audio/3_3.mp3",
	}
	if len(f.store.urls) != len(want) {
		t.Fatalf("urls = %v", f.store.urls)
	}
	for id, url := range want {
		if f.store.urls[id] != url {
			t.Errorf("url[%d] = %q, want %q", id, f.store.urls[id], url)
		}
	}

	// "First article. It has two sentences." splits in three segments at 20.
	audio := f.uploader.objects["readings/audio/3_1.mp3"]
	if mux.Sniff(audio) != tts.FormatMP3 {
		t.Error("uploaded object is not MP3")
	}
	if got := f.engine.Texts(); strings.Join(got[:3], "") != sampleReadings()[0].Content {
		t.Errorf("segments of first article = %q", got[:3])
	}

	if len(f.clock.waits) != 1 || f.clock.waits[0] != 3*time.Second {
		t.Errorf("delays = %v, want one 3s delay between two articles", f.clock.waits)
	}
}

func TestRun_Force(t *testing.T) {
	f := newFixture(sampleReadings())
	f.runner.Force = true

	sum, err := f.runner.Run(context.Background(), store.Filter{All: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 3 || sum.Skipped != 0 {
		t.Errorf("summary = %s", sum)
	}
	if f.store.urls[2] != "https://bucket.example.com/readings/audio/3_2.mp3" {
		t.Errorf("article with audio was not regenerated: %v", f.store.urls)
	}
}

func TestRun_ArticleFailuresContinue(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"synthesis", func(f *fixture) { f.engine.FailOn("Third article!", errors.New("quota exceeded")) }},
		{"upload", func(f *fixture) { f.uploader.failKey = "readings/audio/3_3.mp3" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings := sampleReadings()
			readings = append(readings, store.Reading{ID: 4, UnitID: 3, Content: "Fourth."})
			f := newFixture(readings)
			tt.setup(f)

			sum, err := f.runner.Run(context.Background(), store.Filter{Unit: 3})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if sum.Succeeded != 2 || sum.Failed != 1 || sum.Skipped != 1 {
				t.Errorf("summary = %s", sum)
			}
			if len(sum.Failures) != 1 || sum.Failures[0].ID != 3 {
				t.Fatalf("failures = %+v", sum.Failures)
			}
			if _, ok := f.store.urls[3]; ok {
				t.Error("failed article got a url")
			}
			if _, ok := f.store.urls[4]; !ok {
				t.Error("run did not continue past the failure")
			}
		})
	}
}

func TestRun_StoreFailureIsPerArticle(t *testing.T) {
	f := newFixture(sampleReadings())
	f.store.setErr = errors.New("lock wait timeout")

	sum, err := f.runner.Run(context.Background(), store.Filter{Unit: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 2 || sum.Succeeded != 0 {
		t.Errorf("summary = %s", sum)
	}
	for _, fl := range sum.Failures {
		if !errors.Is(fl.Err, tts.ErrStoreFailure) {
			t.Errorf("failure %d: %v", fl.ID, fl.Err)
		}
	}
}

func TestRun_IntegrityViolationHalts(t *testing.T) {
	f := newFixture(sampleReadings())
	// A tighter pipeline bound than the segmenter's makes every
	// segmentation fail the gate.
	f.runner.Sequencer.MaxLength = 5

	sum, err := f.runner.Run(context.Background(), store.Filter{Unit: 3})
	if !errors.Is(err, tts.ErrIntegrityViolation) {
		t.Fatalf("err = %v, want IntegrityViolation", err)
	}
	if sum.Failed != 1 || sum.Succeeded != 0 {
		t.Errorf("summary = %s", sum)
	}
	if f.engine.Calls() != 0 {
		t.Errorf("synthesized %d segments after a violation", f.engine.Calls())
	}
	if len(f.store.urls) != 0 {
		t.Errorf("urls written: %v", f.store.urls)
	}
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture(sampleReadings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Run(ctx, store.Filter{Unit: 3})
	if !errors.Is(err, tts.ErrCanceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	if len(f.store.urls) != 0 {
		t.Errorf("urls written: %v", f.store.urls)
	}
}

func TestRun_EmptyContentSkipped(t *testing.T) {
	f := newFixture([]store.Reading{
		{ID: 1, UnitID: 1, Content: "  \n"},
		{ID: 2, UnitID: 1, Content: "Text."},
	})

	sum, err := f.runner.Run(context.Background(), store.Filter{All: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 || sum.Succeeded != 1 {
		t.Errorf("summary = %s", sum)
	}
}

func TestRun_Setup(t *testing.T) {
	listErr := tts.NewError(tts.ErrorCodeStoreFailure, "list readings", errors.New("refused"))

	tests := []struct {
		name  string
		setup func(f *fixture)
		want  *tts.Error
	}{
		{"no store", func(f *fixture) { f.runner.Store = nil }, tts.ErrInvalidConfiguration},
		{"no uploader", func(f *fixture) { f.runner.Uploader = nil }, tts.ErrInvalidConfiguration},
		{"bad segment config", func(f *fixture) { f.runner.Segment = segment.Config{} }, tts.ErrInvalidConfiguration},
		{"list fails", func(f *fixture) { f.store.listErr = listErr }, tts.ErrStoreFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(sampleReadings())
			tt.setup(f)
			if _, err := f.runner.Run(context.Background(), store.Filter{All: true}); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	rd := store.Reading{ID: 17, UnitID: 4}

	tests := []struct {
		name   string
		runner Runner
		want   string
	}{
		{"default", Runner{}, "readings/audio/4_17.mp3"},
		{"prefix", Runner{KeyPrefix: "/dev/audio/"}, "dev/audio/4_17.mp3"},
		{"wav", Runner{Format: tts.FormatWAV}, "readings/audio/4_17.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.runner.ObjectKey(rd); got != tt.want {
				t.Errorf("ObjectKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunMessages(t *testing.T) {
	f := newFixture(nil)
	msgs := &fakeMessages{messages: []store.Message{
		{ID: 7, ConversationID: 42, OrderIndex: 1, Content: "Good question. Here is why it works."},
		{ID: 9, ConversationID: 42, OrderIndex: 3, Content: "Done.", AudioURL: "https://old/9.mp3"},
		{ID: 11, ConversationID: 43, OrderIndex: 1, Content: " "},
	}}
	f.runner.Messages = msgs
	f.runner.MessageKeyPrefix = "assistant/audio/"

	filter := store.MessageFilter{Conversation: 42, MissingOnly: true}
	sum, err := f.runner.RunMessages(context.Background(), filter)
	if err != nil {
		t.Fatalf("RunMessages: %v", err)
	}
	if sum.Kind != "messages" || sum.Total != 3 || sum.Succeeded != 1 || sum.Skipped != 2 {
		t.Errorf("summary = %s", sum)
	}
	if msgs.filter != filter {
		t.Errorf("filter = %+v", msgs.filter)
	}

	const key = "assistant/audio/42_7.mp3"
	if msgs.urls[7] != "https://bucket.example.com/"+key {
		t.Errorf("urls = %v", msgs.urls)
	}
	if mux.Sniff(f.uploader.objects[key]) != tts.FormatMP3 {
		t.Errorf("no MP3 uploaded at %s", key)
	}
	if len(f.store.urls) != 0 {
		t.Errorf("reading urls written: %v", f.store.urls)
	}
}

func TestRunMessages_Setup(t *testing.T) {
	f := newFixture(nil)
	if _, err := f.runner.RunMessages(context.Background(), store.MessageFilter{}); !errors.Is(err, tts.ErrInvalidConfiguration) {
		t.Errorf("no message store: err = %v", err)
	}

	// Messages do not need the article store.
	f.runner.Store = nil
	f.runner.Messages = &fakeMessages{}
	sum, err := f.runner.RunMessages(context.Background(), store.MessageFilter{})
	if err != nil || sum.Total != 0 {
		t.Errorf("empty run = %s, %v", sum, err)
	}
}

func TestMessageKey(t *testing.T) {
	m := store.Message{ID: 7, ConversationID: 42}

	tests := []struct {
		name   string
		runner Runner
		want   string
	}{
		{"default", Runner{}, "assistant/audio/42_7.mp3"},
		{"prefix", Runner{MessageKeyPrefix: "/dev/chat/"}, "dev/chat/42_7.mp3"},
		{"article prefix ignored", Runner{KeyPrefix: "readings"}, "assistant/audio/42_7.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.runner.MessageKey(m); got != tt.want {
				t.Errorf("MessageKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummary_String(t *testing.T) {
	if got := (Summary{Total: 3, Succeeded: 2, Skipped: 1}).String(); got != "3 articles: 2 succeeded, 0 failed, 1 skipped" {
		t.Errorf("String() = %q", got)
	}
	if got := (Summary{Kind: "messages", Total: 1, Failed: 1}).String(); got != "1 messages: 0 succeeded, 1 failed, 0 skipped" {
		t.Errorf("String() = %q", got)
	}
}
