// Package job generates audio for stored articles and assistant chat
// messages: each one is segmented, verified, synthesized, muxed, uploaded
// and finally linked in the store.
package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/pipeline"
	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
	"github.com/UnamanoDAO/AI-IELTS/internal/store"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// DefaultKeyPrefix is the object key prefix of article audio.
const DefaultKeyPrefix = "readings/audio"

// DefaultMessageKeyPrefix is the object key prefix of chat message audio.
const DefaultMessageKeyPrefix = "assistant/audio"

// DefaultArticleDelay is the pause between two articles.
const DefaultArticleDelay = 2 * time.Second

// Store is the persisted state the runner reads and writes.
type Store interface {
	ListReadings(ctx context.Context, f store.Filter) ([]store.Reading, error)
	SetAudioURL(ctx context.Context, id int64, url string) error
}

// MessageStore holds the assistant chat messages.
type MessageStore interface {
	ListMessages(ctx context.Context, f store.MessageFilter) ([]store.Message, error)
	SetMessageAudioURL(ctx context.Context, id int64, url string) error
}

// Failure records why one article or message got no audio.
type Failure struct {
	ID    int64
	Label string
	Err   error
}

// Summary is the outcome of a run.
type Summary struct {
	Kind      string // "articles" or "messages"
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []Failure
	Elapsed   time.Duration
}

func (s Summary) String() string {
	kind := s.Kind
	if kind == "" {
		kind = "articles"
	}
	return fmt.Sprintf("%d %s: %d succeeded, %d failed, %d skipped",
		s.Total, kind, s.Succeeded, s.Failed, s.Skipped)
}

// Runner drives articles or messages through the pipeline one at a time.
type Runner struct {
	Store     Store
	Messages  MessageStore
	Sequencer *pipeline.Sequencer
	Uploader  tts.Uploader
	Segment   segment.Config

	// Format selects the object extension and content type. Defaults to MP3.
	Format           tts.Format
	KeyPrefix        string
	MessageKeyPrefix string

	// Force regenerates items that already have an audio URL.
	Force bool

	ArticleDelay time.Duration
	Clock        clock.Clock
}

// ObjectKey returns the storage key of a reading's audio.
func (r *Runner) ObjectKey(rd store.Reading) string {
	return r.key(r.KeyPrefix, DefaultKeyPrefix, rd.UnitID, rd.ID)
}

// MessageKey returns the storage key of a chat message's audio. Keys are
// stable per message so a rerun overwrites instead of piling up objects.
func (r *Runner) MessageKey(m store.Message) string {
	return r.key(r.MessageKeyPrefix, DefaultMessageKeyPrefix, m.ConversationID, m.ID)
}

func (r *Runner) key(prefix, def string, group, id int64) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = def
	}
	return fmt.Sprintf("%s/%d_%d.%s", prefix, group, id, r.format().Ext())
}

func (r *Runner) format() tts.Format {
	if r.Format == "" {
		return tts.FormatMP3
	}
	return r.Format
}

func (r *Runner) validate() error {
	switch {
	case r.Sequencer == nil:
		return tts.NewError(tts.ErrorCodeInvalidConfiguration, "job: no pipeline", nil)
	case r.Uploader == nil:
		return tts.NewError(tts.ErrorCodeInvalidConfiguration, "job: no uploader", nil)
	}
	return r.Segment.Validate()
}

// item is one piece of text that gets an audio URL.
type item struct {
	id       int64
	label    string
	content  string
	hasAudio bool
	key      string
	fields   []any
	save     func(ctx context.Context, url string) error
}

// Run processes every reading selected by f. Per-article synthesis, muxing,
// upload and store failures are counted and the run moves on. Integrity
// violations, configuration errors and cancellation stop the run and are
// returned along with the partial summary.
func (r *Runner) Run(ctx context.Context, f store.Filter) (Summary, error) {
	start := clock.Or(r.Clock).Now()
	if r.Store == nil {
		return Summary{}, tts.NewError(tts.ErrorCodeInvalidConfiguration, "job: no store", nil)
	}
	if err := r.validate(); err != nil {
		return Summary{}, err
	}
	readings, err := r.Store.ListReadings(ctx, f)
	if err != nil {
		return Summary{}, err
	}

	items := lo.Map(readings, func(rd store.Reading, _ int) item {
		return item{
			id:       rd.ID,
			label:    rd.Label(),
			content:  rd.Content,
			hasAudio: rd.HasAudio(),
			key:      r.ObjectKey(rd),
			fields:   []any{"id", rd.ID, "unit", rd.UnitNumber},
			save: func(ctx context.Context, url string) error {
				return r.Store.SetAudioURL(ctx, rd.ID, url)
			},
		}
	})
	return r.run(ctx, start, "articles", f, items)
}

// RunMessages is Run for the assistant replies selected by f.
func (r *Runner) RunMessages(ctx context.Context, f store.MessageFilter) (Summary, error) {
	start := clock.Or(r.Clock).Now()
	if r.Messages == nil {
		return Summary{Kind: "messages"}, tts.NewError(tts.ErrorCodeInvalidConfiguration, "job: no message store", nil)
	}
	if err := r.validate(); err != nil {
		return Summary{Kind: "messages"}, err
	}
	messages, err := r.Messages.ListMessages(ctx, f)
	if err != nil {
		return Summary{Kind: "messages"}, err
	}

	items := lo.Map(messages, func(m store.Message, _ int) item {
		return item{
			id:       m.ID,
			label:    m.Label(),
			content:  m.Content,
			hasAudio: m.HasAudio(),
			key:      r.MessageKey(m),
			fields:   []any{"id", m.ID, "conversation", m.ConversationID},
			save: func(ctx context.Context, url string) error {
				return r.Messages.SetMessageAudioURL(ctx, m.ID, url)
			},
		}
	})
	return r.run(ctx, start, "messages", f, items)
}

func (r *Runner) run(ctx context.Context, start time.Time, kind string, filter fmt.Stringer, items []item) (Summary, error) {
	clk := clock.Or(r.Clock)

	sum := Summary{Kind: kind, Total: len(items)}
	todo, done := items, []item(nil)
	if !r.Force {
		todo, done = lo.FilterReject(items, func(it item, _ int) bool {
			return !it.hasAudio
		})
	}
	sum.Skipped = len(done)

	log.Info("generating audio",
		"kind", kind,
		"filter", filter,
		"found", len(items),
		"todo", len(todo),
		"skipped", len(done),
		"force", r.Force)

	delay := r.ArticleDelay
	if delay < 0 {
		delay = 0
	}

	for i, it := range todo {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				sum.Elapsed = clk.Now().Sub(start)
				return sum, tts.NewError(tts.ErrorCodeCanceled, "run canceled", ctx.Err())
			case <-clk.After(delay):
			}
		}

		logger := log.With(append([]any{"item", fmt.Sprintf("%d/%d", i+1, len(todo))}, it.fields...)...)
		logger.Info("processing", "label", it.label)

		url, err := r.process(ctx, logger, it)
		switch {
		case err == nil:
			sum.Succeeded++
			logger.Info("audio linked", "url", url)
		case tts.IsFatal(err) || ctx.Err() != nil:
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{ID: it.id, Label: it.label, Err: err})
			sum.Elapsed = clk.Now().Sub(start)
			logger.Error("stopping run", "error", err)
			if ctx.Err() != nil && !errors.Is(err, tts.ErrCanceled) {
				err = tts.NewError(tts.ErrorCodeCanceled, "run canceled", err)
			}
			return sum, err
		case errors.Is(err, errNoContent):
			sum.Skipped++
			logger.Warn("no text, skipping")
		default:
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{ID: it.id, Label: it.label, Err: err})
			logger.Error("failed", "error", err)
		}
	}

	sum.Elapsed = clk.Now().Sub(start)
	log.Info("run finished",
		"kind", kind,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

var errNoContent = errors.New("no content")

// process returns the URL written for it. Nothing is written to the store
// unless synthesis, muxing and upload all succeeded.
func (r *Runner) process(ctx context.Context, logger *log.Logger, it item) (string, error) {
	if strings.TrimSpace(it.content) == "" {
		return "", errNoContent
	}

	segments, err := segment.Split(it.content, r.Segment)
	if err != nil {
		return "", err
	}
	logger.Debug("segmented",
		"chars", len([]rune(it.content)),
		"segments", len(segments))

	seq := *r.Sequencer
	if seq.MaxLength == 0 {
		seq.MaxLength = r.Segment.MaxLength
	}
	upstream := seq.Progress
	seq.Progress = func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventSegmentDone:
			logger.Info("segment done",
				"segment", fmt.Sprintf("%d/%d", e.Index+1, e.Total),
				"size", humanize.Bytes(uint64(e.Bytes)))
		case pipeline.EventSegmentRetry:
			logger.Warn("segment retry", "segment", e.Index+1, "attempt", e.Attempt, "error", e.Err)
		}
		if upstream != nil {
			upstream(e)
		}
	}

	res, err := seq.Run(ctx, it.content, segments)
	if err != nil {
		return "", err
	}

	url, err := r.Uploader.Upload(ctx, it.key, res.Audio, r.format().ContentType())
	if err != nil {
		return "", err
	}
	logger.Info("uploaded", "key", it.key, "size", humanize.Bytes(uint64(len(res.Audio))))

	if err := it.save(ctx, url); err != nil {
		return "", err
	}
	return url, nil
}
