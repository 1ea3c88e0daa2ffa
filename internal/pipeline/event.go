package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
)

// EventKind identifies a progress event.
type EventKind int

const (
	EventSegmentStarted EventKind = iota
	EventSegmentRetry
	EventSegmentDone
	EventSegmentFailed
	EventMuxStarted
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventSegmentStarted:
		return "segment started"
	case EventSegmentRetry:
		return "segment retry"
	case EventSegmentDone:
		return "segment done"
	case EventSegmentFailed:
		return "segment failed"
	case EventMuxStarted:
		return "mux started"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event reports pipeline progress. Progress callbacks may be invoked from
// several goroutines when Workers > 1.
type Event struct {
	Kind    EventKind
	Index   int // segment index, -1 for run-level events
	Total   int
	Attempt int
	Bytes   int
	Elapsed time.Duration
	Err     error
}

// Retry configures per-segment retries of transient synthesis failures.
type Retry struct {
	Attempts   int           // total attempts including the first
	Backoff    time.Duration // wait before the second attempt, doubled each time
	MaxBackoff time.Duration
}

// DefaultRetry returns three attempts with 1s, 2s backoff.
func DefaultRetry() Retry {
	return Retry{Attempts: 3, Backoff: time.Second, MaxBackoff: 10 * time.Second}
}

func (r Retry) normalized() Retry {
	if r.Attempts < 1 {
		r.Attempts = 1
	}
	if r.Backoff < 0 {
		r.Backoff = 0
	}
	return r
}

// policy returns the wait schedule of one segment: Attempts-1 retries with
// waits doubling from Backoff up to MaxBackoff, without jitter. The schedule
// stops as soon as ctx is done.
func (r Retry) policy(ctx context.Context, clk clock.Clock) backoff.BackOffContext {
	r = r.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.Backoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = r.MaxBackoff
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = time.Duration(math.MaxInt64)
	}
	exp.MaxElapsedTime = 0
	exp.Clock = clock.Or(clk)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.Attempts-1)), ctx)
}
