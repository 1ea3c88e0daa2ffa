// Package poll waits on asynchronous collaborator tasks such as long-text
// synthesis jobs that must be polled until they finish.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// State is the lifecycle state of a polled task.
type State int

const (
	Submitted State = iota
	Polling
	Succeeded
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Polling:
		return "polling"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == TimedOut
}

const (
	DefaultInterval = 5 * time.Second
	DefaultMaxWait  = 5 * time.Minute
)

// Outcome is what a single status check observed. State is Polling while the
// task is still queued or running.
type Outcome[T any] struct {
	State  State
	Value  T
	Reason string // set when State is Failed
}

// Pending, Done and Fail build check outcomes.
func Pending[T any]() Outcome[T] { return Outcome[T]{State: Polling} }

func Done[T any](v T) Outcome[T] { return Outcome[T]{State: Succeeded, Value: v} }

func Fail[T any](reason string) Outcome[T] { return Outcome[T]{State: Failed, Reason: reason} }

// CheckFunc queries the task once.
type CheckFunc[T any] func(ctx context.Context) (Outcome[T], error)

// Poller holds the polling schedule.
type Poller struct {
	Interval time.Duration
	MaxWait  time.Duration
	Clock    clock.Clock

	// OnTransition, if set, is called for every state change.
	OnTransition func(from, to State)
}

// Default returns a poller with the reference schedule.
func Default() Poller {
	return Poller{Interval: DefaultInterval, MaxWait: DefaultMaxWait}
}

func (p Poller) transition(from, to State) State {
	if p.OnTransition != nil && from != to {
		p.OnTransition(from, to)
	}
	return to
}

// Await polls check every Interval until it reports success or failure,
// MaxWait elapses, or ctx is done. A check that returns an error is logged
// and treated as still pending.
func Await[T any](ctx context.Context, p Poller, check CheckFunc[T]) (T, error) {
	var zero T
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	clk := clock.Or(p.Clock)

	start := clk.Now()
	state := p.transition(Submitted, Polling)

	for attempt := 1; ; attempt++ {
		if clk.Now().Sub(start) >= p.MaxWait {
			p.transition(state, TimedOut)
			return zero, tts.NewError(tts.ErrorCodeSynthesisTimeout,
				fmt.Sprintf("task still pending after %s", p.MaxWait), nil).
				WithContext("attempts", attempt-1)
		}

		select {
		case <-ctx.Done():
			return zero, tts.NewError(tts.ErrorCodeCanceled, "polling canceled", ctx.Err())
		case <-clk.After(p.Interval):
		}

		out, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return zero, tts.NewError(tts.ErrorCodeCanceled, "polling canceled", ctx.Err())
			}
			log.Warn("task status check failed", "attempt", attempt, "error", err)
			continue
		}

		switch out.State {
		case Succeeded:
			p.transition(state, Succeeded)
			return out.Value, nil
		case Failed:
			p.transition(state, Failed)
			return zero, tts.NewError(tts.ErrorCodeSynthesisFailure,
				fmt.Sprintf("task failed: %s", out.Reason), nil)
		default:
			log.Debug("task pending", "attempt", attempt, "elapsed", clk.Now().Sub(start))
		}
	}
}
