// Package pipeline turns a verified segmentation into one audio buffer by
// synthesizing each segment and muxing the results in index order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// SegmentAudio is the synthesized audio of one segment.
type SegmentAudio struct {
	Index    int
	Audio    []byte
	Attempts int
	Elapsed  time.Duration
}

// Result is the output of a successful run.
type Result struct {
	Audio    []byte
	Segments []SegmentAudio
	Elapsed  time.Duration
}

// Sequencer drives segments through a synthesizer and a muxer.
type Sequencer struct {
	Synthesizer tts.Synthesizer
	Muxer       tts.Muxer // may be nil when every run has a single segment

	// Workers bounds concurrent synthesis calls. Zero or one is sequential.
	Workers int

	// SegmentDelay is the minimum spacing between synthesis calls.
	SegmentDelay time.Duration

	// MaxLength, when positive, is also enforced by the integrity gate.
	MaxLength int

	Retry    Retry
	Clock    clock.Clock
	Progress func(Event)
}

// Run verifies segments against source, synthesizes them and muxes the audio.
// Nothing is synthesized if verification fails, and the muxer is never called
// after a segment has failed.
func (s *Sequencer) Run(ctx context.Context, source string, segments []segment.Segment) (Result, error) {
	start := clock.Or(s.Clock).Now()

	if s.Synthesizer == nil {
		return Result{}, tts.NewError(tts.ErrorCodeInvalidConfiguration, "no synthesizer", nil)
	}
	if err := segment.VerifyBounded(source, segments, s.MaxLength).Err(); err != nil {
		return Result{}, err
	}
	if len(segments) == 0 {
		return Result{}, tts.NewError(tts.ErrorCodeInvalidConfiguration, "nothing to synthesize", nil)
	}
	if len(segments) > 1 && s.Muxer == nil {
		return Result{}, tts.NewError(tts.ErrorCodeInvalidConfiguration,
			fmt.Sprintf("%d segments but no muxer", len(segments)), nil)
	}

	var limiter *rate.Limiter
	if s.SegmentDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.SegmentDelay), 1)
	}

	results := make([]SegmentAudio, len(segments))
	var err error
	if s.Workers <= 1 {
		err = s.runSequential(ctx, segments, results, limiter)
	} else {
		err = s.runConcurrent(ctx, segments, results, limiter)
	}
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, tts.ErrCanceled) {
			err = tts.NewError(tts.ErrorCodeCanceled, "synthesis canceled", ctx.Err())
		}
		return Result{}, err
	}

	audio, err := s.mux(ctx, results)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Audio:    audio,
		Segments: results,
		Elapsed:  clock.Or(s.Clock).Now().Sub(start),
	}
	s.emit(Event{Kind: EventDone, Index: -1, Total: len(segments), Bytes: len(audio), Elapsed: res.Elapsed})
	log.Debug("pipeline finished",
		"segments", len(segments),
		"size", humanize.Bytes(uint64(len(audio))),
		"elapsed", res.Elapsed)
	return res, nil
}

func (s *Sequencer) runSequential(ctx context.Context, segments []segment.Segment, results []SegmentAudio, limiter *rate.Limiter) error {
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return tts.NewError(tts.ErrorCodeCanceled, "synthesis canceled", err)
		}
		r, err := s.synthesize(ctx, seg, len(segments), limiter)
		if err != nil {
			return err
		}
		results[i] = r
	}
	return nil
}

func (s *Sequencer) runConcurrent(ctx context.Context, segments []segment.Segment, results []SegmentAudio, limiter *rate.Limiter) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, seg := range segments {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := s.synthesize(gctx, seg, len(segments), limiter)
			if err != nil {
				return err
			}
			// Each goroutine owns its slot, so completion order cannot
			// reorder the output.
			results[i] = r
			return nil
		})
	}
	return g.Wait()
}

func (s *Sequencer) synthesize(ctx context.Context, seg segment.Segment, total int, limiter *rate.Limiter) (SegmentAudio, error) {
	clk := clock.Or(s.Clock)
	start := clk.Now()

	attempt := 0
	empty := false
	call := func() ([]byte, error) {
		attempt++
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(tts.NewError(tts.ErrorCodeCanceled, "waiting for rate limiter", err))
			}
		}

		s.emit(Event{Kind: EventSegmentStarted, Index: seg.Index, Total: total, Attempt: attempt})
		audio, err := s.Synthesizer.Synthesize(ctx, seg.Text)
		switch {
		case err != nil && (ctx.Err() != nil || !tts.IsRetryable(err)):
			return nil, backoff.Permanent(err)
		case err != nil:
			return nil, err
		case len(audio) == 0:
			empty = true
			return nil, backoff.Permanent(tts.ErrEmptyAudio)
		}
		return audio, nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("segment synthesis failed, retrying",
			"index", seg.Index, "attempt", attempt, "wait", wait, "error", err)
		s.emit(Event{Kind: EventSegmentRetry, Index: seg.Index, Total: total, Attempt: attempt, Err: err})
	}

	audio, err := backoff.RetryNotifyWithTimerAndData(call, s.Retry.policy(ctx, clk), notify, clock.NewTimer(clk))
	if err == nil {
		r := SegmentAudio{Index: seg.Index, Audio: audio, Attempts: attempt, Elapsed: clk.Now().Sub(start)}
		s.emit(Event{Kind: EventSegmentDone, Index: seg.Index, Total: total, Attempt: attempt, Bytes: len(audio), Elapsed: r.Elapsed})
		log.Debug("segment synthesized",
			"index", seg.Index,
			"chars", seg.Len,
			"size", humanize.Bytes(uint64(len(audio))),
			"attempt", attempt)
		return r, nil
	}
	if errors.Is(err, tts.ErrCanceled) {
		return SegmentAudio{}, err
	}
	if ctx.Err() != nil {
		return SegmentAudio{}, tts.NewError(tts.ErrorCodeCanceled, "synthesis canceled", ctx.Err())
	}

	code := tts.ErrorCodeSynthesisFailure
	if !empty && errors.Is(err, tts.ErrSynthesisTimeout) {
		code = tts.ErrorCodeSynthesisTimeout
	}
	err = tts.NewSegmentError(code, seg.Index, err)
	s.emit(Event{Kind: EventSegmentFailed, Index: seg.Index, Total: total, Attempt: attempt, Err: err})
	return SegmentAudio{}, err
}

func (s *Sequencer) mux(ctx context.Context, results []SegmentAudio) ([]byte, error) {
	if len(results) == 1 {
		return results[0].Audio, nil
	}

	parts := make([][]byte, len(results))
	for i, r := range results {
		parts[i] = r.Audio
	}

	s.emit(Event{Kind: EventMuxStarted, Index: -1, Total: len(results)})
	audio, err := s.Muxer.Mux(ctx, parts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tts.NewError(tts.ErrorCodeCanceled, "muxing canceled", ctx.Err())
		}
		return nil, tts.NewError(tts.ErrorCodeMuxingFailure,
			fmt.Sprintf("mux %d segments", len(parts)), err)
	}
	if len(audio) == 0 {
		return nil, tts.NewError(tts.ErrorCodeMuxingFailure, "muxer returned empty audio", nil)
	}
	return audio, nil
}

func (s *Sequencer) emit(e Event) {
	if s.Progress != nil {
		s.Progress(e)
	}
}
