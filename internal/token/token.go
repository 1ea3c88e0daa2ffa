// Package token caches short-lived collaborator credentials and refreshes them
// once, no matter how many callers need a fresh one at the same time.
package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/UnamanoDAO/AI-IELTS/internal/clock"
	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// DefaultRefreshMargin is how long before expiry a token is replaced.
const DefaultRefreshMargin = 5 * time.Minute

// Token is an access token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Source fetches a new token from the issuing service.
type Source interface {
	Fetch(ctx context.Context) (Token, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Token, error)

func (f SourceFunc) Fetch(ctx context.Context) (Token, error) { return f(ctx) }

// Provider hands out a cached token, refreshing it when it is within
// RefreshMargin of expiry.
type Provider struct {
	source Source
	margin time.Duration
	clock  clock.Clock

	mu    sync.Mutex
	cur   Token
	group singleflight.Group
}

// NewProvider returns a provider for src. A zero margin uses
// DefaultRefreshMargin; a nil clock uses the wall clock.
func NewProvider(src Source, margin time.Duration, clk clock.Clock) *Provider {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &Provider{source: src, margin: margin, clock: clock.Or(clk)}
}

func (p *Provider) cached() (Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur.Value == "" {
		return Token{}, false
	}
	if !p.clock.Now().Before(p.cur.ExpiresAt.Add(-p.margin)) {
		return Token{}, false
	}
	return p.cur, true
}

// Get returns a valid token value. Concurrent callers that find the cache
// stale share one refresh.
func (p *Provider) Get(ctx context.Context) (string, error) {
	if t, ok := p.cached(); ok {
		return t.Value, nil
	}

	ch := p.group.DoChan("token", func() (interface{}, error) {
		if t, ok := p.cached(); ok {
			return t, nil
		}
		// The refresh outlives any single caller's cancellation.
		t, err := p.source.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, tts.NewError(tts.ErrorCodeTokenFailure, "fetch token", err)
		}
		if t.Value == "" {
			return nil, tts.NewError(tts.ErrorCodeTokenFailure, "fetch token",
				errors.New("empty token"))
		}
		p.mu.Lock()
		p.cur = t
		p.mu.Unlock()
		log.Debug("token refreshed", "expires", t.ExpiresAt.Format(time.RFC3339))
		return t, nil
	})

	select {
	case <-ctx.Done():
		return "", tts.NewError(tts.ErrorCodeCanceled, "waiting for token", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(Token).Value, nil
	}
}

// Invalidate drops the cached token so the next Get refreshes it. Callers use
// it after the collaborator rejects a token.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cur = Token{}
	p.mu.Unlock()
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (p *Provider) ExpiresAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur.ExpiresAt
}
