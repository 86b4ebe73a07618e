// Package retry implements the fixed-interval retry policy shared by listing
// and detail fetches.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Defaults used by the listing and detail fetchers.
const (
	DefaultMaxRetries = 3
	DefaultInterval   = 60 * time.Second
)

// Config controls the retry policy.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	Interval   time.Duration
}

// FixedRetryPolicy retries every failure after the same interval, up to
// MaxRetries times.
type FixedRetryPolicy struct {
	maxRetries int
	interval   time.Duration
	clock      crawler.Clock
}

// DefaultConfig returns three retries spaced sixty seconds apart.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries, Interval: DefaultInterval}
}

// NewFixedRetryPolicy builds a policy. A nil clock falls back to real timers.
func NewFixedRetryPolicy(cfg Config, clock crawler.Clock) *FixedRetryPolicy {
	maxRetries := max(cfg.MaxRetries, 0)
	interval := max(cfg.Interval, 0)
	return &FixedRetryPolicy{
		maxRetries: maxRetries,
		interval:   interval,
		clock:      clock,
	}
}

// MaxAttempts returns the total number of attempts, initial one included.
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxRetries + 1
}

// ShouldRetry decides whether another attempt follows the given one. Every
// error is transient, including client timeouts; only the caller's context
// ends the loop early, and Do checks that separately.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < p.maxRetries
}

// Backoff returns the wait before the next attempt. The interval is fixed.
func (p *FixedRetryPolicy) Backoff(_ int) time.Duration {
	return p.interval
}

// Do runs op until it succeeds or the retries are exhausted. op receives the
// zero-based attempt number. On exhaustion the last error is returned wrapped
// with crawler.ErrFetchAbandoned. Context cancellation during a wait is
// returned as is.
func (p *FixedRetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("attempt %d: %w", attempt+1, ctxErr)
		}
		if !p.ShouldRetry(err, attempt) {
			return fmt.Errorf("%w (%d attempts): %w", crawler.ErrFetchAbandoned, attempt+1, err)
		}
		if err := p.wait(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
}

func (p *FixedRetryPolicy) wait(ctx context.Context, d time.Duration) error {
	var after <-chan time.Time
	if p.clock != nil {
		after = p.clock.After(d)
	} else {
		timer := time.NewTimer(d)
		defer timer.Stop()
		after = timer.C
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	case <-after:
		return nil
	}
}

// AttemptFunc observes a single fetch attempt. err is nil for a completed
// exchange even when the status is not 200.
type AttemptFunc func(attempt int, resp crawler.FetchResponse, err error)

// Fetch issues request until the fetcher answers with status 200 or the policy
// gives up. Transport errors and other statuses count as transient failures.
func (p *FixedRetryPolicy) Fetch(
	ctx context.Context,
	fetcher crawler.Fetcher,
	request crawler.FetchRequest,
	observe AttemptFunc,
) (crawler.FetchResponse, error) {
	var resp crawler.FetchResponse
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		r, err := fetcher.Fetch(ctx, request)
		if observe != nil {
			observe(attempt, r, err)
		}
		if err != nil {
			return err
		}
		if !r.OK() {
			return crawler.StatusError(r.StatusCode)
		}
		resp = r
		return nil
	})
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	return resp, nil
}
