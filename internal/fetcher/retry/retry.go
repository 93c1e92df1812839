// Package retry wraps a catalog.Fetcher with bounded, linearly backed-off retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/census-catalog-builder/internal/catalog"
	"github.com/JakeFAU/census-catalog-builder/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// StatusError reports a response whose status code is outside 2xx.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Policy decides how many attempts are made and how long to pause between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy makes three attempts pausing 1s and then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// ShouldRetry reports whether a failed attempt (1-based) may be followed by another.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.normalized().MaxAttempts {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Backoff returns the pause after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	return p.normalized().BaseDelay * time.Duration(attempt)
}

// Fetcher retries transient failures of the wrapped fetcher. A non-2xx status
// counts as a failure; once attempts are exhausted the last response is
// dropped and a *StatusError is returned.
type Fetcher struct {
	next   catalog.Fetcher
	policy Policy
	logger *zap.Logger
}

// New decorates next with policy.
func New(next catalog.Fetcher, policy Policy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, policy: policy.normalized(), logger: logger}
}

// Fetch implements catalog.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (catalog.FetchResponse, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := f.next.Fetch(ctx, url)
		switch {
		case err != nil:
			metrics.ObserveFetch(url, metrics.OutcomeError, time.Since(start))
			lastErr = err
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			metrics.ObserveFetch(url, metrics.OutcomeStatus, time.Since(start))
			lastErr = &StatusError{URL: url, StatusCode: resp.StatusCode}
		default:
			metrics.ObserveFetch(url, metrics.OutcomeSuccess, time.Since(start))
			return resp, nil
		}

		if !f.policy.ShouldRetry(lastErr, attempt) {
			return catalog.FetchResponse{}, fmt.Errorf("fetch %s after %d attempt(s): %w", url, attempt, lastErr)
		}
		delay := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		metrics.ObserveRetry(url)
		if err := pause(ctx, delay); err != nil {
			return catalog.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
