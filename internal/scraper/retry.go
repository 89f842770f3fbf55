package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/observability"
	"github.com/sony/gobreaker"
)

// RetryPolicy re-runs a fetch after a fixed delay when it fails with a
// transient error. Protocol-level rejections pass through untouched.
// A function is invoked at most MaxRetries+1 times; on exhaustion the
// last error is wrapped in models.ErrMaxRetriesExceeded.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Execute runs fn until it succeeds, fails permanently, or the retry
// budget is exhausted.
func (p RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			observability.ScrapeRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.Delay):
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, models.ErrUpstreamRejected) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %w", models.ErrMaxRetriesExceeded, lastErr)
}

// classifyStatus maps a collector failure to the status value written
// to the store.
func classifyStatus(err error) string {
	switch {
	case errors.Is(err, models.ErrMalformedPayload):
		return models.StatusParseError
	case errors.Is(err, models.ErrUpstreamRejected):
		return models.StatusNetworkError
	case isNetworkError(err):
		return models.StatusNetworkError
	default:
		return models.StatusError
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network")
}
