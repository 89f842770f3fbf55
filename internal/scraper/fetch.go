package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/sony/gobreaker"
)

// Fetcher retrieves one station's raw payload.
type Fetcher func(ctx context.Context) (string, error)

// NewHTTPFetcher builds a Fetcher for a station feed URL. Responses in
// the 4xx range are protocol rejections (models.ErrUpstreamRejected,
// never retried); 5xx and transport failures are transient. When
// breaker is non-nil every call runs through it, and an open breaker
// reads as a transient network condition.
func NewHTTPFetcher(client *http.Client, url string, headers map[string]string, timeout time.Duration, breaker *gobreaker.CircuitBreaker) Fetcher {
	fetch := func(ctx context.Context) (string, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("%w: HTTP %d", models.ErrUpstreamRejected, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("upstream failure: HTTP %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response body: %w", err)
		}
		return string(body), nil
	}

	if breaker == nil {
		return fetch
	}
	return func(ctx context.Context) (string, error) {
		out, err := breaker.Execute(func() (any, error) {
			return fetch(ctx)
		})
		if err != nil {
			return "", err
		}
		return out.(string), nil
	}
}

// NewFetchBreaker builds the circuit breaker used in front of a station
// feed. It opens after consecutive transport failures and backs the
// feed off for the cooldown interval.
func NewFetchBreaker(station string, maxFailures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    station,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}
