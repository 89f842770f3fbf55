package models

import "errors"

// Domain errors shared across the scraper and the store. Callers
// classify with errors.Is; wrapped context is added at the raise site.
var (
	// ErrMaxRetriesExceeded wraps the last transient error once the
	// retry budget is spent.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrStaleObservation marks a source that has repeated the same
	// observation past its stale-data timeout.
	ErrStaleObservation = errors.New("stale observation")

	// ErrDuplicateObservation is an insert conflict on
	// (station, timestamp). Expected under multi-writer operation;
	// logged, never escalated.
	ErrDuplicateObservation = errors.New("duplicate observation")

	// ErrUpstreamRejected is a protocol-level rejection from the feed
	// (e.g. an HTTP 4xx). Never retried.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrMalformedPayload is a structural or timestamp parse failure.
	ErrMalformedPayload = errors.New("malformed payload")
)

// IsDomainError reports whether err belongs to the expected error
// taxonomy, as opposed to an unexpected failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrMaxRetriesExceeded) ||
		errors.Is(err, ErrStaleObservation) ||
		errors.Is(err, ErrDuplicateObservation) ||
		errors.Is(err, ErrUpstreamRejected) ||
		errors.Is(err, ErrMalformedPayload)
}
