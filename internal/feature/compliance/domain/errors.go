// Package domain defines domain-level errors for the compliance feature.
package domain

import "errors"

// Domain errors for compliance screening.
// Callers inspect them with errors.Is; adapters wrap them with context.
var (
	// ErrInvalidTicker indicates a malformed ticker supplied by the caller.
	// It is surfaced immediately and never retried.
	ErrInvalidTicker = errors.New("invalid ticker")

	// ErrProviderUnavailable indicates a transient provider failure (timeout, 5xx, 429, connection reset).
	// The gateway retries it and finally degrades the verdict to unknown.
	ErrProviderUnavailable = errors.New("compliance provider unavailable")

	// ErrConfiguration indicates missing credentials, a rejected API key or an unconfigured resource.
	// It is fatal at startup and aborts a running batch.
	ErrConfiguration = errors.New("compliance configuration error")

	// ErrDataQuality indicates a malformed provider payload.
	// The affected symbol becomes unknown and the batch continues.
	ErrDataQuality = errors.New("malformed compliance data")
)
