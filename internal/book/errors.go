package book

import "errors"

var (
	// ErrNotConfigured is returned by Ping when a provider needs an API
	// key that is not set. Lookup skips silently instead.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrMalformedResponse marks a provider payload that did not match
	// the expected shape. Treated the same as not-found by callers.
	ErrMalformedResponse = errors.New("malformed provider response")
)
