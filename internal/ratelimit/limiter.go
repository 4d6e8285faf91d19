// Package ratelimit paces outbound calls to the bibliographic providers.
// Each provider gets its own named token bucket sized to that provider's
// documented limit; the limits are external constraints, not tunables.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Documented provider request budgets, in requests per second.
const (
	// ISBNdbPerSecond is the premium-tier ISBNdb limit.
	ISBNdbPerSecond = 3
	// GoogleBooksPerSecond keeps keyless Google Books usage polite.
	GoogleBooksPerSecond = 1
	// OpenLibraryPerSecond follows OpenLibrary's fair-use guidance.
	OpenLibraryPerSecond = 1
)

// Limiter wraps rate.Limiter with a provider name for logging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a limiter allowing requestsPerSecond with an equal burst.
func New(name string, requestsPerSecond int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		name:    name,
	}
}

// Wait blocks until a request may proceed, or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request can proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the provider name this limiter paces.
func (l *Limiter) Name() string {
	return l.name
}
