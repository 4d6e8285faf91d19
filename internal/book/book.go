// Package book defines the common metadata shape shared by all provider
// adapters and the interface each adapter implements.
package book

import (
	"context"
	"time"
)

// Metadata is the resolved-or-partial result of a provider lookup.
// Pointer fields distinguish "not supplied" from "empty".
type Metadata struct {
	// PageCount is the page count of the matched edition.
	PageCount *int

	// ISBN is the ISBN-13 when available, otherwise ISBN-10.
	ISBN *string

	// Description is the synopsis, markup-stripped and length-capped.
	Description *string

	// Categories are subject/genre tags.
	Categories []string

	// CoverURL points at a cover image believed not to be a placeholder.
	CoverURL *string

	// Source names the provider that supplied the first non-empty field
	// set during resolution.
	Source string

	// AttemptedAt records when resolution was attempted, found or not.
	AttemptedAt time.Time
}

// Complete reports whether every desired field is filled. The resolver
// stops querying further providers once this holds.
func (m *Metadata) Complete() bool {
	return m.PageCount != nil &&
		m.ISBN != nil &&
		m.Description != nil &&
		len(m.Categories) > 0 &&
		m.CoverURL != nil
}

// Empty reports whether no provider supplied any field.
func (m *Metadata) Empty() bool {
	return m.PageCount == nil &&
		m.ISBN == nil &&
		m.Description == nil &&
		len(m.Categories) == 0 &&
		m.CoverURL == nil
}

// SearchResult is one candidate from a free-text provider search,
// keeping the result's own title and author alongside its metadata.
type SearchResult struct {
	Title  string
	Author string
	Meta   Metadata
}

// Searcher is the free-text query capability used by interactive search.
// Only the fallback providers implement it; the primary provider is
// reserved for resolution to protect its rate budget.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Provider is the capability every bibliographic source implements. The
// resolver iterates providers in priority order; there is no hierarchy
// beyond this shared signature.
type Provider interface {
	// Name returns the human-readable source name (e.g. "ISBNdb").
	Name() string

	// Priority orders providers when resolving; lower runs first.
	Priority() int

	// Ping tests connectivity to the source.
	Ping(ctx context.Context) error

	// Lookup resolves metadata for a (title, author) pair.
	// Returns nil, nil when the provider has no usable match, allowing
	// the next provider to try. Errors are reserved for genuine
	// failures (transport, auth, malformed responses).
	Lookup(ctx context.Context, title, author string) (*Metadata, error)
}
