// Package resolve orchestrates the provider adapters for a single
// (title, author) pair. Providers run strictly in priority order and each
// newly returned field is merged only if still unset, so partial results
// from different sources compose instead of clobbering each other.
package resolve

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/mlahti/bookfetch/internal/book"
)

// Resolver queries providers in priority order with fill-only merging.
type Resolver struct {
	providers []book.Provider
	now       func() time.Time
}

// New creates a resolver over the given providers, sorted by priority.
func New(providers ...book.Provider) *Resolver {
	sorted := make([]book.Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Resolver{providers: sorted, now: time.Now}
}

// Providers returns the resolution order, for ping-style diagnostics.
func (r *Resolver) Providers() []book.Provider {
	return r.providers
}

// Resolve looks up metadata for a (title, author) pair. It never returns
// nil: when no provider has an answer, the result is empty apart from
// AttemptedAt. Provider failures are logged and treated as "no answer";
// they never propagate.
func (r *Resolver) Resolve(ctx context.Context, title, author string) *book.Metadata {
	merged := &book.Metadata{AttemptedAt: r.now().UTC()}

	for _, provider := range r.providers {
		data, err := provider.Lookup(ctx, title, author)
		if err != nil {
			slog.Warn("Provider lookup failed", "provider", provider.Name(), "title", title, "error", err)
			continue
		}
		if data == nil {
			slog.Debug("Provider had no match", "provider", provider.Name(), "title", title)
			continue
		}

		merge(merged, data)
		if merged.Source == "" && !data.Empty() {
			merged.Source = provider.Name()
		}

		if merged.Complete() {
			break
		}
	}

	return merged
}

// LookupCovers asks the fallback providers for a cover only, for
// cover-refresh passes where other fields are already known. The primary
// provider is skipped: refresh exists precisely because its covers were
// missing or placeholders.
func (r *Resolver) LookupCovers(ctx context.Context, title, author string) *string {
	for _, provider := range r.providers {
		if provider.Priority() == 0 {
			continue
		}
		data, err := provider.Lookup(ctx, title, author)
		if err != nil {
			slog.Warn("Cover lookup failed", "provider", provider.Name(), "title", title, "error", err)
			continue
		}
		if data != nil && data.CoverURL != nil {
			return data.CoverURL
		}
	}
	return nil
}

// merge copies each field of src into dst only when dst has not set it.
func merge(dst, src *book.Metadata) {
	if dst.PageCount == nil && src.PageCount != nil && *src.PageCount > 0 {
		dst.PageCount = src.PageCount
	}
	if dst.ISBN == nil && src.ISBN != nil && *src.ISBN != "" {
		dst.ISBN = src.ISBN
	}
	if dst.Description == nil && src.Description != nil && *src.Description != "" {
		dst.Description = src.Description
	}
	if len(dst.Categories) == 0 && len(src.Categories) > 0 {
		dst.Categories = src.Categories
	}
	if dst.CoverURL == nil && src.CoverURL != nil && *src.CoverURL != "" {
		dst.CoverURL = src.CoverURL
	}
}
