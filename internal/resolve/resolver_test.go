package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlahti/bookfetch/internal/book"
)

// fakeProvider is a scripted book.Provider for resolver tests.
type fakeProvider struct {
	name     string
	priority int
	data     *book.Metadata
	err      error
	calls    int
}

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Priority() int                  { return f.priority }
func (f *fakeProvider) Ping(ctx context.Context) error { return nil }

func (f *fakeProvider) Lookup(ctx context.Context, title, author string) (*book.Metadata, error) {
	f.calls++
	return f.data, f.err
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func fullMetadata() *book.Metadata {
	return &book.Metadata{
		PageCount:   intPtr(412),
		ISBN:        strPtr("9780441013593"),
		Description: strPtr("Desert planet."),
		Categories:  []string{"Science fiction"},
		CoverURL:    strPtr("https://covers.example/1.jpg"),
	}
}

func TestResolveMergesFillOnly(t *testing.T) {
	primary := &fakeProvider{
		name:     "ISBNdb",
		priority: 0,
		data: &book.Metadata{
			PageCount: intPtr(541),
			ISBN:      strPtr("9780765311788"),
		},
	}
	fallback := &fakeProvider{
		name:     "Google Books",
		priority: 1,
		data: &book.Metadata{
			PageCount:   intPtr(999), // must not overwrite
			Description: strPtr("Ash falls from the sky."),
			Categories:  []string{"Fantasy"},
			CoverURL:    strPtr("https://books.google.com/books/content?id=a&zoom=1"),
		},
	}

	r := New(fallback, primary) // construction order must not matter
	meta := r.Resolve(context.Background(), "Mistborn: The Final Empire", "Brandon Sanderson")

	require.NotNil(t, meta)
	assert.Equal(t, 541, *meta.PageCount, "primary's page count kept")
	assert.Equal(t, "9780765311788", *meta.ISBN)
	assert.Equal(t, "Ash falls from the sky.", *meta.Description)
	assert.Equal(t, []string{"Fantasy"}, meta.Categories)
	assert.NotNil(t, meta.CoverURL)
	assert.Equal(t, "ISBNdb", meta.Source, "source is the first provider with data")
	assert.False(t, meta.AttemptedAt.IsZero())
}

func TestResolveShortCircuitsWhenComplete(t *testing.T) {
	primary := &fakeProvider{name: "ISBNdb", priority: 0, data: fullMetadata()}
	fallback := &fakeProvider{name: "Google Books", priority: 1, data: fullMetadata()}
	last := &fakeProvider{name: "OpenLibrary", priority: 2, data: fullMetadata()}

	r := New(primary, fallback, last)
	meta := r.Resolve(context.Background(), "Dune", "Frank Herbert")

	require.True(t, meta.Complete())
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
	assert.Equal(t, 0, last.calls)
}

func TestResolveNeverReturnsNil(t *testing.T) {
	a := &fakeProvider{name: "ISBNdb", priority: 0}
	b := &fakeProvider{name: "Google Books", priority: 1, err: errors.New("boom")}
	c := &fakeProvider{name: "OpenLibrary", priority: 2}

	r := New(a, b, c)
	meta := r.Resolve(context.Background(), "Unknown", "Nobody")

	require.NotNil(t, meta)
	assert.True(t, meta.Empty())
	assert.Empty(t, meta.Source)
	assert.False(t, meta.AttemptedAt.IsZero(), "attempt is recorded even when nothing is found")
	assert.Equal(t, 1, c.calls, "a failing provider must not stop the chain")
}

func TestResolveSourceTieBrokenByPriority(t *testing.T) {
	// Both return data; the higher-priority provider wins attribution.
	a := &fakeProvider{name: "ISBNdb", priority: 0, data: &book.Metadata{ISBN: strPtr("111")}}
	b := &fakeProvider{name: "Google Books", priority: 1, data: &book.Metadata{ISBN: strPtr("222"), CoverURL: strPtr("u")}}

	r := New(b, a)
	meta := r.Resolve(context.Background(), "Dune", "Frank Herbert")
	assert.Equal(t, "ISBNdb", meta.Source)
	assert.Equal(t, "111", *meta.ISBN)
}

func TestResolveRepeatDoesNotChangeFields(t *testing.T) {
	primary := &fakeProvider{name: "ISBNdb", priority: 0, data: fullMetadata()}
	r := New(primary)

	first := r.Resolve(context.Background(), "Dune", "Frank Herbert")
	second := r.Resolve(context.Background(), "Dune", "Frank Herbert")

	assert.Equal(t, *first.PageCount, *second.PageCount)
	assert.Equal(t, *first.ISBN, *second.ISBN)
	assert.Equal(t, *first.Description, *second.Description)
}

func TestLookupCoversSkipsPrimary(t *testing.T) {
	primary := &fakeProvider{name: "ISBNdb", priority: 0, data: fullMetadata()}
	fallback := &fakeProvider{
		name:     "Google Books",
		priority: 1,
		data:     &book.Metadata{CoverURL: strPtr("https://example.com/cover.jpg")},
	}

	r := New(primary, fallback)
	cover := r.LookupCovers(context.Background(), "Dune", "Frank Herbert")

	require.NotNil(t, cover)
	assert.Equal(t, "https://example.com/cover.jpg", *cover)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestLookupCoversNoCoverAnywhere(t *testing.T) {
	fallback := &fakeProvider{name: "OpenLibrary", priority: 2, data: &book.Metadata{PageCount: intPtr(100)}}
	r := New(fallback)
	assert.Nil(t, r.LookupCovers(context.Background(), "Dune", "Frank Herbert"))
}
