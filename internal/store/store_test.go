package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlahti/bookfetch/internal/book"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(n int) *int       { return &n }
func strPtr(v string) *string { return &v }

func testMetadata() *book.Metadata {
	return &book.Metadata{
		PageCount:   intPtr(541),
		ISBN:        strPtr("9780765311788"),
		Description: strPtr("Ash falls from the sky."),
		Categories:  []string{"Fantasy", "Epic"},
		CoverURL:    strPtr("https://covers.example/mistborn.jpg"),
		Source:      "ISBNdb",
		AttemptedAt: time.Now().UTC(),
	}
}

func TestInsertComputesGroupKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Mistborn: The Final Empire", "Brandon Sanderson")
	require.NoError(t, err)
	_, err = s.Insert(ctx, "mistborn the final empire", "BRANDON SANDERSON")
	require.NoError(t, err)

	rows, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rows[0].NormalizedKey, rows[1].NormalizedKey,
		"case and punctuation variants share a group")
}

func TestPropagateMetadataReachesWholeGroup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Mistborn", "Brandon Sanderson")
	require.NoError(t, err)
	_, err = s.Insert(ctx, "mistborn", "brandon sanderson")
	require.NoError(t, err)
	_, err = s.Insert(ctx, "Dune", "Frank Herbert")
	require.NoError(t, err)

	rows, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	key := rows[0].NormalizedKey

	meta := testMetadata()
	updated, covers, err := s.PropagateMetadata(ctx, key, meta, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)
	assert.EqualValues(t, 2, covers)

	group, err := s.GetByKey(ctx, key)
	require.NoError(t, err)
	require.Len(t, group, 2)
	for _, row := range group {
		assert.Equal(t, 541, *row.PageCount)
		assert.Equal(t, "9780765311788", *row.ISBN)
		assert.Equal(t, []string{"Fantasy", "Epic"}, row.Categories)
		assert.Equal(t, "ISBNdb", row.Source)
		require.NotNil(t, row.AttemptedAt)
	}

	// The unrelated book is untouched and still needs work.
	remaining, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Dune", remaining[0].Title)
}

func TestPropagateMetadataIsFillOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Dune", "Frank Herbert")
	require.NoError(t, err)
	rows, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	key := rows[0].NormalizedKey

	first := testMetadata()
	_, _, err = s.PropagateMetadata(ctx, key, first, false)
	require.NoError(t, err)

	second := &book.Metadata{
		PageCount:   intPtr(999),
		ISBN:        strPtr("0000000000000"),
		Description: strPtr("different"),
		Categories:  []string{"Other"},
		CoverURL:    strPtr("https://covers.example/other.jpg"),
		Source:      "OpenLibrary",
		AttemptedAt: time.Now().UTC(),
	}
	_, covers, err := s.PropagateMetadata(ctx, key, second, false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, covers)

	group, err := s.GetByKey(ctx, key)
	require.NoError(t, err)
	row := group[0]
	assert.Equal(t, 541, *row.PageCount, "existing fields never overwritten")
	assert.Equal(t, "9780765311788", *row.ISBN)
	assert.Equal(t, "Ash falls from the sky.", *row.Description)
	assert.Equal(t, []string{"Fantasy", "Epic"}, row.Categories)
	assert.Equal(t, "https://covers.example/mistborn.jpg", *row.CoverURL)
	assert.Equal(t, "ISBNdb", row.Source)
}

func TestPropagateMetadataEmptyStillMarksAttempted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Obscure Zine", "Anonymous")
	require.NoError(t, err)
	rows, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)

	meta := &book.Metadata{AttemptedAt: time.Now().UTC()}
	updated, covers, err := s.PropagateMetadata(ctx, rows[0].NormalizedKey, meta, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)
	assert.EqualValues(t, 0, covers)

	// Marked attempted, so excluded from the basic selection.
	remaining, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	n, err := s.CountNeedingEnrichment(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The cover-refresh predicate still counts it: attempted, no cover.
	n, err = s.CountNeedingEnrichment(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSelectNeedingEnrichmentCoverRefresh(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Dune", "Frank Herbert")
	require.NoError(t, err)
	rows, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	key := rows[0].NormalizedKey

	// Attempted, but the stored cover is a legacy ISBNdb placeholder shape.
	meta := &book.Metadata{
		CoverURL:    strPtr("https://images.isbndb.com/covers/12/34/9780441013593.jpg"),
		AttemptedAt: time.Now().UTC(),
	}
	_, _, err = s.PropagateMetadata(ctx, key, meta, false)
	require.NoError(t, err)

	basic, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, basic, "attempted rows excluded from basic selection")

	refresh, err := s.SelectNeedingEnrichment(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, refresh, 1, "bad cover re-selected in refresh mode")

	// Refresh mode may replace the known-bad cover.
	good := &book.Metadata{
		CoverURL:    strPtr("https://covers.openlibrary.org/b/id/56529-L.jpg"),
		AttemptedAt: time.Now().UTC(),
	}
	_, covers, err := s.PropagateMetadata(ctx, key, good, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, covers)

	group, err := s.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/56529-L.jpg", *group[0].CoverURL)
}

func TestSearchCachedDedupesAndRequiresCover(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Two copies of the same book; only the second gets full metadata.
	_, err := s.Insert(ctx, "Dune", "Frank Herbert")
	require.NoError(t, err)
	_, err = s.Insert(ctx, "dune", "frank herbert")
	require.NoError(t, err)
	// A coverless book never appears in cached search.
	_, err = s.Insert(ctx, "Dune Messiah", "Frank Herbert")
	require.NoError(t, err)

	rows, err := s.SelectNeedingEnrichment(ctx, false, 0)
	require.NoError(t, err)
	key := rows[0].NormalizedKey

	_, _, err = s.PropagateMetadata(ctx, key, testMetadata(), false)
	require.NoError(t, err)

	results, err := s.SearchCached(ctx, "dune", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "duplicates collapse, coverless rows excluded")
	assert.Equal(t, key, results[0].NormalizedKey)
	assert.True(t, results[0].HasCover())
}

func TestSelectLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := s.Insert(ctx, title, "Author")
		require.NoError(t, err)
	}

	rows, err := s.SelectNeedingEnrichment(ctx, false, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
