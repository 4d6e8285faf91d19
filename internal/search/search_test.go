package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/store"
)

type fakeStore struct {
	rows  []store.Row
	err   error
	delay time.Duration
}

func (f *fakeStore) SearchCached(ctx context.Context, query string, limit int) ([]store.Row, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

type fakeSearcher struct {
	name    string
	results []book.SearchResult
	err     error
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]book.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func result(title, author, coverURL string) book.SearchResult {
	sr := book.SearchResult{Title: title, Author: author}
	if coverURL != "" {
		sr.Meta.CoverURL = strPtr(coverURL)
	}
	return sr
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		title  string
		author string
		want   int
	}{
		{"exact title", "dune", "Dune", "Frank Herbert", 100},
		{"short prefix", "dune", "Dune Messiah", "Frank Herbert", 90},
		{"long prefix", "dune", "Dune and the Philosophy of Ecology", "", 80},
		{"phrase at word boundary", "house", "The Big House", "", 70},
		{"mid-word hit", "rough", "Breakthrough", "", 60},
		{"author exact", "frank herbert", "Dune", "Frank Herbert", 85},
		{"author contains", "herbert", "Children of Time", "Frank Herbert", 60},
		{"all significant words scattered", "herbert dune chronicles", "The Dune Chronicles", "Frank Herbert", 50},
		{"partial word overlap", "dune ecology primer", "Dune Ecology", "", 20},
		{"no overlap", "mistborn", "Dune", "Frank Herbert", 0},
		{"short words ignored", "of an it", "Dune", "", 0},
		{"empty title", "dune", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.query, tt.title, tt.author))
		})
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	assert.Equal(t, 100, Score("DUNE", "dune", ""))
	assert.Equal(t, 90, Score("dune", "DUNE MESSIAH", ""))
}

func TestSearchRanking(t *testing.T) {
	cached := &fakeStore{rows: []store.Row{
		{Title: "Dune", Author: "Frank Herbert", CoverURL: strPtr("https://covers.example.com/dune.jpg"), PageCount: intPtr(412)},
	}}
	provider := &fakeSearcher{name: "GoogleBooks", results: []book.SearchResult{
		result("Dune Messiah", "Frank Herbert", "https://covers.example.com/messiah.jpg"),
		result("Sandworms of Arrakis", "Dune Appreciation Society", ""),
	}}

	agg := New(cached, provider)
	candidates, sources, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "Dune", candidates[0].Title)
	assert.Equal(t, 100, candidates[0].MatchScore)
	assert.Equal(t, "Dune Messiah", candidates[1].Title)
	assert.Equal(t, 90, candidates[1].MatchScore)
	assert.Equal(t, "Sandworms of Arrakis", candidates[2].Title)
	assert.Equal(t, 60, candidates[2].MatchScore)

	assert.Equal(t, "GoogleBooks+cache", sources)
}

func TestSearchShortQuery(t *testing.T) {
	agg := New(&fakeStore{}, &fakeSearcher{name: "GoogleBooks"})

	candidates, sources, err := agg.Search(context.Background(), "  d  ")
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Empty(t, sources)
}

func TestSearchDeduplicatesByTitle(t *testing.T) {
	provider := &fakeSearcher{name: "OpenLibrary", results: []book.SearchResult{
		result("Dune", "Frank Herbert", "https://covers.example.com/dune.jpg"),
		result("DUNE", "F. Herbert", ""),
		result("  Dune  ", "", ""),
	}}

	agg := New(&fakeStore{}, provider)
	candidates, _, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "Dune", candidates[0].Title)
	assert.Equal(t, "Frank Herbert", candidates[0].Author)
}

func TestSearchCachedRowWinsDedupeRegardlessOfTiming(t *testing.T) {
	// The store answers last; the enriched local row must still beat the
	// provider's bare stub for the same title.
	cached := &fakeStore{
		delay: 50 * time.Millisecond,
		rows: []store.Row{
			{
				Title:     "Dune",
				Author:    "Frank Herbert",
				PageCount: intPtr(412),
				ISBN:      strPtr("9780441013593"),
				CoverURL:  strPtr("https://covers.example.com/dune.jpg"),
			},
		},
	}
	provider := &fakeSearcher{name: "GoogleBooks", results: []book.SearchResult{
		result("DUNE", "", ""),
	}}

	agg := New(cached, provider)
	candidates, sources, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "Dune", candidates[0].Title)
	assert.Equal(t, "Frank Herbert", candidates[0].Author)
	require.NotNil(t, candidates[0].ISBN)
	assert.Equal(t, "9780441013593", *candidates[0].ISBN)
	assert.True(t, candidates[0].HasCover)
	assert.Equal(t, "GoogleBooks+cache", sources)
}

func TestSearchCoverBreaksTies(t *testing.T) {
	provider := &fakeSearcher{name: "OpenLibrary", results: []book.SearchResult{
		result("Dune Companion", "", ""),
		result("Dune Concordance", "", "https://covers.example.com/concordance.jpg"),
	}}

	agg := New(&fakeStore{}, provider)
	candidates, _, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, candidates[0].MatchScore, candidates[1].MatchScore)
	assert.Equal(t, "Dune Concordance", candidates[0].Title)
	assert.True(t, candidates[0].HasCover)
	assert.False(t, candidates[1].HasCover)
}

func TestSearchPlaceholderCoverDoesNotCount(t *testing.T) {
	provider := &fakeSearcher{name: "OpenLibrary", results: []book.SearchResult{
		result("Dune Atlas", "", "/images/no-cover.png"),
	}}

	agg := New(&fakeStore{}, provider)
	candidates, _, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].HasCover)
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	var results []book.SearchResult
	for i := 0; i < 2*MaxResults; i++ {
		results = append(results, result(fmt.Sprintf("Dune Volume %d", i), "", ""))
	}
	provider := &fakeSearcher{name: "OpenLibrary", results: results}

	agg := New(&fakeStore{}, provider)
	candidates, _, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)
	assert.Len(t, candidates, MaxResults)
}

func TestSearchProviderFailureIsTolerated(t *testing.T) {
	cached := &fakeStore{rows: []store.Row{
		{Title: "Dune", Author: "Frank Herbert"},
	}}
	broken := &fakeSearcher{name: "GoogleBooks", err: errors.New("upstream down")}

	agg := New(cached, broken)
	candidates, sources, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "cache", sources)
}

func TestSearchCacheFailureIsTolerated(t *testing.T) {
	cached := &fakeStore{err: errors.New("database locked")}
	provider := &fakeSearcher{name: "OpenLibrary", results: []book.SearchResult{
		result("Dune", "Frank Herbert", ""),
	}}

	agg := New(cached, provider)
	candidates, sources, err := agg.Search(context.Background(), "dune")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "OpenLibrary", sources)
}
