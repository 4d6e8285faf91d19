// Package search serves interactive free-text queries: a cache-first
// lookup against already-enriched rows plus a concurrent fan-out to the
// two fallback providers, merged, scored for relevance, and truncated.
//
// The tiered score table exists because naive substring search surfaces
// poor matches (an author whose name happens to contain a common word)
// ahead of true title matches.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/normalize"
	"github.com/mlahti/bookfetch/internal/placeholder"
	"github.com/mlahti/bookfetch/internal/store"
)

const (
	// MaxResults caps the ranked list returned to callers.
	MaxResults = 12
	// MinQueryLength rejects queries shorter than this after trimming.
	MinQueryLength = 2
	// providerLimit bounds per-source candidates before merging.
	providerLimit = 20
)

// Candidate is a transient, query-time result. Never persisted.
type Candidate struct {
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	PageCount  *int     `json:"pageCount,omitempty"`
	ISBN       *string  `json:"isbn,omitempty"`
	CoverURL   *string  `json:"coverUrl,omitempty"`
	Categories []string `json:"categories,omitempty"`
	MatchScore int      `json:"matchScore"`
	HasCover   bool     `json:"hasCover"`
}

// CachedSearcher is the slice of the book store the aggregator needs.
type CachedSearcher interface {
	SearchCached(ctx context.Context, query string, limit int) ([]store.Row, error)
}

// Aggregator merges cached and provider results into a ranked list.
type Aggregator struct {
	store     CachedSearcher
	providers []book.Searcher
}

// New creates an aggregator over the cache-first store and the fallback
// providers queried for interactive search.
func New(cached CachedSearcher, providers ...book.Searcher) *Aggregator {
	return &Aggregator{store: cached, providers: providers}
}

// Search returns up to MaxResults candidates ranked by relevance, plus a
// tag naming which sources contributed. Short queries yield an empty
// list, not an error.
func (a *Aggregator) Search(ctx context.Context, query string) ([]Candidate, string, error) {
	trimmed := strings.TrimSpace(query)
	if len([]rune(trimmed)) < MinQueryLength {
		return nil, "", nil
	}

	// Each source fills its own slot: slot 0 for the cache, then the
	// providers in priority order. Merging walks the slots in index order,
	// so dedupe precedence never depends on which goroutine finishes
	// first; an enriched cached row always survives a provider stub with
	// the same title.
	batches := make([][]Candidate, len(a.providers)+1)
	names := make([]string, len(a.providers)+1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err := a.store.SearchCached(ctx, trimmed, providerLimit)
		if err != nil {
			slog.Warn("Cached search failed", "query", trimmed, "error", err)
			return
		}
		candidates := make([]Candidate, 0, len(rows))
		for _, row := range rows {
			candidates = append(candidates, fromRow(row))
		}
		batches[0] = candidates
		names[0] = "cache"
	}()

	// The fallback providers are independent services with loose limits;
	// interactive latency wins over politeness here.
	for i, provider := range a.providers {
		wg.Add(1)
		go func(slot int, p book.Searcher) {
			defer wg.Done()
			found, err := p.Search(ctx, trimmed, providerLimit)
			if err != nil {
				slog.Warn("Provider search failed", "provider", p.Name(), "query", trimmed, "error", err)
				return
			}
			candidates := make([]Candidate, 0, len(found))
			for _, sr := range found {
				candidates = append(candidates, fromResult(sr))
			}
			batches[slot] = candidates
			names[slot] = p.Name()
		}(i+1, provider)
	}

	wg.Wait()

	var merged []Candidate
	var sources []string
	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		merged = append(merged, batch...)
		sources = append(sources, names[i])
	}
	sort.Strings(sources)

	ranked := rank(trimmed, merged)
	return ranked, strings.Join(sources, "+"), nil
}

// rank deduplicates by normalized title (first occurrence wins), scores,
// sorts by score with cover availability breaking ties, and truncates.
func rank(query string, candidates []Candidate) []Candidate {
	seen := make(map[string]bool)
	deduped := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := normalize.Key(c.Title, "")
		if key == "|" || seen[key] {
			continue
		}
		seen[key] = true
		c.MatchScore = Score(query, c.Title, c.Author)
		deduped = append(deduped, c)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].MatchScore != deduped[j].MatchScore {
			return deduped[i].MatchScore > deduped[j].MatchScore
		}
		return deduped[i].HasCover && !deduped[j].HasCover
	})

	if len(deduped) > MaxResults {
		deduped = deduped[:MaxResults]
	}
	return deduped
}

// Score rates how well a candidate matches the query. Higher is better.
//
//	100    exact title match
//	80-90  title starts with the query
//	60-70  title contains the query as a phrase
//	60-85  author exact / contains match
//	50     every significant query word present across title+author
//	0-30   partial word overlap, proportional
//	0      no overlap
func Score(query, title, author string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(strings.TrimSpace(title))
	au := strings.ToLower(strings.TrimSpace(author))

	if q == "" || t == "" {
		return 0
	}

	if t == q {
		return 100
	}
	if strings.HasPrefix(t, q) {
		// Shorter remainders rank closer to an exact match.
		extra := len(t) - len(q)
		if extra <= 10 {
			return 90
		}
		return 80
	}
	if strings.Contains(t, q) {
		// A phrase at a word boundary beats a mid-word hit.
		if strings.Contains(t, " "+q) || strings.Contains(t, q+" ") {
			return 70
		}
		return 60
	}

	if au != "" {
		if au == q {
			return 85
		}
		if strings.Contains(au, q) || strings.Contains(q, au) {
			return 60
		}
	}

	return wordOverlapScore(q, t, au)
}

// wordOverlapScore handles multi-word queries that match scattered words.
func wordOverlapScore(query, title, author string) int {
	haystack := title + " " + author

	var significant []string
	for _, word := range strings.Fields(query) {
		if len(word) > 2 {
			significant = append(significant, word)
		}
	}
	if len(significant) == 0 {
		return 0
	}

	matched := 0
	for _, word := range significant {
		if strings.Contains(haystack, word) {
			matched++
		}
	}

	if matched == len(significant) {
		return 50
	}
	if matched == 0 {
		return 0
	}
	return matched * 30 / len(significant)
}

func fromRow(row store.Row) Candidate {
	return Candidate{
		Title:      row.Title,
		Author:     row.Author,
		PageCount:  row.PageCount,
		ISBN:       row.ISBN,
		CoverURL:   row.CoverURL,
		Categories: row.Categories,
		HasCover:   row.HasCover(),
	}
}

func fromResult(sr book.SearchResult) Candidate {
	hasCover := sr.Meta.CoverURL != nil && !placeholder.IsLikelyURL(*sr.Meta.CoverURL)
	return Candidate{
		Title:      sr.Title,
		Author:     sr.Author,
		PageCount:  sr.Meta.PageCount,
		ISBN:       sr.Meta.ISBN,
		CoverURL:   sr.Meta.CoverURL,
		Categories: sr.Meta.Categories,
		HasCover:   hasCover,
	}
}
