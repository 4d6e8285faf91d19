// Package openlibrary implements the last fallback provider. OpenLibrary
// is strong on page counts and subjects, rarely carries descriptions, and
// serves covers directly from a numeric cover identifier.
package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/cache"
	"github.com/mlahti/bookfetch/internal/fetch"
	"github.com/mlahti/bookfetch/internal/normalize"
	"github.com/mlahti/bookfetch/internal/ratelimit"
)

var (
	baseURL      = "https://openlibrary.org"
	coverBaseURL = "https://covers.openlibrary.org"
)

const (
	providerPriority = 2
	// maxCategories caps subject lists; OpenLibrary records often carry
	// dozens of near-duplicate subjects.
	maxCategories = 8
)

// Provider implements book.Provider for OpenLibrary.
type Provider struct {
	client      *fetch.Client
	rateLimiter *ratelimit.Limiter
	clientOnce  sync.Once
	limiterOnce sync.Once
}

var (
	_ book.Provider = (*Provider)(nil)
	_ book.Searcher = (*Provider)(nil)
)

// New creates the OpenLibrary provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "OpenLibrary"
}

func (p *Provider) Priority() int {
	return providerPriority
}

// Ping runs a minimal search against the public endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	var result searchResponse
	endpoint := fmt.Sprintf("%s/search.json?title=dune&limit=1", baseURL)
	if err := p.getClient().GetJSON(ctx, endpoint, nil, &result); err != nil {
		return fmt.Errorf("openlibrary ping: %w", err)
	}
	return nil
}

// Lookup searches OpenLibrary by title and author.
func (p *Provider) Lookup(ctx context.Context, title, author string) (*book.Metadata, error) {
	cleaned := normalize.Clean(title)
	key := normalize.Key(cleaned, author)

	cached, _, err := cache.GetOrFetchWithTTL("openlibrary_cache", key, func() (*cachedResult, error) {
		return p.fetch(ctx, cleaned, author)
	}, cache.SelectNegativeTTL(func(r *cachedResult) bool {
		return r.NotFound
	}))
	if err != nil {
		return nil, err
	}

	if cached.NotFound {
		return nil, nil
	}
	return cached.Data, nil
}

type cachedResult struct {
	Data     *book.Metadata `json:"data"`
	NotFound bool           `json:"not_found"`
}

type searchDoc struct {
	Title               string   `json:"title"`
	AuthorName          []string `json:"author_name"`
	NumberOfPagesMedian int      `json:"number_of_pages_median"`
	ISBN                []string `json:"isbn"`
	Subject             []string `json:"subject"`
	CoverID             int64    `json:"cover_i"`
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

func (p *Provider) fetch(ctx context.Context, title, author string) (*cachedResult, error) {
	if err := p.getLimiter().Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("title", title)
	query.Set("author", author)
	query.Set("limit", "20")
	query.Set("fields", "title,author_name,number_of_pages_median,isbn,subject,cover_i")
	endpoint := fmt.Sprintf("%s/search.json?%s", baseURL, query.Encode())

	var result searchResponse
	err := p.getClient().GetJSON(ctx, endpoint, nil, &result)
	if errors.Is(err, fetch.ErrNotFound) {
		return &cachedResult{NotFound: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.NumFound == 0 || len(result.Docs) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	best := result.Docs[0]
	for _, doc := range result.Docs {
		if normalize.TitleMatches(title, doc.Title) {
			best = doc
			break
		}
	}

	data := &book.Metadata{}
	if best.NumberOfPagesMedian > 0 {
		pages := best.NumberOfPagesMedian
		data.PageCount = &pages
	}
	if isbn := pickISBN(best.ISBN); isbn != "" {
		data.ISBN = &isbn
	}
	for _, s := range best.Subject {
		if s == "" {
			continue
		}
		data.Categories = append(data.Categories, s)
		if len(data.Categories) == maxCategories {
			break
		}
	}
	if best.CoverID > 0 {
		coverURL := fmt.Sprintf("%s/b/id/%d-L.jpg", coverBaseURL, best.CoverID)
		data.CoverURL = &coverURL
	}

	if data.Empty() {
		return &cachedResult{NotFound: true}, nil
	}
	return &cachedResult{Data: data}, nil
}

// Search answers a free-text query for interactive use, one candidate
// per matched work.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]book.SearchResult, error) {
	if err := p.getLimiter().Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", fmt.Sprint(limit))
	values.Set("fields", "title,author_name,number_of_pages_median,isbn,subject,cover_i")
	endpoint := fmt.Sprintf("%s/search.json?%s", baseURL, values.Encode())

	var result searchResponse
	err := p.getClient().GetJSON(ctx, endpoint, nil, &result)
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]book.SearchResult, 0, len(result.Docs))
	for _, doc := range result.Docs {
		if doc.Title == "" {
			continue
		}
		sr := book.SearchResult{Title: doc.Title}
		if len(doc.AuthorName) > 0 {
			sr.Author = doc.AuthorName[0]
		}
		if doc.NumberOfPagesMedian > 0 {
			pages := doc.NumberOfPagesMedian
			sr.Meta.PageCount = &pages
		}
		if isbn := pickISBN(doc.ISBN); isbn != "" {
			sr.Meta.ISBN = &isbn
		}
		for _, s := range doc.Subject {
			if s == "" {
				continue
			}
			sr.Meta.Categories = append(sr.Meta.Categories, s)
			if len(sr.Meta.Categories) == maxCategories {
				break
			}
		}
		if doc.CoverID > 0 {
			coverURL := fmt.Sprintf("%s/b/id/%d-L.jpg", coverBaseURL, doc.CoverID)
			sr.Meta.CoverURL = &coverURL
		}
		out = append(out, sr)
	}
	return out, nil
}

// pickISBN prefers a 13-digit identifier from the edition ISBN list.
func pickISBN(isbns []string) string {
	var fallback string
	for _, isbn := range isbns {
		if len(isbn) == 13 {
			return isbn
		}
		if fallback == "" && isbn != "" {
			fallback = isbn
		}
	}
	return fallback
}

func (p *Provider) getClient() *fetch.Client {
	p.clientOnce.Do(func() {
		p.client = fetch.New()
	})
	return p.client
}

// SetClient replaces the fetch client, for tests.
func (p *Provider) SetClient(c *fetch.Client) {
	p.clientOnce.Do(func() {})
	p.client = c
}

func (p *Provider) getLimiter() *ratelimit.Limiter {
	p.limiterOnce.Do(func() {
		p.rateLimiter = ratelimit.New("OpenLibrary", ratelimit.OpenLibraryPerSecond)
	})
	return p.rateLimiter
}

// SetBaseURL points the adapter at a test server. Returns a restore func.
func SetBaseURL(searchURL, coverURL string) func() {
	oldSearch, oldCover := baseURL, coverBaseURL
	baseURL, coverBaseURL = searchURL, coverURL
	return func() {
		baseURL, coverBaseURL = oldSearch, oldCover
	}
}
