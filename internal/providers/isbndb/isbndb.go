// Package isbndb implements the primary bibliographic provider. ISBNdb is
// the richest single-call source (pages, ISBN, synopsis, subjects, cover)
// and is treated as authoritative when present. It is skipped silently
// when no API key is configured.
package isbndb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/spf13/viper"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/cache"
	"github.com/mlahti/bookfetch/internal/fetch"
	"github.com/mlahti/bookfetch/internal/normalize"
	"github.com/mlahti/bookfetch/internal/ratelimit"
)

// Package-level defaults, overridable in tests.
var baseURL = "https://api2.isbndb.com"

const providerPriority = 0

// Provider implements book.Provider for ISBNdb.
type Provider struct {
	client      *fetch.Client
	rateLimiter *ratelimit.Limiter
	clientOnce  sync.Once
	limiterOnce sync.Once
}

var _ book.Provider = (*Provider)(nil)

// New creates the ISBNdb provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the human-readable source name.
func (p *Provider) Name() string {
	return "ISBNdb"
}

// Priority orders this provider first during resolution.
func (p *Provider) Priority() int {
	return providerPriority
}

// Ping verifies the API key against a well-known title.
func (p *Provider) Ping(ctx context.Context) error {
	apiKey := p.apiKey()
	if apiKey == "" {
		return book.ErrNotConfigured
	}

	var result searchResponse
	endpoint := fmt.Sprintf("%s/books/%s?pageSize=1", baseURL, url.PathEscape("war and peace"))
	if err := p.getClient().GetJSON(ctx, endpoint, authHeader(apiKey), &result); err != nil {
		return fmt.Errorf("isbndb ping: %w", err)
	}
	return nil
}

// Lookup searches ISBNdb by cleaned title and picks the best candidate by
// title containment. Returns nil, nil when unconfigured or when the
// search comes back empty.
func (p *Provider) Lookup(ctx context.Context, title, author string) (*book.Metadata, error) {
	apiKey := p.apiKey()
	if apiKey == "" {
		return nil, nil
	}

	cleaned := normalize.Clean(title)
	key := normalize.Key(cleaned, author)

	cached, _, err := cache.GetOrFetchWithTTL("isbndb_cache", key, func() (*cachedResult, error) {
		return p.fetch(ctx, cleaned, author, apiKey)
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

// searchResponse matches the ISBNdb book search payload.
type searchResponse struct {
	Total int `json:"total"`
	Books []struct {
		Title         string   `json:"title"`
		ISBN          string   `json:"isbn"`
		ISBN13        string   `json:"isbn13"`
		Pages         *int     `json:"pages"`
		Synopsis      string   `json:"synopsis"`
		Overview      string   `json:"overview"`
		Image         string   `json:"image"`
		DatePublished string   `json:"date_published"`
		Authors       []string `json:"authors"`
		Subjects      []string `json:"subjects"`
	} `json:"books"`
}

func (p *Provider) fetch(ctx context.Context, title, author, apiKey string) (*cachedResult, error) {
	if err := p.getLimiter().Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("column", "title")
	query.Set("pageSize", "20")
	endpoint := fmt.Sprintf("%s/books/%s?%s", baseURL, url.PathEscape(title), query.Encode())

	var result searchResponse
	err := p.getClient().GetJSON(ctx, endpoint, authHeader(apiKey), &result)
	if errors.Is(err, fetch.ErrNotFound) {
		return &cachedResult{NotFound: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Total == 0 || len(result.Books) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	// Prefer a title match whose author list also matches; then any title
	// match; then the first result.
	best := result.Books[0]
	matched := false
	for _, candidate := range result.Books {
		if !normalize.TitleMatches(title, candidate.Title) {
			continue
		}
		if !matched {
			best = candidate
			matched = true
		}
		if authorMatches(author, candidate.Authors) {
			best = candidate
			break
		}
	}

	data := &book.Metadata{}
	if best.Pages != nil && *best.Pages > 0 {
		data.PageCount = best.Pages
	}
	isbn := best.ISBN13
	if isbn == "" {
		isbn = best.ISBN
	}
	if isbn != "" {
		data.ISBN = &isbn
	}
	// Synopsis is the fuller field; overview is the fallback.
	description := best.Synopsis
	if description == "" {
		description = best.Overview
	}
	if description != "" {
		cleaned := normalize.CleanDescription(description)
		data.Description = &cleaned
	}
	if best.Image != "" {
		image := best.Image
		data.CoverURL = &image
	}
	for _, s := range best.Subjects {
		// ISBNdb pads some records with a generic "Subjects" entry.
		if s != "" && s != "Subjects" {
			data.Categories = append(data.Categories, s)
		}
	}

	if data.Empty() {
		return &cachedResult{NotFound: true}, nil
	}
	return &cachedResult{Data: data}, nil
}

func authorMatches(author string, candidates []string) bool {
	for _, c := range candidates {
		if normalize.TitleMatches(author, c) {
			return true
		}
	}
	return false
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
		p.rateLimiter = ratelimit.New("ISBNdb", ratelimit.ISBNdbPerSecond)
	})
	return p.rateLimiter
}

func (p *Provider) apiKey() string {
	return viper.GetString("isbndb.api_key")
}

func authHeader(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", apiKey)
	return h
}

// SetBaseURL points the adapter at a test server. Returns a restore func.
func SetBaseURL(u string) func() {
	old := baseURL
	baseURL = u
	return func() { baseURL = old }
}
