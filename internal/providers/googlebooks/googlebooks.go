// Package googlebooks implements the first fallback provider. Google
// Books is strongest on fiction coverage and cover images; its cover URLs
// need the zoom quality flag or they render the "image not available"
// placeholder tile.
package googlebooks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/spf13/viper"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/cache"
	"github.com/mlahti/bookfetch/internal/fetch"
	"github.com/mlahti/bookfetch/internal/normalize"
	"github.com/mlahti/bookfetch/internal/ratelimit"
)

var baseURL = "https://www.googleapis.com/books/v1"

const providerPriority = 1

// Provider implements book.Provider for the Google Books API.
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

// New creates the Google Books provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "Google Books"
}

func (p *Provider) Priority() int {
	return providerPriority
}

// Ping runs a search that should always return results.
func (p *Provider) Ping(ctx context.Context) error {
	var result volumesResponse
	endpoint := fmt.Sprintf("%s/volumes?q=%s&maxResults=1", baseURL, url.QueryEscape("intitle:dune"))
	if err := p.getClient().GetJSON(ctx, endpoint, nil, &result); err != nil {
		return fmt.Errorf("google books ping: %w", err)
	}
	return nil
}

// Lookup searches volumes by title and author. Among title-matching
// candidates it prefers one carrying page count, description, or
// categories, since many Google Books records are bare stubs.
func (p *Provider) Lookup(ctx context.Context, title, author string) (*book.Metadata, error) {
	cleaned := normalize.Clean(title)
	key := normalize.Key(cleaned, author)

	cached, _, err := cache.GetOrFetchWithTTL("googlebooks_cache", key, func() (*cachedResult, error) {
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

type volumeInfo struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
	PageCount   int      `json:"pageCount"`
	Categories  []string `json:"categories"`
	ImageLinks  struct {
		Thumbnail      string `json:"thumbnail"`
		SmallThumbnail string `json:"smallThumbnail"`
	} `json:"imageLinks"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

func (p *Provider) fetch(ctx context.Context, title, author string) (*cachedResult, error) {
	if err := p.getLimiter().Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("q", fmt.Sprintf("intitle:%s inauthor:%s", title, author))
	query.Set("maxResults", "20")
	if apiKey := viper.GetString("googlebooks.api_key"); apiKey != "" {
		query.Set("key", apiKey)
	}
	endpoint := fmt.Sprintf("%s/volumes?%s", baseURL, query.Encode())

	var result volumesResponse
	err := p.getClient().GetJSON(ctx, endpoint, nil, &result)
	if errors.Is(err, fetch.ErrNotFound) {
		return &cachedResult{NotFound: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.TotalItems == 0 || len(result.Items) == 0 {
		return &cachedResult{NotFound: true}, nil
	}

	best := pickBest(title, result)

	data := &book.Metadata{}
	if best.PageCount > 0 {
		pages := best.PageCount
		data.PageCount = &pages
	}
	if isbn := pickISBN(best); isbn != "" {
		data.ISBN = &isbn
	}
	if best.Description != "" {
		cleaned := normalize.CleanDescription(best.Description)
		data.Description = &cleaned
	}
	if len(best.Categories) > 0 {
		data.Categories = best.Categories
	}
	coverURL := best.ImageLinks.Thumbnail
	if coverURL == "" {
		coverURL = best.ImageLinks.SmallThumbnail
	}
	if coverURL != "" {
		withZoom := ensureZoom(coverURL)
		data.CoverURL = &withZoom
	}

	if data.Empty() {
		return &cachedResult{NotFound: true}, nil
	}
	return &cachedResult{Data: data}, nil
}

// Search answers a free-text query for interactive use. Results are
// mapped one volume per candidate; no caching, since interactive queries
// rarely repeat and staleness matters more there.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]book.SearchResult, error) {
	if err := p.getLimiter().Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("maxResults", fmt.Sprint(limit))
	if apiKey := viper.GetString("googlebooks.api_key"); apiKey != "" {
		values.Set("key", apiKey)
	}
	endpoint := fmt.Sprintf("%s/volumes?%s", baseURL, values.Encode())

	var result volumesResponse
	err := p.getClient().GetJSON(ctx, endpoint, nil, &result)
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]book.SearchResult, 0, len(result.Items))
	for _, item := range result.Items {
		vol := item.VolumeInfo
		if vol.Title == "" {
			continue
		}
		sr := book.SearchResult{Title: vol.Title}
		if len(vol.Authors) > 0 {
			sr.Author = vol.Authors[0]
		}
		if vol.PageCount > 0 {
			pages := vol.PageCount
			sr.Meta.PageCount = &pages
		}
		if isbn := pickISBN(vol); isbn != "" {
			sr.Meta.ISBN = &isbn
		}
		if vol.Description != "" {
			cleaned := normalize.CleanDescription(vol.Description)
			sr.Meta.Description = &cleaned
		}
		sr.Meta.Categories = vol.Categories
		if cover := vol.ImageLinks.Thumbnail; cover != "" {
			withZoom := ensureZoom(cover)
			sr.Meta.CoverURL = &withZoom
		}
		out = append(out, sr)
	}
	return out, nil
}

// pickBest returns the first title-matching volume carrying substantive
// metadata, falling back to any title match, then the first item.
func pickBest(title string, result volumesResponse) volumeInfo {
	best := result.Items[0].VolumeInfo
	matched := false
	for _, item := range result.Items {
		vol := item.VolumeInfo
		if !normalize.TitleMatches(title, vol.Title) {
			continue
		}
		if !matched {
			best = vol
			matched = true
		}
		if vol.PageCount > 0 || vol.Description != "" || len(vol.Categories) > 0 {
			return vol
		}
	}
	return best
}

// pickISBN prefers the ISBN-13 identifier.
func pickISBN(vol volumeInfo) string {
	var isbn10 string
	for _, id := range vol.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			return id.Identifier
		case "ISBN_10":
			isbn10 = id.Identifier
		}
	}
	return isbn10
}

// ensureZoom adds the zoom quality flag to a books.google.com content URL
// when absent. Without it the endpoint serves the placeholder tile.
func ensureZoom(coverURL string) string {
	u, err := url.Parse(coverURL)
	if err != nil {
		return coverURL
	}
	q := u.Query()
	if q.Get("zoom") == "" {
		q.Set("zoom", "1")
		u.RawQuery = q.Encode()
	}
	return u.String()
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
		p.rateLimiter = ratelimit.New("Google Books", ratelimit.GoogleBooksPerSecond)
	})
	return p.rateLimiter
}

// SetBaseURL points the adapter at a test server. Returns a restore func.
func SetBaseURL(u string) func() {
	old := baseURL
	baseURL = u
	return func() { baseURL = old }
}
