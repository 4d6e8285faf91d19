package isbndb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/fetch"
	"github.com/mlahti/bookfetch/internal/testutil"
)

func setupTest(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	restore := SetBaseURL(server.URL)

	testutil.SetupTestCache(t)
	viper.Set("isbndb.api_key", "test-key")

	t.Cleanup(func() {
		server.Close()
		restore()
	})

	p := New()
	p.SetClient(fetch.New(fetch.WithHTTPClient(server.Client())))
	return p, server
}

const searchBody = `{
	"total": 2,
	"books": [
		{
			"title": "Unrelated Anthology",
			"isbn13": "9780000000001",
			"authors": ["Someone Else"]
		},
		{
			"title": "Mistborn: The Final Empire",
			"isbn13": "9780765311788",
			"pages": 541,
			"synopsis": "<p>Ash falls from the sky.</p>",
			"image": "https://images2.isbndb.com/covers/mistborn.jpg",
			"authors": ["Brandon Sanderson"],
			"subjects": ["Fantasy", "Subjects", "Epic"]
		}
	]
}`

func TestLookupMapsFields(t *testing.T) {
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(searchBody))
	}))

	meta, err := p.Lookup(context.Background(), "Mistborn (Mistborn, #1)", "Brandon Sanderson")
	require.NoError(t, err)
	require.NotNil(t, meta)

	require.NotNil(t, meta.PageCount)
	assert.Equal(t, 541, *meta.PageCount)
	require.NotNil(t, meta.ISBN)
	assert.Equal(t, "9780765311788", *meta.ISBN)
	require.NotNil(t, meta.Description)
	assert.Equal(t, "Ash falls from the sky.", *meta.Description)
	require.NotNil(t, meta.CoverURL)
	assert.Equal(t, "https://images2.isbndb.com/covers/mistborn.jpg", *meta.CoverURL)
	// The generic "Subjects" filler entry is dropped.
	assert.Equal(t, []string{"Fantasy", "Epic"}, meta.Categories)
}

func TestLookupPrefersAuthorMatch(t *testing.T) {
	body := `{
		"total": 2,
		"books": [
			{"title": "Collected Poems", "isbn13": "9780000000002", "authors": ["W.B. Yeats"]},
			{"title": "Collected Poems", "isbn13": "9780000000003", "authors": ["Sylvia Plath"]}
		]
	}`
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))

	meta, err := p.Lookup(context.Background(), "Collected Poems", "Sylvia Plath")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.NotNil(t, meta.ISBN)
	assert.Equal(t, "9780000000003", *meta.ISBN)
}

func TestLookupNotFound(t *testing.T) {
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	meta, err := p.Lookup(context.Background(), "No Such Book", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestLookupEmptyResultSet(t *testing.T) {
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":0,"books":[]}`))
	}))

	meta, err := p.Lookup(context.Background(), "No Such Book", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestLookupSkipsWithoutAPIKey(t *testing.T) {
	var calls atomic.Int32
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	viper.Set("isbndb.api_key", "")

	meta, err := p.Lookup(context.Background(), "Dune", "Frank Herbert")
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.EqualValues(t, 0, calls.Load())
}

func TestLookupUsesCache(t *testing.T) {
	var calls atomic.Int32
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(searchBody))
	}))

	ctx := context.Background()
	_, err := p.Lookup(ctx, "Mistborn", "Brandon Sanderson")
	require.NoError(t, err)
	_, err = p.Lookup(ctx, "Mistborn", "Brandon Sanderson")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestPingWithoutKey(t *testing.T) {
	p, _ := setupTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":1,"books":[{"title":"War and Peace"}]}`))
	}))

	require.NoError(t, p.Ping(context.Background()))

	viper.Set("isbndb.api_key", "")
	assert.ErrorIs(t, p.Ping(context.Background()), book.ErrNotConfigured)
}
