package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedLookup struct {
	Title    string `json:"title"`
	NotFound bool   `json:"not_found"`
}

// setupTestCache points the global singleton at a fresh temp database.
func setupTestCache(t *testing.T) *DB {
	t.Helper()

	viper.Reset()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	viper.Set("cache.dbfile", dbPath)
	viper.Set("cache.ttl", "1h")

	require.NoError(t, ResetGlobal())
	t.Cleanup(func() {
		_ = ResetGlobal()
		viper.Reset()
	})

	db, err := Global()
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	db := setupTestCache(t)

	require.NoError(t, db.Set("isbndb_cache", "dune|frankherbert", `{"title":"Dune"}`, time.Hour))

	data, hit, err := db.Get("isbndb_cache", "dune|frankherbert")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `{"title":"Dune"}`, data)

	_, hit, err = db.Get("isbndb_cache", "missing")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetHonorsExpiry(t *testing.T) {
	db := setupTestCache(t)

	require.NoError(t, db.Set("googlebooks_cache", "k", "v", -time.Minute))

	_, hit, err := db.Get("googlebooks_cache", "k")
	require.NoError(t, err)
	assert.False(t, hit, "expired entry must read as a miss")
}

func TestInvalidTableRejected(t *testing.T) {
	db := setupTestCache(t)

	err := db.Set("books; DROP TABLE books", "k", "v", time.Hour)
	require.Error(t, err)

	_, _, err = db.Get("nope_cache", "k")
	require.Error(t, err)
}

func TestGetOrFetchWithTTL(t *testing.T) {
	setupTestCache(t)

	fetches := 0
	fetch := func() (*cachedLookup, error) {
		fetches++
		return &cachedLookup{Title: "Dune"}, nil
	}

	got, fromCache, err := GetOrFetchWithTTL("openlibrary_cache", "dune", fetch, nil)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "Dune", got.Title)

	// Second call must be served from cache.
	got, fromCache, err = GetOrFetchWithTTL("openlibrary_cache", "dune", fetch, nil)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 1, fetches)
}

func TestNegativeTTLSelector(t *testing.T) {
	setupTestCache(t)

	selector := SelectNegativeTTL(func(r *cachedLookup) bool { return r.NotFound })

	assert.Equal(t, NegativeTTL, selector(&cachedLookup{NotFound: true}))
	assert.Equal(t, time.Hour, selector(&cachedLookup{Title: "found"}))
}

func TestInvalidateAndCount(t *testing.T) {
	db := setupTestCache(t)

	require.NoError(t, db.Set("isbndb_cache", "a", "1", time.Hour))
	require.NoError(t, db.Set("isbndb_cache", "b", "2", time.Hour))

	n, err := db.Count("isbndb_cache")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err := db.Invalidate("isbndb_cache")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	n, err = db.Count("isbndb_cache")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
