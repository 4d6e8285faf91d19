// Package cache stores provider API responses in SQLite so repeated
// resolution of the same (title, author) pair never re-contacts a
// provider inside the TTL window. Not-found answers are cached with a
// shorter TTL so newly catalogued books eventually get re-tried.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

const (
	// DefaultTTL is the time-to-live for successful provider responses.
	DefaultTTL = 720 * time.Hour
	// NegativeTTL is the shorter time-to-live for "not found" responses.
	NegativeTTL = 168 * time.Hour
)

// FetchFunc fetches data from an external source on cache miss.
type FetchFunc[T any] func() (T, error)

// DB manages the SQLite connection backing the provider caches.
type DB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

var (
	globalDB   *DB
	globalOnce sync.Once
)

// Global returns the singleton cache database, creating it (and its
// tables) on first use at the configured path.
func Global() (*DB, error) {
	var initErr error
	globalOnce.Do(func() {
		path := viper.GetString("cache.dbfile")
		if path == "" {
			path = "./cache.db"
		}
		globalDB, initErr = Open(path)
	})
	if initErr != nil {
		return nil, initErr
	}
	return globalDB, nil
}

// ResetGlobal closes and clears the singleton so the next Global call
// creates a fresh instance. For tests.
func ResetGlobal() error {
	var closeErr error
	if globalDB != nil {
		closeErr = globalDB.Close()
	}
	globalDB = nil
	globalOnce = sync.Once{}
	return closeErr
}

// Open opens (or creates) a cache database at path and ensures every
// provider table exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("connecting to cache database: %w", err), closeErr)
	}

	c := &DB{db: db, path: path}
	for _, schema := range AllCacheSchemas {
		if _, err := db.Exec(schema); err != nil {
			closeErr := db.Close()
			return nil, errors.Join(fmt.Errorf("creating cache table: %w", err), closeErr)
		}
	}
	return c, nil
}

// Close closes the database connection.
func (c *DB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached value for key if one exists and has not passed
// its stored expiry. The second return reports whether the value came
// from cache.
func (c *DB) Get(table, key string) (string, bool, error) {
	if err := validateTable(table); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var data string
	var expiresAt time.Time
	query := fmt.Sprintf("SELECT data, expires_at FROM %s WHERE cache_key = ?", table)
	err := c.db.QueryRow(query, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying cache: %w", err)
	}

	if time.Now().UTC().After(expiresAt) {
		slog.Debug("Cache entry expired", "table", table, "key", key)
		return "", false, nil
	}
	return data, true, nil
}

// Set stores a value with the given lifetime, replacing any previous
// entry for the key.
func (c *DB) Set(table, key, data string, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (cache_key, data, cached_at, expires_at) VALUES (?, ?, CURRENT_TIMESTAMP, ?)", table)
	if _, err := c.db.Exec(query, key, data, time.Now().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Invalidate deletes every entry in the table, returning the row count.
func (c *DB) Invalidate(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return rows, nil
}

// Count returns the number of entries in the table.
func (c *DB) Count(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	if err := c.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

func validateTable(table string) error {
	if !ValidCacheTableNames[table] {
		return fmt.Errorf("invalid cache table name: %s", table)
	}
	return nil
}

// configuredTTL reads the default TTL from config, falling back to
// DefaultTTL on missing or unparseable values.
func configuredTTL() time.Duration {
	ttlStr := viper.GetString("cache.ttl")
	if ttlStr == "" {
		return DefaultTTL
	}
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		slog.Warn("Invalid cache TTL, using default", "ttl", ttlStr, "error", err)
		return DefaultTTL
	}
	return ttl
}

// GetOrFetchWithTTL returns the cached value for key, fetching and caching
// it on a miss. ttlSelector inspects the fetched value to choose its TTL,
// which lets "not found" results expire sooner than real ones. The bool
// return reports whether the value came from cache.
func GetOrFetchWithTTL[T any](table, key string, fetchFunc FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	var zero T

	db, err := Global()
	if err != nil {
		// A broken cache never blocks resolution; fetch directly.
		slog.Warn("Cache unavailable, fetching directly", "error", err)
		data, fetchErr := fetchFunc()
		return data, false, fetchErr
	}

	cached, hit, err := db.Get(table, key)
	if err == nil && hit {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Cache hit", "table", table, "key", key)
			return result, true, nil
		}
		slog.Warn("Unreadable cache entry, refetching", "table", table, "key", key, "error", err)
	}

	data, err := fetchFunc()
	if err != nil {
		return zero, false, err
	}

	ttl := configuredTTL()
	if ttlSelector != nil {
		ttl = ttlSelector(data)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal value for caching", "table", table, "key", key, "error", err)
		return data, false, nil
	}
	if err := db.Set(table, key, string(payload), ttl); err != nil {
		// Caching failure never fails the fetch.
		slog.Warn("Failed to cache value", "table", table, "key", key, "error", err)
		return data, false, nil
	}

	slog.Debug("Cached provider response", "table", table, "key", key, "ttl", ttl)
	return data, false, nil
}

// SelectNegativeTTL builds a TTL selector giving "not found" results the
// shorter NegativeTTL and everything else the configured default.
func SelectNegativeTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeTTL
		}
		return configuredTTL()
	}
}
