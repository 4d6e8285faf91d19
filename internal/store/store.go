// Package store is the persistent book store the engine consults for
// which records need enrichment and writes results back to. The engine
// never creates or deletes book rows on its own behalf; it only updates
// metadata columns on rows the surrounding application inserted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/normalize"
	"github.com/mlahti/bookfetch/internal/placeholder"
)

// Schema creates the books table. Rows belong to one group iff their
// normalized_key matches; attempted_at is the per-row enrichment marker.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	normalized_key TEXT NOT NULL,
	page_count INTEGER,
	isbn TEXT,
	description TEXT,
	categories TEXT,
	cover_url TEXT,
	source TEXT,
	attempted_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_books_normalized_key ON books(normalized_key);
CREATE INDEX IF NOT EXISTS idx_books_attempted_at ON books(attempted_at);
`

// Row is one stored book record.
type Row struct {
	ID            int64
	Title         string
	Author        string
	NormalizedKey string
	PageCount     *int
	ISBN          *string
	Description   *string
	Categories    []string
	CoverURL      *string
	Source        string
	AttemptedAt   *time.Time
}

// HasCover reports whether the row carries a non-placeholder cover URL.
func (r *Row) HasCover() bool {
	return r.CoverURL != nil && !placeholder.IsLikelyURL(*r.CoverURL)
}

// richness counts filled metadata fields, used to pick the better of two
// duplicate rows during cached search.
func (r *Row) richness() int {
	n := 0
	if r.PageCount != nil {
		n++
	}
	if r.ISBN != nil {
		n++
	}
	if r.Description != nil {
		n++
	}
	if len(r.Categories) > 0 {
		n++
	}
	if r.HasCover() {
		n++
	}
	return n
}

// Store wraps the SQLite connection for book rows.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the book database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening book database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to book database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating books table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds a book row, computing its group key. Exists for the
// surrounding application and for tests; enrichment itself never inserts.
func (s *Store) Insert(ctx context.Context, title, author string) (int64, error) {
	key := normalize.Key(title, author)
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO books (title, author, normalized_key) VALUES (?, ?, ?)",
		title, author, key)
	if err != nil {
		return 0, fmt.Errorf("inserting book: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}
	return id, nil
}

// coverMissingSQL matches rows whose cover is absent or matches a known
// placeholder URL shape. Kept coarse on purpose; Go-side checks refine it.
const coverMissingSQL = `(
	cover_url IS NULL OR cover_url = ''
	OR cover_url LIKE '%images.isbndb.com/covers/%'
	OR cover_url LIKE '%/images/no-cover%'
	OR (cover_url LIKE '%books.google.com/books/content%' AND cover_url NOT LIKE '%zoom=%')
)`

// SelectNeedingEnrichment returns rows awaiting work. With refreshCovers
// false that is rows never attempted; with true it additionally includes
// rows whose cover is missing or placeholder-shaped, regardless of
// attempted_at. limit <= 0 means no limit.
func (s *Store) SelectNeedingEnrichment(ctx context.Context, refreshCovers bool, limit int) ([]Row, error) {
	predicate := "attempted_at IS NULL"
	if refreshCovers {
		predicate = "attempted_at IS NULL OR " + coverMissingSQL
	}

	query := fmt.Sprintf("SELECT %s FROM books WHERE %s ORDER BY id", rowColumns, predicate)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting enrichment candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows)
}

// CountNeedingEnrichment returns the remaining backlog under the same
// predicate SelectNeedingEnrichment uses, so a cover-refresh pass reports
// the cover backlog rather than just never-attempted rows.
func (s *Store) CountNeedingEnrichment(ctx context.Context, refreshCovers bool) (int, error) {
	predicate := "attempted_at IS NULL"
	if refreshCovers {
		predicate = "attempted_at IS NULL OR " + coverMissingSQL
	}

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books WHERE "+predicate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting backlog: %w", err)
	}
	return n, nil
}

// GetByKey returns every row in a group.
func (s *Store) GetByKey(ctx context.Context, key string) ([]Row, error) {
	query := fmt.Sprintf("SELECT %s FROM books WHERE normalized_key = ? ORDER BY id", rowColumns)
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("selecting group: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows)
}

// PropagateMetadata writes resolved metadata to every row matching the
// group key: fill-only for metadata columns, unconditional for
// attempted_at. In refresh mode the cover may replace an empty,
// placeholder, or known-bad existing value; otherwise covers are
// fill-only like everything else. Returns rows reached and covers
// written. The whole write is one transaction, so a group is never left
// attempted-but-unwritten or vice versa.
func (s *Store) PropagateMetadata(ctx context.Context, key string, meta *book.Metadata, refreshCovers bool) (rowsUpdated, coversUpdated int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning propagation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if meta.CoverURL != nil && *meta.CoverURL != "" {
		coverPredicate := "(cover_url IS NULL OR cover_url = '')"
		if refreshCovers {
			coverPredicate = coverMissingSQL
		}
		result, err := tx.ExecContext(ctx,
			"UPDATE books SET cover_url = ? WHERE normalized_key = ? AND "+coverPredicate,
			*meta.CoverURL, key)
		if err != nil {
			return 0, 0, fmt.Errorf("propagating cover: %w", err)
		}
		coversUpdated, err = result.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("reading cover update count: %w", err)
		}
	}

	var categories *string
	if len(meta.Categories) > 0 {
		encoded, err := json.Marshal(meta.Categories)
		if err != nil {
			return 0, 0, fmt.Errorf("encoding categories: %w", err)
		}
		text := string(encoded)
		categories = &text
	}

	var source *string
	if meta.Source != "" {
		source = &meta.Source
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE books SET
			page_count = COALESCE(page_count, ?),
			isbn = CASE WHEN isbn IS NULL OR isbn = '' THEN COALESCE(?, isbn) ELSE isbn END,
			description = CASE WHEN description IS NULL OR description = '' THEN COALESCE(?, description) ELSE description END,
			categories = CASE WHEN categories IS NULL OR categories = '' THEN COALESCE(?, categories) ELSE categories END,
			source = CASE WHEN source IS NULL OR source = '' THEN COALESCE(?, source) ELSE source END,
			attempted_at = ?
		WHERE normalized_key = ?`,
		nullableInt(meta.PageCount), nullableStr(meta.ISBN), nullableStr(meta.Description),
		nullableStrPtr(categories), nullableStrPtr(source), meta.AttemptedAt.UTC(), key)
	if err != nil {
		return 0, 0, fmt.Errorf("propagating metadata: %w", err)
	}
	rowsUpdated, err = result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("reading update count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing propagation: %w", err)
	}
	return rowsUpdated, coversUpdated, nil
}

// SearchCached runs the fuzzy local lookup backing cache-first search:
// cover-bearing rows whose title or author contains the query, one row
// per group, preferring the richer of duplicates.
func (s *Store) SearchCached(ctx context.Context, query string, limit int) ([]Row, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	sqlQuery := fmt.Sprintf(`
		SELECT %s FROM books
		WHERE cover_url IS NOT NULL AND cover_url != ''
		AND (lower(title) LIKE ? OR lower(author) LIKE ?)
		ORDER BY id`, rowColumns)

	rows, err := s.db.QueryContext(ctx, sqlQuery, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("searching cached books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	all, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	// One row per group; when metadata differs, keep the richer one.
	byKey := make(map[string]int)
	deduped := make([]Row, 0, len(all))
	for _, row := range all {
		if idx, seen := byKey[row.NormalizedKey]; seen {
			if row.richness() > deduped[idx].richness() {
				deduped[idx] = row
			}
			continue
		}
		byKey[row.NormalizedKey] = len(deduped)
		deduped = append(deduped, row)
	}

	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped, nil
}

const rowColumns = "id, title, author, normalized_key, page_count, isbn, description, categories, cover_url, source, attempted_at"

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var (
			r           Row
			pageCount   sql.NullInt64
			isbn        sql.NullString
			description sql.NullString
			categories  sql.NullString
			coverURL    sql.NullString
			source      sql.NullString
			attemptedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Author, &r.NormalizedKey,
			&pageCount, &isbn, &description, &categories, &coverURL, &source, &attemptedAt); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		if pageCount.Valid {
			n := int(pageCount.Int64)
			r.PageCount = &n
		}
		if isbn.Valid && isbn.String != "" {
			r.ISBN = &isbn.String
		}
		if description.Valid && description.String != "" {
			r.Description = &description.String
		}
		if categories.Valid && categories.String != "" {
			if err := json.Unmarshal([]byte(categories.String), &r.Categories); err != nil {
				return nil, fmt.Errorf("decoding categories for book %d: %w", r.ID, err)
			}
		}
		if coverURL.Valid && coverURL.String != "" {
			r.CoverURL = &coverURL.String
		}
		if source.Valid {
			r.Source = source.String
		}
		if attemptedAt.Valid {
			t := attemptedAt.Time
			r.AttemptedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating book rows: %w", err)
	}
	return out, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableStr(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}

func nullableStrPtr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
