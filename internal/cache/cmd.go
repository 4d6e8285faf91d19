package cache

import (
	"fmt"
	"log/slog"
)

// providerTables maps CLI source names to cache table names.
var providerTables = map[string]string{
	"isbndb":      "isbndb_cache",
	"googlebooks": "googlebooks_cache",
	"openlibrary": "openlibrary_cache",
}

// ClearCmd empties the cache for one provider, forcing fresh lookups.
type ClearCmd struct {
	Source string `arg:"" help:"Cache source to clear: isbndb, googlebooks, openlibrary" required:""`
}

func (c *ClearCmd) Run() error {
	table, ok := providerTables[c.Source]
	if !ok {
		return fmt.Errorf("invalid cache source %q; valid sources are: isbndb, googlebooks, openlibrary", c.Source)
	}

	db, err := Global()
	if err != nil {
		return fmt.Errorf("opening cache database: %w", err)
	}

	deleted, err := db.Invalidate(table)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	slog.Info("Cache cleared", "source", c.Source, "rows_deleted", deleted)
	return nil
}

// StatsCmd prints per-provider cache entry counts.
type StatsCmd struct{}

func (s *StatsCmd) Run() error {
	db, err := Global()
	if err != nil {
		return fmt.Errorf("opening cache database: %w", err)
	}

	for _, source := range []string{"isbndb", "googlebooks", "openlibrary"} {
		count, err := db.Count(providerTables[source])
		if err != nil {
			return fmt.Errorf("counting %s cache: %w", source, err)
		}
		fmt.Printf("%-12s %d entries\n", source, count)
	}
	return nil
}
