// Package batch runs the scheduled enrichment pass: select rows still
// missing metadata, collapse them into one group per distinct work, resolve
// each group once against the provider chain, and propagate the result to
// every row sharing the group's normalized key.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/placeholder"
	"github.com/mlahti/bookfetch/internal/store"
)

const (
	// DefaultBatchSize is the group cap when the caller passes zero.
	DefaultBatchSize = 100
	// MaxBatchSize is the hard ceiling; the primary provider's rate budget
	// assumes a pass never exceeds it.
	MaxBatchSize = 150
	// interGroupDelay paces provider calls between groups. The primary
	// provider allows 3 requests per second.
	interGroupDelay = 350 * time.Millisecond
	// maxReportedErrors caps per-group failure messages in the report.
	maxReportedErrors = 5
)

// Resolver is the slice of the resolution pipeline the job drives.
type Resolver interface {
	Resolve(ctx context.Context, title, author string) *book.Metadata
	LookupCovers(ctx context.Context, title, author string) *string
}

// BookStore is the slice of the book store the job reads and writes.
type BookStore interface {
	SelectNeedingEnrichment(ctx context.Context, refreshCovers bool, limit int) ([]store.Row, error)
	PropagateMetadata(ctx context.Context, key string, meta *book.Metadata, refreshCovers bool) (rowsUpdated, coversUpdated int64, err error)
	CountNeedingEnrichment(ctx context.Context, refreshCovers bool) (int, error)
}

// Report summarizes one enrichment pass.
type Report struct {
	Processed     int      `json:"processed"`
	Updated       int      `json:"updated"`
	CoversUpdated int      `json:"coversUpdated"`
	NoDataFound   int      `json:"noDataFound"`
	Remaining     int      `json:"remaining"`
	Errors        []string `json:"errors,omitempty"`
}

// Job is a single-flight batch enrichment runner.
type Job struct {
	store    BookStore
	resolver Resolver
	delay    time.Duration
	sleep    func(time.Duration)
}

// Option configures a Job.
type Option func(*Job)

// WithDelay overrides the pacing delay between groups.
func WithDelay(d time.Duration) Option {
	return func(j *Job) { j.delay = d }
}

// WithSleeper replaces the pacing sleep, letting tests skip real waits.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(j *Job) { j.sleep = sleep }
}

// New creates a batch job over the given store and resolver.
func New(st BookStore, r Resolver, opts ...Option) *Job {
	j := &Job{
		store:    st,
		resolver: r,
		delay:    interGroupDelay,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type group struct {
	key    string
	title  string
	author string
	rows   int
}

// Run executes one enrichment pass and reports what it did. Per-group
// failures are recorded in the report, never returned as errors; the pass
// is idempotent because propagation only fills empty fields.
func (j *Job) Run(ctx context.Context, batchSize int, refreshCovers bool) (*Report, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	// The budget caps distinct works, not rows: a group with many duplicate
	// rows still costs one lookup, so selection is uncapped and the limit
	// is applied after grouping.
	rows, err := j.store.SelectNeedingEnrichment(ctx, refreshCovers, 0)
	if err != nil {
		return nil, fmt.Errorf("select rows for enrichment: %w", err)
	}

	groups := buildGroups(rows)
	if len(groups) > batchSize {
		groups = groups[:batchSize]
	}
	slog.Info("Starting enrichment pass",
		"rows", len(rows),
		"groups", len(groups),
		"refreshCovers", refreshCovers)

	report := &Report{}
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			slog.Warn("Enrichment pass interrupted", "completed", i, "total", len(groups))
			break
		}

		meta := j.resolver.Resolve(ctx, g.title, g.author)
		if refreshCovers && !hasUsableCover(meta) {
			if cover := j.resolver.LookupCovers(ctx, g.title, g.author); cover != nil {
				meta.CoverURL = cover
			}
		}

		// Propagate even empty results so the group is marked attempted
		// and the next pass moves on to fresh rows.
		rowsUpdated, coversUpdated, err := j.store.PropagateMetadata(ctx, g.key, meta, refreshCovers)
		if err != nil {
			slog.Warn("Propagation failed", "title", g.title, "author", g.author, "error", err)
			if len(report.Errors) < maxReportedErrors {
				report.Errors = append(report.Errors, fmt.Sprintf("%s / %s: %v", g.title, g.author, err))
			}
			continue
		}

		report.Processed++
		if meta.Empty() {
			report.NoDataFound++
		} else {
			report.Updated += int(rowsUpdated)
		}
		report.CoversUpdated += int(coversUpdated)

		slog.Debug("Group enriched",
			"title", g.title,
			"author", g.author,
			"source", meta.Source,
			"rowsUpdated", rowsUpdated)

		if i < len(groups)-1 {
			j.sleep(j.delay)
		}
	}

	remaining, err := j.store.CountNeedingEnrichment(ctx, refreshCovers)
	if err != nil {
		slog.Warn("Could not count remaining rows", "error", err)
	} else {
		report.Remaining = remaining
	}

	slog.Info("Enrichment pass complete",
		"processed", report.Processed,
		"updated", report.Updated,
		"coversUpdated", report.CoversUpdated,
		"noDataFound", report.NoDataFound,
		"remaining", report.Remaining,
		"errors", len(report.Errors))
	return report, nil
}

// buildGroups collapses rows into one group per normalized key, keeping the
// first row's title and author as the lookup pair.
func buildGroups(rows []store.Row) []group {
	index := make(map[string]int)
	var groups []group
	for _, row := range rows {
		if i, ok := index[row.NormalizedKey]; ok {
			groups[i].rows++
			continue
		}
		index[row.NormalizedKey] = len(groups)
		groups = append(groups, group{
			key:    row.NormalizedKey,
			title:  row.Title,
			author: row.Author,
			rows:   1,
		})
	}
	return groups
}

func hasUsableCover(meta *book.Metadata) bool {
	return meta.CoverURL != nil && !placeholder.IsLikelyURL(*meta.CoverURL)
}
