// Package repository persists daily results and per-window aggregate rows.
package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/pkg/metrics"
)

// ResultStore is the append-only history of daily solve times.
type ResultStore interface {
	// Append stores results and returns how many were new. A result for an
	// existing (date, username) pair is ignored.
	Append(ctx context.Context, results []model.DailyResult) (int, error)

	// ResultsOn returns the results of one day ordered by username.
	ResultsOn(ctx context.Context, date time.Time) ([]model.DailyResult, error)

	// DateBounds returns the first and last day with stored results.
	// ok is false when the store is empty.
	DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error)

	// PlayerResults returns every result of username, fastest first and
	// ties by date.
	PlayerResults(ctx context.Context, username string) ([]model.DailyResult, error)

	// HeadToHead returns the days both players solved, oldest first.
	HeadToHead(ctx context.Context, a, b string) ([]model.Matchup, error)

	// Fastest returns the limit fastest results overall, ties by date then
	// username. limit must be positive.
	Fastest(ctx context.Context, limit int) ([]model.DailyResult, error)
}

// RatingStore holds the current aggregate rows of each window.
type RatingStore interface {
	// Rows returns the rows of a window, best elo first.
	Rows(ctx context.Context, window model.Window) ([]model.AggregateRow, error)

	// Watermark returns the last day folded into the stored rows.
	Watermark(ctx context.Context, window model.Window) (time.Time, bool, error)

	// Replace atomically swaps every row of a window and its watermark.
	Replace(ctx context.Context, window model.Window, rows []model.AggregateRow, through time.Time) error
}

// sortRows orders rows by elo desc then username.
func sortRows(rows []model.AggregateRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Elo != rows[j].Elo {
			return rows[i].Elo > rows[j].Elo
		}
		return rows[i].Username < rows[j].Username
	})
}

func sortResults(results []model.DailyResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Username < results[j].Username })
}

// sortByTime orders results fastest first, then by date, then by username.
func sortByTime(results []model.DailyResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Username < b.Username
	})
}

func validLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return nil
}

// observe records the latency of a store operation started at start.
func observe(backend, operation string, start time.Time) {
	metrics.ObserveStoreOperation(backend, operation, time.Since(start))
}

func validWindow(w model.Window) error {
	if _, err := model.ParseWindow(string(w)); err != nil {
		return ErrInvalidWindow
	}
	return nil
}
