// Package normalize turns a raw daily feed into valid daily results.
package normalize

import (
	"context"
	"strings"
	"time"

	"github.com/okian/minirank/internal/domain/dedupe"
	"github.com/okian/minirank/internal/domain/model"
)

// Stats counts how feed entries were classified.
type Stats struct {
	Accepted   int
	Incomplete int // no score, zero seconds, or no name
	Duplicate  int // same player listed twice in one feed
}

// Dropped returns the number of entries that did not become results.
func (s Stats) Dropped() int { return s.Incomplete + s.Duplicate }

// Normalize filters entries for date into results with a positive solve time.
// Incomplete entries are dropped silently; a player listed twice keeps the
// first occurrence.
func Normalize(ctx context.Context, date time.Time, entries []model.FeedEntry) ([]model.DailyResult, Stats) {
	day := model.Day(date)
	seen := dedupe.NewInMemoryDeduper()

	var stats Stats
	out := make([]model.DailyResult, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" || e.Score == nil || e.Score.SecondsSpentSolving <= 0 {
			stats.Incomplete++
			continue
		}
		if seen.SeenAndRecord(ctx, dedupe.Key(day, name)) {
			stats.Duplicate++
			continue
		}
		out = append(out, model.DailyResult{
			Date:     day,
			Username: name,
			Time:     e.Score.SecondsSpentSolving,
		})
	}
	stats.Accepted = len(out)
	return out, stats
}
