package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/minirank/internal/domain/model"
)

const backendMemory = "memory"

// MemoryStore keeps results and ratings in process memory. It implements
// both ResultStore and RatingStore and is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	results    map[string]map[string]model.DailyResult // day -> username -> result
	first      time.Time
	last       time.Time
	ratings    map[model.Window][]model.AggregateRow
	watermarks map[model.Window]time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:    make(map[string]map[string]model.DailyResult),
		ratings:    make(map[model.Window][]model.AggregateRow),
		watermarks: make(map[model.Window]time.Time),
	}
}

// Append implements ResultStore.
func (s *MemoryStore) Append(ctx context.Context, results []model.DailyResult) (int, error) {
	defer observe(backendMemory, "append", time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, r := range results {
		if r.Username == "" || r.Time <= 0 {
			return 0, fmt.Errorf("%w: %q at %s", ErrInvalidResult, r.Username, model.FormatDay(r.Date))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, r := range results {
		r.Date = model.Day(r.Date)
		key := model.FormatDay(r.Date)
		day, ok := s.results[key]
		if !ok {
			day = make(map[string]model.DailyResult)
			s.results[key] = day
		}
		if _, dup := day[r.Username]; dup {
			continue
		}
		day[r.Username] = r
		inserted++
		if s.first.IsZero() || r.Date.Before(s.first) {
			s.first = r.Date
		}
		if r.Date.After(s.last) {
			s.last = r.Date
		}
	}
	return inserted, nil
}

// ResultsOn implements ResultStore.
func (s *MemoryStore) ResultsOn(ctx context.Context, date time.Time) ([]model.DailyResult, error) {
	defer observe(backendMemory, "results_on", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	day := s.results[model.FormatDay(date)]
	out := make([]model.DailyResult, 0, len(day))
	for _, r := range day {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sortResults(out)
	return out, nil
}

// DateBounds implements ResultStore.
func (s *MemoryStore) DateBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.first, s.last, !s.first.IsZero(), nil
}

// Rows implements RatingStore.
func (s *MemoryStore) Rows(ctx context.Context, window model.Window) ([]model.AggregateRow, error) {
	defer observe(backendMemory, "rows", time.Now())
	if err := validWindow(window); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AggregateRow(nil), s.ratings[window]...), nil
}

// Watermark implements RatingStore.
func (s *MemoryStore) Watermark(ctx context.Context, window model.Window) (time.Time, bool, error) {
	if err := validWindow(window); err != nil {
		return time.Time{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.watermarks[window]
	return t, ok, nil
}

// Replace implements RatingStore.
func (s *MemoryStore) Replace(ctx context.Context, window model.Window, rows []model.AggregateRow, through time.Time) error {
	defer observe(backendMemory, "replace", time.Now())
	if err := validWindow(window); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]model.AggregateRow(nil), rows...)
	sortRows(cp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[window] = cp
	if through.IsZero() {
		delete(s.watermarks, window)
	} else {
		s.watermarks[window] = model.Day(through)
	}
	return nil
}

// PlayerResults implements ResultStore.
func (s *MemoryStore) PlayerResults(ctx context.Context, username string) ([]model.DailyResult, error) {
	defer observe(backendMemory, "player_results", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.DailyResult
	for _, day := range s.results {
		if r, ok := day[username]; ok {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sortByTime(out)
	return out, nil
}

// HeadToHead implements ResultStore.
func (s *MemoryStore) HeadToHead(ctx context.Context, a, b string) ([]model.Matchup, error) {
	defer observe(backendMemory, "head_to_head", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.Matchup
	for _, day := range s.results {
		ra, okA := day[a]
		rb, okB := day[b]
		if okA && okB {
			out = append(out, model.Matchup{Date: ra.Date, TimeA: ra.Time, TimeB: rb.Time})
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Fastest implements ResultStore.
func (s *MemoryStore) Fastest(ctx context.Context, limit int) ([]model.DailyResult, error) {
	defer observe(backendMemory, "fastest", time.Now())
	if err := validLimit(limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var all []model.DailyResult
	for _, day := range s.results {
		for _, r := range day {
			all = append(all, r)
		}
	}
	s.mu.RUnlock()
	sortByTime(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
