// Package stats derives display statistics from stored results: head-to-head
// records and per-player summaries. Nothing here feeds the ratings.
package stats

import (
	"fmt"
	"time"

	"github.com/okian/minirank/internal/domain/model"
)

// TopTimesPerPlayer is how many personal bests a summary keeps.
const TopTimesPerPlayer = 5

// Rivalry is the record between two players over the days both solved.
type Rivalry struct {
	PlayerA string
	PlayerB string
	WinsA   int
	WinsB   int
	Ties    int
	Played  int
	// AverageDiff is the mean of TimeA - TimeB in seconds; negative means
	// PlayerA is faster on average. Zero when Played is zero.
	AverageDiff float64
}

// Leader returns the player with more wins, or "" when level.
func (r Rivalry) Leader() string {
	switch {
	case r.WinsA > r.WinsB:
		return r.PlayerA
	case r.WinsB > r.WinsA:
		return r.PlayerB
	default:
		return ""
	}
}

// HeadToHead folds the shared days of a and b into a Rivalry.
func HeadToHead(a, b string, matchups []model.Matchup) (Rivalry, error) {
	if a == b {
		return Rivalry{}, fmt.Errorf("%w: %q", ErrSamePlayer, a)
	}
	r := Rivalry{PlayerA: a, PlayerB: b, Played: len(matchups)}
	diff := 0
	for _, m := range matchups {
		switch {
		case m.TimeA < m.TimeB:
			r.WinsA++
		case m.TimeB < m.TimeA:
			r.WinsB++
		default:
			r.Ties++
		}
		diff += m.TimeA - m.TimeB
	}
	if r.Played > 0 {
		r.AverageDiff = float64(diff) / float64(r.Played)
	}
	return r, nil
}

// PlayerSummary describes one player's solve history.
type PlayerSummary struct {
	Username string
	Played   int
	Fastest  model.DailyResult
	// TopTimes holds up to TopTimesPerPlayer fastest results.
	TopTimes []model.DailyResult
	// AverageTime excludes the themed day, whose larger grid skews times.
	// Zero when every result falls on a themed day.
	AverageTime float64
	ThemedDays  int
	FirstPlayed time.Time
	LastPlayed  time.Time
}

// Summarize builds a summary from results ordered fastest first, as
// ResultStore.PlayerResults returns them.
func Summarize(username string, results []model.DailyResult) (PlayerSummary, error) {
	if len(results) == 0 {
		return PlayerSummary{}, fmt.Errorf("%w: %q", ErrNoResults, username)
	}
	s := PlayerSummary{
		Username:    username,
		Played:      len(results),
		Fastest:     results[0],
		FirstPlayed: results[0].Date,
		LastPlayed:  results[0].Date,
	}
	n := min(TopTimesPerPlayer, len(results))
	s.TopTimes = append([]model.DailyResult(nil), results[:n]...)

	total, counted := 0, 0
	for _, r := range results {
		if r.Date.Before(s.FirstPlayed) {
			s.FirstPlayed = r.Date
		}
		if r.Date.After(s.LastPlayed) {
			s.LastPlayed = r.Date
		}
		if model.IsThemedDay(r.Date) {
			s.ThemedDays++
			continue
		}
		total += r.Time
		counted++
	}
	if counted > 0 {
		s.AverageTime = float64(total) / float64(counted)
	}
	return s, nil
}
