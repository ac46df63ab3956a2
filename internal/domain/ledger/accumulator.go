// Package ledger folds ranked daily results into per-player ratings and
// statistics over a window of days.
package ledger

import (
	"sort"
	"time"

	"github.com/okian/minirank/internal/domain/model"
)

// tally is one player's running state inside a window.
type tally struct {
	mu        float64
	sigma     float64
	wins      int
	played    int
	totalTime float64
}

// Accumulator is the state of one window run. It is owned by a single run
// and never shared between windows.
type Accumulator struct {
	players map[string]*tally
	through time.Time // last day folded in, zero when nothing was folded
}

// NewAccumulator returns an empty accumulator for a cold run.
func NewAccumulator() *Accumulator {
	return &Accumulator{players: make(map[string]*tally)}
}

// SeedAccumulator rebuilds an accumulator from stored rows for a warm run.
// through is the last day those rows cover; zero means unknown.
func SeedAccumulator(rows []model.AggregateRow, through time.Time) *Accumulator {
	a := NewAccumulator()
	for _, r := range rows {
		a.players[r.Username] = &tally{
			mu:        r.Mu,
			sigma:     r.Sigma,
			wins:      r.NumWins,
			played:    r.NumPlayed,
			totalTime: r.TotalTime(),
		}
	}
	if !through.IsZero() {
		a.through = model.Day(through)
	}
	return a
}

// Clone returns a deep copy.
func (a *Accumulator) Clone() *Accumulator {
	c := &Accumulator{players: make(map[string]*tally, len(a.players)), through: a.through}
	for name, t := range a.players {
		cp := *t
		c.players[name] = &cp
	}
	return c
}

// Len returns the number of tracked players.
func (a *Accumulator) Len() int { return len(a.players) }

// Through returns the last folded day.
func (a *Accumulator) Through() (time.Time, bool) {
	return a.through, !a.through.IsZero()
}

// Rating returns the player's current belief, or initial when unknown.
func (a *Accumulator) Rating(username string, initial model.RatingState) model.RatingState {
	t, ok := a.players[username]
	if !ok {
		return initial
	}
	return model.RatingState{Username: username, Mu: t.mu, Sigma: t.sigma}
}

func (a *Accumulator) player(username string, initial model.RatingState) *tally {
	t, ok := a.players[username]
	if !ok {
		t = &tally{mu: initial.Mu, sigma: initial.Sigma}
		a.players[username] = t
	}
	return t
}

// Rows projects every player with at least one game, best elo first and
// ties broken by username.
func (a *Accumulator) Rows() ([]model.AggregateRow, error) {
	rows := make([]model.AggregateRow, 0, len(a.players))
	for name, t := range a.players {
		if t.played == 0 {
			continue
		}
		row, err := Project(name, t.mu, t.sigma, t.wins, t.played, t.totalTime)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Elo != rows[j].Elo {
			return rows[i].Elo > rows[j].Elo
		}
		return rows[i].Username < rows[j].Username
	})
	return rows, nil
}
