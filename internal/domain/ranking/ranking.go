// Package ranking builds a day's leaderboard from its solve times.
package ranking

import (
	"sort"

	"github.com/okian/minirank/internal/domain/model"
)

// Board is a ranked daily leaderboard.
type Board struct {
	Entries []model.LeaderboardEntry
	// Duplicates counts extra rows for a player already on the board.
	Duplicates int
}

// Build ranks one day's results. Faster times rank earlier; equal times
// share a rank and the next distinct time gets the following rank (1, 1, 2).
// If a player appears more than once only their fastest time is kept.
func Build(results []model.DailyResult) Board {
	best := make(map[string]int, len(results))
	dups := 0
	for _, r := range results {
		if r.Time <= 0 {
			continue
		}
		if prev, ok := best[r.Username]; ok {
			dups++
			if r.Time >= prev {
				continue
			}
		}
		best[r.Username] = r.Time
	}

	entries := make([]model.LeaderboardEntry, 0, len(best))
	for name, t := range best {
		entries = append(entries, model.LeaderboardEntry{Username: name, Time: t})
	}
	sortEntries(entries)
	assignRanksWithTies(entries)
	return Board{Entries: entries, Duplicates: dups}
}

// Ranks returns the zero-based ranks of the board in entry order.
func (b Board) Ranks() []int {
	ranks := make([]int, len(b.Entries))
	for i, e := range b.Entries {
		ranks[i] = e.Rank - 1
	}
	return ranks
}

// Winners returns the players holding rank 1.
func (b Board) Winners() []string {
	var out []string
	for _, e := range b.Entries {
		if e.Rank != 1 {
			break
		}
		out = append(out, e.Username)
	}
	return out
}

// Empty reports whether nobody has a valid result on the board.
func (b Board) Empty() bool { return len(b.Entries) == 0 }

// sortEntries orders by time ascending, then username ascending.
func sortEntries(entries []model.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Time != entries[j].Time {
			return entries[i].Time < entries[j].Time
		}
		return entries[i].Username < entries[j].Username
	})
}

// assignRanksWithTies assigns dense ranks over sorted entries.
func assignRanksWithTies(entries []model.LeaderboardEntry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Time != entries[i-1].Time {
			rank++
		}
		entries[i].Rank = rank
	}
}
