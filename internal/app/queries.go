package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/internal/domain/ranking"
	"github.com/okian/minirank/internal/domain/stats"
)

// DefaultTopTimes is how many results TopTimes returns when asked for none.
const DefaultTopTimes = 10

// History returns the ranked board of a past day.
func (s *Service) History(ctx context.Context, date time.Time) (ranking.Board, error) {
	date = model.Day(date)
	results, err := s.results.ResultsOn(ctx, date)
	if err != nil {
		return ranking.Board{}, fmt.Errorf("read %s results: %w", model.FormatDay(date), err)
	}
	return ranking.Build(results), nil
}

// HeadToHead compares two players over the days both solved.
func (s *Service) HeadToHead(ctx context.Context, a, b string) (stats.Rivalry, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return stats.Rivalry{}, fmt.Errorf("%w: %q", stats.ErrSamePlayer, a)
	}
	matchups, err := s.results.HeadToHead(ctx, a, b)
	if err != nil {
		return stats.Rivalry{}, fmt.Errorf("read %s vs %s: %w", a, b, err)
	}
	return stats.HeadToHead(a, b, matchups)
}

// Player summarizes one player's results.
func (s *Service) Player(ctx context.Context, username string) (stats.PlayerSummary, error) {
	username = strings.TrimSpace(username)
	results, err := s.results.PlayerResults(ctx, username)
	if err != nil {
		return stats.PlayerSummary{}, fmt.Errorf("read results of %s: %w", username, err)
	}
	return stats.Summarize(username, results)
}

// TopTimes returns the n fastest results ever recorded.
func (s *Service) TopTimes(ctx context.Context, n int) ([]model.DailyResult, error) {
	if n == 0 {
		n = DefaultTopTimes
	}
	results, err := s.results.Fastest(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("read top %d times: %w", n, err)
	}
	return results, nil
}
