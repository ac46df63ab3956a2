package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/internal/domain/ranking"
	"github.com/okian/minirank/internal/domain/rating"
	"github.com/okian/minirank/pkg/logger"
	"github.com/okian/minirank/pkg/metrics"
)

// ResultSource returns the stored results of one day in any order.
type ResultSource interface {
	ResultsOn(ctx context.Context, date time.Time) ([]model.DailyResult, error)
}

// DayReport describes the effect of one folded day.
type DayReport struct {
	Date       time.Time
	Players    int
	Winners    []string
	Duplicates int
}

// Skipped reports whether the day had no valid results.
func (d DayReport) Skipped() bool { return d.Players == 0 }

// Report summarizes a run.
type Report struct {
	Start      time.Time
	End        time.Time
	Days       int // days with at least one result
	Skipped    int // days without results
	Ratings    int // player-days rated
	Duplicates int
}

// Aggregator folds days into an Accumulator in ascending date order.
type Aggregator struct {
	source ResultSource
	rater  rating.Rater
	window string
	logger logger.Logger
}

// New constructs an Aggregator reading from source and rating with rater.
func New(source ResultSource, rater rating.Rater, opts ...Option) *Aggregator {
	g := &Aggregator{
		source: source,
		rater:  rater,
		window: "adhoc",
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run folds every day of [start, end] into a copy of seed and returns it.
// seed is left untouched, so a failed or cancelled run has no effect and
// the caller simply runs again from the same seed.
func (g *Aggregator) Run(ctx context.Context, seed *Accumulator, start, end time.Time) (*Accumulator, Report, error) {
	start, end = model.Day(start), model.Day(end)
	if start.After(end) {
		return nil, Report{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, model.FormatDay(start), model.FormatDay(end))
	}
	if seed == nil {
		seed = NewAccumulator()
	}
	if through, ok := seed.Through(); ok && !start.After(through) {
		return nil, Report{}, fmt.Errorf("%w: seed covers %s, run starts %s", ErrOverlap, model.FormatDay(through), model.FormatDay(start))
	}

	acc := seed.Clone()
	report := Report{Start: start, End: end}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, Report{}, fmt.Errorf("fold %s interrupted at %s: %w", g.window, model.FormatDay(day), err)
		}
		results, err := g.source.ResultsOn(ctx, day)
		if err != nil {
			metrics.RecordErrorByComponent("ledger", "source")
			return nil, Report{}, fmt.Errorf("results for %s: %w", model.FormatDay(day), err)
		}

		dr, err := g.Step(acc, day, ranking.Build(results))
		if err != nil {
			metrics.RecordErrorByComponent("ledger", "rating")
			return nil, Report{}, err
		}
		acc.through = day

		if dr.Duplicates > 0 {
			report.Duplicates += dr.Duplicates
			metrics.RecordDuplicateResults("store", dr.Duplicates)
		}
		if dr.Skipped() {
			report.Skipped++
			metrics.RecordDaySkipped(g.window)
			continue
		}
		report.Days++
		report.Ratings += dr.Players
		metrics.RecordDayProcessed(g.window)
		metrics.RecordRatingUpdates(g.window, dr.Players)
	}

	g.logger.Debug(ctx, "window folded",
		logger.String("window", g.window),
		logger.Date("start", start),
		logger.Date("end", end),
		logger.Int("days", report.Days),
		logger.Int("skipped", report.Skipped),
		logger.Int("players", acc.Len()),
	)
	return acc, report, nil
}

// Step applies one day's board to acc: every entry is credited a game, its
// time, and a win when ranked first, then all entries are re-rated together.
// Players absent from the board are untouched and an empty board is a no-op.
func (g *Aggregator) Step(acc *Accumulator, date time.Time, board ranking.Board) (DayReport, error) {
	dr := DayReport{Date: model.Day(date), Duplicates: board.Duplicates}
	if board.Empty() {
		return dr, nil
	}

	priors := make([]model.RatingState, len(board.Entries))
	for i, e := range board.Entries {
		priors[i] = acc.Rating(e.Username, g.rater.Initial(e.Username))
	}
	posteriors, err := g.rater.Rate(priors, board.Ranks())
	if err != nil {
		return DayReport{}, fmt.Errorf("rate %s: %w", model.FormatDay(date), err)
	}

	for i, e := range board.Entries {
		t := acc.player(e.Username, priors[i])
		t.played++
		t.totalTime += float64(e.Time)
		if e.Rank == 1 {
			t.wins++
		}
		t.mu, t.sigma = posteriors[i].Mu, posteriors[i].Sigma
	}
	dr.Players = len(board.Entries)
	dr.Winners = board.Winners()
	return dr, nil
}
