// Package service wires the feed, the stores and the rating ledger into the
// daily update job.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/minirank/internal/adapters/feed"
	"github.com/okian/minirank/internal/adapters/repository"
	"github.com/okian/minirank/internal/domain/ledger"
	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/internal/domain/normalize"
	"github.com/okian/minirank/internal/domain/rating"
	"github.com/okian/minirank/pkg/logger"
	"github.com/okian/minirank/pkg/metrics"
)

// Seeding modes of a window run.
const (
	ModeCold     = "cold"
	ModeWarm     = "warm"
	ModeUpToDate = "up_to_date"
)

// IngestReport describes one ingested day.
type IngestReport struct {
	Date     time.Time
	Stats    normalize.Stats
	Inserted int
}

// RecomputeReport describes one window run.
type RecomputeReport struct {
	Window   model.Window
	Mode     string
	Start    time.Time
	End      time.Time
	Players  int
	Fold     ledger.Report
	Duration time.Duration
}

// UpdateReport describes a daily update.
type UpdateReport struct {
	RunID   string
	Ingest  IngestReport
	End     time.Time
	Windows []RecomputeReport
}

// Service runs ingestion and window recomputation.
type Service struct {
	results repository.ResultStore
	ratings repository.RatingStore
	feed    feed.Source
	rater   rating.Rater
	loc     *time.Location
	now     func() time.Time
	logger  logger.Logger
}

// New constructs a Service over the given stores.
func New(results repository.ResultStore, ratings repository.RatingStore, opts ...Option) *Service {
	s := &Service{
		results: results,
		ratings: ratings,
		rater:   rating.NewTrueSkill(),
		loc:     time.UTC,
		now:     time.Now,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current puzzle day in the configured timezone.
func (s *Service) Today() time.Time {
	return model.Day(s.now().In(s.loc))
}

// Ingest fetches the leaderboard of date, filters it and appends the results.
func (s *Service) Ingest(ctx context.Context, date time.Time) (IngestReport, error) {
	if s.feed == nil {
		return IngestReport{}, ErrNoFeed
	}
	date = model.Day(date)
	entries, err := s.feed.Fetch(ctx, date)
	if err != nil {
		metrics.RecordErrorByComponent("service", "feed")
		return IngestReport{}, fmt.Errorf("fetch %s: %w", model.FormatDay(date), err)
	}

	results, stats := normalize.Normalize(ctx, date, entries)
	metrics.RecordFeedEntries("accepted", stats.Accepted)
	metrics.RecordFeedEntries("incomplete", stats.Incomplete)
	metrics.RecordDuplicateResults("feed", stats.Duplicate)

	inserted, err := s.results.Append(ctx, results)
	if err != nil {
		metrics.RecordErrorByComponent("service", "store")
		return IngestReport{}, fmt.Errorf("store %s results: %w", model.FormatDay(date), err)
	}
	metrics.RecordResultsIngested(inserted)

	s.logger.Info(ctx, "results ingested",
		logger.Date("date", date),
		logger.Int("accepted", stats.Accepted),
		logger.Int("dropped", stats.Dropped()),
		logger.Int("inserted", inserted),
	)
	return IngestReport{Date: date, Stats: stats, Inserted: inserted}, nil
}

// Recompute rebuilds a window ending at end and replaces its stored rows.
// Trailing windows always start cold. The all-time window resumes from its
// stored rows and watermark unless cold is set or the watermark is missing
// or later than end.
func (s *Service) Recompute(ctx context.Context, window model.Window, end time.Time, cold bool) (RecomputeReport, error) {
	began := time.Now()
	end = model.Day(end)
	if end.After(s.Today()) {
		return RecomputeReport{}, fmt.Errorf("%w: %s", ErrFutureEndDate, model.FormatDay(end))
	}
	report := RecomputeReport{Window: window, Mode: ModeCold, End: end}
	log := s.logger.With(logger.String("window", window.String()))

	seed, start, err := s.plan(ctx, window, end, cold, &report)
	if err != nil {
		metrics.RecordErrorByComponent("service", "plan")
		return RecomputeReport{}, err
	}
	if report.Mode == ModeUpToDate {
		log.Info(ctx, "window up to date", logger.Date("end", end))
		return report, nil
	}
	report.Start = start

	agg := ledger.New(s.results, s.rater,
		ledger.WithWindow(window.String()),
		ledger.WithLogger(log),
	)
	acc, fold, err := agg.Run(ctx, seed, start, end)
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", window, err)
	}
	rows, err := acc.Rows()
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("project %s: %w", window, err)
	}
	if err := s.ratings.Replace(ctx, window, rows, end); err != nil {
		metrics.RecordErrorByComponent("service", "store")
		return RecomputeReport{}, fmt.Errorf("replace %s ratings: %w", window, err)
	}

	report.Fold = fold
	report.Players = len(rows)
	report.Duration = time.Since(began)
	metrics.UpdateWindowPlayers(window.String(), len(rows))
	metrics.RecordWindowRun(window.String(), report.Duration)
	metrics.MarkWindowSuccess(window.String(), s.now())

	log.Info(ctx, "window recomputed",
		logger.String("mode", report.Mode),
		logger.Date("start", start),
		logger.Date("end", end),
		logger.Int("players", len(rows)),
		logger.Int("days", fold.Days),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

// plan picks the seed and first day of a window run.
func (s *Service) plan(ctx context.Context, window model.Window, end time.Time, cold bool, report *RecomputeReport) (*ledger.Accumulator, time.Time, error) {
	if start, ok := window.Start(end); ok {
		return ledger.NewAccumulator(), start, nil
	}

	if !cold {
		through, ok, err := s.ratings.Watermark(ctx, window)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("read %s watermark: %w", window, err)
		}
		switch {
		case ok && through.Equal(end):
			report.Mode = ModeUpToDate
			report.Start = end.AddDate(0, 0, 1)
			return nil, time.Time{}, nil
		case ok && through.Before(end):
			rows, err := s.ratings.Rows(ctx, window)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("read %s rows: %w", window, err)
			}
			report.Mode = ModeWarm
			return ledger.SeedAccumulator(rows, through), through.AddDate(0, 0, 1), nil
		}
	}

	first, _, ok, err := s.results.DateBounds(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read result bounds: %w", err)
	}
	if !ok || first.After(end) {
		first = end
	}
	return ledger.NewAccumulator(), first, nil
}

// DailyUpdate ingests today's leaderboard then recomputes every window up to
// the latest stored day. A feed failure aborts before any window is touched.
func (s *Service) DailyUpdate(ctx context.Context) (UpdateReport, error) {
	runID := uuid.NewString()
	log := s.logger.With(logger.String("run_id", runID))
	report := UpdateReport{RunID: runID}

	today := s.Today()
	ing, err := s.Ingest(ctx, today)
	if err != nil {
		log.Error(ctx, "ingest failed", logger.Date("date", today), logger.Error(err))
		return report, err
	}
	report.Ingest = ing

	_, last, ok, err := s.results.DateBounds(ctx)
	if err != nil {
		return report, fmt.Errorf("read result bounds: %w", err)
	}
	if !ok {
		log.Warn(ctx, "no results stored, skipping recompute")
		return report, nil
	}
	report.End = last

	windows := make([]RecomputeReport, len(model.Windows))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range model.Windows {
		i, w := i, w
		g.Go(func() error {
			r, err := s.Recompute(gctx, w, last, false)
			if err != nil {
				return err
			}
			windows[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error(ctx, "recompute failed", logger.Error(err))
		return report, err
	}
	report.Windows = windows

	log.Info(ctx, "daily update complete", logger.Date("end", last), logger.Int("windows", len(windows)))
	return report, nil
}

// Standings returns the stored rows of a window.
func (s *Service) Standings(ctx context.Context, window model.Window) ([]model.AggregateRow, error) {
	rows, err := s.ratings.Rows(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("read %s standings: %w", window, err)
	}
	return rows, nil
}
