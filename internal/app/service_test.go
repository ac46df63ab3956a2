package service_test

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/okian/minirank/internal/adapters/feed"
	"github.com/okian/minirank/internal/adapters/repository"
	service "github.com/okian/minirank/internal/app"
	"github.com/okian/minirank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeFeed struct {
	days map[string][]model.FeedEntry
	err  error
}

func (f *fakeFeed) Fetch(_ context.Context, date time.Time) ([]model.FeedEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.days[model.FormatDay(date)], nil
}

func entry(name string, secs int) model.FeedEntry {
	return model.FeedEntry{Name: name, Score: &model.FeedScore{SecondsSpentSolving: secs}}
}

func day(n int) time.Time {
	return time.Date(2024, 3, n, 0, 0, 0, 0, time.UTC)
}

func newFeed() *fakeFeed {
	return &fakeFeed{days: map[string][]model.FeedEntry{
		"2024-03-01": {entry("alice", 45), entry("bob", 45), entry("carol", 60)},
		"2024-03-02": {entry("bob", 30), entry("carol", 41), {Name: "dave"}},
		"2024-03-04": {entry("alice", 70), entry("carol", 35), entry("carol", 20)},
		"2024-03-05": {entry("alice", 28), entry("bob", 33), entry("dave", 50)},
	}}
}

func ingestAll(ctx context.Context, svc *service.Service, upto int) {
	for d := 1; d <= upto; d++ {
		_, err := svc.Ingest(ctx, day(d))
		So(err, ShouldBeNil)
	}
}

func TestService_Ingest(t *testing.T) {
	Convey("Given a service with a feed", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := service.New(store, store, service.WithFeed(newFeed()))

		Convey("When a day with incomplete and duplicate entries is ingested", func() {
			report, err := svc.Ingest(ctx, day(4))
			So(err, ShouldBeNil)

			Convey("Then only the first valid entry per player is stored", func() {
				So(report.Stats.Accepted, ShouldEqual, 2)
				So(report.Stats.Duplicate, ShouldEqual, 1)
				So(report.Inserted, ShouldEqual, 2)
				got, err := store.ResultsOn(ctx, day(4))
				So(err, ShouldBeNil)
				So(got[1].Username, ShouldEqual, "carol")
				So(got[1].Time, ShouldEqual, 35)
			})

			Convey("Then ingesting again inserts nothing", func() {
				again, err := svc.Ingest(ctx, day(4))
				So(err, ShouldBeNil)
				So(again.Inserted, ShouldEqual, 0)
			})
		})

		Convey("When the feed fails", func() {
			boom := errors.New("boom")
			svc := service.New(store, store, service.WithFeed(&fakeFeed{err: boom}))
			_, err := svc.Ingest(ctx, day(1))
			So(errors.Is(err, boom), ShouldBeTrue)
		})

		Convey("When no feed is configured", func() {
			_, err := service.New(store, store).Ingest(ctx, day(1))
			So(errors.Is(err, service.ErrNoFeed), ShouldBeTrue)
		})
	})
}

func TestService_Recompute(t *testing.T) {
	Convey("Given five days of ingested results", t, func() {
		ctx := context.Background()
		clock := func() time.Time { return day(5).Add(20 * time.Hour) }
		store := repository.NewMemoryStore()
		svc := service.New(store, store, service.WithFeed(newFeed()), service.WithClock(clock))
		ingestAll(ctx, svc, 5)

		Convey("When the all-time window is rebuilt cold", func() {
			report, err := svc.Recompute(ctx, model.WindowAll, day(5), true)
			So(err, ShouldBeNil)
			So(report.Mode, ShouldEqual, service.ModeCold)
			So(report.Start, ShouldEqual, day(1))
			So(report.Players, ShouldEqual, 4)
			So(report.Fold.Skipped, ShouldEqual, 1)

			rows, err := svc.Standings(ctx, model.WindowAll)
			So(err, ShouldBeNil)
			through, ok, err := store.Watermark(ctx, model.WindowAll)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(through, ShouldEqual, day(5))

			Convey("Then running it again cold yields the same rows", func() {
				_, err := svc.Recompute(ctx, model.WindowAll, day(5), true)
				So(err, ShouldBeNil)
				again, err := svc.Standings(ctx, model.WindowAll)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, rows)
			})

			Convey("Then a warm run at the same end is a no-op", func() {
				report, err := svc.Recompute(ctx, model.WindowAll, day(5), false)
				So(err, ShouldBeNil)
				So(report.Mode, ShouldEqual, service.ModeUpToDate)
			})
		})

		Convey("When the all-time window is extended warm", func() {
			_, err := svc.Recompute(ctx, model.WindowAll, day(2), true)
			So(err, ShouldBeNil)
			report, err := svc.Recompute(ctx, model.WindowAll, day(5), false)
			So(err, ShouldBeNil)
			So(report.Mode, ShouldEqual, service.ModeWarm)
			So(report.Start, ShouldEqual, day(3))
			warm, err := svc.Standings(ctx, model.WindowAll)
			So(err, ShouldBeNil)

			Convey("Then it agrees with a cold rebuild", func() {
				_, err := svc.Recompute(ctx, model.WindowAll, day(5), true)
				So(err, ShouldBeNil)
				cold, err := svc.Standings(ctx, model.WindowAll)
				So(err, ShouldBeNil)
				So(len(warm), ShouldEqual, len(cold))
				for i := range cold {
					So(warm[i].Username, ShouldEqual, cold[i].Username)
					So(warm[i].Mu, ShouldAlmostEqual, cold[i].Mu, 1e-9)
					So(warm[i].Sigma, ShouldAlmostEqual, cold[i].Sigma, 1e-9)
					So(warm[i].NumWins, ShouldEqual, cold[i].NumWins)
					So(warm[i].NumPlayed, ShouldEqual, cold[i].NumPlayed)
				}
			})
		})

		Convey("When a trailing window ends before most history", func() {
			report, err := svc.Recompute(ctx, model.WindowLast30, day(1), false)
			So(err, ShouldBeNil)
			So(report.Start, ShouldEqual, day(1).AddDate(0, 0, -29))
			rows, err := svc.Standings(ctx, model.WindowLast30)
			So(err, ShouldBeNil)

			Convey("Then only days inside the window count", func() {
				So(len(rows), ShouldEqual, 3)
				for _, r := range rows {
					So(r.NumPlayed, ShouldEqual, 1)
				}
			})
		})

		Convey("When the end date is in the future", func() {
			_, err := svc.Recompute(ctx, model.WindowAll, day(9), false)
			So(errors.Is(err, service.ErrFutureEndDate), ShouldBeTrue)
		})
	})
}

func TestService_DailyUpdate(t *testing.T) {
	Convey("Given history and today's leaderboard", t, func() {
		ctx := context.Background()
		clock := func() time.Time { return day(5).Add(12 * time.Hour) }
		store := repository.NewMemoryStore()
		src := newFeed()
		svc := service.New(store, store, service.WithFeed(src), service.WithClock(clock))
		ingestAll(ctx, svc, 4)

		Convey("When the daily update runs", func() {
			report, err := svc.DailyUpdate(ctx)
			So(err, ShouldBeNil)

			Convey("Then today is ingested and every window recomputed through it", func() {
				So(report.RunID, ShouldNotBeEmpty)
				So(report.Ingest.Inserted, ShouldEqual, 3)
				So(report.End, ShouldEqual, day(5))
				So(len(report.Windows), ShouldEqual, len(model.Windows))
				for _, w := range model.Windows {
					rows, err := svc.Standings(ctx, w)
					So(err, ShouldBeNil)
					So(len(rows), ShouldEqual, 4)
				}
			})
		})

		Convey("When the feed is down", func() {
			src.err = feed.ErrUpstream

			_, err := svc.DailyUpdate(ctx)

			Convey("Then the update aborts before touching any window", func() {
				So(errors.Is(err, feed.ErrUpstream), ShouldBeTrue)
				for _, w := range model.Windows {
					_, ok, err := store.Watermark(ctx, w)
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)
				}
			})
		})
	})
}

func TestService_Today(t *testing.T) {
	Convey("Given a clock just after midnight UTC", t, func() {
		denver, err := time.LoadLocation("America/Denver")
		So(err, ShouldBeNil)
		clock := func() time.Time { return time.Date(2024, 3, 6, 3, 0, 0, 0, time.UTC) }
		store := repository.NewMemoryStore()

		Convey("Then the puzzle day follows the configured timezone", func() {
			svc := service.New(store, store, service.WithClock(clock), service.WithLocation(denver))
			So(svc.Today(), ShouldEqual, day(5))
			So(service.New(store, store, service.WithClock(clock)).Today(), ShouldEqual, day(6))
		})
	})
}
