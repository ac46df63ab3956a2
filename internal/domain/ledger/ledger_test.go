package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/minirank/internal/domain/ledger"
	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/internal/domain/ranking"
	"github.com/okian/minirank/internal/domain/rating"
	"github.com/okian/minirank/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	days  map[string][]model.DailyResult
	fail  error
	calls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{days: make(map[string][]model.DailyResult)}
}

func (f *fakeSource) add(date time.Time, pairs ...any) {
	key := model.FormatDay(date)
	for i := 0; i+1 < len(pairs); i += 2 {
		f.days[key] = append(f.days[key], model.DailyResult{
			Date:     date,
			Username: pairs[i].(string),
			Time:     pairs[i+1].(int),
		})
	}
}

func (f *fakeSource) ResultsOn(_ context.Context, date time.Time) ([]model.DailyResult, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return f.days[model.FormatDay(date)], nil
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func byName(rows []model.AggregateRow) map[string]model.AggregateRow {
	out := make(map[string]model.AggregateRow, len(rows))
	for _, r := range rows {
		out[r.Username] = r
	}
	return out
}

func TestElo(t *testing.T) {
	Convey("Given a rating belief", t, func() {
		Convey("When mu is 30 and sigma is 4", func() {
			So(ledger.Elo(30, 4), ShouldEqual, 1080)
		})

		Convey("When projecting a player with games", func() {
			row, err := ledger.Project("alice", 30, 4, 2, 4, 200)
			So(err, ShouldBeNil)
			So(row.Elo, ShouldEqual, 1080)
			So(row.AverageTime, ShouldEqual, 50)
			So(row.NumWins, ShouldEqual, 2)
		})

		Convey("When projecting a player without games", func() {
			_, err := ledger.Project("ghost", 25, 8, 0, 0, 0)
			So(errors.Is(err, ledger.ErrNoGamesPlayed), ShouldBeTrue)
		})
	})
}

func TestAggregator_Scenario(t *testing.T) {
	Convey("Given three players on a single day", t, func() {
		src := newFakeSource()
		src.add(day(1), "alice", 45, "bob", 45, "carol", 60)
		agg := ledger.New(src, rating.NewTrueSkill())

		acc, report, err := agg.Run(context.Background(), ledger.NewAccumulator(), day(1), day(1))
		So(err, ShouldBeNil)
		So(report.Days, ShouldEqual, 1)
		So(report.Ratings, ShouldEqual, 3)

		rows, err := acc.Rows()
		So(err, ShouldBeNil)
		got := byName(rows)

		Convey("Then tied leaders both receive a win", func() {
			So(got["alice"].NumWins, ShouldEqual, 1)
			So(got["bob"].NumWins, ShouldEqual, 1)
			So(got["carol"].NumWins, ShouldEqual, 0)
		})

		Convey("Then every player is credited one game and its time", func() {
			So(got["alice"].NumPlayed, ShouldEqual, 1)
			So(got["alice"].TotalTime(), ShouldEqual, 45)
			So(got["bob"].TotalTime(), ShouldEqual, 45)
			So(got["carol"].NumPlayed, ShouldEqual, 1)
			So(got["carol"].TotalTime(), ShouldEqual, 60)
		})

		Convey("Then the slower player is rated below the leaders", func() {
			So(got["carol"].Mu, ShouldBeLessThan, got["alice"].Mu)
			So(got["carol"].Mu, ShouldBeLessThan, got["bob"].Mu)
			So(rows[len(rows)-1].Username, ShouldEqual, "carol")
		})
	})
}

func TestAggregator_Step(t *testing.T) {
	Convey("Given an accumulator with history", t, func() {
		rater := rating.NewTrueSkill()
		agg := ledger.New(newFakeSource(), rater)
		acc := ledger.NewAccumulator()
		_, err := agg.Step(acc, day(1), ranking.Build([]model.DailyResult{
			{Date: day(1), Username: "alice", Time: 30},
			{Date: day(1), Username: "bob", Time: 50},
		}))
		So(err, ShouldBeNil)
		before, err := acc.Rows()
		So(err, ShouldBeNil)

		Convey("When an empty day is stepped", func() {
			dr, err := agg.Step(acc, day(2), ranking.Build(nil))
			So(err, ShouldBeNil)
			So(dr.Skipped(), ShouldBeTrue)

			Convey("Then no rating or tally changes", func() {
				after, err := acc.Rows()
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
			})
		})

		Convey("When a player is alone on a day", func() {
			prior := acc.Rating("alice", rater.Initial("alice"))
			dr, err := agg.Step(acc, day(2), ranking.Build([]model.DailyResult{
				{Date: day(2), Username: "alice", Time: 40},
			}))
			So(err, ShouldBeNil)
			So(dr.Winners, ShouldResemble, []string{"alice"})

			Convey("Then the play is credited but the rating is unchanged", func() {
				after := byName(mustRows(acc))["alice"]
				So(after.NumPlayed, ShouldEqual, 2)
				So(after.NumWins, ShouldEqual, 2)
				So(after.Mu, ShouldEqual, prior.Mu)
				So(after.Sigma, ShouldEqual, prior.Sigma)
			})
		})

		Convey("When bob plays without alice", func() {
			prior := acc.Rating("alice", rater.Initial("alice"))
			_, err := agg.Step(acc, day(2), ranking.Build([]model.DailyResult{
				{Date: day(2), Username: "bob", Time: 20},
				{Date: day(2), Username: "carol", Time: 25},
			}))
			So(err, ShouldBeNil)

			Convey("Then the absent player is untouched", func() {
				So(acc.Rating("alice", rater.Initial("alice")), ShouldResemble, prior)
			})
		})
	})
}

func mustRows(acc *ledger.Accumulator) []model.AggregateRow {
	rows, err := acc.Rows()
	if err != nil {
		panic(err)
	}
	return rows
}

func history() *fakeSource {
	src := newFakeSource()
	src.add(day(1), "alice", 45, "bob", 45, "carol", 60)
	src.add(day(2), "bob", 30, "carol", 41, "dave", 90)
	// day 3 has no results
	src.add(day(4), "alice", 70, "carol", 35)
	src.add(day(5), "alice", 28, "bob", 33, "carol", 33, "dave", 50)
	src.add(day(6), "dave", 22, "alice", 24)
	return src
}

func TestAggregator_Seeding(t *testing.T) {
	Convey("Given a week of history", t, func() {
		ctx := context.Background()
		src := history()
		agg := ledger.New(src, rating.NewTrueSkill(), ledger.WithWindow("all"))

		Convey("When the same cold run is repeated", func() {
			first, report, err := agg.Run(ctx, ledger.NewAccumulator(), day(1), day(6))
			So(err, ShouldBeNil)
			So(report.Days, ShouldEqual, 5)
			So(report.Skipped, ShouldEqual, 1)
			second, _, err := agg.Run(ctx, ledger.NewAccumulator(), day(1), day(6))
			So(err, ShouldBeNil)

			Convey("Then both produce identical rows", func() {
				So(mustRows(second), ShouldResemble, mustRows(first))
			})
		})

		Convey("When a warm run resumes from persisted rows", func() {
			cold, _, err := agg.Run(ctx, ledger.NewAccumulator(), day(1), day(6))
			So(err, ShouldBeNil)

			head, _, err := agg.Run(ctx, ledger.NewAccumulator(), day(1), day(3))
			So(err, ShouldBeNil)
			through, ok := head.Through()
			So(ok, ShouldBeTrue)
			So(model.FormatDay(through), ShouldEqual, "2024-01-03")

			seed := ledger.SeedAccumulator(mustRows(head), through)
			warm, _, err := agg.Run(ctx, seed, day(4), day(6))
			So(err, ShouldBeNil)

			Convey("Then it matches the cold run", func() {
				want, got := mustRows(cold), mustRows(warm)
				So(len(got), ShouldEqual, len(want))
				for i := range want {
					So(got[i].Username, ShouldEqual, want[i].Username)
					So(got[i].Mu, ShouldAlmostEqual, want[i].Mu, 1e-9)
					So(got[i].Sigma, ShouldAlmostEqual, want[i].Sigma, 1e-9)
					So(got[i].AverageTime, ShouldAlmostEqual, want[i].AverageTime, 1e-9)
					So(got[i].NumPlayed, ShouldEqual, want[i].NumPlayed)
					So(got[i].NumWins, ShouldEqual, want[i].NumWins)
				}
			})
		})

		Convey("When a player keeps winning day after day", func() {
			streak := newFakeSource()
			for d := 1; d <= 5; d++ {
				streak.add(day(d), "alice", 20, "bob", 40)
			}
			agg := ledger.New(streak, rating.NewTrueSkill())
			acc := ledger.NewAccumulator()
			var sigmas []float64
			for d := 1; d <= 5; d++ {
				next, _, err := agg.Run(ctx, acc, day(d), day(d))
				So(err, ShouldBeNil)
				acc = next
				sigmas = append(sigmas, byName(mustRows(acc))["alice"].Sigma)
			}

			Convey("Then uncertainty never grows", func() {
				for i := 1; i < len(sigmas); i++ {
					So(sigmas[i], ShouldBeLessThanOrEqualTo, sigmas[0])
				}
			})
		})
	})
}

func TestAggregator_Errors(t *testing.T) {
	Convey("Given an aggregator", t, func() {
		ctx := context.Background()
		src := history()
		agg := ledger.New(src, rating.NewTrueSkill())

		Convey("When the range is reversed", func() {
			_, _, err := agg.Run(ctx, ledger.NewAccumulator(), day(5), day(2))
			So(errors.Is(err, ledger.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("When the range overlaps folded days", func() {
			seed := ledger.SeedAccumulator(nil, day(3))
			_, _, err := agg.Run(ctx, seed, day(3), day(6))
			So(errors.Is(err, ledger.ErrOverlap), ShouldBeTrue)
		})

		Convey("When the source fails", func() {
			boom := errors.New("boom")
			src.fail = boom
			seed := ledger.NewAccumulator()
			acc, _, err := agg.Run(ctx, seed, day(1), day(2))

			Convey("Then the error propagates and the seed is untouched", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(acc, ShouldBeNil)
				So(seed.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := agg.Run(cctx, ledger.NewAccumulator(), day(1), day(6))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(src.calls, ShouldEqual, 0)
		})
	})
}

func TestAggregator_Duplicates(t *testing.T) {
	Convey("Given stored days with and without repeated players", t, func() {
		ctx := context.Background()
		const metric = "minirank_ledger_duplicate_results_total"

		Convey("When only clean days are folded", func() {
			src := newFakeSource()
			src.add(day(1), "alice", 30, "bob", 40)
			src.add(day(2), "bob", 35, "carol", 50)
			_, report, err := ledger.New(src, rating.NewTrueSkill()).Run(ctx, ledger.NewAccumulator(), day(1), day(2))
			So(err, ShouldBeNil)

			Convey("Then no duplicate is reported or recorded", func() {
				So(report.Duplicates, ShouldEqual, 0)
				n, err := testutil.GatherAndCount(metrics.GetRegistry(), metric)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When a day lists a player twice", func() {
			src := newFakeSource()
			src.add(day(1), "alice", 30, "alice", 25, "bob", 40)
			src.add(day(2), "bob", 35, "carol", 50)
			acc, report, err := ledger.New(src, rating.NewTrueSkill()).Run(ctx, ledger.NewAccumulator(), day(1), day(2))
			So(err, ShouldBeNil)

			Convey("Then the extra row is counted once and the fastest time kept", func() {
				So(report.Duplicates, ShouldEqual, 1)
				alice := byName(mustRows(acc))["alice"]
				So(alice.NumPlayed, ShouldEqual, 1)
				So(alice.TotalTime(), ShouldEqual, 25)
				n, err := testutil.GatherAndCount(metrics.GetRegistry(), metric)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})
}
