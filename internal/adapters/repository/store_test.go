package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/minirank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func day(n int) time.Time {
	return time.Date(2024, 2, n, 0, 0, 0, 0, time.UTC)
}

func result(d int, user string, secs int) model.DailyResult {
	return model.DailyResult{Date: day(d), Username: user, Time: secs}
}

func sampleRows() []model.AggregateRow {
	return []model.AggregateRow{
		{Username: "carol", Mu: 22, Sigma: 6, Elo: 240, AverageTime: 60, NumPlayed: 1},
		{Username: "alice", Mu: 29, Sigma: 7, Elo: 480, AverageTime: 45, NumPlayed: 1, NumWins: 1},
		{Username: "bob", Mu: 29, Sigma: 7, Elo: 480, AverageTime: 45, NumPlayed: 1, NumWins: 1},
	}
}

func resultStoreContract(newStore func() ResultStore) {
	ctx := context.Background()

	Convey("When results are appended", func() {
		s := newStore()
		n, err := s.Append(ctx, []model.DailyResult{
			result(2, "bob", 50), result(2, "alice", 40), result(4, "carol", 70),
		})
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 3)

		Convey("Then a day is returned ordered by username", func() {
			got, err := s.ResultsOn(ctx, day(2))
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []model.DailyResult{result(2, "alice", 40), result(2, "bob", 50)})
		})

		Convey("Then a day without results is empty", func() {
			got, err := s.ResultsOn(ctx, day(3))
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("Then the date bounds span the stored days", func() {
			first, last, ok, err := s.DateBounds(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(first, ShouldEqual, day(2))
			So(last, ShouldEqual, day(4))
		})

		Convey("Then a repeated (date, username) is ignored", func() {
			n, err := s.Append(ctx, []model.DailyResult{result(2, "alice", 10), result(3, "alice", 33)})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			got, err := s.ResultsOn(ctx, day(2))
			So(err, ShouldBeNil)
			So(got[0].Time, ShouldEqual, 40)
		})

		Convey("Then an invalid result is rejected", func() {
			_, err := s.Append(ctx, []model.DailyResult{result(5, "dave", 0)})
			So(errors.Is(err, ErrInvalidResult), ShouldBeTrue)
		})
	})

	Convey("When the store is empty", func() {
		_, _, ok, err := newStore().DateBounds(ctx)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})

	Convey("When querying a player's history", func() {
		s := newStore()
		_, err := s.Append(ctx, []model.DailyResult{
			result(1, "alice", 55), result(1, "bob", 40),
			result(2, "alice", 30), result(2, "bob", 30),
			result(3, "alice", 30), result(4, "bob", 25),
			result(5, "carol", 20),
		})
		So(err, ShouldBeNil)

		Convey("Then the player's results come back fastest first with ties by date", func() {
			got, err := s.PlayerResults(ctx, "alice")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []model.DailyResult{
				result(2, "alice", 30), result(3, "alice", 30), result(1, "alice", 55),
			})
		})

		Convey("Then an unknown player has no results", func() {
			got, err := s.PlayerResults(ctx, "zed")
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("Then a head-to-head covers only the shared days in date order", func() {
			got, err := s.HeadToHead(ctx, "alice", "bob")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []model.Matchup{
				{Date: day(1), TimeA: 55, TimeB: 40},
				{Date: day(2), TimeA: 30, TimeB: 30},
			})

			swapped, err := s.HeadToHead(ctx, "bob", "alice")
			So(err, ShouldBeNil)
			So(swapped[0], ShouldResemble, model.Matchup{Date: day(1), TimeA: 40, TimeB: 55})
		})

		Convey("Then the fastest results are limited and ordered by time, date and username", func() {
			got, err := s.Fastest(ctx, 4)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []model.DailyResult{
				result(5, "carol", 20), result(4, "bob", 25),
				result(2, "alice", 30), result(2, "bob", 30),
			})

			all, err := s.Fastest(ctx, 100)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 7)
		})

		Convey("Then a non-positive limit is rejected", func() {
			_, err := s.Fastest(ctx, 0)
			So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func ratingStoreContract(newStore func() RatingStore) {
	ctx := context.Background()

	Convey("When a window is replaced", func() {
		s := newStore()
		So(s.Replace(ctx, model.WindowAll, sampleRows(), day(9)), ShouldBeNil)

		Convey("Then rows come back best elo first", func() {
			rows, err := s.Rows(ctx, model.WindowAll)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 3)
			So(rows[0].Username, ShouldEqual, "alice")
			So(rows[1].Username, ShouldEqual, "bob")
			So(rows[2], ShouldResemble, sampleRows()[0])
		})

		Convey("Then the watermark round-trips", func() {
			through, ok, err := s.Watermark(ctx, model.WindowAll)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(through, ShouldEqual, day(9))
		})

		Convey("Then other windows are untouched", func() {
			rows, err := s.Rows(ctx, model.WindowLast30)
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
			_, ok, err := s.Watermark(ctx, model.WindowLast30)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Then a second replace drops players no longer present", func() {
			So(s.Replace(ctx, model.WindowAll, sampleRows()[:1], day(10)), ShouldBeNil)
			rows, err := s.Rows(ctx, model.WindowAll)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].Username, ShouldEqual, "carol")
			through, _, err := s.Watermark(ctx, model.WindowAll)
			So(err, ShouldBeNil)
			So(through, ShouldEqual, day(10))
		})
	})

	Convey("When the window name is unknown", func() {
		_, err := newStore().Rows(ctx, model.Window("last_7"))
		So(errors.Is(err, ErrInvalidWindow), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory result store", t, func() {
		resultStoreContract(func() ResultStore { return NewMemoryStore() })
	})
	Convey("Given a memory rating store", t, func() {
		ratingStoreContract(func() RatingStore { return NewMemoryStore() })
	})
}

func TestSQLiteStore(t *testing.T) {
	open := func() *SQLiteStore {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "minirank.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	Convey("Given a sqlite result store", t, func() {
		resultStoreContract(func() ResultStore { return open() })
	})
	Convey("Given a sqlite rating store", t, func() {
		ratingStoreContract(func() RatingStore { return open() })
	})
	Convey("Given a sqlite file reopened after a write", t, func() {
		path := filepath.Join(t.TempDir(), "reopen.db")
		ctx := context.Background()
		s, err := OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		So(s.Replace(ctx, model.WindowLast90, sampleRows(), day(3)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		again, err := OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		defer again.Close()
		rows, err := again.Rows(ctx, model.WindowLast90)
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 3)
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("MINIRANK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MINIRANK_TEST_POSTGRES_DSN not set")
	}
	open := func() *PostgresStore {
		ctx := context.Background()
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE results, ratings, watermarks`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	Convey("Given a postgres result store", t, func() {
		resultStoreContract(func() ResultStore { return open() })
	})
	Convey("Given a postgres rating store", t, func() {
		ratingStoreContract(func() RatingStore { return open() })
	})
}

func TestRedisRatingStore(t *testing.T) {
	addr := os.Getenv("MINIRANK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MINIRANK_TEST_REDIS_ADDR not set")
	}
	n := 0
	open := func() RatingStore {
		n++
		ctx := context.Background()
		s, err := OpenRedis(ctx, addr, "", 0, WithKeyPrefix(fmt.Sprintf("minirank-test-%d-%d", time.Now().UnixNano(), n)))
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		t.Cleanup(func() {
			for _, w := range model.Windows {
				_ = s.client.Del(ctx, s.rowsKey(w), s.watermarkKey(w)).Err()
			}
			_ = s.Close()
		})
		return s
	}

	Convey("Given a redis rating store", t, func() {
		ratingStoreContract(open)
	})
}

func TestOpen(t *testing.T) {
	Convey("Given backend selections", t, func() {
		ctx := context.Background()

		Convey("When both roles use sqlite", func() {
			stores, err := Open(ctx, Backends{
				Results:    "sqlite",
				Ratings:    "sqlite",
				SQLitePath: filepath.Join(t.TempDir(), "both.db"),
			})
			So(err, ShouldBeNil)
			defer stores.Close()

			Convey("Then one database serves both", func() {
				results, ok := stores.Results.(*SQLiteStore)
				So(ok, ShouldBeTrue)
				So(results == stores.Ratings.(*SQLiteStore), ShouldBeTrue)
				So(len(stores.closers), ShouldEqual, 1)
			})
		})

		Convey("When a backend is unknown", func() {
			_, err := Open(ctx, Backends{Results: "memory", Ratings: "cassandra"})
			So(errors.Is(err, ErrUnknownBackend), ShouldBeTrue)
		})

		Convey("When postgres has no dsn", func() {
			_, err := Open(ctx, Backends{Results: "postgres", Ratings: "memory"})
			So(errors.Is(err, ErrMissingDSN), ShouldBeTrue)
		})
	})
}
