package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestRun_Queries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"name":"alice","score":{"secondsSpentSolving":45}},
			{"name":"bob","score":{"secondsSpentSolving":45}},
			{"name":"carol","score":{"secondsSpentSolving":60}}
		]}`))
	}))
	defer srv.Close()

	t.Setenv("MINIRANK_FEED_URL", srv.URL)
	t.Setenv("MINIRANK_FEED_TOKEN", "token")
	t.Setenv("MINIRANK_RESULTS_STORE", "sqlite")
	t.Setenv("MINIRANK_RATINGS_STORE", "sqlite")
	t.Setenv("MINIRANK_SQLITE_PATH", filepath.Join(t.TempDir(), "queries.db"))
	t.Setenv("MINIRANK_TIMEZONE", "UTC")

	ctx := context.Background()
	exec := func(args ...string) (string, error) {
		var out, errOut bytes.Buffer
		err := run(ctx, append(args, "--env-file", ""), &out, &errOut)
		return out.String(), err
	}

	convey.Convey("Given a Friday and a themed Saturday ingested", t, func() {
		for _, d := range []string{"2024-03-01", "2024-03-02"} {
			_, err := exec("ingest", "--date", d)
			convey.So(err, convey.ShouldBeNil)
		}

		convey.Convey("When a past board is printed", func() {
			out, err := exec("history", "--date", "2024-03-01")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "alice")
			convey.So(out, convey.ShouldContainSubstring, "1:00")
		})

		convey.Convey("When a day without results is printed", func() {
			out, err := exec("history", "--date", "2024-02-01")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "no results")
		})

		convey.Convey("When two tied players are compared", func() {
			out, err := exec("h2h", "alice", "bob")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "alice 0 - 0 bob (2 ties over 2 days)")
			convey.So(out, convey.ShouldContainSubstring, "dead even")
		})

		convey.Convey("When h2h is given one player", func() {
			_, err := exec("h2h", "alice")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When a player is summarized", func() {
			out, err := exec("player", "carol")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "carol: 2 days from 2024-03-01 to 2024-03-02")
			convey.So(out, convey.ShouldContainSubstring, "average: 1:00 excluding 1 themed days")
		})

		convey.Convey("When an unknown player is summarized", func() {
			_, err := exec("player", "zed")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the fastest results are listed", func() {
			out, err := exec("top", "--limit", "2")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "alice")
			convey.So(out, convey.ShouldContainSubstring, "bob")
			convey.So(out, convey.ShouldNotContainSubstring, "carol")
		})
	})
}
