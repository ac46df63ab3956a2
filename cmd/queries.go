package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/minirank/internal/app"
	"github.com/okian/minirank/internal/domain/model"
)

func newHistoryCommand(rt *session, out io.Writer) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the ranked board of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDate(date, rt.svc.Today())
			if err != nil {
				return err
			}
			board, err := rt.svc.History(cmd.Context(), day)
			if err != nil {
				return err
			}
			if board.Empty() {
				fmt.Fprintf(out, "%s: no results\n", model.FormatDay(day))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "rank\tplayer\ttime\t\n")
			for _, e := range board.Entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t\n", e.Rank, e.Username, clock(e.Time))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&date, "date", "yesterday", "day to show: YYYY-MM-DD, today or yesterday")
	return cmd
}

func newHeadToHeadCommand(rt *session, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "h2h PLAYER_A PLAYER_B",
		Short: "Compare two players over the days both solved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rt.svc.HeadToHead(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if r.Played == 0 {
				fmt.Fprintf(out, "%s and %s have no days in common\n", r.PlayerA, r.PlayerB)
				return nil
			}
			fmt.Fprintf(out, "%s %d - %d %s (%d ties over %d days)\n",
				r.PlayerA, r.WinsA, r.WinsB, r.PlayerB, r.Ties, r.Played)
			switch {
			case r.AverageDiff < 0:
				fmt.Fprintf(out, "%s is faster by %.1fs on average\n", r.PlayerA, -r.AverageDiff)
			case r.AverageDiff > 0:
				fmt.Fprintf(out, "%s is faster by %.1fs on average\n", r.PlayerB, r.AverageDiff)
			default:
				fmt.Fprintln(out, "dead even on average")
			}
			return nil
		},
	}
}

func newPlayerCommand(rt *session, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "player NAME",
		Short: "Summarize one player's results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.svc.Player(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d days from %s to %s\n",
				s.Username, s.Played, model.FormatDay(s.FirstPlayed), model.FormatDay(s.LastPlayed))
			fmt.Fprintf(out, "fastest: %s on %s\n", clock(s.Fastest.Time), model.FormatDay(s.Fastest.Date))
			if s.Played > s.ThemedDays {
				fmt.Fprintf(out, "average: %s excluding %d themed days\n",
					clock(int(math.Round(s.AverageTime))), s.ThemedDays)
			}
			times := make([]string, len(s.TopTimes))
			for i, r := range s.TopTimes {
				times[i] = clock(r.Time) + " (" + model.FormatDay(r.Date) + ")"
			}
			fmt.Fprintf(out, "best: %s\n", strings.Join(times, ", "))
			return nil
		},
	}
}

func newTopCommand(rt *session, out io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the fastest results ever recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := rt.svc.TopTimes(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "#\tplayer\ttime\tdate\t\n")
			for i, r := range results {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", i+1, r.Username, clock(r.Time), model.FormatDay(r.Date))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultTopTimes, "number of results")
	return cmd
}

// clock renders seconds as m:ss.
func clock(secs int) string {
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
