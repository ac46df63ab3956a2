package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/minirank/internal/adapters/feed"
	"github.com/okian/minirank/internal/adapters/repository"
	service "github.com/okian/minirank/internal/app"
	"github.com/okian/minirank/internal/config"
	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/internal/domain/rating"
	"github.com/okian/minirank/pkg/logger"
	"github.com/okian/minirank/pkg/metrics"
)

const (
	closeTimeout = 10 * time.Second
	pushTimeout  = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Stderr.WriteString("minirank: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// session holds what a command needs once configuration is loaded.
type session struct {
	cfg    *config.Config
	stores *repository.Stores
	svc    *service.Service
	log    logger.Logger
}

// run executes one CLI invocation and always releases what it opened.
func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	rt := &session{}
	root := newRootCommand(rt, out, errOut)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	rt.close()
	return err
}

func newRootCommand(rt *session, out, errOut io.Writer) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "minirank",
		Short:         "Daily mini crossword ratings",
		Long:          "minirank ingests the daily mini crossword leaderboard and keeps TrueSkill based ratings over the last 30 days, the last 90 days and all time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.open(cmd.Context(), envFile, errOut)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (ignored when missing)")

	root.AddCommand(
		newUpdateCommand(rt, out),
		newIngestCommand(rt, out),
		newRecomputeCommand(rt, out),
		newStandingsCommand(rt, out),
		newHistoryCommand(rt, out),
		newHeadToHeadCommand(rt, out),
		newPlayerCommand(rt, out),
		newTopCommand(rt, out),
	)
	return root
}

func (rt *session) open(ctx context.Context, envFile string, errOut io.Writer) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	rt.cfg = cfg

	if err := logger.Init(logger.WithWriter(errOut), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	rt.log = logger.Named("minirank")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		rt.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	stores, err := repository.Open(ctx, repository.Backends{
		Results:       cfg.ResultsStore,
		Ratings:       cfg.RatingsStore,
		SQLitePath:    cfg.SQLitePath,
		PostgresDSN:   cfg.PostgresDSN,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	},
		repository.WithLogger(logger.Named("repository")),
		repository.WithKeyPrefix(cfg.RedisKeyPrefix),
		repository.WithMaxConns(cfg.PostgresMaxConns),
	)
	if err != nil {
		return err
	}
	rt.stores = stores

	rater := rating.NewTrueSkill(
		rating.WithInitial(cfg.RatingMu, cfg.RatingSigma),
		rating.WithBeta(cfg.RatingBeta),
		rating.WithTau(cfg.RatingTau),
		rating.WithDrawProbability(cfg.RatingDrawProbability),
	)
	client := feed.New(cfg.FeedToken,
		feed.WithBaseURL(cfg.FeedURL),
		feed.WithTimeout(cfg.FeedTimeout),
		feed.WithLogger(logger.Named("feed")),
	)
	rt.svc = service.New(stores.Results, stores.Ratings,
		service.WithLogger(logger.Named("service")),
		service.WithRater(rater),
		service.WithFeed(client),
		service.WithLocation(loc),
	)
	return nil
}

// close pushes batch metrics when configured and closes the stores.
func (rt *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if rt.cfg != nil && rt.cfg.PushgatewayURL != "" {
		pctx, pcancel := context.WithTimeout(ctx, pushTimeout)
		if err := metrics.Push(pctx, rt.cfg.PushgatewayURL, rt.cfg.JobName); err != nil && rt.log != nil {
			rt.log.Warn(ctx, "metrics push failed", logger.Error(err))
		}
		pcancel()
	}
	if rt.stores != nil {
		if err := rt.stores.Close(); err != nil && rt.log != nil {
			rt.log.Warn(ctx, "closing stores failed", logger.Error(err))
		}
	}
}

func newUpdateCommand(rt *session, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Ingest today's leaderboard and recompute every window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := rt.svc.DailyUpdate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s: ingested %d results for %s\n",
				report.RunID, report.Ingest.Inserted, model.FormatDay(report.Ingest.Date))
			for _, w := range report.Windows {
				printRecompute(out, w)
			}
			return nil
		},
	}
}

func newIngestCommand(rt *session, out io.Writer) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch and store one day's leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDate(date, rt.svc.Today())
			if err != nil {
				return err
			}
			report, err := rt.svc.Ingest(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d accepted, %d dropped, %d new\n",
				model.FormatDay(report.Date), report.Stats.Accepted, report.Stats.Dropped(), report.Inserted)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "day to ingest: YYYY-MM-DD, today or yesterday")
	return cmd
}

func newRecomputeCommand(rt *session, out io.Writer) *cobra.Command {
	var (
		window string
		end    string
		cold   bool
	)
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild one window's ratings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := model.ParseWindow(window)
			if err != nil {
				return err
			}
			day, err := parseDate(end, rt.svc.Today())
			if err != nil {
				return err
			}
			report, err := rt.svc.Recompute(cmd.Context(), w, day, cold)
			if err != nil {
				return err
			}
			printRecompute(out, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&window, "window", string(model.WindowAll), "window: last_30, last_90 or all")
	cmd.Flags().StringVar(&end, "end", "today", "last day of the window: YYYY-MM-DD, today or yesterday")
	cmd.Flags().BoolVar(&cold, "cold", false, "ignore stored rows and rebuild from the first stored day")
	return cmd
}

func newStandingsCommand(rt *session, out io.Writer) *cobra.Command {
	var (
		window string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Print a window's stored ratings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := model.ParseWindow(window)
			if err != nil {
				return err
			}
			rows, err := rt.svc.Standings(cmd.Context(), w)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printStandings(out, rows)
		},
	}
	cmd.Flags().StringVar(&window, "window", string(model.WindowAll), "window: last_30, last_90 or all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	return cmd
}

func printRecompute(out io.Writer, r service.RecomputeReport) {
	if r.Mode == service.ModeUpToDate {
		fmt.Fprintf(out, "%s: up to date through %s\n", r.Window, model.FormatDay(r.End))
		return
	}
	fmt.Fprintf(out, "%s: %s %s..%s, %d players over %d days\n",
		r.Window, r.Mode, model.FormatDay(r.Start), model.FormatDay(r.End), r.Players, r.Fold.Days)
}

func printStandings(out io.Writer, rows []model.AggregateRow) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tplayer\telo\tmu\tsigma\tavg\tplayed\twins\t")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.0f\t%.2f\t%.2f\t%.1f\t%d\t%d\t\n",
			i+1, r.Username, r.Elo, r.Mu, r.Sigma, r.AverageTime, r.NumPlayed, r.NumWins)
	}
	return tw.Flush()
}

// parseDate accepts YYYY-MM-DD, "today" or "yesterday" relative to today.
func parseDate(s string, today time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	d, err := model.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD, today or yesterday", s)
	}
	return d, nil
}
