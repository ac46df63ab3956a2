package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/pkg/logger"
)

const backendPostgres = "postgres"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS results (
		date     DATE    NOT NULL,
		username TEXT    NOT NULL,
		time     INTEGER NOT NULL CHECK (time > 0),
		PRIMARY KEY (date, username)
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		window_name  TEXT             NOT NULL,
		username     TEXT             NOT NULL,
		mu           DOUBLE PRECISION NOT NULL,
		sigma        DOUBLE PRECISION NOT NULL,
		elo          DOUBLE PRECISION NOT NULL,
		average_time DOUBLE PRECISION NOT NULL,
		num_played   INTEGER          NOT NULL,
		num_wins     INTEGER          NOT NULL,
		PRIMARY KEY (window_name, username)
	)`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		window_name TEXT PRIMARY KEY,
		through     DATE NOT NULL
	)`,
}

// PostgresStore persists results and ratings in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn", ErrMissingDSN)
	}
	o := applyOptions(opts)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = o.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, logger: o.logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	o.logger.Debug(ctx, "postgres store ready", logger.Int("max_conns", int(o.maxConns)))
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range postgresSchema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply postgres schema: %w", err)
			}
		}
		return nil
	})
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Append implements ResultStore.
func (s *PostgresStore) Append(ctx context.Context, results []model.DailyResult) (int, error) {
	defer observe(backendPostgres, "append", time.Now())
	for _, r := range results {
		if r.Username == "" || r.Time <= 0 {
			return 0, fmt.Errorf("%w: %q at %s", ErrInvalidResult, r.Username, model.FormatDay(r.Date))
		}
	}
	if len(results) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range results {
			batch.Queue(`INSERT INTO results (date, username, time) VALUES ($1, $2, $3)
				ON CONFLICT (date, username) DO NOTHING`, model.Day(r.Date), r.Username, r.Time)
		}
		br := tx.SendBatch(ctx, batch)
		for range results {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("insert result: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ResultsOn implements ResultStore.
func (s *PostgresStore) ResultsOn(ctx context.Context, date time.Time) ([]model.DailyResult, error) {
	defer observe(backendPostgres, "results_on", time.Now())
	day := model.Day(date)
	rows, err := s.pool.Query(ctx, `SELECT username, time FROM results WHERE date = $1 ORDER BY username`, day)
	if err != nil {
		return nil, fmt.Errorf("query results on %s: %w", model.FormatDay(day), err)
	}
	defer rows.Close()

	var out []model.DailyResult
	for rows.Next() {
		r := model.DailyResult{Date: day}
		if err := rows.Scan(&r.Username, &r.Time); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DateBounds implements ResultStore.
func (s *PostgresStore) DateBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	var first, last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MIN(date), MAX(date) FROM results`).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query date bounds: %w", err)
	}
	if first == nil || last == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return model.Day(*first), model.Day(*last), true, nil
}

// PlayerResults implements ResultStore.
func (s *PostgresStore) PlayerResults(ctx context.Context, username string) ([]model.DailyResult, error) {
	defer observe(backendPostgres, "player_results", time.Now())
	rows, err := s.pool.Query(ctx,
		`SELECT date, username, time FROM results WHERE username = $1 ORDER BY time, date`, username)
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", username, err)
	}
	return scanPostgresResults(rows)
}

// HeadToHead implements ResultStore.
func (s *PostgresStore) HeadToHead(ctx context.Context, a, b string) ([]model.Matchup, error) {
	defer observe(backendPostgres, "head_to_head", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT ra.date, ra.time, rb.time
		FROM results ra JOIN results rb ON ra.date = rb.date
		WHERE ra.username = $1 AND rb.username = $2
		ORDER BY ra.date`, a, b)
	if err != nil {
		return nil, fmt.Errorf("query %s vs %s: %w", a, b, err)
	}
	defer rows.Close()

	var out []model.Matchup
	for rows.Next() {
		var m model.Matchup
		if err := rows.Scan(&m.Date, &m.TimeA, &m.TimeB); err != nil {
			return nil, err
		}
		m.Date = model.Day(m.Date)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Fastest implements ResultStore.
func (s *PostgresStore) Fastest(ctx context.Context, limit int) ([]model.DailyResult, error) {
	defer observe(backendPostgres, "fastest", time.Now())
	if err := validLimit(limit); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT date, username, time FROM results ORDER BY time, date, username LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fastest results: %w", err)
	}
	return scanPostgresResults(rows)
}

func scanPostgresResults(rows pgx.Rows) ([]model.DailyResult, error) {
	defer rows.Close()
	var out []model.DailyResult
	for rows.Next() {
		var r model.DailyResult
		if err := rows.Scan(&r.Date, &r.Username, &r.Time); err != nil {
			return nil, err
		}
		r.Date = model.Day(r.Date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rows implements RatingStore.
func (s *PostgresStore) Rows(ctx context.Context, window model.Window) ([]model.AggregateRow, error) {
	defer observe(backendPostgres, "rows", time.Now())
	if err := validWindow(window); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT username, mu, sigma, elo, average_time, num_played, num_wins
		FROM ratings WHERE window_name = $1
		ORDER BY elo DESC, username`, string(window))
	if err != nil {
		return nil, fmt.Errorf("query %s ratings: %w", window, err)
	}
	defer rows.Close()

	var out []model.AggregateRow
	for rows.Next() {
		var r model.AggregateRow
		if err := rows.Scan(&r.Username, &r.Mu, &r.Sigma, &r.Elo, &r.AverageTime, &r.NumPlayed, &r.NumWins); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Watermark implements RatingStore.
func (s *PostgresStore) Watermark(ctx context.Context, window model.Window) (time.Time, bool, error) {
	if err := validWindow(window); err != nil {
		return time.Time{}, false, err
	}
	var through time.Time
	err := s.pool.QueryRow(ctx, `SELECT through FROM watermarks WHERE window_name = $1`, string(window)).Scan(&through)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query %s watermark: %w", window, err)
	}
	return model.Day(through), true, nil
}

// Replace implements RatingStore.
func (s *PostgresStore) Replace(ctx context.Context, window model.Window, rows []model.AggregateRow, through time.Time) error {
	defer observe(backendPostgres, "replace", time.Now())
	if err := validWindow(window); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ratings WHERE window_name = $1`, string(window)); err != nil {
			return fmt.Errorf("clear %s ratings: %w", window, err)
		}
		if len(rows) > 0 {
			src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				return []any{string(window), r.Username, r.Mu, r.Sigma, r.Elo, r.AverageTime, r.NumPlayed, r.NumWins}, nil
			})
			cols := []string{"window_name", "username", "mu", "sigma", "elo", "average_time", "num_played", "num_wins"}
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"ratings"}, cols, src); err != nil {
				return fmt.Errorf("copy %s ratings: %w", window, err)
			}
		}
		var err error
		if through.IsZero() {
			_, err = tx.Exec(ctx, `DELETE FROM watermarks WHERE window_name = $1`, string(window))
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO watermarks (window_name, through) VALUES ($1, $2)
				ON CONFLICT (window_name) DO UPDATE SET through = EXCLUDED.through`,
				string(window), model.Day(through))
		}
		if err != nil {
			return fmt.Errorf("set %s watermark: %w", window, err)
		}
		return nil
	})
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn(ctx, "postgres rollback failed", logger.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
