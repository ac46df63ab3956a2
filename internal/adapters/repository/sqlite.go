package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/pkg/logger"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const backendSQLite = "sqlite"

var sqliteSchema = []string{
	`PRAGMA journal_mode = WAL`,
	`PRAGMA busy_timeout = 5000`,
	`CREATE TABLE IF NOT EXISTS results (
		date     TEXT    NOT NULL,
		username TEXT    NOT NULL,
		time     INTEGER NOT NULL CHECK (time > 0),
		PRIMARY KEY (date, username)
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		window_name  TEXT    NOT NULL,
		username     TEXT    NOT NULL,
		mu           REAL    NOT NULL,
		sigma        REAL    NOT NULL,
		elo          REAL    NOT NULL,
		average_time REAL    NOT NULL,
		num_played   INTEGER NOT NULL,
		num_wins     INTEGER NOT NULL,
		PRIMARY KEY (window_name, username)
	)`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		window_name TEXT PRIMARY KEY,
		through     TEXT NOT NULL
	)`,
}

// SQLiteStore persists results and ratings in a single sqlite file.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path", ErrMissingDSN)
	}
	o := applyOptions(opts)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY between our own statements.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	o.logger.Debug(ctx, "sqlite store ready", logger.String("path", path))
	return &SQLiteStore{db: db, logger: o.logger}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Append implements ResultStore.
func (s *SQLiteStore) Append(ctx context.Context, results []model.DailyResult) (int, error) {
	defer observe(backendSQLite, "append", time.Now())
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO results (date, username, time) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range results {
			if r.Username == "" || r.Time <= 0 {
				return fmt.Errorf("%w: %q at %s", ErrInvalidResult, r.Username, model.FormatDay(r.Date))
			}
			res, err := stmt.ExecContext(ctx, model.FormatDay(r.Date), r.Username, r.Time)
			if err != nil {
				return fmt.Errorf("insert result %s/%s: %w", model.FormatDay(r.Date), r.Username, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ResultsOn implements ResultStore.
func (s *SQLiteStore) ResultsOn(ctx context.Context, date time.Time) ([]model.DailyResult, error) {
	defer observe(backendSQLite, "results_on", time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, time FROM results WHERE date = ? ORDER BY username`, model.FormatDay(date))
	if err != nil {
		return nil, fmt.Errorf("query results on %s: %w", model.FormatDay(date), err)
	}
	defer rows.Close()

	day := model.Day(date)
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
func (s *SQLiteStore) DateBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	var first, last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM results`).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query date bounds: %w", err)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	f, err := model.ParseDay(first.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	l, err := model.ParseDay(last.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return f, l, true, nil
}

// PlayerResults implements ResultStore.
func (s *SQLiteStore) PlayerResults(ctx context.Context, username string) ([]model.DailyResult, error) {
	defer observe(backendSQLite, "player_results", time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, username, time FROM results WHERE username = ? ORDER BY time, date`, username)
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", username, err)
	}
	return scanSQLiteResults(rows)
}

// HeadToHead implements ResultStore.
func (s *SQLiteStore) HeadToHead(ctx context.Context, a, b string) ([]model.Matchup, error) {
	defer observe(backendSQLite, "head_to_head", time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT ra.date, ra.time, rb.time
		FROM results ra JOIN results rb ON ra.date = rb.date
		WHERE ra.username = ? AND rb.username = ?
		ORDER BY ra.date`, a, b)
	if err != nil {
		return nil, fmt.Errorf("query %s vs %s: %w", a, b, err)
	}
	defer rows.Close()

	var out []model.Matchup
	for rows.Next() {
		var (
			date string
			m    model.Matchup
		)
		if err := rows.Scan(&date, &m.TimeA, &m.TimeB); err != nil {
			return nil, err
		}
		if m.Date, err = model.ParseDay(date); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Fastest implements ResultStore.
func (s *SQLiteStore) Fastest(ctx context.Context, limit int) ([]model.DailyResult, error) {
	defer observe(backendSQLite, "fastest", time.Now())
	if err := validLimit(limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, username, time FROM results ORDER BY time, date, username LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fastest results: %w", err)
	}
	return scanSQLiteResults(rows)
}

func scanSQLiteResults(rows *sql.Rows) ([]model.DailyResult, error) {
	defer rows.Close()
	var out []model.DailyResult
	for rows.Next() {
		var (
			date string
			r    model.DailyResult
		)
		if err := rows.Scan(&date, &r.Username, &r.Time); err != nil {
			return nil, err
		}
		d, err := model.ParseDay(date)
		if err != nil {
			return nil, err
		}
		r.Date = d
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rows implements RatingStore.
func (s *SQLiteStore) Rows(ctx context.Context, window model.Window) ([]model.AggregateRow, error) {
	defer observe(backendSQLite, "rows", time.Now())
	if err := validWindow(window); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, mu, sigma, elo, average_time, num_played, num_wins
		FROM ratings WHERE window_name = ?
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
func (s *SQLiteStore) Watermark(ctx context.Context, window model.Window) (time.Time, bool, error) {
	if err := validWindow(window); err != nil {
		return time.Time{}, false, err
	}
	var through string
	err := s.db.QueryRowContext(ctx, `SELECT through FROM watermarks WHERE window_name = ?`, string(window)).Scan(&through)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query %s watermark: %w", window, err)
	}
	t, err := model.ParseDay(through)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Replace implements RatingStore.
func (s *SQLiteStore) Replace(ctx context.Context, window model.Window, rows []model.AggregateRow, through time.Time) error {
	defer observe(backendSQLite, "replace", time.Now())
	if err := validWindow(window); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ratings WHERE window_name = ?`, string(window)); err != nil {
			return fmt.Errorf("clear %s ratings: %w", window, err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ratings (window_name, username, mu, sigma, elo, average_time, num_played, num_wins)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, string(window), r.Username, r.Mu, r.Sigma, r.Elo, r.AverageTime, r.NumPlayed, r.NumWins); err != nil {
				return fmt.Errorf("insert %s rating %s: %w", window, r.Username, err)
			}
		}
		if through.IsZero() {
			_, err = tx.ExecContext(ctx, `DELETE FROM watermarks WHERE window_name = ?`, string(window))
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO watermarks (window_name, through) VALUES (?, ?)
				ON CONFLICT (window_name) DO UPDATE SET through = excluded.through`,
				string(window), model.FormatDay(through))
		}
		if err != nil {
			return fmt.Errorf("set %s watermark: %w", window, err)
		}
		return nil
	})
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn(ctx, "sqlite rollback failed", logger.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
