package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Backends selects and locates the stores.
type Backends struct {
	Results       string // sqlite, postgres or memory
	Ratings       string // sqlite, postgres, redis or memory
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Stores bundles the opened stores and everything that needs closing.
type Stores struct {
	Results ResultStore
	Ratings RatingStore
	closers []io.Closer
}

// Close closes every opened backend once.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Open builds the stores named by b. A backend used for both roles is opened once.
func Open(ctx context.Context, b Backends, opts ...Option) (*Stores, error) {
	s := &Stores{}
	var (
		mem *MemoryStore
		sq  *SQLiteStore
		pg  *PostgresStore
	)
	memory := func() *MemoryStore {
		if mem == nil {
			mem = NewMemoryStore()
		}
		return mem
	}
	sqlite := func() (*SQLiteStore, error) {
		if sq == nil {
			var err error
			if sq, err = OpenSQLite(ctx, b.SQLitePath, opts...); err != nil {
				return nil, err
			}
			s.closers = append(s.closers, sq)
		}
		return sq, nil
	}
	postgres := func() (*PostgresStore, error) {
		if pg == nil {
			var err error
			if pg, err = OpenPostgres(ctx, b.PostgresDSN, opts...); err != nil {
				return nil, err
			}
			s.closers = append(s.closers, pg)
		}
		return pg, nil
	}

	fail := func(err error) (*Stores, error) {
		_ = s.Close()
		return nil, err
	}

	switch b.Results {
	case backendMemory:
		s.Results = memory()
	case backendSQLite:
		st, err := sqlite()
		if err != nil {
			return fail(err)
		}
		s.Results = st
	case backendPostgres:
		st, err := postgres()
		if err != nil {
			return fail(err)
		}
		s.Results = st
	default:
		return fail(fmt.Errorf("%w: results %q", ErrUnknownBackend, b.Results))
	}

	switch b.Ratings {
	case backendMemory:
		s.Ratings = memory()
	case backendSQLite:
		st, err := sqlite()
		if err != nil {
			return fail(err)
		}
		s.Ratings = st
	case backendPostgres:
		st, err := postgres()
		if err != nil {
			return fail(err)
		}
		s.Ratings = st
	case backendRedis:
		st, err := OpenRedis(ctx, b.RedisAddr, b.RedisPassword, b.RedisDB, opts...)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, st)
		s.Ratings = st
	default:
		return fail(fmt.Errorf("%w: ratings %q", ErrUnknownBackend, b.Ratings))
	}
	return s, nil
}
