package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/pkg/logger"
)

const backendRedis = "redis"

// RedisRatingStore keeps each window as a hash of username -> JSON row next to
// a plain watermark key. It implements RatingStore only; results need a
// queryable history and live in sqlite or postgres.
type RedisRatingStore struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

// OpenRedis connects to a redis server and verifies it answers.
func OpenRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*RedisRatingStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: redis address", ErrMissingDSN)
	}
	o := applyOptions(opts)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	o.logger.Debug(ctx, "redis rating store ready", logger.String("addr", addr), logger.String("prefix", o.keyPrefix))
	return &RedisRatingStore{client: client, prefix: o.keyPrefix, logger: o.logger}, nil
}

// Close closes the client.
func (s *RedisRatingStore) Close() error { return s.client.Close() }

func (s *RedisRatingStore) rowsKey(w model.Window) string { return s.prefix + ":ratings:" + string(w) }

func (s *RedisRatingStore) watermarkKey(w model.Window) string {
	return s.prefix + ":watermark:" + string(w)
}

// Rows implements RatingStore.
func (s *RedisRatingStore) Rows(ctx context.Context, window model.Window) ([]model.AggregateRow, error) {
	defer observe(backendRedis, "rows", time.Now())
	if err := validWindow(window); err != nil {
		return nil, err
	}
	fields, err := s.client.HGetAll(ctx, s.rowsKey(window)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s ratings: %w", window, err)
	}
	out := make([]model.AggregateRow, 0, len(fields))
	for username, raw := range fields {
		var r model.AggregateRow
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode %s rating %s: %w", window, username, err)
		}
		out = append(out, r)
	}
	sortRows(out)
	return out, nil
}

// Watermark implements RatingStore.
func (s *RedisRatingStore) Watermark(ctx context.Context, window model.Window) (time.Time, bool, error) {
	if err := validWindow(window); err != nil {
		return time.Time{}, false, err
	}
	raw, err := s.client.Get(ctx, s.watermarkKey(window)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s watermark: %w", window, err)
	}
	t, err := model.ParseDay(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Replace implements RatingStore. The delete and the writes go out in one
// MULTI/EXEC so readers never observe a half-written window.
func (s *RedisRatingStore) Replace(ctx context.Context, window model.Window, rows []model.AggregateRow, through time.Time) error {
	defer observe(backendRedis, "replace", time.Now())
	if err := validWindow(window); err != nil {
		return err
	}
	hash := make(map[string]any, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s rating %s: %w", window, r.Username, err)
		}
		hash[r.Username] = data
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.rowsKey(window), s.watermarkKey(window))
	if len(hash) > 0 {
		pipe.HSet(ctx, s.rowsKey(window), hash)
	}
	if !through.IsZero() {
		pipe.Set(ctx, s.watermarkKey(window), model.FormatDay(through), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace %s ratings: %w", window, err)
	}
	return nil
}
