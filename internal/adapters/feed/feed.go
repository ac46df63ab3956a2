// Package feed fetches the daily mini crossword leaderboard.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/minirank/internal/domain/model"
	"github.com/okian/minirank/pkg/logger"
	"github.com/okian/minirank/pkg/metrics"
)

// DefaultBaseURL is the public feed host.
const DefaultBaseURL = "https://www.nytimes.com"

const (
	leaderboardPath = "/svc/crosswords/v6/leaderboard/mini/%s.json"
	tokenHeader     = "nyt-s"
	maxBodyBytes    = 4 << 20
)

// Source returns the raw leaderboard of one day.
type Source interface {
	Fetch(ctx context.Context, date time.Time) ([]model.FeedEntry, error)
}

type leaderboard struct {
	Data []model.FeedEntry `json:"data"`
}

// Client reads the leaderboard feed over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
	logger  logger.Logger
}

// New creates a client authenticated with token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http:    http.DefaultClient,
		timeout: 15 * time.Second,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// Fetch downloads the leaderboard of date.
func (c *Client) Fetch(ctx context.Context, date time.Time) ([]model.FeedEntry, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + fmt.Sprintf(leaderboardPath, model.FormatDay(date))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("feed", "transport")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordErrorByComponent("feed", "status")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstream, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var body leaderboard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		metrics.RecordErrorByComponent("feed", "decode")
		return nil, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}

	c.logger.Debug(ctx, "leaderboard fetched",
		logger.Date("date", date),
		logger.Int("entries", len(body.Data)),
		logger.Duration("latency", time.Since(start)),
	)
	return body.Data, nil
}
