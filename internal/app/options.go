package service

import (
	"time"

	"github.com/okian/minirank/internal/adapters/feed"
	"github.com/okian/minirank/internal/domain/rating"
	"github.com/okian/minirank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRater replaces the default TrueSkill rater.
func WithRater(r rating.Rater) Option {
	return func(s *Service) {
		if r != nil {
			s.rater = r
		}
	}
}

// WithFeed sets the leaderboard source used by Ingest.
func WithFeed(f feed.Source) Option {
	return func(s *Service) {
		if f != nil {
			s.feed = f
		}
	}
}

// WithLocation sets the timezone that decides the current puzzle day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
