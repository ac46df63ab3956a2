package feed

import "errors"

// Sentinel kinds for feed errors.
var (
	ErrUpstream     = errors.New("leaderboard feed unavailable")
	ErrMissingToken = errors.New("leaderboard feed token is not configured")
)
