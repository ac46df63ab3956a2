package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoFeed        = errors.New("no leaderboard feed configured")
	ErrFutureEndDate = errors.New("end date is after today")
)
