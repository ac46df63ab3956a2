package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrInvalidWindow  = errors.New("invalid rating window")
	ErrInvalidResult  = errors.New("invalid daily result")
	ErrMissingDSN     = errors.New("missing connection settings for store backend")
	ErrInvalidLimit   = errors.New("invalid result limit")
)
