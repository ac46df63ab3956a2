package rating

import "errors"

// Sentinel kinds for rating errors.
var (
	ErrRankMismatch = errors.New("ratings and ranks differ in length")
	ErrInvalidPrior = errors.New("prior sigma must be positive")
	ErrNumerical    = errors.New("rating update is numerically unstable")
)
