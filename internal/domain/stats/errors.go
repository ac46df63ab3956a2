package stats

import "errors"

// Sentinel kinds for stats errors.
var (
	ErrNoResults  = errors.New("player has no results")
	ErrSamePlayer = errors.New("head-to-head needs two different players")
)
