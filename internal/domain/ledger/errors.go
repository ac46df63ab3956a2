package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNoGamesPlayed = errors.New("player has no games in window")
	ErrInvalidRange  = errors.New("start date is after end date")
	ErrOverlap       = errors.New("range overlaps days already folded into the accumulator")
)
