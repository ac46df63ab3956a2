package ledger

import (
	"fmt"

	"github.com/okian/minirank/internal/domain/model"
)

// Elo scaling: a lower confidence bound three sigmas under the mean, times 60.
const (
	eloSigmas = 3
	eloScale  = 60
)

// Elo projects a skill belief onto the display score.
func Elo(mu, sigma float64) float64 {
	return (mu - eloSigmas*sigma) * eloScale
}

// Project builds the aggregate row of one player. It fails with
// ErrNoGamesPlayed when played is zero since the average is undefined.
func Project(username string, mu, sigma float64, wins, played int, totalTime float64) (model.AggregateRow, error) {
	if played <= 0 {
		return model.AggregateRow{}, fmt.Errorf("%w: %s", ErrNoGamesPlayed, username)
	}
	return model.AggregateRow{
		Username:    username,
		Mu:          mu,
		Sigma:       sigma,
		Elo:         Elo(mu, sigma),
		AverageTime: totalTime / float64(played),
		NumPlayed:   played,
		NumWins:     wins,
	}, nil
}
