// Package rating updates players' skill beliefs from a ranked free-for-all.
package rating

import (
	"fmt"
	"sort"

	"github.com/okian/minirank/internal/domain/model"
)

// Default TrueSkill environment.
const (
	DefaultMu              = 25.0
	DefaultSigma           = DefaultMu / 3
	DefaultDrawProbability = 0.10

	defaultMinDelta  = 0.0001
	maxIterations    = 10
	playersPerMargin = 2
)

// Rater turns one day's ranked priors into posteriors.
type Rater interface {
	// Initial returns the belief for a player with no history.
	Initial(username string) model.RatingState

	// Rate updates priors given zero-based ranks, lower is better and equal
	// ranks are draws. The result is parallel to priors.
	Rate(priors []model.RatingState, ranks []int) ([]model.RatingState, error)
}

// TrueSkill implements Rater with the TrueSkill factor graph, one single
// player team per leaderboard entry.
type TrueSkill struct {
	mu              float64
	sigma           float64
	beta            float64
	tau             float64
	tauSet          bool
	drawProbability float64
	minDelta        float64
}

// NewTrueSkill creates a rater with configuration options.
func NewTrueSkill(opts ...Option) *TrueSkill {
	t := &TrueSkill{
		mu:              DefaultMu,
		sigma:           DefaultSigma,
		drawProbability: DefaultDrawProbability,
		minDelta:        defaultMinDelta,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.beta == 0 {
		t.beta = t.sigma / 2
	}
	if !t.tauSet {
		t.tau = t.sigma / 100
	}
	return t
}

// Initial implements Rater.
func (t *TrueSkill) Initial(username string) model.RatingState {
	return model.RatingState{Username: username, Mu: t.mu, Sigma: t.sigma}
}

// Rate implements Rater. Fewer than two players leave ratings unchanged.
// Players are stable-sorted by rank and chained in that order, so tied
// players adjacent to a different rank get slightly different posteriors:
// the order of ties in priors matters. ranking.Build orders ties by
// username, which keeps daily results deterministic.
func (t *TrueSkill) Rate(priors []model.RatingState, ranks []int) ([]model.RatingState, error) {
	if len(priors) != len(ranks) {
		return nil, fmt.Errorf("%w: %d ratings, %d ranks", ErrRankMismatch, len(priors), len(ranks))
	}
	for _, p := range priors {
		if p.Sigma <= 0 {
			return nil, fmt.Errorf("%w: %s has sigma %v", ErrInvalidPrior, p.Username, p.Sigma)
		}
	}
	out := make([]model.RatingState, len(priors))
	copy(out, priors)
	if len(priors) < 2 {
		return out, nil
	}

	order := make([]int, len(priors))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ranks[order[a]] < ranks[order[b]] })

	sorted := make([]model.RatingState, len(order))
	sortedRanks := make([]int, len(order))
	for i, idx := range order {
		sorted[i] = priors[idx]
		sortedRanks[i] = ranks[idx]
	}

	posteriors, err := t.run(sorted, sortedRanks)
	if err != nil {
		return nil, fmt.Errorf("rate %d players: %w", len(priors), err)
	}
	for i, idx := range order {
		out[idx].Mu = posteriors[i].mu()
		out[idx].Sigma = posteriors[i].sigma()
	}
	return out, nil
}

// run builds the factor graph for rank-sorted players and executes the
// message schedule, returning each player's skill marginal.
func (t *TrueSkill) run(players []model.RatingState, ranks []int) ([]gaussian, error) {
	n := len(players)
	g := &graph{}

	skills := make([]*variable, n)
	perfs := make([]*variable, n)
	teamPerfs := make([]*variable, n)
	for i := 0; i < n; i++ {
		skills[i], perfs[i], teamPerfs[i] = newVariable(), newVariable(), newVariable()
	}

	priors := make([]*priorFactor, n)
	likelihoods := make([]*likelihoodFactor, n)
	teamSums := make([]*sumFactor, n)
	for i, p := range players {
		priors[i] = &priorFactor{id: g.attach(skills[i]), v: skills[i], mu: p.Mu, sigma: p.Sigma, dynamic: t.tau}
	}
	for i := range players {
		likelihoods[i] = &likelihoodFactor{id: g.attach(skills[i], perfs[i]), mean: skills[i], value: perfs[i], variance: t.beta * t.beta}
	}
	for i := range players {
		teamSums[i] = &sumFactor{id: g.attach(teamPerfs[i], perfs[i]), sum: teamPerfs[i], terms: []*variable{perfs[i]}, coeffs: []float64{1}}
	}

	for _, f := range priors {
		f.down()
	}
	for _, f := range likelihoods {
		f.down()
	}
	for _, f := range teamSums {
		f.down()
	}

	diffs := make([]*sumFactor, n-1)
	truncs := make([]*truncateFactor, n-1)
	margin := drawMargin(t.drawProbability, playersPerMargin, t.beta)
	for i := 0; i < n-1; i++ {
		v := newVariable()
		diffs[i] = &sumFactor{
			id:     g.attach(v, teamPerfs[i], teamPerfs[i+1]),
			sum:    v,
			terms:  []*variable{teamPerfs[i], teamPerfs[i+1]},
			coeffs: []float64{1, -1},
		}
		truncs[i] = &truncateFactor{id: g.attach(v), v: v, draw: ranks[i] == ranks[i+1], margin: margin}
	}

	if err := t.iterate(diffs, truncs); err != nil {
		return nil, err
	}

	diffs[0].up(0)
	diffs[len(diffs)-1].up(1)
	for _, f := range teamSums {
		f.up(0)
	}
	for _, f := range likelihoods {
		f.up()
	}

	out := make([]gaussian, n)
	for i, v := range skills {
		out[i] = v.value
	}
	return out, nil
}

// iterate passes messages along the chain of adjacent differences until the
// largest change falls under minDelta.
func (t *TrueSkill) iterate(diffs []*sumFactor, truncs []*truncateFactor) error {
	for it := 0; it < maxIterations; it++ {
		var delta float64
		if len(diffs) == 1 {
			diffs[0].down()
			d, err := truncs[0].up()
			if err != nil {
				return err
			}
			delta = d
		} else {
			for x := 0; x < len(diffs)-1; x++ {
				diffs[x].down()
				d, err := truncs[x].up()
				if err != nil {
					return err
				}
				delta = max(delta, d)
				diffs[x].up(1)
			}
			for x := len(diffs) - 1; x > 0; x-- {
				diffs[x].down()
				d, err := truncs[x].up()
				if err != nil {
					return err
				}
				delta = max(delta, d)
				diffs[x].up(0)
			}
		}
		if delta <= t.minDelta {
			return nil
		}
	}
	return nil
}
