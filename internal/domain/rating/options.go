package rating

// Option applies a configuration option to the TrueSkill rater.
type Option func(*TrueSkill)

// WithInitial sets the prior belief for players without history.
// Beta and tau default to sigma/2 and sigma/100 unless set explicitly.
func WithInitial(mu, sigma float64) Option {
	return func(t *TrueSkill) {
		if sigma > 0 {
			t.mu = mu
			t.sigma = sigma
		}
	}
}

// WithBeta sets the performance noise: the skill gap giving a ~76% win chance.
func WithBeta(beta float64) Option {
	return func(t *TrueSkill) {
		if beta > 0 {
			t.beta = beta
		}
	}
}

// WithTau sets the dynamics added to sigma before every update.
func WithTau(tau float64) Option {
	return func(t *TrueSkill) {
		if tau >= 0 {
			t.tau = tau
			t.tauSet = true
		}
	}
}

// WithDrawProbability sets the prior chance that adjacent players tie.
func WithDrawProbability(p float64) Option {
	return func(t *TrueSkill) {
		if p >= 0 && p < 1 {
			t.drawProbability = p
		}
	}
}

// WithMinDelta sets the convergence threshold of the message schedule.
func WithMinDelta(delta float64) Option {
	return func(t *TrueSkill) {
		if delta > 0 {
			t.minDelta = delta
		}
	}
}
