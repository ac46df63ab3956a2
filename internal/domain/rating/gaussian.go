package rating

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// gaussian is a normal distribution in natural parameters:
// precision pi = 1/sigma² and precision-adjusted mean tau = pi·mu.
type gaussian struct {
	pi  float64
	tau float64
}

func fromMuSigma(mu, sigma float64) gaussian {
	pi := 1 / (sigma * sigma)
	return gaussian{pi: pi, tau: pi * mu}
}

func (g gaussian) mu() float64 {
	if g.pi == 0 {
		return 0
	}
	return g.tau / g.pi
}

func (g gaussian) sigma() float64 {
	if g.pi == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(1 / g.pi)
}

func (g gaussian) mul(o gaussian) gaussian {
	return gaussian{pi: g.pi + o.pi, tau: g.tau + o.tau}
}

func (g gaussian) div(o gaussian) gaussian {
	return gaussian{pi: g.pi - o.pi, tau: g.tau - o.tau}
}

func pdf(x float64) float64 { return distuv.UnitNormal.Prob(x) }
func cdf(x float64) float64 { return distuv.UnitNormal.CDF(x) }
func ppf(p float64) float64 { return distuv.UnitNormal.Quantile(p) }

// vWin is the additive mean correction for a truncated win outcome.
func vWin(diff, margin float64) float64 {
	x := diff - margin
	denom := cdf(x)
	if denom == 0 {
		return -x
	}
	return pdf(x) / denom
}

// vDraw is the additive mean correction for a truncated draw outcome.
func vDraw(diff, margin float64) float64 {
	absDiff := math.Abs(diff)
	a, b := margin-absDiff, -margin-absDiff
	denom := cdf(a) - cdf(b)
	v := a
	if denom != 0 {
		v = (pdf(b) - pdf(a)) / denom
	}
	if diff < 0 {
		return -v
	}
	return v
}

// wWin is the multiplicative variance correction for a win; it must lie in (0, 1).
func wWin(diff, margin float64) (float64, error) {
	x := diff - margin
	v := vWin(diff, margin)
	w := v * (v + x)
	if w > 0 && w < 1 {
		return w, nil
	}
	return 0, ErrNumerical
}

// wDraw is the multiplicative variance correction for a draw.
func wDraw(diff, margin float64) (float64, error) {
	absDiff := math.Abs(diff)
	a, b := margin-absDiff, -margin-absDiff
	denom := cdf(a) - cdf(b)
	if denom == 0 {
		return 0, ErrNumerical
	}
	v := vDraw(absDiff, margin)
	return v*v + (a*pdf(a)-b*pdf(b))/denom, nil
}

// drawMargin converts a draw probability between size players into a
// performance-difference margin.
func drawMargin(drawProbability float64, size int, beta float64) float64 {
	return ppf((drawProbability+1)/2) * math.Sqrt(float64(size)) * beta
}
