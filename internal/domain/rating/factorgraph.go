package rating

import "math"

// variable is a factor-graph node holding its current marginal and the last
// message received from every attached factor.
type variable struct {
	value    gaussian
	messages map[int]gaussian
}

func newVariable() *variable {
	return &variable{messages: make(map[int]gaussian)}
}

func (v *variable) set(val gaussian) float64 {
	d := v.delta(val)
	v.value = val
	return d
}

func (v *variable) delta(o gaussian) float64 {
	piDelta := math.Abs(v.value.pi - o.pi)
	if math.IsInf(piDelta, 1) {
		return 0
	}
	return math.Max(math.Abs(v.value.tau-o.tau), math.Sqrt(piDelta))
}

// updateMessage replaces factor f's message and rescales the marginal.
func (v *variable) updateMessage(f int, msg gaussian) float64 {
	old := v.messages[f]
	v.messages[f] = msg
	return v.set(v.value.div(old).mul(msg))
}

// updateValue sets the marginal directly and back-derives factor f's message.
func (v *variable) updateValue(f int, val gaussian) float64 {
	old := v.messages[f]
	v.messages[f] = val.mul(old).div(v.value)
	return v.set(val)
}

// cavity is the marginal of v without factor f's contribution.
func (v *variable) cavity(f int) gaussian {
	return v.value.div(v.messages[f])
}

// graph hands out factor ids and wires empty messages on attachment.
type graph struct {
	next int
}

func (g *graph) attach(vars ...*variable) int {
	id := g.next
	g.next++
	for _, v := range vars {
		v.messages[id] = gaussian{}
	}
	return id
}

// priorFactor injects a player's prior, widened by the dynamics factor tau.
type priorFactor struct {
	id      int
	v       *variable
	mu      float64
	sigma   float64
	dynamic float64
}

func (f *priorFactor) down() float64 {
	sigma := math.Sqrt(f.sigma*f.sigma + f.dynamic*f.dynamic)
	return f.v.updateValue(f.id, fromMuSigma(f.mu, sigma))
}

// likelihoodFactor links skill to performance with variance beta².
type likelihoodFactor struct {
	id       int
	mean     *variable
	value    *variable
	variance float64
}

func (f *likelihoodFactor) a(g gaussian) float64 {
	return 1 / (1 + f.variance*g.pi)
}

func (f *likelihoodFactor) down() float64 {
	msg := f.mean.cavity(f.id)
	a := f.a(msg)
	return f.value.updateMessage(f.id, gaussian{pi: a * msg.pi, tau: a * msg.tau})
}

func (f *likelihoodFactor) up() float64 {
	msg := f.value.cavity(f.id)
	a := f.a(msg)
	return f.mean.updateMessage(f.id, gaussian{pi: a * msg.pi, tau: a * msg.tau})
}

// sumFactor constrains sum = Σ coeffs[i]·terms[i].
type sumFactor struct {
	id     int
	sum    *variable
	terms  []*variable
	coeffs []float64
}

func (f *sumFactor) down() float64 {
	return f.update(f.sum, f.terms, f.coeffs)
}

// up sends a message to terms[index] by solving the constraint for it.
func (f *sumFactor) up(index int) float64 {
	coeff := f.coeffs[index]
	coeffs := make([]float64, len(f.coeffs))
	for x, c := range f.coeffs {
		switch {
		case coeff == 0:
			coeffs[x] = 0
		case x == index:
			coeffs[x] = 1 / coeff
		default:
			coeffs[x] = -c / coeff
		}
	}
	vals := make([]*variable, len(f.terms))
	copy(vals, f.terms)
	vals[index] = f.sum
	return f.update(f.terms[index], vals, coeffs)
}

func (f *sumFactor) update(target *variable, vals []*variable, coeffs []float64) float64 {
	piInv, mu := 0.0, 0.0
	for i, val := range vals {
		div := val.cavity(f.id)
		mu += coeffs[i] * div.mu()
		if math.IsInf(piInv, 1) {
			continue
		}
		if div.pi == 0 {
			piInv = math.Inf(1)
			continue
		}
		piInv += coeffs[i] * coeffs[i] / div.pi
	}
	pi := 1 / piInv
	return target.updateMessage(f.id, gaussian{pi: pi, tau: pi * mu})
}

// truncateFactor applies the observed outcome between two adjacent teams.
type truncateFactor struct {
	id     int
	v      *variable
	draw   bool
	margin float64
}

func (f *truncateFactor) up() (float64, error) {
	div := f.v.cavity(f.id)
	sqrtPi := math.Sqrt(div.pi)
	diff, margin := div.tau/sqrtPi, f.margin*sqrtPi

	var v, w float64
	var err error
	if f.draw {
		v = vDraw(diff, margin)
		w, err = wDraw(diff, margin)
	} else {
		v = vWin(diff, margin)
		w, err = wWin(diff, margin)
	}
	if err != nil {
		return 0, err
	}
	denom := 1 - w
	return f.v.updateValue(f.id, gaussian{
		pi:  div.pi / denom,
		tau: (div.tau + sqrtPi*v) / denom,
	}), nil
}
