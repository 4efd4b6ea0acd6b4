package motion

import "math"

// minDT replaces non-positive time deltas (duplicate ticks, clock going
// backwards) so the derivative never divides by zero or flips sign on a
// bogus interval.
const minDT = 1e-4

// minCutoffFloor keeps the adaptive cutoff strictly positive regardless of
// configuration.
const minCutoffFloor = 1e-6

const twoPi = 2 * math.Pi

// oneEuro is a single-axis 1 Euro filter: a one-pole low-pass whose cutoff
// rises with the filtered derivative, trading smoothing for latency exactly
// when the signal moves fast.
type oneEuro struct {
	minCutoff float64
	beta      float64
	dCutoff   float64

	value float64 // last filtered value
	deriv float64 // last filtered derivative, units/sec
	t     float64 // last timestamp, seconds
}

func newOneEuro(t, x, minCutoff, beta float64) *oneEuro {
	return &oneEuro{
		minCutoff: minCutoff,
		beta:      beta,
		dCutoff:   1.0,
		value:     x,
		t:         t,
	}
}

func smoothingFactor(dt, cutoff float64) float64 {
	r := twoPi * cutoff * dt
	return r / (r + 1.0)
}

// step feeds one raw sample and returns the filtered value. The filtered
// derivative is left in f.deriv for the caller's prediction stage.
func (f *oneEuro) step(t, x float64) float64 {
	dt := t - f.t
	if dt <= 0 {
		dt = minDT
	}

	ad := smoothingFactor(dt, f.dCutoff)
	dx := (x - f.value) / dt
	f.deriv = ad*dx + (1.0-ad)*f.deriv

	cutoff := f.minCutoff + f.beta*math.Abs(f.deriv)
	if cutoff < minCutoffFloor {
		cutoff = minCutoffFloor
	}
	a := smoothingFactor(dt, cutoff)
	f.value = a*x + (1.0-a)*f.value
	f.t = t

	return f.value
}
