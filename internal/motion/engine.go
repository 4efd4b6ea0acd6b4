// Package motion turns a raw, noisy marker position stream into a stable,
// lead-compensated aim position.
package motion

import (
	"math"
	"time"

	"colortrack/internal/config"
)

const (
	// gateSpeed is the speed (px/s) above which prediction runs at full
	// strength; below it, lead fades out linearly toward zero.
	gateSpeed = 100.0

	// baseLookahead converts the configured prediction scale into seconds
	// of lead at full velocity scale.
	baseLookahead = 0.1

	// maxLeadPx caps the predictive offset magnitude so one noisy velocity
	// spike cannot throw the aim point, regardless of region size.
	maxLeadPx = 120.0

	// proximityRange is the error distance (px) under which lead is damped
	// proportionally, preventing oscillation when nearly on target.
	proximityRange = 50.0
)

// Engine holds the per-axis filter state and applies predictive lead with
// its stability safeguards. It is owned by the tracking thread; no method is
// safe for concurrent use.
type Engine struct {
	method       string
	minCutoff    float64
	beta         float64
	predictScale float64
	grace        time.Duration
	tickDT       float64

	epoch time.Time

	fx, fy *oneEuro
	kf     *kalmanPredictor

	prevVX, prevVY float64
	prevSpeed      float64

	lastOutX, lastOutY float64
	lastSeen           time.Time
}

// NewEngine builds an engine from a config snapshot.
func NewEngine(snap config.Snapshot) *Engine {
	e := &Engine{epoch: time.Now()}
	e.Refresh(snap)
	return e
}

// Refresh re-reads tunables from a config snapshot. Switching the filter
// method resets state; parameter changes apply to the live filters.
func (e *Engine) Refresh(snap config.Snapshot) {
	e.minCutoff = snap.MinCutoff
	e.beta = snap.Beta
	e.predictScale = snap.PredictScale
	e.grace = time.Duration(snap.LossGraceMs) * time.Millisecond
	e.tickDT = 1.0 / float64(snap.TargetFPS)

	if e.method != snap.FilterMethod {
		e.method = snap.FilterMethod
		e.Reset()
	}
	if e.fx != nil {
		e.fx.minCutoff = e.minCutoff
		e.fx.beta = e.beta
		e.fy.minCutoff = e.minCutoff
		e.fy.beta = e.beta
	}
}

// Reset drops all filter state so the next marker is treated as initial:
// no carried-over velocity, no lead on the first output.
func (e *Engine) Reset() {
	e.fx, e.fy = nil, nil
	e.kf = nil
	e.prevVX, e.prevVY, e.prevSpeed = 0, 0, 0
	e.lastSeen = time.Time{}
}

// NoteMiss records a tick with no marker. Filter state is untouched unless
// the configured grace period has elapsed since the last hit, at which point
// the state resets so re-acquisition does not inherit stale velocity.
func (e *Engine) NoteMiss(now time.Time) {
	if e.lastSeen.IsZero() {
		return
	}
	if now.Sub(e.lastSeen) > e.grace {
		e.Reset()
	}
}

// Process feeds one raw marker position and returns the smoothed,
// lead-compensated aim position. Non-finite inputs and outputs fall back to
// the last known-good output rather than propagating downstream.
func (e *Engine) Process(x, y float64, now time.Time) (float64, float64) {
	if !isFinite(x) || !isFinite(y) {
		return e.lastOutX, e.lastOutY
	}
	e.lastSeen = now

	if e.method == config.FilterKalman {
		return e.processKalman(x, y)
	}
	return e.processOneEuro(x, y, now)
}

func (e *Engine) processOneEuro(x, y float64, now time.Time) (float64, float64) {
	t := now.Sub(e.epoch).Seconds()

	if e.fx == nil {
		e.fx = newOneEuro(t, x, e.minCutoff, e.beta)
		e.fy = newOneEuro(t, y, e.minCutoff, e.beta)
		e.lastOutX, e.lastOutY = x, y
		return x, y
	}

	smoothX := e.fx.step(t, x)
	smoothY := e.fy.step(t, y)
	vx, vy := e.fx.deriv, e.fy.deriv

	offX, offY := e.lead(vx, vy, x, y, smoothX, smoothY)

	outX := smoothX + offX
	outY := smoothY + offY

	e.prevVX, e.prevVY = vx, vy
	e.prevSpeed = chebyshev(vx, vy)

	if !isFinite(outX) || !isFinite(outY) {
		return e.lastOutX, e.lastOutY
	}
	e.lastOutX, e.lastOutY = outX, outY
	return outX, outY
}

// lead computes the predictive offset from the filtered velocity, then runs
// the stability safeguards: velocity gating on the Chebyshev speed, per-axis
// direction-flip suppression, deceleration dampening, a fixed distance
// clamp, and proximity damping near the target.
func (e *Engine) lead(vx, vy, rawX, rawY, smoothX, smoothY float64) (float64, float64) {
	// Chebyshev speed: max per-axis magnitude. Using either axis alone
	// would zero out lead during single-axis motion.
	speed := chebyshev(vx, vy)

	velScale := 1.0
	if speed < gateSpeed {
		velScale = speed / gateSpeed
		if velScale < 0 {
			velScale = 0
		}
	}

	look := baseLookahead * e.predictScale * velScale
	lookX, lookY := look, look

	// A sign flip between ticks is treated as noise: suppress that axis's
	// lead instead of following the possibly spurious new direction.
	if vx*e.prevVX < 0 {
		lookX = 0
	}
	if vy*e.prevVY < 0 {
		lookY = 0
	}

	offX := vx * lookX
	offY := vy * lookY

	// Deceleration dampening: a slowing target gets proportionally less
	// lead, so the aim point does not overshoot past it.
	if e.prevSpeed > 0 && speed < e.prevSpeed {
		scale := speed / e.prevSpeed
		offX *= scale
		offY *= scale
	}

	// Fixed clamp on the offset magnitude.
	if magSq := offX*offX + offY*offY; magSq > maxLeadPx*maxLeadPx {
		scale := maxLeadPx / math.Sqrt(magSq)
		offX *= scale
		offY *= scale
	}

	// Proximity damping: as the raw marker closes on the filter output,
	// scale the lead down with the remaining error distance.
	errDist := math.Hypot(rawX-smoothX, rawY-smoothY)
	if errDist < proximityRange {
		scale := errDist / proximityRange
		offX *= scale
		offY *= scale
	}

	return offX, offY
}

// Velocity returns the current filtered per-axis velocity estimate, px/s.
func (e *Engine) Velocity() (vx, vy float64) {
	if e.fx == nil {
		return 0, 0
	}
	return e.fx.deriv, e.fy.deriv
}

func chebyshev(vx, vy float64) float64 {
	ax, ay := math.Abs(vx), math.Abs(vy)
	if ax > ay {
		return ax
	}
	return ay
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
