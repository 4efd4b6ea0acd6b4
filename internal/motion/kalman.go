package motion

import (
	kalman "github.com/LdDl/kalman-filter"
)

// Constant-velocity Kalman predictor, selectable via the filter_method
// setting as an alternative to the 1 Euro filter. The predicted next state
// is itself the lead-compensated aim position, so none of the one-euro
// safeguards apply here.

const (
	kalmanAccelNoise   = 2.0
	kalmanMeasureNoise = 0.1
)

type kalmanPredictor struct {
	kf *kalman.Kalman2D
}

func newKalmanPredictor(dt, x, y float64) *kalmanPredictor {
	kf := kalman.NewKalman2D(
		dt, 1.0, 1.0,
		kalmanAccelNoise, kalmanMeasureNoise, kalmanMeasureNoise,
		kalman.WithState2D(x, y),
	)
	return &kalmanPredictor{kf: kf}
}

// step advances the filter one tick: predict, read the projected position,
// then fold in the measurement.
func (p *kalmanPredictor) step(x, y float64) (float64, float64, error) {
	p.kf.Predict()
	predX, predY := p.kf.GetState()
	if err := p.kf.Update(x, y); err != nil {
		return 0, 0, err
	}
	return predX, predY, nil
}

func (e *Engine) processKalman(x, y float64) (float64, float64) {
	if e.kf == nil {
		e.kf = newKalmanPredictor(e.tickDT, x, y)
		e.lastOutX, e.lastOutY = x, y
		return x, y
	}

	outX, outY, err := e.kf.step(x, y)
	if err != nil || !isFinite(outX) || !isFinite(outY) {
		// Degenerate filter state: rebuild next tick, hold last output.
		e.kf = nil
		return e.lastOutX, e.lastOutY
	}
	e.lastOutX, e.lastOutY = outX, outY
	return outX, outY
}
