// Package detect locates the best match for a target color inside a sampled
// screen region.
package detect

import (
	"image"

	"colortrack/internal/capture"
	"colortrack/internal/config"
	"colortrack/internal/telemetry"
)

// toleranceGain widens the configured tolerance into a per-channel byte
// reach: tolerance 100 reaches 250 of 255.
const toleranceGain = 2.5

// Result is the outcome of one search. Found=false is a normal outcome, not
// an error.
type Result struct {
	Found bool
	// X, Y are display coordinates of the best-matching pixel.
	X, Y int
	// Score is 1.0 for an exact color match, falling linearly to 0 at the
	// edge of the channel range.
	Score float64
}

// Locator scans frames from its sampler for the target color. It keeps the
// previous tick's hit to drive the cheaper localized search, and re-derives
// its color bounds and scan region only when the config version moves.
type Locator struct {
	sampler *capture.Sampler
	rec     *telemetry.Recorder

	// Derived from config, refreshed on version change.
	targetR, targetG, targetB uint8
	reach                     int
	scanArea                  image.Rectangle // full-search region (FOV), clipped to the display
	radius                    int             // localized search half-size

	lastFound  bool
	lastX      int
	lastY      int
}

// New returns a locator reading frames from sampler. Refresh must be called
// before the first Find.
func New(sampler *capture.Sampler, rec *telemetry.Recorder) *Locator {
	return &Locator{sampler: sampler, rec: rec}
}

// Refresh re-derives color bounds and the scan region from a config
// snapshot. Called by the scheduler only when the config version changed.
func (l *Locator) Refresh(snap config.Snapshot) {
	l.targetR = uint8(snap.TargetColor >> 16)
	l.targetG = uint8(snap.TargetColor >> 8)
	l.targetB = uint8(snap.TargetColor)

	l.reach = int(float64(snap.ColorTolerance) * toleranceGain)
	if l.reach > 255 {
		l.reach = 255
	}

	cx, cy := snap.ScreenWidth/2, snap.ScreenHeight/2
	fov := image.Rect(cx-snap.FOVX, cy-snap.FOVY, cx+snap.FOVX, cy+snap.FOVY)
	l.scanArea = fov.Intersect(image.Rect(0, 0, snap.ScreenWidth, snap.ScreenHeight))
	l.radius = snap.SearchRadius
}

// LastKnown reports the most recent hit, if any.
func (l *Locator) LastKnown() (x, y int, ok bool) {
	return l.lastX, l.lastY, l.lastFound
}

// Find runs one search cycle: a localized scan around the previous hit when
// there was one, falling back to a full scan of the search region. A capture
// failure is returned to the caller; a clean miss is Result{Found: false}.
func (l *Locator) Find() (Result, error) {
	if l.lastFound {
		res, err := l.searchWindow(l.localWindow())
		if err == nil && res.Found {
			l.remember(res)
			return res, nil
		}
		// Localized miss or capture failure: fall through to full search.
	}

	res, err := l.searchWindow(l.scanArea)
	if err != nil {
		return Result{}, err
	}
	l.remember(res)
	return res, nil
}

func (l *Locator) remember(res Result) {
	l.lastFound = res.Found
	if res.Found {
		l.lastX, l.lastY = res.X, res.Y
	}
}

// localWindow is the localized search rectangle: radius around the last
// hit, hard-clipped to the configured search region. A target locked at the
// region edge never causes scanning outside configured bounds.
func (l *Locator) localWindow() image.Rectangle {
	win := image.Rect(l.lastX-l.radius, l.lastY-l.radius, l.lastX+l.radius, l.lastY+l.radius)
	return win.Intersect(l.scanArea)
}

func (l *Locator) searchWindow(window image.Rectangle) (Result, error) {
	if window.Dx() <= 0 || window.Dy() <= 0 {
		return Result{}, nil
	}

	l.rec.StartProbe("detect.capture")
	frame, err := l.sampler.Sample(window)
	l.rec.StopProbe("detect.capture")
	if err != nil {
		return Result{}, err
	}

	l.rec.StartProbe("detect.scan")
	res := l.scan(frame)
	l.rec.StopProbe("detect.scan")
	return res, nil
}

// scan walks the frame once, tracking the pixel with the smallest channel
// distance to the target color. Ties keep the first-scanned pixel. A
// malformed frame is rejected up front instead of being scanned.
func (l *Locator) scan(frame *capture.Frame) Result {
	w, h := frame.Rect.Dx(), frame.Rect.Dy()
	if w <= 0 || h <= 0 || len(frame.Pix) < w*h*4 {
		return Result{}
	}

	tr, tg, tb := int(l.targetR), int(l.targetG), int(l.targetB)
	reach := l.reach

	best := 256 // beyond any channel distance
	bestX, bestY := 0, 0

	pix := frame.Pix
	for y := 0; y < h; y++ {
		row := pix[y*frame.Stride : y*frame.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			d := chanDist(int(row[i]), tr)
			if dg := chanDist(int(row[i+1]), tg); dg > d {
				d = dg
			}
			if db := chanDist(int(row[i+2]), tb); db > d {
				d = db
			}
			if d <= reach && d < best {
				best = d
				bestX, bestY = x, y
			}
		}
	}

	if best > reach {
		return Result{}
	}
	return Result{
		Found: true,
		X:     frame.Rect.Min.X + bestX,
		Y:     frame.Rect.Min.Y + bestY,
		Score: 1.0 - float64(best)/255.0,
	}
}

func chanDist(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
