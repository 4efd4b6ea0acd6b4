package detect

import (
	"image"
	"testing"

	"colortrack/internal/capture"
	"colortrack/internal/config"
	"colortrack/internal/telemetry"
)

// sceneBackend paints a solid background with point markers at fixed display
// coordinates and records every requested region.
type sceneBackend struct {
	bg      [3]uint8
	markers map[image.Point][3]uint8
	regions []image.Rectangle
	errNext int // fail this many grabs before succeeding
}

func (b *sceneBackend) GrabInto(dst *image.RGBA, region image.Rectangle) error {
	b.regions = append(b.regions, region)
	if b.errNext > 0 {
		b.errNext--
		return capture.ErrCaptureUnavailable
	}
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			c := b.bg
			if m, ok := b.markers[image.Pt(x, y)]; ok {
				c = m
			}
			i := (y-region.Min.Y)*dst.Stride + (x-region.Min.X)*4
			dst.Pix[i] = c[0]
			dst.Pix[i+1] = c[1]
			dst.Pix[i+2] = c[2]
			dst.Pix[i+3] = 0xFF
		}
	}
	return nil
}

func (b *sceneBackend) Close() error { return nil }

func testSnapshot() config.Snapshot {
	return config.Snapshot{Settings: config.Settings{
		ScreenWidth:    200,
		ScreenHeight:   200,
		TargetColor:    0xC9008D,
		ColorTolerance: 10,
		SearchRadius:   20,
		FOVX:           100,
		FOVY:           100,
	}}
}

func newTestLocator(b *sceneBackend) *Locator {
	l := New(capture.NewSampler(b), telemetry.NewRecorderSize(16))
	l.Refresh(testSnapshot())
	return l
}

func TestFindExactMatch(t *testing.T) {
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(120, 80): {0xC9, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	res, err := l.Find()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found {
		t.Fatal("exact-color marker not found")
	}
	if res.X != 120 || res.Y != 80 {
		t.Errorf("position = (%d,%d), want (120,80)", res.X, res.Y)
	}
	if res.Score != 1.0 {
		t.Errorf("score = %v, want 1.0 for exact match", res.Score)
	}
}

func TestFindMissOutsideTolerance(t *testing.T) {
	// Tolerance 10 reaches 25 per channel; a channel offset of 40 is out.
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(50, 50): {0xC9 + 40, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	res, err := l.Find()
	if err != nil {
		t.Fatal(err)
	}
	if res.Found {
		t.Errorf("marker 40 channel units off was matched, score %v", res.Score)
	}
}

func TestFindNearMatchScore(t *testing.T) {
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(50, 50): {0xC9, 0x14, 0x8D}, // green off by 20, inside reach 25
	}}
	l := newTestLocator(b)

	res, err := l.Find()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found {
		t.Fatal("marker inside tolerance not found")
	}
	if res.Score >= 1.0 || res.Score <= 0 {
		t.Errorf("score = %v, want in (0,1)", res.Score)
	}
}

func TestLocalizedSearchAfterHit(t *testing.T) {
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(120, 80): {0xC9, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	if _, err := l.Find(); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Find(); err != nil {
		t.Fatal(err)
	}

	if len(b.regions) != 2 {
		t.Fatalf("grabs = %d, want 2 (full then localized)", len(b.regions))
	}
	local := b.regions[1]
	want := image.Rect(100, 60, 140, 100) // radius 20 around (120,80)
	if local != want {
		t.Errorf("localized window = %v, want %v", local, want)
	}
}

func TestLocalizedWindowClippedToRegion(t *testing.T) {
	// Marker near the region corner; the localized window must stay inside
	// the configured search region.
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(2, 3): {0xC9, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	for i := 0; i < 3; i++ {
		if _, err := l.Find(); err != nil {
			t.Fatal(err)
		}
	}

	scanArea := image.Rect(0, 0, 200, 200)
	for _, r := range b.regions {
		if !r.In(scanArea) {
			t.Errorf("requested region %v escapes search region %v", r, scanArea)
		}
	}
}

func TestLocalizedMissFallsBackToFull(t *testing.T) {
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(100, 100): {0xC9, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	if _, err := l.Find(); err != nil {
		t.Fatal(err)
	}

	// Teleport the marker outside the localized window.
	delete(b.markers, image.Pt(100, 100))
	b.markers[image.Pt(10, 190)] = [3]uint8{0xC9, 0x00, 0x8D}

	res, err := l.Find()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.X != 10 || res.Y != 190 {
		t.Errorf("fallback result = %+v, want hit at (10,190)", res)
	}
}

func TestLocalizedCaptureFailureFallsBackToFull(t *testing.T) {
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(100, 100): {0xC9, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	if _, err := l.Find(); err != nil {
		t.Fatal(err)
	}

	b.errNext = 1 // localized grab fails, full grab succeeds
	res, err := l.Find()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found {
		t.Error("full-search fallback did not find the marker")
	}
}

func TestFindPropagatesCaptureFailure(t *testing.T) {
	b := &sceneBackend{errNext: 10}
	l := newTestLocator(b)
	if _, err := l.Find(); err == nil {
		t.Error("capture failure was swallowed")
	}
}

func TestScanTieKeepsFirstScanned(t *testing.T) {
	// Two pixels at identical channel distance; row-major order decides.
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(30, 10): {0xC9, 0x05, 0x8D},
		image.Pt(10, 30): {0xC9, 0x05, 0x8D},
	}}
	l := newTestLocator(b)

	res, err := l.Find()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found {
		t.Fatal("tied markers not found")
	}
	if res.X != 30 || res.Y != 10 {
		t.Errorf("tie broke to (%d,%d), want first-scanned (30,10)", res.X, res.Y)
	}
}

func TestScanRejectsMalformedFrame(t *testing.T) {
	l := newTestLocator(&sceneBackend{})
	frames := []*capture.Frame{
		{Rect: image.Rect(0, 0, 0, 10)},
		{Rect: image.Rect(0, 0, 4, 4), Stride: 16, Pix: make([]uint8, 8)},
	}
	for _, f := range frames {
		if res := l.scan(f); res.Found {
			t.Errorf("malformed frame %v produced a hit", f.Rect)
		}
	}
}

func TestLastKnown(t *testing.T) {
	b := &sceneBackend{markers: map[image.Point][3]uint8{
		image.Pt(70, 60): {0xC9, 0x00, 0x8D},
	}}
	l := newTestLocator(b)

	if _, _, ok := l.LastKnown(); ok {
		t.Error("LastKnown reported a hit before any Find")
	}
	if _, err := l.Find(); err != nil {
		t.Fatal(err)
	}
	x, y, ok := l.LastKnown()
	if !ok || x != 70 || y != 60 {
		t.Errorf("LastKnown = (%d,%d,%v), want (70,60,true)", x, y, ok)
	}
}
