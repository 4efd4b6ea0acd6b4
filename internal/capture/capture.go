// Package capture samples rectangular pixel regions of the display into a
// reusable frame buffer.
package capture

import (
	"image"

	"github.com/kbinani/screenshot"
	"github.com/pkg/errors"
)

// ErrCaptureUnavailable is returned when the display cannot be grabbed this
// tick (mode change, permission loss, sleeping display). Callers treat it as
// "skip tick", not as fatal.
var ErrCaptureUnavailable = errors.New("capture: unavailable")

// Backend grabs one region of the display into dst. dst is RGBA with a
// tight stride (4 * width) and is always sized to the region before the
// call. Backends are not safe for concurrent use; each sampler (and
// therefore each tracking thread) owns its own backend instance.
type Backend interface {
	GrabInto(dst *image.RGBA, region image.Rectangle) error
	Close() error
}

// Frame is a read-only view of the pixels of one sampled region. It is
// valid only until the next Sample call on the owning sampler: the backing
// storage is reused across ticks.
type Frame struct {
	// Pix holds RGBA pixel data, 4 bytes per pixel, tight rows.
	Pix []uint8
	// Rect is the sampled region in display coordinates.
	Rect image.Rectangle
	// Stride is the byte distance between rows (always 4 * width here).
	Stride int
}

// Sampler captures frames through a backend, reusing its pixel buffer
// whenever the requested region size is unchanged.
type Sampler struct {
	backend Backend
	buf     image.RGBA
	frame   Frame
}

// NewSampler wraps a backend. The sampler takes ownership: Close closes the
// backend too.
func NewSampler(b Backend) *Sampler {
	return &Sampler{backend: b}
}

// Sample grabs the given region. The returned frame aliases the sampler's
// internal buffer and must not be retained across calls.
func (s *Sampler) Sample(region image.Rectangle) (*Frame, error) {
	w, h := region.Dx(), region.Dy()
	if w <= 0 || h <= 0 {
		return nil, errors.Errorf("capture: invalid region %v", region)
	}

	need := w * h * 4
	if cap(s.buf.Pix) < need {
		s.buf.Pix = make([]uint8, need)
	}
	s.buf.Pix = s.buf.Pix[:need]
	s.buf.Stride = w * 4
	s.buf.Rect = image.Rect(0, 0, w, h)

	if err := s.backend.GrabInto(&s.buf, region); err != nil {
		return nil, err
	}

	s.frame = Frame{Pix: s.buf.Pix, Rect: region, Stride: s.buf.Stride}
	return &s.frame, nil
}

// Close releases the backend's capture resources.
func (s *Sampler) Close() error {
	return s.backend.Close()
}

// ScreenBackend grabs from the physical display via the screenshot library,
// the same capture path the recorder loop uses.
type ScreenBackend struct{}

// NewScreenBackend returns a display-backed capture backend.
func NewScreenBackend() *ScreenBackend {
	return &ScreenBackend{}
}

// GrabInto captures region and copies the pixels into dst.
func (b *ScreenBackend) GrabInto(dst *image.RGBA, region image.Rectangle) error {
	img, err := screenshot.CaptureRect(region)
	if err != nil {
		return errors.Wrap(ErrCaptureUnavailable, err.Error())
	}
	if img == nil || img.Rect.Dx() != region.Dx() || img.Rect.Dy() != region.Dy() {
		return ErrCaptureUnavailable
	}
	copyPixels(dst, img)
	return nil
}

// Close is a no-op; the screenshot library holds no long-lived handles on
// this path.
func (b *ScreenBackend) Close() error { return nil }

func copyPixels(dst, src *image.RGBA) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	rowBytes := w * 4
	if src.Stride == dst.Stride && src.Stride == rowBytes {
		copy(dst.Pix, src.Pix[:h*rowBytes])
		return
	}
	for y := 0; y < h; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+rowBytes]
		copy(dst.Pix[y*dst.Stride:], srcRow)
	}
}

// DisplayBounds reports the geometry of the primary display. It fails when
// no display is attached, which callers surface as a fatal start-up error.
func DisplayBounds() (image.Rectangle, error) {
	if screenshot.NumActiveDisplays() < 1 {
		return image.Rectangle{}, errors.New("capture: no active displays")
	}
	return screenshot.GetDisplayBounds(0), nil
}
