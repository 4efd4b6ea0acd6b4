// Package input converts filtered screen positions into absolute device
// pointer coordinates and injects them into the OS input subsystem.
package input

import (
	"math"

	"github.com/pkg/errors"
)

// DeviceMax is the top of the normalized absolute pointer space per axis,
// independent of display resolution.
const DeviceMax = 65535

// AimCommand is one absolute device coordinate pair, always inside
// [0, DeviceMax] on both axes. It is consumed immediately by the injector
// and never persisted.
type AimCommand struct {
	X, Y int32
}

// Mapper translates display pixels into device coordinates. The per-axis
// scale factors are precomputed when geometry is known, keeping the per-tick
// work to a multiply. Rebuild the mapper when display geometry changes.
type Mapper struct {
	scaleX, scaleY float64
	offsetY        float64
}

// NewMapper builds a mapper for a display of the given pixel dimensions.
func NewMapper(width, height int) (*Mapper, error) {
	if width < 2 || height < 2 {
		return nil, errors.Errorf("input: degenerate display geometry %dx%d", width, height)
	}
	return &Mapper{
		scaleX: float64(DeviceMax) / float64(width-1),
		scaleY: float64(DeviceMax) / float64(height-1),
	}, nil
}

// SetAimOffset sets the vertical aim-point bias in pixels, applied before
// scaling. Negative biases up, positive down; the sign convention is
// resolved by the config layer.
func (m *Mapper) SetAimOffset(dy int) {
	m.offsetY = float64(dy)
}

// Map converts a display position to a clamped device coordinate pair. Raw
// positions arbitrarily far outside the display still produce an in-range
// command.
func (m *Mapper) Map(x, y float64) AimCommand {
	return AimCommand{
		X: clampDevice(math.Round(x * m.scaleX)),
		Y: clampDevice(math.Round((y + m.offsetY) * m.scaleY)),
	}
}

func clampDevice(v float64) int32 {
	if !(v > 0) { // catches NaN as well
		return 0
	}
	if v > DeviceMax {
		return DeviceMax
	}
	return int32(v)
}
