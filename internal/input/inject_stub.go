//go:build !windows

package input

import (
	"github.com/go-vgo/robotgo"
	"github.com/pkg/errors"
)

// Portable injector: converts device coordinates back to display pixels and
// moves through robotgo. There is no reusable OS event record on this path,
// so the pre-constructed record is the pixel-point struct itself.
type robotgoInjector struct {
	width, height int
	pt            pixelPoint
	move          func(x, y int) // test seam, defaults to robotgo.Move
}

type pixelPoint struct {
	x, y int
}

// NewInjector builds the portable injector for a display of the given
// dimensions.
func NewInjector(width, height int) (Injector, error) {
	if width < 2 || height < 2 {
		return nil, errors.Errorf("input: degenerate display geometry %dx%d", width, height)
	}
	return &robotgoInjector{width: width, height: height, move: func(x, y int) { robotgo.Move(x, y) }}, nil
}

func (i *robotgoInjector) MoveAbsolute(cmd AimCommand) error {
	cmd = clampCommand(cmd)
	i.pt.x = int(int64(cmd.X) * int64(i.width-1) / DeviceMax)
	i.pt.y = int(int64(cmd.Y) * int64(i.height-1) / DeviceMax)
	i.move(i.pt.x, i.pt.y)
	return nil
}

func (i *robotgoInjector) Close() error { return nil }
