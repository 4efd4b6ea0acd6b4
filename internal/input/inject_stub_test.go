//go:build !windows

package input

import "testing"

func TestRobotgoInjectorConvertsDeviceToPixels(t *testing.T) {
	var gotX, gotY int
	inj := &robotgoInjector{
		width:  1920,
		height: 1080,
		move:   func(x, y int) { gotX, gotY = x, y },
	}

	if err := inj.MoveAbsolute(AimCommand{X: DeviceMax, Y: DeviceMax}); err != nil {
		t.Fatal(err)
	}
	if gotX != 1919 || gotY != 1079 {
		t.Errorf("full-scale move = (%d,%d), want (1919,1079)", gotX, gotY)
	}

	if err := inj.MoveAbsolute(AimCommand{X: 0, Y: 0}); err != nil {
		t.Fatal(err)
	}
	if gotX != 0 || gotY != 0 {
		t.Errorf("zero move = (%d,%d), want (0,0)", gotX, gotY)
	}
}

func TestRobotgoInjectorClampsOutOfRange(t *testing.T) {
	var gotX, gotY int
	inj := &robotgoInjector{
		width:  1920,
		height: 1080,
		move:   func(x, y int) { gotX, gotY = x, y },
	}

	if err := inj.MoveAbsolute(AimCommand{X: -400, Y: DeviceMax + 400}); err != nil {
		t.Fatal(err)
	}
	if gotX != 0 || gotY != 1079 {
		t.Errorf("clamped move = (%d,%d), want (0,1079)", gotX, gotY)
	}
}

func TestNewInjectorRejectsDegenerateGeometry(t *testing.T) {
	if _, err := NewInjector(0, 1080); err == nil {
		t.Error("NewInjector accepted zero width")
	}
	if _, err := NewInjector(1920, 1); err == nil {
		t.Error("NewInjector accepted one-pixel height")
	}
}
