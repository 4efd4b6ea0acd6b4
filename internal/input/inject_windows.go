//go:build windows

package input

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const (
	inputMouse          = 0
	mouseEventfMove     = 0x0001
	mouseEventfAbsolute = 0x8000
)

// winInput mirrors the Win32 INPUT structure with its MOUSEINPUT member on
// 64-bit Windows (union is 8-byte aligned after the type DWORD).
type winInput struct {
	typ       uint32
	_         uint32
	dx        int32
	dy        int32
	mouseData uint32
	flags     uint32
	time      uint32
	_         uint32
	extraInfo uintptr
}

// sendInputInjector injects absolute moves through user32 SendInput. The
// INPUT record is allocated once and its coordinate fields are overwritten
// per call.
type sendInputInjector struct {
	sendInput *windows.LazyProc
	record    winInput
}

// NewInjector resolves the OS input entry point. Failure here is fatal:
// the input subsystem is unavailable, not merely busy.
func NewInjector(width, height int) (Injector, error) {
	proc := windows.NewLazySystemDLL("user32.dll").NewProc("SendInput")
	if err := proc.Find(); err != nil {
		return nil, errors.Wrap(err, "input: SendInput unavailable")
	}
	inj := &sendInputInjector{sendInput: proc}
	inj.record.typ = inputMouse
	inj.record.flags = mouseEventfMove | mouseEventfAbsolute
	return inj, nil
}

func (i *sendInputInjector) MoveAbsolute(cmd AimCommand) error {
	cmd = clampCommand(cmd)
	i.record.dx = cmd.X
	i.record.dy = cmd.Y

	n, _, callErr := i.sendInput.Call(
		1,
		uintptr(unsafe.Pointer(&i.record)),
		unsafe.Sizeof(i.record),
	)
	if n != 1 {
		return errors.Wrap(callErr, "input: SendInput rejected event")
	}
	return nil
}

func (i *sendInputInjector) Close() error { return nil }
