//go:build windows

package tracker

import "golang.org/x/sys/windows"

var (
	winmm           = windows.NewLazySystemDLL("winmm.dll")
	timeBeginPeriod = winmm.NewProc("timeBeginPeriod")
	timeEndPeriod   = winmm.NewProc("timeEndPeriod")
)

// raiseTimerResolution requests 1 ms scheduler granularity for the lifetime
// of the tracking thread. Without it Sleep rounds up to the 15.6 ms default
// quantum and the pacing loop cannot hold high tick rates.
func raiseTimerResolution() {
	if timeBeginPeriod.Find() == nil {
		timeBeginPeriod.Call(1)
	}
}

func lowerTimerResolution() {
	if timeEndPeriod.Find() == nil {
		timeEndPeriod.Call(1)
	}
}
