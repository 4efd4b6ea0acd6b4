//go:build !windows

package tracker

// Non-Windows kernels already schedule sleeps at sub-millisecond
// granularity; there is nothing to raise.
func raiseTimerResolution() {}

func lowerTimerResolution() {}
