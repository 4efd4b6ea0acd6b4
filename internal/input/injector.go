package input

// Injector emits absolute pointer-movement events. Implementations reuse a
// single pre-constructed event record across calls; only its coordinate
// fields change per call. Only absolute moves are emitted for aiming, so the
// coordinate space stays consistent regardless of OS acceleration or
// sensitivity settings.
type Injector interface {
	// MoveAbsolute emits exactly one absolute movement to the clamped
	// device coordinates in cmd. A non-nil error is transient unless the
	// injector was constructed against a missing input subsystem, which
	// NewInjector reports instead.
	MoveAbsolute(cmd AimCommand) error
	Close() error
}

func clampCommand(cmd AimCommand) AimCommand {
	if cmd.X < 0 {
		cmd.X = 0
	} else if cmd.X > DeviceMax {
		cmd.X = DeviceMax
	}
	if cmd.Y < 0 {
		cmd.Y = 0
	} else if cmd.Y > DeviceMax {
		cmd.Y = DeviceMax
	}
	return cmd
}
