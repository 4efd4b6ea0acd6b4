// Package tracker drives the tracking pipeline: one sample→locate→filter→
// map→inject cycle per tick, paced to the configured frequency with a
// hybrid coarse-sleep/busy-poll wait.
package tracker

import (
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"colortrack/internal/capture"
	"colortrack/internal/config"
	"colortrack/internal/detect"
	"colortrack/internal/input"
	"colortrack/internal/motion"
	"colortrack/internal/telemetry"
)

// State of the scheduler.
type State int32

const (
	// Idle means no tracking thread is running.
	Idle State = iota
	// Running means the tracking thread is executing ticks.
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// ErrDisabled is returned by Start while the global enable flag is off.
var ErrDisabled = errors.New("tracker: globally disabled")

const (
	// coarseSlack is handed back from time.Sleep to the busy-poll stage;
	// OS sleep wakes up to about this much late.
	coarseSlack = 1500 * time.Microsecond

	// errLogMask rate-limits transient error logging to one tick in 256.
	errLogMask = 0xFF

	// defaultMaintenanceEvery spaces out the periodic maintenance hook.
	defaultMaintenanceEvery = 4096
)

// Engine owns the tracking thread and all pipeline stages. External callers
// interact only through Start/Stop, Status, MoveTo and the telemetry
// recorder; pipeline internals are confined to the tracking goroutine.
type Engine struct {
	cfg *config.Config
	rec *telemetry.Recorder
	log *log.Logger

	sampler *capture.Sampler
	locator *detect.Locator
	motion  *motion.Engine
	mapper  *input.Mapper
	inj     input.Injector

	width, height int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	state       atomic.Int32
	stopFlag    atomic.Bool
	markerFound atomic.Bool
	markerPos   atomic.Uint64 // x int32 << 32 | y int32
	lastVersion uint64

	maint      func()
	maintEvery uint64

	pollTimer *time.Timer
}

// Option customizes engine construction, mainly so tests can substitute the
// display and the OS input subsystem.
type Option func(*options)

type options struct {
	backend  capture.Backend
	injector input.Injector
	width    int
	height   int
}

// WithBackend substitutes the capture backend.
func WithBackend(b capture.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithInjector substitutes the pointer injector.
func WithInjector(inj input.Injector) Option {
	return func(o *options) { o.injector = inj }
}

// WithGeometry fixes the display dimensions instead of querying the OS.
func WithGeometry(width, height int) Option {
	return func(o *options) { o.width, o.height = width, height }
}

// New wires the pipeline. Display geometry lookup or input subsystem
// resolution failing here is fatal; the engine is never constructed in a
// silently broken state.
func New(cfg *config.Config, rec *telemetry.Recorder, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.width == 0 || o.height == 0 {
		bounds, err := capture.DisplayBounds()
		if err != nil {
			return nil, errors.Wrap(err, "tracker: display geometry")
		}
		o.width, o.height = bounds.Dx(), bounds.Dy()
	}

	// The config carries the authoritative screen dimensions from here on.
	cfg.Update(func(s *config.Settings) {
		s.ScreenWidth = o.width
		s.ScreenHeight = o.height
	})

	if o.backend == nil {
		o.backend = capture.NewScreenBackend()
	}
	if o.injector == nil {
		inj, err := input.NewInjector(o.width, o.height)
		if err != nil {
			return nil, err
		}
		o.injector = inj
	}

	mapper, err := input.NewMapper(o.width, o.height)
	if err != nil {
		return nil, err
	}

	snap := cfg.Snapshot()
	sampler := capture.NewSampler(o.backend)
	locator := detect.New(sampler, rec)
	locator.Refresh(snap)
	mapper.SetAimOffset(snap.AimOffsetY)

	e := &Engine{
		cfg:        cfg,
		rec:        rec,
		log:        log.New(os.Stderr, "tracker: ", log.LstdFlags),
		sampler:    sampler,
		locator:    locator,
		motion:     motion.NewEngine(snap),
		mapper:     mapper,
		inj:        o.injector,
		width:      o.width,
		height:     o.height,
		maint:      func() { debug.FreeOSMemory() },
		maintEvery: defaultMaintenanceEvery,
		pollTimer:  time.NewTimer(time.Hour),
	}
	e.pollTimer.Stop()
	e.lastVersion = snap.Version
	return e, nil
}

// SetMaintenance replaces the periodic maintenance hook. every is a tick
// count; the hook never runs on every tick. A nil fn disables it.
func (e *Engine) SetMaintenance(fn func(), every uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if every == 0 {
		every = defaultMaintenanceEvery
	}
	e.maint = fn
	e.maintEvery = every
}

// Start launches the tracking thread. It fails while the global enable flag
// is off and is a no-op when already running.
func (e *Engine) Start() error {
	if !e.cfg.Enabled() {
		return ErrDisabled
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.stopFlag.Store(false)
	e.running = true
	e.state.Store(int32(Running))
	go e.run(e.stop, e.done)
	return nil
}

// Stop signals the tracking thread and waits for it to finish its current
// tick. Cancellation is cooperative: observed at the top of the next tick,
// never mid-pipeline.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.stopFlag.Store(true)
	close(e.stop)
	done := e.done
	e.running = false
	e.mu.Unlock()
	<-done
}

// Close stops tracking and releases the capture and input handles.
func (e *Engine) Close() error {
	e.Stop()
	err := e.sampler.Close()
	if cerr := e.inj.Close(); err == nil {
		err = cerr
	}
	return err
}

// State reports the scheduler state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Status is the control-surface view of the engine.
type Status struct {
	State       State
	MarkerFound bool
	MarkerX     int
	MarkerY     int
	FPS         float64
}

// Status returns the current state, last known marker position and achieved
// tick frequency.
func (e *Engine) Status() Status {
	st := Status{
		State:       e.State(),
		MarkerFound: e.markerFound.Load(),
		FPS:         e.rec.Snapshot().FPS,
	}
	packed := e.markerPos.Load()
	st.MarkerX = int(int32(packed >> 32))
	st.MarkerY = int(int32(packed))
	return st
}

// MoveTo maps a display position through the current aim offset and injects
// it, bypassing the filter. Used for out-of-cycle color picking only; it
// refuses to fight the tracking loop for the pointer.
func (e *Engine) MoveTo(x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("tracker: running; pointer is owned by the tracking loop")
	}
	return e.inj.MoveAbsolute(e.mapper.Map(float64(x), float64(y)))
}

func (e *Engine) run(stop, done chan struct{}) {
	// The capture handle and all pipeline state are confined to this
	// goroutine, pinned to its own OS thread for timing stability.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	raiseTimerResolution()
	defer lowerTimerResolution()

	defer func() {
		// The loop can exit on its own when the enable flag drops, so the
		// running flag is cleared here rather than only in Stop.
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.state.Store(int32(Idle))
		close(done)
	}()

	snap := e.cfg.Snapshot()
	interval := tickInterval(snap.TargetFPS)
	next := time.Now().Add(interval)

	var tick uint64
	for {
		select {
		case <-stop:
			return
		default:
		}

		tickStart := time.Now()
		tick++
		e.rec.StartProbe("tick")

		// O(1) staleness check; fields re-read only on change.
		if v := e.cfg.Version(); v != e.lastVersion {
			snap = e.cfg.Snapshot()
			e.lastVersion = v
			if !snap.Enabled {
				return
			}
			e.locator.Refresh(snap)
			e.motion.Refresh(snap)
			e.mapper.SetAimOffset(snap.AimOffsetY)
			interval = tickInterval(snap.TargetFPS)
		}

		res, err := e.locator.Find()
		switch {
		case err != nil:
			// Transient capture failure: skip this tick, keep running.
			if tick&errLogMask == 0 {
				e.log.Printf("capture failed, skipping tick: %v", err)
			}
		case res.Found:
			e.markerFound.Store(true)
			e.markerPos.Store(uint64(uint32(int32(res.X)))<<32 | uint64(uint32(int32(res.Y))))

			px, py := e.motion.Process(float64(res.X), float64(res.Y), tickStart)
			cmd := e.mapper.Map(px, py)

			e.rec.StartProbe("inject")
			injErr := e.inj.MoveAbsolute(cmd)
			e.rec.StopProbe("inject")
			if injErr != nil && tick&errLogMask == 0 {
				e.log.Printf("inject failed: %v", injErr)
			}
		default:
			// Clean miss: filter state untouched, telemetry still sees it.
			e.markerFound.Store(false)
			e.motion.NoteMiss(tickStart)
			e.rec.Record("detect.miss", 0)
		}

		e.rec.StopProbe("tick")

		if e.maint != nil && tick%e.maintEvery == 0 {
			e.maint()
		}

		elapsed := time.Since(tickStart)
		missed := !time.Now().Before(next)
		e.rec.RecordFrame(elapsed, missed)

		e.pause(stop, next)

		next = next.Add(interval)
		if now := time.Now(); next.Before(now) {
			// Fell behind; re-anchor instead of bursting to catch up.
			next = now.Add(interval)
		}
	}
}

// pause waits until deadline using the hybrid strategy: a coarse OS sleep
// for the bulk of the interval, then a busy-poll on the monotonic clock for
// the final sub-millisecond remainder.
func (e *Engine) pause(stop <-chan struct{}, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}

	if d > coarseSlack {
		e.pollTimer.Reset(d - coarseSlack)
		select {
		case <-e.pollTimer.C:
		case <-stop:
			if !e.pollTimer.Stop() {
				<-e.pollTimer.C
			}
			return
		}
	}

	for time.Now().Before(deadline) {
		if e.stopFlag.Load() {
			return
		}
	}
}

func tickInterval(fps int) time.Duration {
	if fps < 1 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}
