// Package telemetry records per-stage duration samples from the tracking
// loop without ever blocking it. The writer is the tracking thread; readers
// take copying snapshots and can never tear a sample or stall a write.
package telemetry

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultHistory is the per-probe ring capacity.
const DefaultHistory = 1024

// Probe is a named fixed-capacity ring of duration samples in milliseconds.
// Samples are stored as float64 bit patterns in atomic slots, so a reader
// racing the writer sees either the old or the new sample, never a mix.
type Probe struct {
	name    string
	slots   []atomic.Uint64
	written atomic.Uint64

	// started is touched only by the owning writer thread.
	started time.Time
}

func newProbe(name string, history int) *Probe {
	return &Probe{name: name, slots: make([]atomic.Uint64, history)}
}

func (p *Probe) record(ms float64) {
	n := p.written.Load()
	p.slots[n%uint64(len(p.slots))].Store(math.Float64bits(ms))
	p.written.Store(n + 1)
}

// samples copies the populated slots. Order is not meaningful to callers;
// statistics are order-free.
func (p *Probe) samples() []float64 {
	n := p.written.Load()
	filled := int(n)
	if filled > len(p.slots) {
		filled = len(p.slots)
	}
	out := make([]float64, filled)
	for i := 0; i < filled; i++ {
		out[i] = math.Float64frombits(p.slots[i].Load())
	}
	return out
}

// Recorder tracks named probes plus whole-tick aggregates (FPS, worst
// frame, missed ticks).
type Recorder struct {
	history int
	mu      sync.Mutex // guards probe registration only, never the hot path
	probes  map[string]*Probe
	index   atomic.Value // map[string]*Probe, copy-on-register

	frames *Probe

	totalFrames  atomic.Uint64
	missedFrames atomic.Uint64
	worstFrameMs atomic.Uint64 // float64 bits
	fpsBits      atomic.Uint64

	// FPS accounting, writer-owned.
	fpsCount  uint64
	fpsAnchor time.Time
}

// NewRecorder returns a Recorder with DefaultHistory samples per probe.
func NewRecorder() *Recorder {
	return NewRecorderSize(DefaultHistory)
}

// NewRecorderSize returns a Recorder keeping history samples per probe.
func NewRecorderSize(history int) *Recorder {
	if history < 1 {
		history = 1
	}
	r := &Recorder{history: history, probes: make(map[string]*Probe)}
	r.index.Store(map[string]*Probe{})
	r.frames = newProbe("frame", history)
	return r
}

// probe returns the named probe, registering it on first use. Registration
// copies the lookup map so the hot path stays lock-free.
func (r *Recorder) probe(name string) *Probe {
	if p, ok := r.index.Load().(map[string]*Probe)[name]; ok {
		return p
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.probes[name]; ok {
		return p
	}
	p := newProbe(name, r.history)
	r.probes[name] = p
	next := make(map[string]*Probe, len(r.probes))
	for k, v := range r.probes {
		next[k] = v
	}
	r.index.Store(next)
	return p
}

// StartProbe marks the beginning of the named stage.
func (r *Recorder) StartProbe(name string) {
	r.probe(name).started = time.Now()
}

// StopProbe records the duration since the matching StartProbe.
func (r *Recorder) StopProbe(name string) {
	p := r.probe(name)
	if p.started.IsZero() {
		return
	}
	p.record(float64(time.Since(p.started).Microseconds()) / 1000.0)
	p.started = time.Time{}
}

// Record stores an externally measured duration sample.
func (r *Recorder) Record(name string, d time.Duration) {
	r.probe(name).record(float64(d.Microseconds()) / 1000.0)
}

// RecordFrame records one full tick: its duration and whether it missed the
// pacing deadline. Also drives the achieved-FPS estimate.
func (r *Recorder) RecordFrame(d time.Duration, missed bool) {
	ms := float64(d.Microseconds()) / 1000.0
	r.frames.record(ms)
	r.totalFrames.Add(1)
	if missed {
		r.missedFrames.Add(1)
	}
	storeMax(&r.worstFrameMs, ms)

	now := time.Now()
	if r.fpsAnchor.IsZero() {
		r.fpsAnchor = now
	}
	r.fpsCount++
	if el := now.Sub(r.fpsAnchor); el >= 500*time.Millisecond {
		r.fpsBits.Store(math.Float64bits(float64(r.fpsCount) / el.Seconds()))
		r.fpsCount = 0
		r.fpsAnchor = now
	}
}

func storeMax(a *atomic.Uint64, v float64) {
	for {
		old := a.Load()
		if math.Float64frombits(old) >= v {
			return
		}
		if a.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// ResetAggregates clears the worst-frame and missed-tick counters but keeps
// sample history.
func (r *Recorder) ResetAggregates() {
	r.worstFrameMs.Store(0)
	r.missedFrames.Store(0)
}

// ProbeStats summarizes one probe's recent samples in milliseconds.
type ProbeStats struct {
	Name    string    `json:"name"`
	Count   uint64    `json:"count"`
	Mean    float64   `json:"mean_ms"`
	P50     float64   `json:"p50_ms"`
	P99     float64   `json:"p99_ms"`
	Worst   float64   `json:"worst_ms"`
	Samples []float64 `json:"samples_ms"`
}

// Stats is a point-in-time copy of everything the recorder knows.
type Stats struct {
	FPS              float64               `json:"fps"`
	AvgFrameMs       float64               `json:"avg_frame_ms"`
	WorstFrameMs     float64               `json:"worst_frame_ms"`
	OnePercentLowFPS float64               `json:"one_percent_low_fps"`
	TotalFrames      uint64                `json:"total_frames"`
	MissedFrames     uint64                `json:"missed_frames"`
	Probes           map[string]ProbeStats `json:"probes"`
}

// Snapshot copies the ring contents and computes summary statistics. Safe to
// call from any goroutine while the tracking loop writes.
func (r *Recorder) Snapshot() Stats {
	s := Stats{
		FPS:          math.Float64frombits(r.fpsBits.Load()),
		WorstFrameMs: math.Float64frombits(r.worstFrameMs.Load()),
		TotalFrames:  r.totalFrames.Load(),
		MissedFrames: r.missedFrames.Load(),
		Probes:       make(map[string]ProbeStats),
	}

	frames := r.frames.samples()
	if len(frames) > 0 {
		s.AvgFrameMs = stat.Mean(frames, nil)
	}
	if len(frames) > 100 {
		sorted := append([]float64(nil), frames...)
		sort.Float64s(sorted)
		p99 := stat.Quantile(0.99, stat.Empirical, sorted, nil)
		if p99 > 0 {
			s.OnePercentLowFPS = 1000.0 / p99
		}
	}

	for name, p := range r.index.Load().(map[string]*Probe) {
		s.Probes[name] = summarize(name, p)
	}
	s.Probes["frame"] = summarize("frame", r.frames)
	return s
}

func summarize(name string, p *Probe) ProbeStats {
	samples := p.samples()
	ps := ProbeStats{Name: name, Count: p.written.Load(), Samples: samples}
	if len(samples) == 0 {
		return ps
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	ps.Mean = stat.Mean(sorted, nil)
	ps.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	ps.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	ps.Worst = sorted[len(sorted)-1]
	return ps
}
