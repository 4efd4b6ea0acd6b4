// Package config holds the live-tunable tracking parameters, their on-disk
// persistence and the version counter the tracking loop uses to detect
// changes without reading every field.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Aim point selection. The vertical offset applied by the coordinate mapper
// is resolved here; downstream code only ever sees the signed pixel offset.
const (
	AimPointHead = iota
	AimPointCenter
	AimPointLegs
)

// Filter method names accepted by the motion engine.
const (
	FilterOneEuro = "one_euro"
	FilterKalman  = "kalman"
)

// Settings is the serialized parameter set. All fields are repaired against
// the schema below on load, so the core never sees out-of-range values.
type Settings struct {
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	TargetColor    uint32  `json:"target_color"` // 0xRRGGBB
	ColorTolerance int     `json:"color_tolerance"`
	SearchRadius   int     `json:"search_radius"` // localized search half-size, px
	FOVX           int     `json:"fov_x"`         // half-width of the full search region
	FOVY           int     `json:"fov_y"`
	FilterMethod   string  `json:"filter_method"`
	MinCutoff      float64 `json:"min_cutoff"`
	Beta           float64 `json:"beta"`
	PredictScale   float64 `json:"prediction_scale"`
	AimPoint       int     `json:"aim_point"`
	HeadOffset     int     `json:"head_offset"`
	LegOffset      int     `json:"leg_offset"`
	TargetFPS      int     `json:"target_fps"`
	LossGraceMs    int     `json:"loss_grace_ms"`
	StartKey       string  `json:"start_key"`
	StopKey        string  `json:"stop_key"`
	Enabled        bool    `json:"enabled"`
}

// Snapshot is the immutable view handed to the tracking loop. Version
// identifies the write generation it was taken from.
type Snapshot struct {
	Version uint64
	Settings
	// AimOffsetY is the resolved vertical aim offset in pixels: negative
	// biases up (head), positive down (legs).
	AimOffsetY int
}

type numRange struct {
	min, max float64
}

// Schema bounds, mirrored by Repair. Values outside a range clamp; unknown
// enum values reset to the default.
var (
	defaults = Settings{
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		TargetColor:    0xC9008D,
		ColorTolerance: 10,
		SearchRadius:   100,
		FOVX:           50,
		FOVY:           50,
		FilterMethod:   FilterOneEuro,
		MinCutoff:      0.05,
		Beta:           0.05,
		PredictScale:   1.0,
		AimPoint:       AimPointCenter,
		HeadOffset:     20,
		LegOffset:      30,
		TargetFPS:      240,
		LossGraceMs:    300,
		StartKey:       "pageup",
		StopKey:        "pagedown",
		Enabled:        false,
	}

	intRanges = map[string]numRange{
		"screen_width":    {640, 7680},
		"screen_height":   {480, 4320},
		"color_tolerance": {0, 100},
		"search_radius":   {10, 1000},
		"fov_x":           {10, 500},
		"fov_y":           {10, 500},
		"aim_point":       {AimPointHead, AimPointLegs},
		"head_offset":     {0, 200},
		"leg_offset":      {0, 200},
		"target_fps":      {30, 1000},
		"loss_grace_ms":   {50, 5000},
	}

	floatRanges = map[string]numRange{
		"min_cutoff":       {0.001, 10},
		"beta":             {0, 10},
		"prediction_scale": {0, 100},
	}
)

// Config is the shared, versioned parameter store. Writers go through Update,
// which bumps the version counter; the tracking thread polls Version each
// tick and re-reads fields only when it moved.
type Config struct {
	mu      sync.RWMutex
	s       Settings
	version atomic.Uint64

	path    string
	profile string
}

// New returns a Config populated with defaults, persisting to path.
func New(path string) *Config {
	c := &Config{s: defaults, path: path, profile: "default"}
	c.version.Store(1)
	return c
}

// Version returns the current write generation. Lock-free.
func (c *Config) Version() uint64 {
	return c.version.Load()
}

// Snapshot copies the current settings with their version.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	s := c.s
	c.mu.RUnlock()
	return Snapshot{Version: c.version.Load(), Settings: s, AimOffsetY: aimOffset(s)}
}

func aimOffset(s Settings) int {
	switch s.AimPoint {
	case AimPointHead:
		return -s.HeadOffset
	case AimPointLegs:
		return s.LegOffset
	default:
		return 0
	}
}

// Update applies fn to the settings, repairs the result and bumps the
// version. This is the only mutation path.
func (c *Config) Update(fn func(*Settings)) {
	c.mu.Lock()
	fn(&c.s)
	c.s = Repair(c.s)
	c.mu.Unlock()
	c.version.Add(1)
}

// SetEnabled flips the global enable flag.
func (c *Config) SetEnabled(on bool) {
	c.Update(func(s *Settings) { s.Enabled = on })
}

// Enabled reports the global enable flag.
func (c *Config) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.Enabled
}

// Repair clamps every numeric field to its schema range and resets invalid
// enum values to their defaults. It never fails: any input comes out usable.
func Repair(s Settings) Settings {
	s.ScreenWidth = clampInt("screen_width", s.ScreenWidth)
	s.ScreenHeight = clampInt("screen_height", s.ScreenHeight)
	s.ColorTolerance = clampInt("color_tolerance", s.ColorTolerance)
	s.SearchRadius = clampInt("search_radius", s.SearchRadius)
	s.FOVX = clampInt("fov_x", s.FOVX)
	s.FOVY = clampInt("fov_y", s.FOVY)
	s.AimPoint = clampInt("aim_point", s.AimPoint)
	s.HeadOffset = clampInt("head_offset", s.HeadOffset)
	s.LegOffset = clampInt("leg_offset", s.LegOffset)
	s.TargetFPS = clampInt("target_fps", s.TargetFPS)
	s.LossGraceMs = clampInt("loss_grace_ms", s.LossGraceMs)

	s.MinCutoff = clampFloat("min_cutoff", s.MinCutoff)
	s.Beta = clampFloat("beta", s.Beta)
	s.PredictScale = clampFloat("prediction_scale", s.PredictScale)

	s.TargetColor &= 0xFFFFFF

	if s.FilterMethod != FilterOneEuro && s.FilterMethod != FilterKalman {
		s.FilterMethod = defaults.FilterMethod
	}
	if s.StartKey == "" {
		s.StartKey = defaults.StartKey
	}
	if s.StopKey == "" {
		s.StopKey = defaults.StopKey
	}
	return s
}

func clampInt(key string, v int) int {
	r, ok := intRanges[key]
	if !ok {
		return v
	}
	if float64(v) < r.min {
		return int(r.min)
	}
	if float64(v) > r.max {
		return int(r.max)
	}
	return v
}

func clampFloat(key string, v float64) float64 {
	r, ok := floatRanges[key]
	if !ok || v != v { // NaN repairs to the minimum
		return r.min
	}
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}

// Load reads the config file at the configured path. A missing file is not
// an error; defaults stay in place. Malformed or out-of-range values are
// repaired rather than rejected.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "config: read")
	}
	s := defaults
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "config: parse")
	}
	c.mu.Lock()
	c.s = Repair(s)
	c.mu.Unlock()
	c.version.Add(1)
	return nil
}

// Save writes the current settings atomically (temp file + rename).
func (c *Config) Save() error {
	c.mu.RLock()
	s := c.s
	c.mu.RUnlock()
	return writeSettings(c.path, s)
}

func writeSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "config: marshal")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "config: mkdir")
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "config: write")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "config: rename")
	}
	return nil
}
