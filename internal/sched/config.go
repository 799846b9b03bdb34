package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"

	"framesched/internal/expiration"
	"framesched/internal/frame"
	"framesched/internal/priority"
)

// Config mirrors config.yml
type Config struct {
	Priority   PriorityConfig   `yaml:"priority"`
	Frame      FrameConfig      `yaml:"frame"`
	Expiration ExpirationConfig `yaml:"expiration"`
	Log        LogConfig        `yaml:"log"`
	TraceCSV   string           `yaml:"trace_csv"` // empty disables the CSV trace
}

// PriorityConfig holds the relative timeout of each priority level.
type PriorityConfig struct {
	ImmediateTimeoutMS    int64 `yaml:"immediate_timeout_ms"`     // -1 (by default)
	UserBlockingTimeoutMS int64 `yaml:"user_blocking_timeout_ms"` // 250 (by default)
	NormalTimeoutMS       int64 `yaml:"normal_timeout_ms"`        // 5000 (by default)
	LowTimeoutMS          int64 `yaml:"low_timeout_ms"`           // 10000 (by default)
	IdleTimeoutMS         int64 `yaml:"idle_timeout_ms"`          // 1073741823 (by default)
}

// FrameConfig tunes the frame pump.
type FrameConfig struct {
	InitialFrameMS          int64 `yaml:"initial_frame_ms"`           // 33 (by default)
	MinFrameMS              int64 `yaml:"min_frame_ms"`               // 8 (by default)
	AnimationFrameTimeoutMS int64 `yaml:"animation_frame_timeout_ms"` // 100 (by default)
	RefreshHz               int   `yaml:"refresh_hz"`                 // 60 (by default), 0 = no display
}

// ExpirationConfig tunes expiration bucketing.
type ExpirationConfig struct {
	UnitMS                     int64 `yaml:"unit_ms"`                       // 10 (by default)
	InteractiveExpirationMS    int64 `yaml:"interactive_expiration_ms"`     // 150 (by default)
	InteractiveDevExpirationMS int64 `yaml:"interactive_dev_expiration_ms"` // 500 (by default)
	InteractiveBucketMS        int64 `yaml:"interactive_bucket_ms"`         // 100 (by default)
	AsyncExpirationMS          int64 `yaml:"async_expiration_ms"`           // 5000 (by default)
	AsyncBucketMS              int64 `yaml:"async_bucket_ms"`               // 250 (by default)
	Development                bool  `yaml:"development"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the values used when no config file is given.
func DefaultConfig() Config {
	return Config{
		Priority: PriorityConfig{
			ImmediateTimeoutMS:    -1,
			UserBlockingTimeoutMS: 250,
			NormalTimeoutMS:       5000,
			LowTimeoutMS:          10000,
			IdleTimeoutMS:         1<<30 - 1,
		},
		Frame: FrameConfig{
			InitialFrameMS:          33,
			MinFrameMS:              8,
			AnimationFrameTimeoutMS: 100,
			RefreshHz:               60,
		},
		Expiration: ExpirationConfig{
			UnitMS:                     10,
			InteractiveExpirationMS:    150,
			InteractiveDevExpirationMS: 500,
			InteractiveBucketMS:        100,
			AsyncExpirationMS:          5000,
			AsyncBucketMS:              250,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file means
// defaults only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.clamp()
	return cfg, nil
}

// clamp restores defaults for values that would reorder levels or break bucketing.
func (c *Config) clamp() {
	def := DefaultConfig()

	p := &c.Priority
	if p.UserBlockingTimeoutMS <= 0 {
		p.UserBlockingTimeoutMS = def.Priority.UserBlockingTimeoutMS
	}
	if p.NormalTimeoutMS < p.UserBlockingTimeoutMS {
		p.NormalTimeoutMS = max(def.Priority.NormalTimeoutMS, p.UserBlockingTimeoutMS)
	}
	if p.LowTimeoutMS < p.NormalTimeoutMS {
		p.LowTimeoutMS = max(def.Priority.LowTimeoutMS, p.NormalTimeoutMS)
	}
	if p.IdleTimeoutMS < p.LowTimeoutMS {
		p.IdleTimeoutMS = def.Priority.IdleTimeoutMS
	}
	if p.ImmediateTimeoutMS > 0 {
		p.ImmediateTimeoutMS = def.Priority.ImmediateTimeoutMS
	}

	f := &c.Frame
	if f.MinFrameMS <= 0 {
		f.MinFrameMS = def.Frame.MinFrameMS
	}
	if f.InitialFrameMS < f.MinFrameMS {
		f.InitialFrameMS = max(def.Frame.InitialFrameMS, f.MinFrameMS)
	}
	if f.AnimationFrameTimeoutMS <= 0 {
		f.AnimationFrameTimeoutMS = def.Frame.AnimationFrameTimeoutMS
	}
	if f.RefreshHz < 0 {
		f.RefreshHz = 0
	}

	e := &c.Expiration
	if e.UnitMS <= 0 {
		e.UnitMS = def.Expiration.UnitMS
	}
	if e.InteractiveBucketMS < e.UnitMS {
		e.InteractiveBucketMS = max(def.Expiration.InteractiveBucketMS, e.UnitMS)
	}
	if e.AsyncBucketMS < e.UnitMS {
		e.AsyncBucketMS = max(def.Expiration.AsyncBucketMS, e.UnitMS)
	}
	if e.InteractiveExpirationMS < 0 {
		e.InteractiveExpirationMS = def.Expiration.InteractiveExpirationMS
	}
	if e.InteractiveDevExpirationMS < 0 {
		e.InteractiveDevExpirationMS = def.Expiration.InteractiveDevExpirationMS
	}
	if e.AsyncExpirationMS < 0 {
		e.AsyncExpirationMS = def.Expiration.AsyncExpirationMS
	}
}

func millis(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

// Timeouts converts the priority section.
func (c Config) Timeouts() priority.Timeouts {
	return priority.Timeouts{
		Immediate:    millis(c.Priority.ImmediateTimeoutMS),
		UserBlocking: millis(c.Priority.UserBlockingTimeoutMS),
		Normal:       millis(c.Priority.NormalTimeoutMS),
		Low:          millis(c.Priority.LowTimeoutMS),
		Idle:         millis(c.Priority.IdleTimeoutMS),
	}
}

// Pump converts the frame section.
func (c Config) Pump() frame.Config {
	return frame.Config{
		InitialFrameTime:      millis(c.Frame.InitialFrameMS),
		MinFrameTime:          millis(c.Frame.MinFrameMS),
		AnimationFrameTimeout: millis(c.Frame.AnimationFrameTimeoutMS),
	}
}

// ExpirationModel converts the expiration section. Inference thresholds come
// from the priority section so both directions agree.
func (c Config) ExpirationModel() expiration.Config {
	e := c.Expiration
	return expiration.Config{
		Unit:                     millis(e.UnitMS),
		InteractiveExpiration:    millis(e.InteractiveExpirationMS),
		InteractiveDevExpiration: millis(e.InteractiveDevExpirationMS),
		InteractiveBucket:        millis(e.InteractiveBucketMS),
		AsyncExpiration:          millis(e.AsyncExpirationMS),
		AsyncBucket:              millis(e.AsyncBucketMS),
		Development:              e.Development,
		Thresholds:               c.Timeouts(),
	}
}
