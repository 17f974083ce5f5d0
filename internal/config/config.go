// Package config loads the governor daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/worldland/gpugov/internal/dvfs"
)

var (
	ErrInvalidRange    = errors.New("invalid clock range")
	ErrInvalidInterval = errors.New("invalid poll interval")
	ErrInvalidWeights  = errors.New("weight_class needs exactly two entries")
	ErrInvalidTuning   = errors.New("invalid governor tuning")
)

// GovernorConfig overrides the table or start clock of one governor
type GovernorConfig struct {
	Table      dvfs.Table `yaml:"table,omitempty"`
	StartClock int        `yaml:"start_clock,omitempty"`
}

// LogConfig selects the log level and output colouring
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// Config holds configuration for one governed GPU
type Config struct {
	// Device is the NVML index of the GPU
	Device int `yaml:"device"`

	// Governor is the governor selected at start-up and restored after assist mode
	// Default: "Interactive"
	Governor string `yaml:"governor"`

	// Table is the operating-point table shared by every governor without an override
	Table dvfs.Table `yaml:"table"`

	// StartClock is the clock a governor starts at when selected
	StartClock int `yaml:"start_clock"`

	// Governors holds per-governor overrides keyed by governor name
	Governors map[string]GovernorConfig `yaml:"governors,omitempty"`

	MaxClock           int  `yaml:"max_clock"`
	MinClock           int  `yaml:"min_clock"`
	MaxClockLimit      int  `yaml:"max_clock_limit"`
	MinClockLimit      int  `yaml:"min_clock_limit"`
	UsingMaxLimitClock bool `yaml:"using_max_limit_clock"`

	// MaxLock and MinLock are the clocks the static governor turns at; 0 unlocks
	MaxLock int `yaml:"max_lock"`
	MinLock int `yaml:"min_lock"`

	// FreqMargin is added to the joint target in 1/1000 of the headroom,
	// and to the interactive load in tenths
	FreqMargin     int                    `yaml:"freq_margin"`
	InteractiveFix bool                   `yaml:"interactive_fix"`
	Interactive    dvfs.InteractiveParams `yaml:"interactive"`

	// WeightClass picks the two predictor coefficient rows (0..10)
	WeightClass []int `yaml:"weight_class"`

	BoostDisabled bool `yaml:"boost_disabled"`

	// PollInterval is the sampling period
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// AssistPollInterval replaces PollInterval while assist mode is on
	// Default: 10ms
	AssistPollInterval time.Duration `yaml:"assist_poll_interval"`

	// Listen is the status endpoint address; empty disables it
	// Default: "127.0.0.1:9400"
	Listen string `yaml:"listen"`

	Log LogConfig `yaml:"log"`
}

// DefaultTable is a graphics clock table in MHz for a typical data-centre GPU
func DefaultTable() dvfs.Table {
	return dvfs.Table{
		{Clock: 1980, MaxThreshold: 100, MinThreshold: 80, DownStaycount: 1},
		{Clock: 1755, MaxThreshold: 95, MinThreshold: 70, DownStaycount: 1},
		{Clock: 1530, MaxThreshold: 90, MinThreshold: 60, DownStaycount: 2},
		{Clock: 1305, MaxThreshold: 85, MinThreshold: 55, DownStaycount: 2},
		{Clock: 1080, MaxThreshold: 80, MinThreshold: 50, DownStaycount: 3},
		{Clock: 855, MaxThreshold: 75, MinThreshold: 45, DownStaycount: 3},
		{Clock: 630, MaxThreshold: 70, MinThreshold: 40, DownStaycount: 3},
		{Clock: 405, MaxThreshold: 65, MinThreshold: 0, DownStaycount: 3},
	}
}

// DefaultConfig returns default governor configuration
func DefaultConfig() Config {
	return Config{
		Governor:   dvfs.GovernorInteractive.String(),
		Table:      DefaultTable(),
		StartClock: 1080,
		MaxClock:   1980,
		MinClock:   405,
		FreqMargin: 100,
		Interactive: dvfs.InteractiveParams{
			HighspeedClock: 1530,
			HighspeedLoad:  95,
			HighspeedDelay: 1,
		},
		WeightClass:        []int{1, 9},
		PollInterval:       100 * time.Millisecond,
		AssistPollInterval: 10 * time.Millisecond,
		Listen:             "127.0.0.1:9400",
		Log:                LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the config is consistent
func (c *Config) Validate() error {
	if _, err := dvfs.ParseGovernor(c.Governor); err != nil {
		return fmt.Errorf("governor %q: %w", c.Governor, err)
	}
	if err := c.Table.Validate(); err != nil {
		return err
	}
	for name, g := range c.Governors {
		if _, err := dvfs.ParseGovernor(name); err != nil {
			return fmt.Errorf("governors.%s: %w", name, err)
		}
		if len(g.Table) > 0 {
			if err := g.Table.Validate(); err != nil {
				return fmt.Errorf("governors.%s: %w", name, err)
			}
		}
	}

	if c.MinClock <= 0 || c.MaxClock < c.MinClock {
		return fmt.Errorf("%w: min %d max %d", ErrInvalidRange, c.MinClock, c.MaxClock)
	}
	if c.MaxClockLimit != 0 && (c.MaxClockLimit < c.MinClock || c.MaxClockLimit > c.MaxClock) {
		return fmt.Errorf("%w: max_clock_limit %d outside [%d, %d]", ErrInvalidRange, c.MaxClockLimit, c.MinClock, c.MaxClock)
	}
	if c.MinClockLimit != 0 && (c.MinClockLimit < c.MinClock || c.MinClockLimit > c.MaxClock) {
		return fmt.Errorf("%w: min_clock_limit %d outside [%d, %d]", ErrInvalidRange, c.MinClockLimit, c.MinClock, c.MaxClock)
	}
	if err := c.checkStartClock("start_clock", c.StartClock); err != nil {
		return err
	}
	for name, g := range c.Governors {
		if g.StartClock == 0 {
			continue
		}
		if err := c.checkStartClock("governors."+name+".start_clock", g.StartClock); err != nil {
			return err
		}
	}
	for _, lock := range []struct {
		name  string
		clock int
	}{{"max_lock", c.MaxLock}, {"min_lock", c.MinLock}} {
		if lock.clock != 0 && (lock.clock < c.MinClock || lock.clock > c.MaxClock) {
			return fmt.Errorf("%w: %s %d outside [%d, %d]", ErrInvalidRange, lock.name, lock.clock, c.MinClock, c.MaxClock)
		}
	}
	if c.MaxLock != 0 && c.MinLock > c.MaxLock {
		return fmt.Errorf("%w: min_lock %d above max_lock %d", ErrInvalidRange, c.MinLock, c.MaxLock)
	}

	if len(c.WeightClass) != 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidWeights, len(c.WeightClass))
	}
	if c.FreqMargin < 0 {
		return fmt.Errorf("%w: freq_margin %d", ErrInvalidTuning, c.FreqMargin)
	}
	if l := c.Interactive.HighspeedLoad; l < 0 || l > 100 {
		return fmt.Errorf("%w: highspeed_load %d", ErrInvalidTuning, l)
	}
	if c.Interactive.HighspeedDelay < 0 {
		return fmt.Errorf("%w: highspeed_delay %d", ErrInvalidTuning, c.Interactive.HighspeedDelay)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval %s", ErrInvalidInterval, c.PollInterval)
	}
	if c.AssistPollInterval <= 0 {
		return fmt.Errorf("%w: assist_poll_interval %s", ErrInvalidInterval, c.AssistPollInterval)
	}
	return nil
}

// maxEffectiveClock is the highest clock a governor may start at
func (c *Config) maxEffectiveClock() int {
	if c.UsingMaxLimitClock && c.MaxClockLimit != 0 {
		return c.MaxClockLimit
	}
	return c.MaxClock
}

func (c *Config) checkStartClock(name string, clock int) error {
	if clock < c.MinClock || clock > c.maxEffectiveClock() {
		return fmt.Errorf("%w: %s %d outside [%d, %d]", ErrInvalidRange, name, clock, c.MinClock, c.maxEffectiveClock())
	}
	return nil
}

// GovernorID returns the configured start-up governor
func (c *Config) GovernorID() dvfs.GovernorID {
	id, _ := dvfs.ParseGovernor(c.Governor)
	return id
}

// Params converts the tuning fields into dispatcher parameters
func (c *Config) Params() dvfs.Params {
	p := dvfs.Params{
		MaxClock:           c.MaxClock,
		MinClock:           c.MinClock,
		MaxClockLimit:      c.MaxClockLimit,
		MinClockLimit:      c.MinClockLimit,
		UsingMaxLimitClock: c.UsingMaxLimitClock,
		FreqMargin:         c.FreqMargin,
		InteractiveFix:     c.InteractiveFix,
		Interactive:        c.Interactive,
		BoostDisabled:      c.BoostDisabled,
		AssistPollInterval: c.AssistPollInterval,
	}
	copy(p.WeightClass[:], c.WeightClass)
	return p
}

// NewDispatcher builds a dispatcher with every governor's table and start
// clock installed and the configured governor selected
func (c *Config) NewDispatcher(hooks dvfs.Hooks, logger *slog.Logger) (*dvfs.Dispatcher, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	d := dvfs.NewDispatcher(c.Params(), hooks, logger)
	for _, id := range dvfs.AllGovernors() {
		table, start := c.Table, c.StartClock
		if g, ok := c.governorOverride(id); ok {
			if len(g.Table) > 0 {
				table = g.Table
			}
			if g.StartClock > 0 {
				start = g.StartClock
			}
		}
		if err := d.InstallTable(id, table); err != nil {
			return nil, err
		}
		if err := d.SetStartClock(id, start); err != nil {
			return nil, err
		}
	}

	if err := d.Init(c.GovernorID()); err != nil {
		return nil, err
	}
	if err := c.ApplyLimits(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ApplyLimits pushes the clock limits and static locks into a running
// dispatcher. The daemon calls it again when the config is reloaded.
func (c *Config) ApplyLimits(d *dvfs.Dispatcher) error {
	maxLimit, minLimit := c.MaxClockLimit, c.MinClockLimit
	if maxLimit == 0 {
		maxLimit = c.MaxClock
	}
	if minLimit == 0 {
		minLimit = c.MinClock
	}
	if err := d.SetMaxClockLimit(maxLimit); err != nil {
		return err
	}
	if err := d.SetMinClockLimit(minLimit); err != nil {
		return err
	}
	d.SetLocks(c.MaxLock, c.MinLock)
	return nil
}

// governorOverride looks an override up by case-insensitive governor name
func (c *Config) governorOverride(id dvfs.GovernorID) (GovernorConfig, bool) {
	for name, g := range c.Governors {
		if parsed, err := dvfs.ParseGovernor(name); err == nil && parsed == id {
			return g, true
		}
	}
	return GovernorConfig{}, false
}

// SlogLevel parses the configured log level, falling back to info
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
