// Package config loads threadlab settings: built-in defaults, an optional YAML
// file, then THREADLAB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full threadlab configuration.
type Config struct {
	Seed    uint64        `yaml:"seed"`
	Logging LoggingConfig `yaml:"logging"`
	Lessons LessonConfig  `yaml:"lessons"`
	Trace   TraceConfig   `yaml:"trace"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// LessonConfig holds the knobs each lesson reads. Durations are YAML strings
// such as "500ms".
type LessonConfig struct {
	// ProdConsMaxDelay bounds the random pause before each produce/consume.
	ProdConsMaxDelay Duration `yaml:"prodcons_max_delay"`
	// WrongProdConsTakes bounds the unguarded consumer, which may never see 'Z'.
	WrongProdConsTakes int `yaml:"wrong_prodcons_takes"`

	BankIterations int      `yaml:"bank_iterations"`
	BankMaxDelay   Duration `yaml:"bank_max_delay"`
	// DeadlockTimeout is how long the deadlock watchdog waits for progress.
	DeadlockTimeout Duration `yaml:"deadlock_timeout"`
	FailOnDeadlock  bool     `yaml:"fail_on_deadlock"`

	PiTerms        int      `yaml:"pi_terms"`
	PiPollInterval Duration `yaml:"pi_poll_interval"`
	ScheduleRounds int      `yaml:"schedule_rounds"`

	DaemonGrace    Duration `yaml:"daemon_grace"`
	DaemonTicks    int      `yaml:"daemon_ticks"`
	DaemonInterval Duration `yaml:"daemon_interval"`

	BoxesDuration Duration `yaml:"boxes_duration"`
	BoxesMax      int      `yaml:"boxes_max"`

	PriorityDuration Duration `yaml:"priority_duration"`

	YieldIncrements int `yaml:"yield_increments"`

	LocalReads  int `yaml:"local_reads"`
	LocalSerial int `yaml:"local_serial"`

	InterruptAfter Duration `yaml:"interrupt_after"`
}

// TraceConfig controls trace capture around lesson runs.
type TraceConfig struct {
	Dir      string   `yaml:"dir"`
	Keep     bool     `yaml:"keep"`
	MinBlock Duration `yaml:"min_block"`
}

// Duration is a time.Duration that reads and writes as a string in YAML.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration. Timings follow the classic
// samples except where the original would run for minutes.
func Default() *Config {
	return &Config{
		Seed: 1,
		Lessons: LessonConfig{
			ProdConsMaxDelay:   Duration(4 * time.Second),
			WrongProdConsTakes: 26,
			BankIterations:     100,
			BankMaxDelay:       Duration(time.Second),
			DeadlockTimeout:    Duration(2 * time.Second),
			PiTerms:            100000,
			PiPollInterval:     Duration(10 * time.Millisecond),
			ScheduleRounds:     5,
			DaemonGrace:        Duration(100 * time.Millisecond),
			DaemonTicks:        20,
			DaemonInterval:     Duration(20 * time.Millisecond),
			BoxesDuration:      Duration(100 * time.Millisecond),
			BoxesMax:           5,
			PriorityDuration:   Duration(10 * time.Second),
			YieldIncrements:    50000,
			LocalReads:         10,
			LocalSerial:        100,
			InterruptAfter:     Duration(2 * time.Second),
		},
		Trace: TraceConfig{
			MinBlock: Duration(time.Second),
		},
	}
}

// Load returns defaults overlaid with the YAML file at path (if path is
// non-empty) and then with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("THREADLAB_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("THREADLAB_SEED: %w", err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("THREADLAB_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("THREADLAB_VERBOSE: %w", err)
		}
		c.Logging.Verbose = b
	}
	if v := os.Getenv("THREADLAB_TRACE_DIR"); v != "" {
		c.Trace.Dir = v
	}
	return nil
}

// Validate rejects settings no lesson can run with.
func (c *Config) Validate() error {
	l := c.Lessons
	var errs []error
	for name, d := range map[string]Duration{
		"prodcons_max_delay": l.ProdConsMaxDelay,
		"bank_max_delay":     l.BankMaxDelay,
		"deadlock_timeout":   l.DeadlockTimeout,
		"pi_poll_interval":   l.PiPollInterval,
		"daemon_grace":       l.DaemonGrace,
		"daemon_interval":    l.DaemonInterval,
		"boxes_duration":     l.BoxesDuration,
		"priority_duration":  l.PriorityDuration,
		"interrupt_after":    l.InterruptAfter,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("lessons.%s must not be negative", name))
		}
	}
	for name, n := range map[string]int{
		"wrong_prodcons_takes": l.WrongProdConsTakes,
		"bank_iterations":      l.BankIterations,
		"pi_terms":             l.PiTerms,
		"schedule_rounds":      l.ScheduleRounds,
		"daemon_ticks":         l.DaemonTicks,
		"yield_increments":     l.YieldIncrements,
		"local_reads":          l.LocalReads,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("lessons.%s must be positive", name))
		}
	}
	if l.DeadlockTimeout == 0 {
		errs = append(errs, errors.New("lessons.deadlock_timeout must be set"))
	}
	return errors.Join(errs...)
}
