package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	World   WorldConfig   `toml:"world"`
	Step    StepConfig    `toml:"step"`
	Logging LoggingConfig `toml:"logging"`
	Run     RunConfig     `toml:"run"`
}

type WorldConfig struct {
	Gravity         [2]float64 `toml:"gravity"`
	AllowSleep      bool       `toml:"allow_sleep"`
	WarmStarting    bool       `toml:"warm_starting"`
	Continuous      bool       `toml:"continuous"`
	SubStepping     bool       `toml:"sub_stepping"`
	AutoClearForces bool       `toml:"auto_clear_forces"`
}

type StepConfig struct {
	Hz                 float64 `toml:"hz"`
	VelocityIterations int     `toml:"velocity_iterations"`
	PositionIterations int     `toml:"position_iterations"`
	ParticleIterations int     `toml:"particle_iterations"` // 0 = recommended for the scene
	Steps              int     `toml:"steps"`               // 0 = run until quit
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RunConfig struct {
	Scene           string  `toml:"scene"`
	Script          string  `toml:"script"`
	Renderer        string  `toml:"renderer"` // "tui" or "trace"
	Sound           bool    `toml:"sound"`
	ImpactThreshold float64 `toml:"impact_threshold"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() *Config {
	return &Config{
		World: WorldConfig{
			Gravity:         [2]float64{0, -10},
			AllowSleep:      true,
			WarmStarting:    true,
			Continuous:      true,
			SubStepping:     false,
			AutoClearForces: true,
		},
		Step: StepConfig{
			Hz:                 60,
			VelocityIterations: 8,
			PositionIterations: 3,
			ParticleIterations: 0,
			Steps:              0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Run: RunConfig{
			Renderer:        "trace",
			ImpactThreshold: 1.0,
		},
	}
}

var (
	ErrInvalidHz         = errors.New("step.hz must be positive")
	ErrInvalidIterations = errors.New("iteration counts must not be negative")
	ErrInvalidRenderer   = errors.New(`run.renderer must be "tui" or "trace"`)
	ErrInvalidThreshold  = errors.New("run.impact_threshold must not be negative")
)

func (c *Config) Validate() error {
	var errs []error
	if !(c.Step.Hz > 0) {
		errs = append(errs, ErrInvalidHz)
	}
	if c.Step.VelocityIterations < 0 || c.Step.PositionIterations < 0 ||
		c.Step.ParticleIterations < 0 || c.Step.Steps < 0 {
		errs = append(errs, ErrInvalidIterations)
	}
	switch c.Run.Renderer {
	case "tui", "trace":
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrInvalidRenderer, c.Run.Renderer))
	}
	if c.Run.ImpactThreshold < 0 {
		errs = append(errs, ErrInvalidThreshold)
	}
	return errors.Join(errs...)
}

// TimeStep returns the seconds per step.
func (c *Config) TimeStep() float64 {
	return 1.0 / c.Step.Hz
}
