package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liquidbox.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[step]
hz = 120

[run]
scene = "scenes/dam.yaml"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Step.Hz != 120 {
		t.Errorf("hz = %v, want 120", cfg.Step.Hz)
	}
	if cfg.Step.VelocityIterations != 8 || cfg.Step.PositionIterations != 3 {
		t.Errorf("iterations = %d/%d, want defaults 8/3", cfg.Step.VelocityIterations, cfg.Step.PositionIterations)
	}
	if cfg.World.Gravity != [2]float64{0, -10} {
		t.Errorf("gravity = %v, want default", cfg.World.Gravity)
	}
	if cfg.Run.Scene != "scenes/dam.yaml" || cfg.Run.Renderer != "trace" {
		t.Errorf("run = %+v", cfg.Run)
	}
	if got := cfg.TimeStep(); got != 1.0/120 {
		t.Errorf("TimeStep = %v", got)
	}
}

func TestLoadOverridesWorld(t *testing.T) {
	path := writeConfig(t, `
[world]
gravity = [0.0, -9.8]
allow_sleep = false
sub_stepping = true

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Gravity != [2]float64{0, -9.8} || cfg.World.AllowSleep || !cfg.World.SubStepping {
		t.Errorf("world = %+v", cfg.World)
	}
	if !cfg.World.WarmStarting {
		t.Error("warm_starting default lost")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
[step]
hz = 0
velocity_iterations = -1

[run]
renderer = "opengl"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load accepted an invalid config")
	}
	for _, want := range []error{ErrInvalidHz, ErrInvalidIterations, ErrInvalidRenderer} {
		if !errors.Is(err, want) {
			t.Errorf("error %v does not wrap %v", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "[step\nhz = ")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed TOML")
	}
}
