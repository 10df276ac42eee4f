package config

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/san-kum/mdsim/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Name != "lj" {
		t.Errorf("expected name lj, got %s", cfg.Name)
	}
	if cfg.Integrator.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("kob-andersen")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.System.Density != 1.2 {
		t.Errorf("expected density 1.2, got %f", cfg.System.Density)
	}

	cfg.System.Density = 5
	if again := GetPreset("kob-andersen"); again.System.Density != 1.2 {
		t.Error("presets must not share state")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestPresetsValidate(t *testing.T) {
	names := ListPresets()
	if len(names) != 5 {
		t.Errorf("expected 5 presets, got %v", names)
	}
	for _, name := range names {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"lattice", func(c *Config) { c.System.Lattice = "hcp" }, "system.lattice"},
		{"dim", func(c *Config) { c.System.Dim = 4 }, "system.dim"},
		{"density", func(c *Config) { c.System.Density = 0 }, "system.density"},
		{"infinite density", func(c *Config) { c.System.Density = math.Inf(1) }, "system.density"},
		{"no particles", func(c *Config) { c.System.Particles = 0 }, "system.particles"},
		{"no interactions", func(c *Config) { c.Interactions = nil }, "interactions"},
		{"kind", func(c *Config) { c.Interactions[0].Kind = "angle" }, "interactions[0].kind"},
		{"empty interaction", func(c *Config) { c.Interactions[0].Builtin = "" }, "interactions[0]"},
		{"skin", func(c *Config) { c.Neighbor.Skin = -1 }, "neighbor.skin"},
		{"scheme", func(c *Config) { c.Integrator.Scheme = "rk4" }, "integrator.scheme"},
		{"dt", func(c *Config) { c.Integrator.Dt = 0 }, "integrator.dt"},
		{"thermostat target", func(c *Config) { c.Integrator.Scheme = "langevin" }, "integrator.temperature"},
		{"nvu barostat", func(c *Config) {
			c.Integrator.Scheme = "nvu"
			c.Integrator.Barostat = &BarostatConfig{Tau: 1, Compressibility: 1}
		}, "integrator.barostat"},
		{"nvu u0", func(c *Config) {
			u0 := math.NaN()
			c.Integrator.Scheme = "nvu"
			c.Integrator.U0 = &u0
		}, "integrator.u0"},
		{"report", func(c *Config) { c.Run.ReportInterval = 0 }, "run.report_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *dynamo.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cerr.Field)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimer.yaml")
	if err := Save(path, GetPreset("dimer")); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Interactions) != 2 {
		t.Fatalf("expected 2 interactions, got %d", len(cfg.Interactions))
	}
	if !cfg.Interactions[1].Dimers || cfg.Interactions[1].Coeffs[0][0] != 100 {
		t.Errorf("bond interaction not preserved: %+v", cfg.Interactions[1])
	}
	if cfg.Integrator.Temperature == nil || cfg.Integrator.Temperature.Value != 1 {
		t.Errorf("temperature schedule not preserved: %+v", cfg.Integrator.Temperature)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MDSIM_WORKERS", "3")
	t.Setenv("MDSIM_DATA_DIR", "/tmp/md")

	e, err := LoadEnv()
	if err != nil {
		t.Fatal(err)
	}
	if e.DataDir != "/tmp/md" || e.LogLevel != "info" {
		t.Errorf("unexpected env %+v", e)
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(e)
	if cfg.Compute.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Compute.Workers)
	}

	t.Setenv("MDSIM_WORKERS", "many")
	if _, err := LoadEnv(); err == nil {
		t.Error("expected an error for a non-numeric worker count")
	}
}
