package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidate_Default(t *testing.T) {
	assert.Empty(t, Default().Validate())
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"young modulus", func(c *Config) { c.Material.YoungModulus = 0 }, "young modulus"},
		{"poisson ratio", func(c *Config) { c.Material.PoissonRatio = 0.5 }, "poisson ratio"},
		{"solver method", func(c *Config) { c.Solver.Method = "gmres" }, "solver method"},
		{"workers", func(c *Config) { c.Solver.Workers = -2 }, "workers"},
		{"partition", func(c *Config) { c.Solver.Partition = "metis" }, "partition strategy"},
		{"device partitions", func(c *Config) { c.Device.Enabled = true; c.Device.Partitions = 0 }, "device partitions"},
		{"seam", func(c *Config) { c.Seam.Tolerance = -1 }, "seam tolerance"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.True(t, hasWarning(cfg.Validate(), tt.want), "want warning about %s", tt.want)
		})
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilefem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
material:
  young_modulus: 210000
  poisson_ratio: 0.25
solver:
  method: dense
  workers: 2
seam:
  tolerance: 0.001
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 210000.0, cfg.Material.YoungModulus)
	assert.Equal(t, 0.25, cfg.Material.PoissonRatio)
	assert.Equal(t, "dense", cfg.Solver.Method)
	assert.Equal(t, 2, cfg.Solver.Workers)
	assert.Equal(t, 0.001, cfg.Seam.Tolerance)
	assert.Equal(t, "json", cfg.Log.Format)
	// unset keys keep their defaults
	assert.Equal(t, "block", cfg.Solver.Partition)
	assert.Equal(t, "tilefem", cfg.Tracing.ServiceName)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TILEFEM_SOLVER_METHOD", "dense")
	t.Setenv("TILEFEM_MATERIAL_POISSON_RATIO", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dense", cfg.Solver.Method)
	assert.Equal(t, 0.0, cfg.Material.PoissonRatio)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
