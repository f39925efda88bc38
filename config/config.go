package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/notargets/tilefem/material"
	"github.com/notargets/tilefem/partitions"
	"github.com/notargets/tilefem/solver"
	"github.com/spf13/viper"
)

// Config holds all solver configuration.
type Config struct {
	Material MaterialConfig `mapstructure:"material"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Device   DeviceConfig   `mapstructure:"device"`
	Seam     SeamConfig     `mapstructure:"seam"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type MaterialConfig struct {
	YoungModulus float64 `mapstructure:"young_modulus"`
	PoissonRatio float64 `mapstructure:"poisson_ratio"`
}

// Material converts the section to a material model.
func (c MaterialConfig) Material() material.Material {
	return material.Material{YoungModulus: c.YoungModulus, PoissonRatio: c.PoissonRatio}
}

type SolverConfig struct {
	Method    string `mapstructure:"method"`    // band or dense
	Workers   int    `mapstructure:"workers"`   // goroutines for element loops
	Partition string `mapstructure:"partition"` // block or roundrobin
}

// DeviceConfig selects OCCA stress recovery. When disabled, or when no
// listed mode can be opened, stresses are recovered on the host.
type DeviceConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Modes      []string `mapstructure:"modes"`
	Partitions int      `mapstructure:"partitions"`
}

type SeamConfig struct {
	// Tolerance for automatic weld discovery. Zero disables it.
	Tolerance float64 `mapstructure:"tolerance"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	m := material.Default()
	return &Config{
		Material: MaterialConfig{YoungModulus: m.YoungModulus, PoissonRatio: m.PoissonRatio},
		Solver:   SolverConfig{Method: solver.MethodBand, Workers: 4, Partition: "block"},
		Device:   DeviceConfig{Modes: []string{"openmp", "cuda", "serial"}, Partitions: 16},
		Log:      LogConfig{Level: "info", Format: "text"},
		Tracing:  TracingConfig{ServiceName: "tilefem", SampleRate: 1.0},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("material.young_modulus", d.Material.YoungModulus)
	v.SetDefault("material.poisson_ratio", d.Material.PoissonRatio)
	v.SetDefault("solver.method", d.Solver.Method)
	v.SetDefault("solver.workers", d.Solver.Workers)
	v.SetDefault("solver.partition", d.Solver.Partition)
	v.SetDefault("device.enabled", d.Device.Enabled)
	v.SetDefault("device.modes", d.Device.Modes)
	v.SetDefault("device.partitions", d.Device.Partitions)
	v.SetDefault("seam.tolerance", d.Seam.Tolerance)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	warnings = append(warnings, c.Material.Material().Validate()...)

	if _, err := solver.New(c.Solver.Method); err != nil {
		warnings = append(warnings, fmt.Sprintf("solver method '%s' is unknown, using band", c.Solver.Method))
	}
	if c.Solver.Workers < 0 {
		warnings = append(warnings, fmt.Sprintf("solver workers %d is negative", c.Solver.Workers))
	}
	if _, err := partitions.ParseStrategy(c.Solver.Partition); err != nil {
		warnings = append(warnings, fmt.Sprintf("partition strategy '%s' is unknown, using block", c.Solver.Partition))
	}

	if c.Device.Enabled && c.Device.Partitions < 1 {
		warnings = append(warnings, fmt.Sprintf("device partitions %d should be at least 1", c.Device.Partitions))
	}

	if c.Seam.Tolerance < 0 {
		warnings = append(warnings, fmt.Sprintf("seam tolerance %g is negative, auto weld disabled", c.Seam.Tolerance))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("log level '%s' is unknown", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("log format '%s' is unknown", c.Log.Format))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment. An empty path
// yields the defaults with environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TILEFEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
