// Package config provides configuration loading and management for zspacing.
// It handles loading configuration from YAML or TOML files and provides
// default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"zspacing/internal/logging"
	"zspacing/pkg/export"
	"zspacing/pkg/inference"
	"zspacing/pkg/scaling"
)

// Config represents the application configuration.
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores" toml:"numCores"`
	} `yaml:"processing" toml:"processing"`

	// Solver parameters, see inference.Options
	Solver struct {
		ComparisonRange                   int     `yaml:"comparisonRange" toml:"comparisonRange"`
		Iterations                        int     `yaml:"iterations" toml:"iterations"`
		ShiftProportion                   float64 `yaml:"shiftProportion" toml:"shiftProportion"`
		ForceMonotonicity                 bool    `yaml:"forceMonotonicity" toml:"forceMonotonicity"`
		WithReorder                       bool    `yaml:"withReorder" toml:"withReorder"`
		ScalingFactorEstimationIterations int     `yaml:"scalingFactorEstimationIterations" toml:"scalingFactorEstimationIterations"`
		ScalingFactorRegularizerWeight    float64 `yaml:"scalingFactorRegularizerWeight" toml:"scalingFactorRegularizerWeight"`

		// RegularizationType is NONE or BORDER
		RegularizationType string `yaml:"regularizationType" toml:"regularizationType"`

		// EstimateWindowRadius of 0 fits one global curve
		EstimateWindowRadius    int     `yaml:"estimateWindowRadius" toml:"estimateWindowRadius"`
		MinimumSectionThickness float64 `yaml:"minimumSectionThickness" toml:"minimumSectionThickness"`
		FitRegularizerWeight    float64 `yaml:"fitRegularizerWeight" toml:"fitRegularizerWeight"`
	} `yaml:"solver" toml:"solver"`

	// Output parameters
	Output struct {
		// Directory receives the result files
		Directory string `yaml:"directory" toml:"directory"`

		// SaveIterations writes coordinate and fit tables after every iteration
		SaveIterations bool `yaml:"saveIterations" toml:"saveIterations"`

		// SnapshotEvery refreshes the resumable run snapshot every N
		// iterations; 0 only writes the final one
		SnapshotEvery int `yaml:"snapshotEvery" toml:"snapshotEvery"`

		// RenderMatrix writes the similarity matrix on the corrected axis as JPEG
		RenderMatrix bool    `yaml:"renderMatrix" toml:"renderMatrix"`
		RenderStep   float64 `yaml:"renderStep" toml:"renderStep"`
		// RenderMaxSize caps the rendered edge in pixels; negative disables
		// the cap
		RenderMaxSize int `yaml:"renderMaxSize" toml:"renderMaxSize"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`

		// File enables a rotating log file instead of stderr
		File       string `yaml:"file" toml:"file"`
		MaxSize    int    `yaml:"maxSize" toml:"maxSize"` // megabytes
		MaxAge     int    `yaml:"maxAge" toml:"maxAge"`   // days
		MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	opts := inference.DefaultOptions()

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Solver.ComparisonRange = opts.ComparisonRange
	cfg.Solver.Iterations = opts.Iterations
	cfg.Solver.ShiftProportion = opts.ShiftProportion
	cfg.Solver.ForceMonotonicity = opts.ForceMonotonicity
	cfg.Solver.WithReorder = opts.WithReorder
	cfg.Solver.ScalingFactorEstimationIterations = opts.ScalingFactorEstimationIterations
	cfg.Solver.ScalingFactorRegularizerWeight = opts.ScalingFactorRegularizerWeight
	cfg.Solver.RegularizationType = opts.Regularization.String()
	cfg.Solver.EstimateWindowRadius = opts.EstimateWindowRadius
	cfg.Solver.MinimumSectionThickness = opts.MinimumSectionThickness
	cfg.Solver.FitRegularizerWeight = opts.FitRegularizerWeight

	cfg.Output.Directory = "output"
	cfg.Output.RenderStep = 1
	cfg.Output.RenderMaxSize = export.DefaultMaxSize
	cfg.Output.Verbose = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 28

	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by the
// file extension. If the file doesn't exist, it returns the default
// configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	if isTOML(configPath) {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// ToOptions converts the solver section into validated solver options.
func (c *Config) ToOptions() (inference.Options, error) {
	reg, err := scaling.ParseRegularization(c.Solver.RegularizationType)
	if err != nil {
		return inference.Options{}, err
	}
	opts := inference.Options{
		ComparisonRange:                   c.Solver.ComparisonRange,
		Iterations:                        c.Solver.Iterations,
		ShiftProportion:                   c.Solver.ShiftProportion,
		ForceMonotonicity:                 c.Solver.ForceMonotonicity,
		WithReorder:                       c.Solver.WithReorder,
		ScalingFactorEstimationIterations: c.Solver.ScalingFactorEstimationIterations,
		ScalingFactorRegularizerWeight:    c.Solver.ScalingFactorRegularizerWeight,
		Regularization:                    reg,
		EstimateWindowRadius:              c.Solver.EstimateWindowRadius,
		MinimumSectionThickness:           c.Solver.MinimumSectionThickness,
		FitRegularizerWeight:              c.Solver.FitRegularizerWeight,
		NumWorkers:                        c.Processing.NumCores,
	}
	if err := opts.Validate(); err != nil {
		return inference.Options{}, err
	}
	return opts, nil
}

// RenderOptions returns the matrix rendering settings.
func (c *Config) RenderOptions() export.RenderOptions {
	return export.RenderOptions{Step: c.Output.RenderStep, MaxSize: c.Output.RenderMaxSize}
}

// LoggingConfig returns the logger settings. Verbose output lowers an info
// level to debug.
func (c *Config) LoggingConfig() logging.Config {
	level := c.Logging.Level
	if c.Output.Verbose && (level == "" || strings.EqualFold(level, "info")) {
		level = "debug"
	}
	return logging.Config{
		Level:  level,
		Format: c.Logging.Format,
		File: logging.FileConfig{
			Filename: c.Logging.File,
			MaxSize:  c.Logging.MaxSize,
			MaxAge:   c.Logging.MaxAge,
			Backups:  c.Logging.MaxBackups,
		},
	}
}
