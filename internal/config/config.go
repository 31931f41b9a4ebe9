// Package config handles fusion run configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/meshfuse/internal/surface"
	"github.com/Faultbox/meshfuse/pkg/formats"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all run settings.
type Config struct {
	Fusion  FusionConfig  `yaml:"fusion"`
	Render  RenderConfig  `yaml:"render"`
	Outlier OutlierConfig `yaml:"outlier"`
	Poisson PoissonConfig `yaml:"poisson"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// FusionConfig holds frame selection, filtering and sampling settings.
type FusionConfig struct {
	KFInterval     int     `yaml:"kf_interval"` // Keep every k-th frame; <= 0 keeps all
	KFSamples      int     `yaml:"kf_samples"`  // Points drawn per kept frame
	MinOpacity     float64 `yaml:"min_opacity"`
	MaxDepthDist   float64 `yaml:"max_depth_dist"`
	UseMedianDepth bool    `yaml:"use_median_depth"`
	ImageWidth     int     `yaml:"image_width"`
	ImageHeight    int     `yaml:"image_height"`
	Workers        int     `yaml:"workers"`
	Seed           int64   `yaml:"seed"`
}

// RenderConfig holds splat rasterizer settings.
type RenderConfig struct {
	Near             float64 `yaml:"near"`
	MinAlpha         float64 `yaml:"min_alpha"`
	MinTransmittance float64 `yaml:"min_transmittance"`
}

// OutlierConfig holds statistical outlier removal settings.
type OutlierConfig struct {
	NbNeighbors int     `yaml:"nb_neighbors"`
	StdRatio    float64 `yaml:"std_ratio"`
}

// PoissonConfig holds surface reconstruction settings. Depth and Width are
// optional; see surface.SelectMode for how they interact.
type PoissonConfig struct {
	Depth            *int     `yaml:"depth"`
	Width            *float64 `yaml:"width"`
	MinDensity       float64  `yaml:"min_density"` // Quantile in [0, 1)
	Scale            float64  `yaml:"scale"`
	MaxResolution    int      `yaml:"max_resolution"`
	SmoothingPasses  int      `yaml:"smoothing_passes"`
	SolverIterations int      `yaml:"solver_iterations"`
	SolverTolerance  float64  `yaml:"solver_tolerance"`
}

// OutputConfig holds output file settings.
type OutputConfig struct {
	Path      string `yaml:"path"`
	Encoding  string `yaml:"encoding"`   // "binary" or "ascii"
	SaveCloud string `yaml:"save_cloud"` // Optional merged cloud dump
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	depth := 8
	return &Config{
		Fusion: FusionConfig{
			KFInterval:   1,
			KFSamples:    10000,
			MinOpacity:   0.5,
			MaxDepthDist: 0.1,
			ImageWidth:   640,
			ImageHeight:  480,
			Workers:      1,
			Seed:         0,
		},
		Render: RenderConfig{
			Near:             0.01,
			MinAlpha:         1.0 / 255.0,
			MinTransmittance: 1e-4,
		},
		Outlier: OutlierConfig{
			NbNeighbors: 20,
			StdRatio:    2.0,
		},
		Poisson: PoissonConfig{
			Depth:            &depth,
			MinDensity:       0.05,
			Scale:            1.1,
			MaxResolution:    256,
			SmoothingPasses:  2,
			SolverIterations: 1000,
			SolverTolerance:  1e-6,
		},
		Output: OutputConfig{
			Path:     "mesh.ply",
			Encoding: "binary",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports every setting that cannot drive a run.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Fusion.KFSamples > 0, "fusion.kf_samples must be positive, got %d", c.Fusion.KFSamples)
	check(c.Fusion.ImageWidth > 0 && c.Fusion.ImageHeight > 0,
		"fusion image size must be positive, got %dx%d", c.Fusion.ImageWidth, c.Fusion.ImageHeight)
	check(c.Outlier.NbNeighbors > 0, "outlier.nb_neighbors must be positive, got %d", c.Outlier.NbNeighbors)
	check(c.Outlier.StdRatio > 0, "outlier.std_ratio must be positive, got %g", c.Outlier.StdRatio)
	check(c.Poisson.MinDensity >= 0 && c.Poisson.MinDensity < 1,
		"poisson.min_density must be in [0, 1), got %g", c.Poisson.MinDensity)
	check(c.Poisson.MaxResolution >= 0, "poisson.max_resolution must not be negative, got %d", c.Poisson.MaxResolution)
	switch surface.SelectMode(c.Poisson.Depth, c.Poisson.Width) {
	case surface.ModeWidth:
		check(c.Poisson.Width != nil && *c.Poisson.Width > 0,
			"poisson: width mode requires a positive width when depth is unset")
	default:
		depth := *c.Poisson.Depth
		check(depth >= 1, "poisson.depth must be >= 1 unless a positive width is set, got %d", depth)
		if depth >= 1 && c.Poisson.MaxResolution > 0 {
			check(depth < 31 && 1<<depth <= c.Poisson.MaxResolution,
				"poisson.depth %d needs %d cells per axis, above max_resolution %d",
				depth, uint64(1)<<min(depth, 62), c.Poisson.MaxResolution)
		}
	}
	check(c.Output.Path != "", "output.path is required")
	if _, encErr := formats.ParseEncoding(c.Output.Encoding); encErr != nil {
		check(false, "output.encoding: %v", encErr)
	}
	return err
}
