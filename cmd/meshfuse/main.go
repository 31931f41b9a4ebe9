// meshfuse fuses the submaps of a SLAM result graph into a single mesh.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/Faultbox/meshfuse/internal/config"
	"github.com/Faultbox/meshfuse/internal/fusion"
	"github.com/Faultbox/meshfuse/internal/logger"
	"github.com/Faultbox/meshfuse/internal/render"
	"github.com/Faultbox/meshfuse/internal/scene"
	"github.com/Faultbox/meshfuse/internal/surface"
	"github.com/Faultbox/meshfuse/pkg/formats"
	"github.com/Faultbox/meshfuse/pkg/graph"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	args := config.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshfuse [flags] <graph.yaml>")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, args[0]); err != nil {
		logger.Error("fusion failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, graphPath string) error {
	g, err := graph.Load(graphPath)
	if err != nil {
		return err
	}
	logger.Info(g.String(), zap.String("path", graphPath))

	opts, err := options(cfg)
	if err != nil {
		return err
	}

	renderer := render.NewSplatRenderer()
	renderer.Near = cfg.Render.Near
	renderer.MinAlpha = cfg.Render.MinAlpha
	renderer.MinTransmittance = cfg.Render.MinTransmittance

	pipeline := fusion.New(opts, renderer, scene.LoadPLY, logger.Named("fusion"))

	bar, err := pterm.DefaultProgressbar.
		WithTotal(g.FrameCount()).
		WithTitle("Processing frames").
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return err
	}
	pipeline.Progress = fusion.ObserverFunc(func(frameID int, kept bool) {
		bar.Increment()
	})

	res, err := pipeline.Run(ctx, g, filepath.Dir(graphPath))
	_, _ = bar.Stop()
	if err != nil {
		return err
	}

	enc, err := formats.ParseEncoding(cfg.Output.Encoding)
	if err != nil {
		return err
	}
	if err := res.Mesh.Save(cfg.Output.Path, enc); err != nil {
		return fmt.Errorf("writing mesh: %w", err)
	}

	s := res.Stats
	logger.Info("Wrote mesh",
		zap.String("path", cfg.Output.Path),
		zap.Int("vertices", len(res.Mesh.Vertices)),
		zap.Int("faces", len(res.Mesh.Faces)),
		zap.Int("frames_kept", s.Kept),
		zap.Int("frames_empty", s.Empty),
		zap.Int("points_merged", s.MergedPoints),
		zap.Int("points_removed", s.RemovedPoints))
	return nil
}

// options maps the run configuration onto pipeline options.
func options(cfg *config.Config) (fusion.Options, error) {
	enc, err := formats.ParseEncoding(cfg.Output.Encoding)
	if err != nil {
		return fusion.Options{}, err
	}

	f := cfg.Fusion
	p := cfg.Poisson
	return fusion.Options{
		Interval:       f.KFInterval,
		Samples:        f.KFSamples,
		MinOpacity:     f.MinOpacity,
		MaxDepthDist:   f.MaxDepthDist,
		UseMedianDepth: f.UseMedianDepth,
		Width:          f.ImageWidth,
		Height:         f.ImageHeight,
		Workers:        f.Workers,
		Seed:           uint64(f.Seed),
		NbNeighbors:    cfg.Outlier.NbNeighbors,
		StdRatio:       cfg.Outlier.StdRatio,
		Surface: surface.Params{
			Depth:            p.Depth,
			Width:            p.Width,
			MinDensity:       p.MinDensity,
			Scale:            p.Scale,
			MaxResolution:    p.MaxResolution,
			SmoothingPasses:  p.SmoothingPasses,
			SolverIterations: p.SolverIterations,
			SolverTolerance:  p.SolverTolerance,
		},
		SaveCloud:     cfg.Output.SaveCloud,
		CloudEncoding: enc,
	}, nil
}
