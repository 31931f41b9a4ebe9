package fusion

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshfuse/internal/camera"
	"github.com/Faultbox/meshfuse/internal/pointcloud"
	"github.com/Faultbox/meshfuse/internal/render"
	"github.com/Faultbox/meshfuse/internal/scene"
	"github.com/Faultbox/meshfuse/internal/surface"
	"github.com/Faultbox/meshfuse/pkg/formats"
	"github.com/Faultbox/meshfuse/pkg/graph"
)

// ErrConsistency is returned when a model's frame list disagrees with the
// frame records.
var ErrConsistency = errors.New("graph consistency violation")

// Options configures a fusion run.
type Options struct {
	Interval       int
	Samples        int
	MinOpacity     float64
	MaxDepthDist   float64
	UseMedianDepth bool
	Width          int
	Height         int

	// Workers renders the kept frames of one model concurrently when > 1.
	Workers int
	// Seed makes sampling reproducible. Each frame derives its own stream.
	Seed uint64

	NbNeighbors int
	StdRatio    float64

	Surface surface.Params

	// SaveCloud, when set, receives the merged cloud before outlier removal.
	SaveCloud     string
	CloudEncoding formats.Encoding
}

// Observer is notified once per frame in processing order.
type Observer interface {
	FrameDone(frameID int, kept bool)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(frameID int, kept bool)

// FrameDone calls f.
func (f ObserverFunc) FrameDone(frameID int, kept bool) {
	f(frameID, kept)
}

// Stats summarizes a run.
type Stats struct {
	Frames        int // visited
	Kept          int
	Skipped       int // by the selector
	Empty         int // kept but without valid pixels
	MergedPoints  int
	RemovedPoints int // by outlier removal
}

// Result is the output of a full run.
type Result struct {
	Mesh  *surface.Mesh
	Stats Stats
}

// Pipeline drives frame selection, rendering, sampling and alignment,
// followed by outlier removal and surface reconstruction.
type Pipeline struct {
	Options  Options
	Renderer render.Renderer
	Loader   scene.Loader
	Progress Observer
	Logger   *zap.Logger
}

// New creates a pipeline. A nil logger disables logging.
func New(opts Options, renderer render.Renderer, loader scene.Loader, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Options:  opts,
		Renderer: renderer,
		Loader:   loader,
		Logger:   logger,
	}
}

// Run fuses every selected frame of g and reconstructs a mesh from the
// merged cloud. Scene model files are resolved against graphDir.
func (p *Pipeline) Run(ctx context.Context, g *graph.Graph, graphDir string) (*Result, error) {
	merged, stats, err := p.Fuse(ctx, g, graphDir)
	if err != nil {
		return nil, err
	}

	if p.Options.SaveCloud != "" {
		if err := merged.Save(p.Options.SaveCloud, p.Options.CloudEncoding); err != nil {
			return nil, fmt.Errorf("saving merged cloud: %w", err)
		}
		p.Logger.Info("Saved merged point cloud", zap.String("path", p.Options.SaveCloud))
	}

	p.Logger.Debug("Removing statistical outliers",
		zap.Int("nb_neighbors", p.Options.NbNeighbors),
		zap.Float64("std_ratio", p.Options.StdRatio))
	filtered, removed, err := pointcloud.RemoveStatisticalOutliers(merged, p.Options.NbNeighbors, p.Options.StdRatio)
	if err != nil {
		return nil, err
	}
	stats.RemovedPoints = removed
	p.Logger.Info("Removed outliers", zap.Int("removed", removed), zap.Int("remaining", filtered.Len()))

	mesh, err := surface.NewReconstructor(p.Options.Surface, p.Logger.Named("surface")).Reconstruct(ctx, filtered)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("Reconstructed mesh",
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Int("faces", len(mesh.Faces)))

	return &Result{Mesh: mesh, Stats: stats}, nil
}

// frameJob is a visited frame. Only kept frames are rendered.
type frameJob struct {
	id    int
	kept  bool
	frame *graph.Frame
	cloud *pointcloud.Cloud // nil when the frame had no valid pixels
}

// Fuse renders, samples and aligns every selected frame and returns the
// merged world-frame cloud.
func (p *Pipeline) Fuse(ctx context.Context, g *graph.Graph, graphDir string) (*pointcloud.Cloud, Stats, error) {
	var stats Stats
	selector := Selector{Interval: p.Options.Interval}
	aligner := NewAligner()

	running := 0
	for mi := range g.Models {
		model := &g.Models[mi]

		visited := make([]*frameJob, 0, len(model.FrameIDs))
		var jobs []*frameJob
		for _, fid := range model.FrameIDs {
			index := running
			running++
			stats.Frames++

			if !selector.Keep(index) {
				stats.Skipped++
				visited = append(visited, &frameJob{id: fid})
				continue
			}

			frame, ok := g.Frame(fid)
			if !ok {
				return nil, stats, fmt.Errorf("%w: model %d lists unknown frame %d", ErrConsistency, model.ID, fid)
			}
			if frame.ModelID != model.ID {
				return nil, stats, fmt.Errorf("%w: frame %d belongs to model %d, listed by model %d",
					ErrConsistency, fid, frame.ModelID, model.ID)
			}
			job := &frameJob{id: fid, kept: true, frame: frame}
			visited = append(visited, job)
			jobs = append(jobs, job)
		}

		if len(jobs) > 0 {
			path := filepath.Join(graphDir, model.Filename)
			p.Logger.Debug("Loading scene model", zap.Int("model", model.ID), zap.String("path", path))
			sceneModel, err := p.Loader(path)
			if err != nil {
				return nil, stats, fmt.Errorf("loading model %d: %w", model.ID, err)
			}

			if err := p.renderFrames(ctx, sceneModel, jobs); err != nil {
				return nil, stats, err
			}
		}

		worldTModel := model.Pose()
		for _, job := range visited {
			if job.kept {
				stats.Kept++
				if job.cloud == nil {
					stats.Empty++
				} else {
					aligner.Add(job.cloud, worldTModel)
				}
			}
			p.notify(job.id, job.kept)
		}
	}

	merged := aligner.Cloud()
	stats.MergedPoints = merged.Len()
	p.Logger.Info("Merged point cloud",
		zap.Int("points", merged.Len()),
		zap.Int("frames", stats.Kept-stats.Empty))
	return merged, stats, nil
}

// renderFrames fills in the cloud of every job. Jobs keep their order
// regardless of the number of workers.
func (p *Pipeline) renderFrames(ctx context.Context, sceneModel scene.Model, jobs []*frameJob) error {
	if p.Options.Workers <= 1 {
		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.renderFrame(sceneModel, job); err != nil {
				return err
			}
		}
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.Options.Workers)
	for _, job := range jobs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return p.renderFrame(sceneModel, job)
		})
	}
	return eg.Wait()
}

// renderFrame runs camera reconstruction, rendering, filtering and sampling
// for one frame. The rendered maps are dropped once sampled.
func (p *Pipeline) renderFrame(sceneModel scene.Model, job *frameJob) error {
	frame := job.frame
	cam := camera.FromProjection(frame.Intrinsics(), p.Options.Width, p.Options.Height, frame.Pose())

	maps, err := p.Renderer.Render(cam, sceneModel, render.DepthRatio(p.Options.UseMedianDepth))
	if err != nil {
		return fmt.Errorf("rendering frame %d: %w", frame.ID, err)
	}
	if maps == nil {
		return fmt.Errorf("rendering frame %d: renderer returned no maps", frame.ID)
	}
	if maps.Width != cam.Width || maps.Height != cam.Height {
		return fmt.Errorf("rendering frame %d: got %dx%d maps for a %dx%d camera",
			frame.ID, maps.Width, maps.Height, cam.Width, cam.Height)
	}

	invalid := Filter{MinOpacity: p.Options.MinOpacity, MaxDepthDist: p.Options.MaxDepthDist}.Apply(maps)

	rng := rand.New(rand.NewPCG(p.Options.Seed, uint64(frame.ID)))
	cloud, err := Sampler{Samples: p.Options.Samples}.Sample(cam, maps, invalid, rng)
	if errors.Is(err, ErrEmptySample) {
		p.Logger.Warn("Skipping frame without valid samples", zap.Int("frame", frame.ID))
		return nil
	}
	if err != nil {
		return err
	}
	job.cloud = cloud
	return nil
}

func (p *Pipeline) notify(frameID int, kept bool) {
	if p.Progress != nil {
		p.Progress.FrameDone(frameID, kept)
	}
}
