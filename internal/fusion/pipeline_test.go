package fusion

import (
	"context"
	"errors"
	gomath "math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Faultbox/meshfuse/internal/camera"
	"github.com/Faultbox/meshfuse/internal/pointcloud"
	"github.com/Faultbox/meshfuse/internal/render"
	"github.com/Faultbox/meshfuse/internal/scene"
	"github.com/Faultbox/meshfuse/internal/surface"
	"github.com/Faultbox/meshfuse/pkg/graph"
	"github.com/Faultbox/meshfuse/pkg/math"
)

var identityPose = []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}

func newCloud(p, n math.Vec3) *pointcloud.Cloud {
	c := pointcloud.New(1)
	c.Add(p, n)
	return c
}

// twoModelGraph has two models with three frames each. Frame i uses
// fx = 10 + i so renders can be traced back to their frame.
func twoModelGraph() *graph.Graph {
	g := &graph.Graph{
		Models: []graph.Model{
			{ID: 0, WorldTModel: identityPose, Filename: "0000.ply", FrameIDs: []int{0, 1, 2}},
			{ID: 1, WorldTModel: []float64{1, 0, 0, 10, 0, 1, 0, 0, 0, 0, 1, 0}, Filename: "0001.ply", FrameIDs: []int{3, 4, 5}},
		},
	}
	for i := 0; i < 6; i++ {
		g.Frames = append(g.Frames, graph.Frame{
			ID:          i,
			Timestamp:   float64(i),
			ModelTFrame: identityPose,
			Projection:  []float64{10 + float64(i), 10, 2, 2},
			ModelID:     i / 3,
		})
	}
	return g
}

// recordingRenderer returns fully valid maps at depth 1 and records which
// frames were rendered.
type recordingRenderer struct {
	mu     sync.Mutex
	frames []int
}

func (r *recordingRenderer) Render(cam *camera.Camera, model scene.Model, depthRatio float64) (*render.Maps, error) {
	r.mu.Lock()
	r.frames = append(r.frames, int(cam.Fx)-10)
	r.mu.Unlock()

	m := render.NewMaps(cam.Width, cam.Height)
	for i := range m.Depth {
		m.Depth[i] = 1
		m.Alpha[i] = 1
		m.Normal[i] = math.Vec3{Z: -1}
	}
	return m, nil
}

func emptyLoader(paths *[]string) scene.Loader {
	return func(path string) (scene.Model, error) {
		if paths != nil {
			*paths = append(*paths, path)
		}
		return scene.NewGaussianModel(nil), nil
	}
}

func testOptions() Options {
	return Options{
		Interval:     2,
		Samples:      100,
		MinOpacity:   0.5,
		MaxDepthDist: 0.1,
		Width:        4,
		Height:       4,
		NbNeighbors:  20,
		StdRatio:     2,
		Surface:      surface.DefaultParams(),
	}
}

func TestFuseSelectsGlobalFrames(t *testing.T) {
	renderer := &recordingRenderer{}
	var loaded []string
	p := New(testOptions(), renderer, emptyLoader(&loaded), nil)

	var observed []int
	var keptFlags []bool
	p.Progress = ObserverFunc(func(frameID int, kept bool) {
		observed = append(observed, frameID)
		keptFlags = append(keptFlags, kept)
	})

	cloud, stats, err := p.Fuse(context.Background(), twoModelGraph(), "/data/run")
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}

	wantFrames := []int{0, 2, 4}
	if len(renderer.frames) != len(wantFrames) {
		t.Fatalf("expected frames %v rendered, got %v", wantFrames, renderer.frames)
	}
	for i, f := range wantFrames {
		if renderer.frames[i] != f {
			t.Errorf("render %d: expected frame %d, got %d", i, f, renderer.frames[i])
		}
	}

	if cloud.Len() != 300 {
		t.Errorf("expected 300 merged points, got %d", cloud.Len())
	}
	if stats.Frames != 6 || stats.Kept != 3 || stats.Skipped != 3 || stats.Empty != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.MergedPoints != 300 {
		t.Errorf("expected 300 merged points in stats, got %d", stats.MergedPoints)
	}

	wantLoaded := []string{filepath.Join("/data/run", "0000.ply"), filepath.Join("/data/run", "0001.ply")}
	if len(loaded) != 2 || loaded[0] != wantLoaded[0] || loaded[1] != wantLoaded[1] {
		t.Errorf("expected scene loads %v, got %v", wantLoaded, loaded)
	}

	if len(observed) != 6 {
		t.Fatalf("expected 6 progress notifications, got %d", len(observed))
	}
	for i, kept := range keptFlags {
		if observed[i] != i {
			t.Errorf("notification %d: expected frame %d, got %d", i, i, observed[i])
		}
		if kept != (i%2 == 0) {
			t.Errorf("notification %d (frame %d): kept=%v", i, observed[i], kept)
		}
	}
}

func TestFuseNotifiesInFrameOrder(t *testing.T) {
	g := twoModelGraph()
	g.Models[0].FrameIDs = []int{2, 0, 1}

	for _, workers := range []int{1, 3} {
		opts := testOptions()
		opts.Interval = 1
		opts.Workers = workers
		p := New(opts, &recordingRenderer{}, emptyLoader(nil), nil)

		var observed []int
		p.Progress = ObserverFunc(func(frameID int, kept bool) {
			if !kept {
				t.Errorf("workers=%d: frame %d reported as skipped", workers, frameID)
			}
			observed = append(observed, frameID)
		})

		if _, _, err := p.Fuse(context.Background(), g, "/data/run"); err != nil {
			t.Fatalf("workers=%d: Fuse: %v", workers, err)
		}
		want := []int{2, 0, 1, 3, 4, 5}
		if len(observed) != len(want) {
			t.Fatalf("workers=%d: expected notifications %v, got %v", workers, want, observed)
		}
		for i := range want {
			if observed[i] != want[i] {
				t.Errorf("workers=%d: expected notifications %v, got %v", workers, want, observed)
				break
			}
		}
	}
}

func TestFuseAppliesModelPose(t *testing.T) {
	p := New(testOptions(), &recordingRenderer{}, emptyLoader(nil), nil)

	cloud, _, err := p.Fuse(context.Background(), twoModelGraph(), "")
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}

	// Frames 0 and 2 come from model 0, frame 4 from model 1 at x+10.
	for i, pt := range cloud.Points {
		shifted := pt.X > 5
		if shifted != (i >= 200) {
			t.Fatalf("point %d at %v is in the wrong model frame", i, pt)
		}
		if gomath.Abs(pt.Z-1) > 1e-12 {
			t.Fatalf("point %d: expected z=1, got %f", i, pt.Z)
		}
	}
}

func TestFuseWorkersMatchSequential(t *testing.T) {
	g := twoModelGraph()
	opts := testOptions()
	opts.Interval = 1
	opts.Seed = 42

	seq, _, err := New(opts, &recordingRenderer{}, emptyLoader(nil), nil).Fuse(context.Background(), g, "")
	if err != nil {
		t.Fatalf("sequential Fuse: %v", err)
	}

	opts.Workers = 3
	par, _, err := New(opts, &recordingRenderer{}, emptyLoader(nil), nil).Fuse(context.Background(), g, "")
	if err != nil {
		t.Fatalf("parallel Fuse: %v", err)
	}

	if seq.Len() != 600 || par.Len() != seq.Len() {
		t.Fatalf("expected 600 points from both runs, got %d and %d", seq.Len(), par.Len())
	}
	for i := range seq.Points {
		if seq.Points[i] != par.Points[i] {
			t.Fatalf("point %d differs between sequential and parallel runs", i)
		}
	}
}

func TestFuseEmptyFrames(t *testing.T) {
	blank := render.RendererFunc(func(cam *camera.Camera, model scene.Model, ratio float64) (*render.Maps, error) {
		return render.NewMaps(cam.Width, cam.Height), nil
	})
	p := New(testOptions(), blank, emptyLoader(nil), nil)

	cloud, stats, err := p.Fuse(context.Background(), twoModelGraph(), "")
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if cloud.Len() != 0 {
		t.Errorf("expected an empty cloud, got %d points", cloud.Len())
	}
	if stats.Empty != 3 {
		t.Errorf("expected 3 empty frames, got %d", stats.Empty)
	}

	if _, err := p.Run(context.Background(), twoModelGraph(), ""); !errors.Is(err, surface.ErrReconstruction) {
		t.Errorf("expected ErrReconstruction for an empty cloud, got %v", err)
	}
}

func TestFuseConsistency(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *graph.Graph)
	}{
		{"wrong owner", func(g *graph.Graph) { g.Frames[2].ModelID = 1 }},
		{"unknown frame", func(g *graph.Graph) { g.Models[1].FrameIDs[1] = 42 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := twoModelGraph()
			tt.mutate(g)
			p := New(testOptions(), &recordingRenderer{}, emptyLoader(nil), nil)
			if _, _, err := p.Fuse(context.Background(), g, ""); !errors.Is(err, ErrConsistency) {
				t.Errorf("expected ErrConsistency, got %v", err)
			}
		})
	}
}

func TestFuseErrors(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name     string
		renderer render.Renderer
		loader   scene.Loader
		want     error
	}{
		{
			name:     "loader failure",
			renderer: &recordingRenderer{},
			loader:   func(string) (scene.Model, error) { return nil, errBoom },
			want:     errBoom,
		},
		{
			name: "renderer failure",
			renderer: render.RendererFunc(func(*camera.Camera, scene.Model, float64) (*render.Maps, error) {
				return nil, errBoom
			}),
			loader: emptyLoader(nil),
			want:   errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(testOptions(), tt.renderer, tt.loader, nil)
			if _, _, err := p.Fuse(context.Background(), twoModelGraph(), ""); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFuseWrongMapSize(t *testing.T) {
	small := render.RendererFunc(func(cam *camera.Camera, model scene.Model, ratio float64) (*render.Maps, error) {
		return render.NewMaps(1, 1), nil
	})
	p := New(testOptions(), small, emptyLoader(nil), nil)
	if _, _, err := p.Fuse(context.Background(), twoModelGraph(), ""); err == nil {
		t.Error("expected an error for mismatched map size")
	}
}

func TestFuseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		opts := testOptions()
		opts.Workers = workers
		p := New(opts, &recordingRenderer{}, emptyLoader(nil), nil)
		if _, _, err := p.Fuse(ctx, twoModelGraph(), ""); !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: expected context.Canceled, got %v", workers, err)
		}
	}
}

// sphereRenderer ray-casts the unit sphere at the model origin.
var sphereRenderer = render.RendererFunc(func(cam *camera.Camera, model scene.Model, ratio float64) (*render.Maps, error) {
	m := render.NewMaps(cam.Width, cam.Height)
	origin := cam.Pose.Translation()
	for y := 0; y < cam.Height; y++ {
		for x := 0; x < cam.Width; x++ {
			// Camera-frame ray with unit z, so the hit parameter is the z-depth.
			dir := cam.Pose.TransformDirection(cam.Unproject(float64(x), float64(y), 1))
			b := origin.Dot(dir)
			a := dir.Dot(dir)
			c := origin.Dot(origin) - 1
			disc := b*b - a*c
			if disc < 0 {
				continue
			}
			t := (-b - gomath.Sqrt(disc)) / a
			i := cam.Index(x, y)
			m.Depth[i] = t
			m.Alpha[i] = 1
			m.Normal[i] = origin.Add(dir.Scale(t)).Normalize()
		}
	}
	return m, nil
})

func TestRunReconstructsSphere(t *testing.T) {
	views := []math.Mat4{
		math.Translate(0, 0, -3),
		math.Translate(0, 0, 3).Mul(math.RotateY(gomath.Pi)),
		math.Translate(-3, 0, 0).Mul(math.RotateY(gomath.Pi / 2)),
		math.Translate(3, 0, 0).Mul(math.RotateY(-gomath.Pi / 2)),
		math.Translate(0, -3, 0).Mul(math.RotateX(-gomath.Pi / 2)),
		math.Translate(0, 3, 0).Mul(math.RotateX(gomath.Pi / 2)),
	}

	g := &graph.Graph{Models: []graph.Model{{ID: 0, WorldTModel: identityPose, Filename: "0000.ply"}}}
	for i, pose := range views {
		rows := pose.Pose3x4()
		g.Models[0].FrameIDs = append(g.Models[0].FrameIDs, i)
		g.Frames = append(g.Frames, graph.Frame{
			ID:          i,
			ModelTFrame: rows[:],
			Projection:  []float64{40, 40, 16, 16},
			ModelID:     0,
		})
	}

	opts := testOptions()
	opts.Interval = 1
	opts.Samples = 500
	opts.Width = 32
	opts.Height = 32
	opts.Workers = 2
	opts.Surface.Depth = new(int)
	*opts.Surface.Depth = 5
	opts.Surface.MinDensity = 0.05
	opts.SaveCloud = filepath.Join(t.TempDir(), "cloud.ply")

	res, err := New(opts, sphereRenderer, emptyLoader(nil), nil).Run(context.Background(), g, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Kept != 6 || res.Stats.MergedPoints != 3000 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
	if len(res.Mesh.Faces) == 0 {
		t.Fatal("expected a non-empty mesh")
	}
	if len(res.Mesh.Normals) != len(res.Mesh.Vertices) {
		t.Errorf("expected per-vertex normals")
	}
	if _, err := os.Stat(opts.SaveCloud); err != nil {
		t.Errorf("merged cloud was not saved: %v", err)
	}
}
