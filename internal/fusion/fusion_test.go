package fusion

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/Faultbox/meshfuse/internal/camera"
	"github.com/Faultbox/meshfuse/internal/render"
	"github.com/Faultbox/meshfuse/pkg/math"
)

func TestSelectorKeep(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		want     []int
	}{
		{"every other", 2, []int{0, 2, 4}},
		{"every third", 3, []int{0, 3}},
		{"one keeps all", 1, []int{0, 1, 2, 3, 4, 5}},
		{"zero keeps all", 0, []int{0, 1, 2, 3, 4, 5}},
		{"negative keeps all", -4, []int{0, 1, 2, 3, 4, 5}},
		{"larger than sequence", 10, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Selector{Interval: tt.interval}
			var got []int
			for i := 0; i < 6; i++ {
				if s.Keep(i) {
					got = append(got, i)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestFilterThresholds(t *testing.T) {
	f := Filter{MinOpacity: 0.5, MaxDepthDist: 0.1}

	tests := []struct {
		name    string
		alpha   float64
		dist    float64
		invalid bool
	}{
		{"good pixel", 0.9, 0.01, false},
		{"opacity at threshold", 0.5, 0.01, false},
		{"distortion at threshold", 0.9, 0.1, false},
		{"low opacity", 0.49, 0.01, true},
		{"high distortion", 0.9, 0.11, true},
		{"both bad", 0.1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Invalid(tt.alpha, tt.dist); got != tt.invalid {
				t.Errorf("Invalid(%v, %v): expected %v, got %v", tt.alpha, tt.dist, tt.invalid, got)
			}
		})
	}
}

func TestFilterApply(t *testing.T) {
	m := render.NewMaps(2, 1)
	m.Alpha = []float64{1, 0}
	m.Depth = []float64{2, 3}
	m.Normal = []math.Vec3{{Z: 1}, {Z: 1}}

	invalid := Filter{MinOpacity: 0.5, MaxDepthDist: 1}.Apply(m)
	if invalid[0] || !invalid[1] {
		t.Fatalf("unexpected mask %v", invalid)
	}
	if m.Depth[0] != 2 || m.Normal[0] != (math.Vec3{Z: 1}) {
		t.Errorf("valid pixel was modified")
	}
	if m.Depth[1] != 0 || m.Normal[1] != (math.Vec3{}) {
		t.Errorf("invalid pixel was not zeroed: depth %f normal %v", m.Depth[1], m.Normal[1])
	}
}

func TestSamplerBackProjection(t *testing.T) {
	// Camera one unit behind the model origin.
	cam := camera.FromProjection([4]float64{2, 2, 1, 1}, 2, 2, math.Translate(0, 0, -1))
	m := render.NewMaps(2, 2)
	for i := range m.Depth {
		m.Depth[i] = 4
		m.Normal[i] = math.Vec3{Z: -1}
	}
	// Only pixel (1, 1), on the principal point, is valid.
	invalid := []bool{true, true, true, false}

	c, err := Sampler{Samples: 5}.Sample(cam, m, invalid, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if c.Len() != 5 {
		t.Fatalf("expected 5 samples with replacement, got %d", c.Len())
	}
	for i, p := range c.Points {
		if !p.ApproxEqual(math.Vec3{Z: 3}, 1e-12) {
			t.Errorf("sample %d: expected (0,0,3), got %v", i, p)
		}
		if c.Normals[i] != (math.Vec3{Z: -1}) {
			t.Errorf("sample %d: normal %v", i, c.Normals[i])
		}
	}
}

func TestSamplerDeterministic(t *testing.T) {
	cam := camera.FromProjection([4]float64{4, 4, 4, 4}, 8, 8, math.Identity())
	m := render.NewMaps(8, 8)
	for i := range m.Depth {
		m.Depth[i] = float64(i + 1)
	}
	invalid := make([]bool, m.Len())

	a, err := Sampler{Samples: 20}.Sample(cam, m, invalid, rand.New(rand.NewPCG(7, 3)))
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	b, err := Sampler{Samples: 20}.Sample(cam, m, invalid, rand.New(rand.NewPCG(7, 3)))
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	for i := range a.Points {
		if a.Points[i] != b.Points[i] {
			t.Fatalf("sample %d differs for the same seed", i)
		}
	}
}

func TestSamplerEmpty(t *testing.T) {
	cam := camera.FromProjection([4]float64{1, 1, 0, 0}, 2, 2, math.Identity())
	m := render.NewMaps(2, 2)
	invalid := []bool{true, true, true, true}

	_, err := Sampler{Samples: 10}.Sample(cam, m, invalid, rand.New(rand.NewPCG(0, 0)))
	if !errors.Is(err, ErrEmptySample) {
		t.Errorf("expected ErrEmptySample, got %v", err)
	}
}

func TestAlignerAppliesModelPose(t *testing.T) {
	a := NewAligner()

	first := newCloud(math.Vec3{X: 1}, math.Vec3{X: 1})
	a.Add(first, math.Identity())

	second := newCloud(math.Vec3{X: 1}, math.Vec3{X: 1})
	a.Add(second, math.Translate(10, 0, 0).Mul(math.RotateZ(0)))

	c := a.Cloud()
	if c.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", c.Len())
	}
	if !c.Points[0].ApproxEqual(math.Vec3{X: 1}, 1e-12) {
		t.Errorf("first point: got %v", c.Points[0])
	}
	if !c.Points[1].ApproxEqual(math.Vec3{X: 11}, 1e-12) {
		t.Errorf("second point: got %v", c.Points[1])
	}
	if !c.Normals[1].ApproxEqual(math.Vec3{X: 1}, 1e-12) {
		t.Errorf("normal should not be translated, got %v", c.Normals[1])
	}
}
