package pointcloud

import (
	"errors"
	gomath "math"
	"path/filepath"
	"testing"

	"github.com/Faultbox/meshfuse/pkg/formats"
	"github.com/Faultbox/meshfuse/pkg/math"
)

func TestCloudTransform(t *testing.T) {
	c := New(1)
	c.Add(math.Vec3{X: 1}, math.Vec3{X: 1})

	m := math.Translate(0, 0, 5).Mul(math.RotateZ(gomath.Pi / 2))
	c.Transform(m)

	if !c.Points[0].ApproxEqual(math.Vec3{Y: 1, Z: 5}, 1e-9) {
		t.Errorf("point: got %v", c.Points[0])
	}
	if !c.Normals[0].ApproxEqual(math.Vec3{Y: 1}, 1e-9) {
		t.Errorf("normal should only be rotated, got %v", c.Normals[0])
	}
}

func TestCloudAppendOrder(t *testing.T) {
	a := New(0)
	a.Add(math.Vec3{X: 1}, math.Vec3{Z: 1})
	b := New(0)
	b.Add(math.Vec3{X: 2}, math.Vec3{Z: 1})
	b.Add(math.Vec3{X: 3}, math.Vec3{Z: 1})

	a.Append(b)
	a.Append(nil)

	if a.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", a.Len())
	}
	for i, want := range []float64{1, 2, 3} {
		if a.Points[i].X != want {
			t.Errorf("point %d: expected x=%f, got %f", i, want, a.Points[i].X)
		}
	}
}

func TestCloudBounds(t *testing.T) {
	c := New(0)
	lo, hi := c.Bounds()
	if lo != (math.Vec3{}) || hi != (math.Vec3{}) {
		t.Errorf("empty bounds should be zero, got %v %v", lo, hi)
	}

	c.Add(math.Vec3{X: -1, Y: 2, Z: 0}, math.Vec3{})
	c.Add(math.Vec3{X: 3, Y: -2, Z: 1}, math.Vec3{})
	lo, hi = c.Bounds()
	if lo != (math.Vec3{X: -1, Y: -2}) || hi != (math.Vec3{X: 3, Y: 2, Z: 1}) {
		t.Errorf("bounds: got %v %v", lo, hi)
	}
}

func TestCloudSave(t *testing.T) {
	c := New(0)
	c.Add(math.Vec3{X: 1}, math.Vec3{Z: 1})
	path := filepath.Join(t.TempDir(), "cloud.ply")
	if err := c.Save(path, formats.ASCII); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func planeWithOutlier() *Cloud {
	c := New(101)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			c.Add(math.Vec3{X: float64(i) * 0.1, Y: float64(j) * 0.1}, math.Vec3{Z: 1})
		}
	}
	c.Add(math.Vec3{X: 100, Y: 100, Z: 100}, math.Vec3{Z: 1})
	return c
}

func TestRemoveStatisticalOutliers(t *testing.T) {
	c := planeWithOutlier()

	filtered, removed, err := RemoveStatisticalOutliers(c, DefaultNeighbors, DefaultStdRatio)
	if err != nil {
		t.Fatalf("RemoveStatisticalOutliers: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed point, got %d", removed)
	}
	if filtered.Len() != 100 {
		t.Fatalf("expected 100 remaining points, got %d", filtered.Len())
	}
	for _, p := range filtered.Points {
		if p.Z != 0 {
			t.Errorf("outlier survived: %v", p)
		}
	}
	if c.Len() != 101 {
		t.Errorf("input cloud was modified")
	}
}

func TestRemoveStatisticalOutliersEdgeCases(t *testing.T) {
	filtered, removed, err := RemoveStatisticalOutliers(New(0), 20, 2.0)
	if err != nil || removed != 0 || filtered.Len() != 0 {
		t.Errorf("empty cloud: got %d points, %d removed, err %v", filtered.Len(), removed, err)
	}

	single := New(0)
	single.Add(math.Vec3{}, math.Vec3{Z: 1})
	filtered, _, err = RemoveStatisticalOutliers(single, 20, 2.0)
	if err != nil || filtered.Len() != 1 {
		t.Errorf("single point should be kept, got %d (err %v)", filtered.Len(), err)
	}

	tests := []struct {
		name string
		nb   int
		std  float64
	}{
		{"zero neighbors", 0, 2.0},
		{"zero ratio", 20, 0},
		{"negative ratio", 20, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := RemoveStatisticalOutliers(planeWithOutlier(), tt.nb, tt.std)
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}
