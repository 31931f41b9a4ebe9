// Package scene loads the per-submap Gaussian scene models referenced by a
// graph file.
package scene

import (
	"fmt"
	gomath "math"
	"os"

	"github.com/Faultbox/meshfuse/pkg/formats"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Gaussian is an activated Gaussian primitive in model coordinates.
type Gaussian struct {
	Mean     math.Vec3
	Rotation math.Mat4 // rotation only
	Scale    math.Vec3 // standard deviations along the local axes
	Opacity  float64   // in [0, 1]
}

// Normal returns the local axis with the smallest extent, which is the
// surface normal of a flattened Gaussian or surfel.
func (g Gaussian) Normal() math.Vec3 {
	axis := 2
	if g.Scale.X < g.Scale.Y && g.Scale.X < g.Scale.Z {
		axis = 0
	} else if g.Scale.Y < g.Scale.X && g.Scale.Y < g.Scale.Z {
		axis = 1
	}
	return g.Rotation.Column(axis).Normalize()
}

// Model is a renderable scene model.
type Model interface {
	Gaussians() []Gaussian
}

// Loader loads the scene model stored at path.
type Loader func(path string) (Model, error)

// GaussianModel is an in-memory set of Gaussians.
type GaussianModel struct {
	gaussians []Gaussian
}

// NewGaussianModel wraps a set of activated Gaussians.
func NewGaussianModel(gaussians []Gaussian) *GaussianModel {
	return &GaussianModel{gaussians: gaussians}
}

// Gaussians returns the primitives of the model.
func (m *GaussianModel) Gaussians() []Gaussian {
	return m.gaussians
}

// Len returns the number of primitives.
func (m *GaussianModel) Len() int {
	return len(m.gaussians)
}

// FromSplats activates raw PLY splats: sigmoid opacity, exponential scales
// and normalized rotations. Surfels get a zero third scale.
func FromSplats(splats []formats.Splat) *GaussianModel {
	gaussians := make([]Gaussian, len(splats))
	for i, s := range splats {
		scale := math.Vec3{X: gomath.Exp(s.Scale[0]), Y: gomath.Exp(s.Scale[1])}
		if s.HasScaleZ {
			scale.Z = gomath.Exp(s.Scale[2])
		}
		q := math.QuatFromWXYZ(s.Rotation[0], s.Rotation[1], s.Rotation[2], s.Rotation[3])
		gaussians[i] = Gaussian{
			Mean:     math.Vec3{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]},
			Rotation: q.ToMat4(),
			Scale:    scale,
			Opacity:  sigmoid(s.Opacity),
		}
	}
	return NewGaussianModel(gaussians)
}

// LoadPLY loads a Gaussian model from a 3DGS or 2DGS PLY file.
func LoadPLY(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	splats, err := formats.ParseSplatPLY(data)
	if err != nil {
		return nil, fmt.Errorf("parsing scene model %s: %w", path, err)
	}
	return FromSplats(splats), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + gomath.Exp(-x))
}
