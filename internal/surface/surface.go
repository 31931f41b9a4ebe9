// Package surface reconstructs a triangle mesh from an oriented point cloud
// by solving a Poisson problem on a regular grid.
package surface

import (
	"errors"

	"github.com/Faultbox/meshfuse/pkg/formats"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// ErrReconstruction is returned when no mesh can be produced from the input.
var ErrReconstruction = errors.New("surface reconstruction failed")

// Mode selects how the grid resolution is derived.
type Mode int

const (
	// ModeDepth uses 2^depth cells along the longest axis.
	ModeDepth Mode = iota
	// ModeWidth uses a fixed cell width.
	ModeWidth
)

func (m Mode) String() string {
	if m == ModeWidth {
		return "width"
	}
	return "depth"
}

// SelectMode picks the resolution mode. Width mode wins when no depth is
// given, or when the depth is negative and a positive width is set.
func SelectMode(depth *int, width *float64) Mode {
	if depth == nil || (*depth < 0 && width != nil && *width > 0) {
		return ModeWidth
	}
	return ModeDepth
}

// Params controls reconstruction.
type Params struct {
	Depth *int
	Width *float64

	// MinDensity is the density quantile below which vertices are pruned.
	// Zero disables pruning.
	MinDensity float64

	// Scale pads the bounding cube of the samples.
	Scale float64

	// MaxResolution limits the number of cells per axis. Requests above it
	// fail instead of being coarsened. Zero leaves only the built-in limit.
	MaxResolution int

	SmoothingPasses  int
	SolverIterations int
	SolverTolerance  float64
}

// DefaultParams returns depth-8 reconstruction without pruning.
func DefaultParams() Params {
	depth := 8
	return Params{
		Depth:            &depth,
		Scale:            1.1,
		MaxResolution:    256,
		SmoothingPasses:  2,
		SolverIterations: 1000,
		SolverTolerance:  1e-6,
	}
}

// Mesh is an indexed triangle mesh. Normals and Densities are per vertex
// and may be empty.
type Mesh struct {
	Vertices  []math.Vec3
	Normals   []math.Vec3
	Faces     [][3]int
	Densities []float64
}

// Save writes the mesh as PLY.
func (m *Mesh) Save(path string, enc formats.Encoding) error {
	return formats.SaveMeshPLY(path, enc, m.Vertices, m.Normals, m.Faces)
}
