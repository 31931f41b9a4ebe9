package surface

import (
	"context"
	"fmt"
	"sort"

	"github.com/unixpickle/model3d/model3d"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/meshfuse/internal/pointcloud"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Marching-cubes bisection steps used to refine vertex positions.
const searchIterations = 8

// Reconstructor turns oriented point clouds into meshes.
type Reconstructor struct {
	Params Params
	Logger *zap.Logger
}

// NewReconstructor creates a reconstructor. A nil logger disables logging.
func NewReconstructor(p Params, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{Params: p, Logger: logger}
}

// Reconstruct builds a mesh from the cloud. Vertices carry the sample
// density of their neighborhood, and pruning by MinDensity is applied when
// it is positive.
func (r *Reconstructor) Reconstruct(ctx context.Context, cloud *pointcloud.Cloud) (*Mesh, error) {
	if cloud == nil || cloud.Len() == 0 {
		return nil, fmt.Errorf("%w: empty point cloud", ErrReconstruction)
	}

	mode := SelectMode(r.Params.Depth, r.Params.Width)
	lo, hi := cloud.Bounds()
	g, err := planGrid(lo, hi, r.Params, mode)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("Poisson reconstruction",
		zap.Stringer("mode", mode),
		zap.Int("grid", g.n),
		zap.Float64("cell", g.cell),
		zap.Int("points", cloud.Len()))

	vx := make([]float64, g.size())
	vy := make([]float64, g.size())
	vz := make([]float64, g.size())
	density := make([]float64, g.size())
	for i, p := range cloud.Points {
		n := cloud.Normals[i]
		g.corners(p, func(idx int, w float64) {
			vx[idx] += w * n.X
			vy[idx] += w * n.Y
			vz[idx] += w * n.Z
			density[idx] += w
		})
	}
	for _, vals := range [][]float64{vx, vy, vz, density} {
		g.smooth(vals, r.Params.SmoothingPasses)
	}

	chi, iters, err := solveIndicator(ctx, g, g.divergence(vx, vy, vz), r.Params.SolverIterations, r.Params.SolverTolerance)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("Indicator solved", zap.Int("iterations", iters))

	atSamples := make([]float64, cloud.Len())
	for i, p := range cloud.Points {
		atSamples[i] = g.sample(chi, p)
	}
	iso := stat.Mean(atSamples, nil)

	solid := model3d.CheckedFuncSolid(toCoord(g.origin), toCoord(g.max()), func(c model3d.Coord3D) bool {
		return g.sample(chi, fromCoord(c)) < iso
	})
	mesh := indexMesh(model3d.MarchingCubesSearch(solid, g.cell, searchIterations).TriangleSlice())
	if len(mesh.Faces) == 0 {
		return nil, fmt.Errorf("%w: empty mesh", ErrReconstruction)
	}

	mesh.Densities = make([]float64, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		mesh.Densities[i] = g.sample(density, v)
	}

	if r.Params.MinDensity > 0 {
		before := len(mesh.Vertices)
		mesh = PruneByDensity(mesh, r.Params.MinDensity)
		r.Logger.Debug("Pruned low-density vertices", zap.Int("removed", before-len(mesh.Vertices)))
		if len(mesh.Faces) == 0 {
			return nil, fmt.Errorf("%w: no faces left after density pruning", ErrReconstruction)
		}
	}

	ComputeVertexNormals(mesh)
	return mesh, nil
}

// indexMesh welds a triangle soup into an indexed mesh. Triangles are sorted
// first so the output does not depend on extraction order.
func indexMesh(tris []*model3d.Triangle) *Mesh {
	sort.Slice(tris, func(i, j int) bool {
		return lessTriangle(tris[i], tris[j])
	})

	mesh := &Mesh{Faces: make([][3]int, 0, len(tris))}
	ids := make(map[model3d.Coord3D]int, len(tris))
	for _, t := range tris {
		var face [3]int
		for k, c := range t {
			id, ok := ids[c]
			if !ok {
				id = len(mesh.Vertices)
				ids[c] = id
				mesh.Vertices = append(mesh.Vertices, fromCoord(c))
			}
			face[k] = id
		}
		if face[0] == face[1] || face[1] == face[2] || face[0] == face[2] {
			continue
		}
		mesh.Faces = append(mesh.Faces, face)
	}
	return mesh
}

func lessTriangle(a, b *model3d.Triangle) bool {
	for k := 0; k < 3; k++ {
		if a[k] != b[k] {
			return lessCoord(a[k], b[k])
		}
	}
	return false
}

func lessCoord(a, b model3d.Coord3D) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

func toCoord(v math.Vec3) model3d.Coord3D {
	return model3d.XYZ(v.X, v.Y, v.Z)
}

func fromCoord(c model3d.Coord3D) math.Vec3 {
	return math.Vec3{X: c.X, Y: c.Y, Z: c.Z}
}
