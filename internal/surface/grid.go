package surface

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/meshfuse/pkg/math"
)

// Cells of margin kept between the padded bounding cube and the grid
// boundary, where the indicator is pinned to zero.
const gridPadding = 4

// maxDepth bounds the lattice even when no resolution cap is set.
const maxDepth = 12

// grid is a cubic lattice of n*n*n nodes spaced cell apart.
type grid struct {
	n      int
	cell   float64
	origin math.Vec3
}

// planGrid sizes the lattice around the samples' bounding box.
func planGrid(lo, hi math.Vec3, p Params, mode Mode) (*grid, error) {
	ext := hi.Sub(lo)
	size := gomath.Max(ext.X, gomath.Max(ext.Y, ext.Z))
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	size *= scale
	if size <= 0 {
		return nil, fmt.Errorf("%w: degenerate bounding box", ErrReconstruction)
	}

	limit := 1 << maxDepth
	if p.MaxResolution > 0 {
		limit = min(limit, p.MaxResolution)
	}

	var cells int
	var cell float64
	switch mode {
	case ModeWidth:
		if p.Width == nil || *p.Width <= 0 {
			return nil, fmt.Errorf("%w: width mode requires a positive width", ErrReconstruction)
		}
		cell = *p.Width
		requested := gomath.Ceil(size / cell)
		if requested > float64(limit) {
			return nil, fmt.Errorf("%w: width %g needs %.0f cells per axis, limit is %d",
				ErrReconstruction, cell, requested, limit)
		}
		cells = int(requested)
	default:
		if p.Depth == nil || *p.Depth < 1 {
			return nil, fmt.Errorf("%w: depth mode requires depth >= 1", ErrReconstruction)
		}
		if *p.Depth > maxDepth || 1<<*p.Depth > limit {
			return nil, fmt.Errorf("%w: depth %d exceeds the resolution limit of %d cells per axis",
				ErrReconstruction, *p.Depth, limit)
		}
		cells = 1 << *p.Depth
		cell = size / float64(cells)
	}

	center := lo.Add(hi).Scale(0.5)
	half := (float64(cells)/2 + gridPadding) * cell
	return &grid{
		n:      cells + 2*gridPadding + 1,
		cell:   cell,
		origin: center.Sub(math.Vec3{X: half, Y: half, Z: half}),
	}, nil
}

func (g *grid) size() int {
	return g.n * g.n * g.n
}

func (g *grid) index(i, j, k int) int {
	return (k*g.n+j)*g.n + i
}

func (g *grid) max() math.Vec3 {
	ext := float64(g.n-1) * g.cell
	return g.origin.Add(math.Vec3{X: ext, Y: ext, Z: ext})
}

// locate returns the base node of the cell containing p and the fractional
// offsets inside it. Points outside the lattice are clamped.
func (g *grid) locate(p math.Vec3) (base [3]int, frac [3]float64) {
	rel := p.Sub(g.origin).Scale(1 / g.cell).Array()
	for a := 0; a < 3; a++ {
		f := gomath.Min(gomath.Max(rel[a], 0), float64(g.n-1))
		i := min(int(f), g.n-2)
		base[a] = i
		frac[a] = f - float64(i)
	}
	return base, frac
}

// corners calls fn with the index and trilinear weight of the eight nodes
// surrounding p.
func (g *grid) corners(p math.Vec3, fn func(idx int, w float64)) {
	base, frac := g.locate(p)
	for dz := 0; dz < 2; dz++ {
		wz := lerpWeight(frac[2], dz)
		for dy := 0; dy < 2; dy++ {
			wy := lerpWeight(frac[1], dy)
			for dx := 0; dx < 2; dx++ {
				wx := lerpWeight(frac[0], dx)
				fn(g.index(base[0]+dx, base[1]+dy, base[2]+dz), wx*wy*wz)
			}
		}
	}
}

func lerpWeight(f float64, side int) float64 {
	if side == 0 {
		return 1 - f
	}
	return f
}

// sample trilinearly interpolates vals at p.
func (g *grid) sample(vals []float64, p math.Vec3) float64 {
	var v float64
	g.corners(p, func(idx int, w float64) {
		v += w * vals[idx]
	})
	return v
}

// smooth applies a separable [1 2 1]/4 filter along each axis, passes times.
func (g *grid) smooth(vals []float64, passes int) {
	tmp := make([]float64, len(vals))
	strides := [3]int{1, g.n, g.n * g.n}
	for ; passes > 0; passes-- {
		for a, stride := range strides {
			for k := 0; k < g.n; k++ {
				for j := 0; j < g.n; j++ {
					for i := 0; i < g.n; i++ {
						pos := [3]int{i, j, k}[a]
						idx := g.index(i, j, k)
						prev, next := idx, idx
						if pos > 0 {
							prev = idx - stride
						}
						if pos < g.n-1 {
							next = idx + stride
						}
						tmp[idx] = 0.25*vals[prev] + 0.5*vals[idx] + 0.25*vals[next]
					}
				}
			}
			copy(vals, tmp)
		}
	}
}

// divergence returns the central-difference divergence of (vx, vy, vz) on
// interior nodes. Boundary nodes are zero.
func (g *grid) divergence(vx, vy, vz []float64) []float64 {
	div := make([]float64, g.size())
	sx, sy, sz := 1, g.n, g.n*g.n
	inv := 1 / (2 * g.cell)
	g.interior(func(idx int) {
		div[idx] = inv * (vx[idx+sx] - vx[idx-sx] +
			vy[idx+sy] - vy[idx-sy] +
			vz[idx+sz] - vz[idx-sz])
	})
	return div
}

// interior calls fn for every node that is not on the lattice boundary.
func (g *grid) interior(fn func(idx int)) {
	for k := 1; k < g.n-1; k++ {
		for j := 1; j < g.n-1; j++ {
			for i := 1; i < g.n-1; i++ {
				fn(g.index(i, j, k))
			}
		}
	}
}

// laplacian writes the negated 7-point Laplacian of in, scaled by cell²,
// to out. Boundary nodes are held at zero.
func (g *grid) laplacian(in, out []float64) {
	for i := range out {
		out[i] = 0
	}
	sx, sy, sz := 1, g.n, g.n*g.n
	g.interior(func(idx int) {
		out[idx] = 6*in[idx] -
			in[idx-sx] - in[idx+sx] -
			in[idx-sy] - in[idx+sy] -
			in[idx-sz] - in[idx+sz]
	})
}
