package surface

import (
	gomath "math"
	"sort"

	"github.com/Faultbox/meshfuse/pkg/math"
)

// PruneByDensity removes vertices whose density is below the q-quantile of
// all vertex densities, together with every face that touches them.
// Remaining vertices are reindexed in their original order.
func PruneByDensity(m *Mesh, q float64) *Mesh {
	if q <= 0 || len(m.Densities) != len(m.Vertices) || len(m.Vertices) == 0 {
		return m
	}
	threshold := quantile(m.Densities, q)

	remap := make([]int, len(m.Vertices))
	out := &Mesh{}
	for i, v := range m.Vertices {
		if m.Densities[i] < threshold {
			remap[i] = -1
			continue
		}
		remap[i] = len(out.Vertices)
		out.Vertices = append(out.Vertices, v)
		out.Densities = append(out.Densities, m.Densities[i])
		if len(m.Normals) == len(m.Vertices) {
			out.Normals = append(out.Normals, m.Normals[i])
		}
	}

	for _, f := range m.Faces {
		a, b, c := remap[f[0]], remap[f[1]], remap[f[2]]
		if a < 0 || b < 0 || c < 0 {
			continue
		}
		out.Faces = append(out.Faces, [3]int{a, b, c})
	}
	return out
}

// quantile returns the q-quantile of values with linear interpolation
// between closest ranks.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q = gomath.Min(gomath.Max(q, 0), 1)

	pos := q * float64(len(sorted)-1)
	lo := int(gomath.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	t := pos - float64(lo)
	return sorted[lo]*(1-t) + sorted[hi]*t
}

// ComputeVertexNormals sets each vertex normal to the area-weighted mean of
// the normals of its incident faces.
func ComputeVertexNormals(m *Mesh) {
	normals := make([]math.Vec3, len(m.Vertices))
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		// Cross product length is twice the face area.
		n := b.Sub(a).Cross(c.Sub(a))
		for _, idx := range f {
			normals[idx] = normals[idx].Add(n)
		}
	}
	for i := range normals {
		normals[i] = normals[i].Normalize()
	}
	m.Normals = normals
}
