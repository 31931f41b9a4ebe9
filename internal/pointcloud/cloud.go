// Package pointcloud holds oriented point clouds in world coordinates and
// the statistical filtering applied to them before meshing.
package pointcloud

import (
	"github.com/Faultbox/meshfuse/pkg/formats"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Cloud is a set of points with one unit normal per point.
type Cloud struct {
	Points  []math.Vec3
	Normals []math.Vec3
}

// New returns an empty cloud with room for n points.
func New(n int) *Cloud {
	return &Cloud{
		Points:  make([]math.Vec3, 0, n),
		Normals: make([]math.Vec3, 0, n),
	}
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	return len(c.Points)
}

// Add appends one oriented point.
func (c *Cloud) Add(p, n math.Vec3) {
	c.Points = append(c.Points, p)
	c.Normals = append(c.Normals, n)
}

// Append concatenates other onto c, preserving order.
func (c *Cloud) Append(other *Cloud) {
	if other == nil {
		return
	}
	c.Points = append(c.Points, other.Points...)
	c.Normals = append(c.Normals, other.Normals...)
}

// Transform applies a rigid transform in place. Normals are rotated and
// renormalized; translation does not affect them.
func (c *Cloud) Transform(m math.Mat4) {
	for i := range c.Points {
		c.Points[i] = m.TransformPoint(c.Points[i])
		c.Normals[i] = m.TransformDirection(c.Normals[i]).Normalize()
	}
}

// Bounds returns the axis-aligned bounding box. It returns zero vectors for
// an empty cloud.
func (c *Cloud) Bounds() (lo, hi math.Vec3) {
	if len(c.Points) == 0 {
		return
	}
	lo, hi = c.Points[0], c.Points[0]
	for _, p := range c.Points[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return lo, hi
}

// Subset returns a new cloud made of the points whose keep flag is set.
func (c *Cloud) Subset(keep []bool) *Cloud {
	out := New(len(c.Points))
	for i, k := range keep {
		if k {
			out.Add(c.Points[i], c.Normals[i])
		}
	}
	return out
}

// Save writes the cloud as a PLY point cloud with normals.
func (c *Cloud) Save(path string, enc formats.Encoding) error {
	return formats.SavePointsPLY(path, enc, c.Points, c.Normals)
}
