// Package camera rebuilds pinhole cameras from stored keyframe records.
package camera

import (
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Camera is a pinhole camera placed in its parent (model) frame.
type Camera struct {
	// Intrinsics
	Fx, Fy float64
	Cx, Cy float64

	Width  int
	Height int

	// Pose maps camera coordinates to the owning model's coordinates.
	// It never includes the model-to-world transform.
	Pose math.Mat4

	// Placeholder image buffers; the renderer does not read them.
	Depth  []float64   // 1 channel
	Normal []math.Vec3 // 3 channels
	Valid  []float64   // 1 channel
}

// FromProjection builds a camera from a compact [fx, fy, cx, cy] record, the
// shared image resolution and the frame-to-model pose.
func FromProjection(proj [4]float64, width, height int, modelTFrame math.Mat4) *Camera {
	n := width * height
	return &Camera{
		Fx:     proj[0],
		Fy:     proj[1],
		Cx:     proj[2],
		Cy:     proj[3],
		Width:  width,
		Height: height,
		Pose:   modelTFrame,
		Depth:  make([]float64, n),
		Normal: make([]math.Vec3, n),
		Valid:  make([]float64, n),
	}
}

// K returns the 3x3 intrinsic matrix, row-major.
func (c *Camera) K() [3][3]float64 {
	return [3][3]float64{
		{c.Fx, 0, c.Cx},
		{0, c.Fy, c.Cy},
		{0, 0, 1},
	}
}

// Pixels returns the number of pixels in an image.
func (c *Camera) Pixels() int {
	return c.Width * c.Height
}

// Index returns the flat buffer index of pixel (x, y).
func (c *Camera) Index(x, y int) int {
	return y*c.Width + x
}

// Unproject lifts pixel (u, v) at the given depth to camera coordinates.
func (c *Camera) Unproject(u, v, depth float64) math.Vec3 {
	return math.Vec3{
		X: (u - c.Cx) / c.Fx * depth,
		Y: (v - c.Cy) / c.Fy * depth,
		Z: depth,
	}
}

// PixelToParent lifts pixel (x, y) at the given depth into the parent frame.
func (c *Camera) PixelToParent(x, y int, depth float64) math.Vec3 {
	return c.Pose.TransformPoint(c.Unproject(float64(x), float64(y), depth))
}

// Project maps a camera-frame point to pixel coordinates. ok is false for
// points at or behind the image plane.
func (c *Camera) Project(p math.Vec3) (u, v float64, ok bool) {
	if p.Z <= 0 {
		return 0, 0, false
	}
	return c.Fx*p.X/p.Z + c.Cx, c.Fy*p.Y/p.Z + c.Cy, true
}

// ParentToCamera returns the transform from the parent frame into camera
// coordinates.
func (c *Camera) ParentToCamera() math.Mat4 {
	return c.Pose.RigidInverse()
}
