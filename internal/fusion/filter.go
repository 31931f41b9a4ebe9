package fusion

import (
	"github.com/Faultbox/meshfuse/internal/render"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Filter rejects pixels with low opacity or high depth distortion.
type Filter struct {
	MinOpacity   float64
	MaxDepthDist float64
}

// Invalid reports whether a pixel with the given opacity and distortion is
// rejected. Values equal to a threshold pass.
func (f Filter) Invalid(alpha, dist float64) bool {
	return alpha < f.MinOpacity || dist > f.MaxDepthDist
}

// Mask returns the per-pixel invalid flags of m.
func (f Filter) Mask(m *render.Maps) []bool {
	invalid := make([]bool, m.Len())
	for i := range invalid {
		invalid[i] = f.Invalid(m.Alpha[i], m.Dist[i])
	}
	return invalid
}

// Apply computes the mask and zeroes depth and normal at invalid pixels.
func (f Filter) Apply(m *render.Maps) []bool {
	invalid := f.Mask(m)
	for i, bad := range invalid {
		if bad {
			m.Depth[i] = 0
			m.Normal[i] = math.Vec3{}
		}
	}
	return invalid
}
