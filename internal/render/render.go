// Package render produces depth, normal, opacity and distortion maps of a
// scene model seen from a keyframe camera.
package render

import (
	"errors"

	"github.com/Faultbox/meshfuse/internal/camera"
	"github.com/Faultbox/meshfuse/internal/scene"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// ErrInvalidCamera is returned for cameras without a usable resolution.
var ErrInvalidCamera = errors.New("invalid camera resolution")

// Maps holds same-resolution per-pixel outputs, row-major.
type Maps struct {
	Width  int
	Height int

	Depth  []float64
	Normal []math.Vec3 // in the camera's parent frame
	Alpha  []float64
	Dist   []float64
}

// NewMaps allocates zeroed maps.
func NewMaps(width, height int) *Maps {
	n := width * height
	return &Maps{
		Width:  width,
		Height: height,
		Depth:  make([]float64, n),
		Normal: make([]math.Vec3, n),
		Alpha:  make([]float64, n),
		Dist:   make([]float64, n),
	}
}

// Len returns the number of pixels.
func (m *Maps) Len() int {
	return m.Width * m.Height
}

// Renderer renders a scene model through a camera. depthRatio blends the
// expected depth (0) with the median depth (1).
type Renderer interface {
	Render(cam *camera.Camera, model scene.Model, depthRatio float64) (*Maps, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(cam *camera.Camera, model scene.Model, depthRatio float64) (*Maps, error)

// Render calls f.
func (f RendererFunc) Render(cam *camera.Camera, model scene.Model, depthRatio float64) (*Maps, error) {
	return f(cam, model, depthRatio)
}

// DepthRatio returns the depth blend for the median-depth setting.
func DepthRatio(useMedian bool) float64 {
	if useMedian {
		return 1.0
	}
	return 0.0
}
