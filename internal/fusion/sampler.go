package fusion

import (
	"errors"
	"math/rand/v2"

	"github.com/Faultbox/meshfuse/internal/camera"
	"github.com/Faultbox/meshfuse/internal/pointcloud"
	"github.com/Faultbox/meshfuse/internal/render"
)

// ErrEmptySample is returned when a frame has no valid pixel to sample.
var ErrEmptySample = errors.New("no valid samples")

// Sampler back-projects valid pixels and draws a fixed number of them.
type Sampler struct {
	Samples int
}

// Sample lifts every valid pixel into the camera's parent frame and draws
// Samples of them uniformly with replacement. The result always holds
// exactly Samples points, repeating points when there are fewer valid
// pixels than that.
func (s Sampler) Sample(cam *camera.Camera, m *render.Maps, invalid []bool, rng *rand.Rand) (*pointcloud.Cloud, error) {
	valid := pointcloud.New(m.Len())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := cam.Index(x, y)
			if invalid[i] {
				continue
			}
			valid.Add(cam.PixelToParent(x, y, m.Depth[i]), m.Normal[i])
		}
	}
	if valid.Len() == 0 {
		return nil, ErrEmptySample
	}

	out := pointcloud.New(s.Samples)
	for i := 0; i < s.Samples; i++ {
		j := rng.IntN(valid.Len())
		out.Add(valid.Points[j], valid.Normals[j])
	}
	return out, nil
}
