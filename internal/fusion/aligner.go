package fusion

import (
	"github.com/Faultbox/meshfuse/internal/pointcloud"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Aligner accumulates model-frame samples into one world-frame cloud.
type Aligner struct {
	cloud *pointcloud.Cloud
}

// NewAligner returns an aligner with an empty cloud.
func NewAligner() *Aligner {
	return &Aligner{cloud: pointcloud.New(0)}
}

// Add moves c into world coordinates with worldTModel and appends it.
// c is modified in place.
func (a *Aligner) Add(c *pointcloud.Cloud, worldTModel math.Mat4) {
	c.Transform(worldTModel)
	a.cloud.Append(c)
}

// Cloud returns the merged cloud.
func (a *Aligner) Cloud() *pointcloud.Cloud {
	return a.cloud
}
