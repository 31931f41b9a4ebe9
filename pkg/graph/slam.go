package graph

import (
	"fmt"

	"github.com/Faultbox/meshfuse/pkg/math"
)

// Keyframe is the view of a SLAM keyframe needed to build a Frame record.
type Keyframe interface {
	Timestamp() float64
	ModelTFrame() math.Mat4
	// ProjectionMatrix holds fx, fy at (0,0), (1,1) and cx, cy at (0,2), (1,2).
	ProjectionMatrix() math.Mat4
}

// LocalModel is the view of a SLAM submap needed to build a Model record.
type LocalModel interface {
	WorldTModel() math.Mat4
	Keyframes() []Keyframe
}

// ModelFilename is the scene geometry filename used for the i-th model.
func ModelFilename(i int) string {
	return fmt.Sprintf("%04d.ply", i)
}

// FromSLAM builds a graph from live local models. Model ids follow the
// iteration order and frame ids are assigned sequentially across all models
// starting at 0.
func FromSLAM(models []LocalModel) *Graph {
	g := &Graph{
		Models: make([]Model, 0, len(models)),
	}

	frameID := 0
	for mid, lm := range models {
		keyframes := lm.Keyframes()
		frameIDs := make([]int, 0, len(keyframes))
		for _, kf := range keyframes {
			proj := kf.ProjectionMatrix()
			g.Frames = append(g.Frames, Frame{
				ID:          frameID,
				Timestamp:   kf.Timestamp(),
				ModelTFrame: poseToSlice(kf.ModelTFrame()),
				Projection:  []float64{proj.At(0, 0), proj.At(1, 1), proj.At(0, 2), proj.At(1, 2)},
				ModelID:     mid,
			})
			frameIDs = append(frameIDs, frameID)
			frameID++
		}
		g.Models = append(g.Models, Model{
			ID:          mid,
			WorldTModel: poseToSlice(lm.WorldTModel()),
			Filename:    ModelFilename(mid),
			FrameIDs:    frameIDs,
		})
	}

	return g
}
