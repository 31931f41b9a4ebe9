// Package graph describes the result of a multi-submap SLAM run: the local
// models (submaps) with their world poses and the keyframes that belong to
// each of them.
package graph

import (
	"fmt"

	"github.com/Faultbox/meshfuse/pkg/math"
)

// Model is one independently optimized local scene model.
type Model struct {
	ID int `yaml:"id"`
	// WorldTModel maps model-local coordinates to world coordinates.
	// First three rows of a homogeneous matrix, row-major.
	WorldTModel []float64 `yaml:"world_T_model"`
	Filename    string    `yaml:"filename"` // Scene geometry, relative to the graph file
	FrameIDs    []int     `yaml:"frame_ids"`
}

// Frame is a posed keyframe owned by exactly one model.
type Frame struct {
	ID        int     `yaml:"id"`
	Timestamp float64 `yaml:"timestamp"`
	// ModelTFrame maps camera coordinates to the owning model's coordinates.
	ModelTFrame []float64 `yaml:"model_T_frame"`
	Projection  []float64 `yaml:"projmatrix"` // fx, fy, cx, cy
	ModelID     int       `yaml:"model_id"`
}

// Graph is the ordered set of models and frames produced by a SLAM run.
type Graph struct {
	Models []Model `yaml:"models"`
	Frames []Frame `yaml:"frames"`
}

// String summarizes the graph size.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph with %d models and %d frames", len(g.Models), len(g.Frames))
}

// FrameCount returns the total number of frames.
func (g *Graph) FrameCount() int {
	return len(g.Frames)
}

// Frame returns the frame with the given id.
// Frames are usually stored at the index equal to their id, which is
// tried first before falling back to a scan.
func (g *Graph) Frame(id int) (*Frame, bool) {
	if id >= 0 && id < len(g.Frames) && g.Frames[id].ID == id {
		return &g.Frames[id], true
	}
	for i := range g.Frames {
		if g.Frames[i].ID == id {
			return &g.Frames[i], true
		}
	}
	return nil, false
}

// Model returns the model with the given id.
func (g *Graph) Model(id int) (*Model, bool) {
	for i := range g.Models {
		if g.Models[i].ID == id {
			return &g.Models[i], true
		}
	}
	return nil, false
}

// Pose returns the completed model-to-world transform.
func (m *Model) Pose() math.Mat4 {
	return poseFromSlice(m.WorldTModel)
}

// Pose returns the completed frame-to-model transform.
func (f *Frame) Pose() math.Mat4 {
	return poseFromSlice(f.ModelTFrame)
}

// Intrinsics returns fx, fy, cx, cy.
func (f *Frame) Intrinsics() [4]float64 {
	var k [4]float64
	copy(k[:], f.Projection)
	return k
}

func poseFromSlice(values []float64) math.Mat4 {
	var rows [12]float64
	copy(rows[:], values)
	return math.FromPose3x4(rows)
}

func poseToSlice(m math.Mat4) []float64 {
	rows := m.Pose3x4()
	return append([]float64(nil), rows[:]...)
}
