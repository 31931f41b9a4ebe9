// Package fusion turns a graph of local scene models into one world-frame
// oriented point cloud and reconstructs a mesh from it.
//
// Frames are visited model by model in graph order. Every frame advances a
// global running index that drives keyframe selection; kept frames are
// rendered in their model's frame, filtered, sampled and moved to world
// coordinates with the owning model's pose. Outlier removal and surface
// reconstruction run once, after every frame has been merged.
package fusion

// Selector keeps every Interval-th frame of the global frame sequence.
type Selector struct {
	Interval int
}

// Keep reports whether the frame at the zero-based running index is
// processed. An interval of zero or less keeps every frame.
func (s Selector) Keep(index int) bool {
	return s.Interval <= 0 || index%s.Interval == 0
}
