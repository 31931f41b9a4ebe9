package pointcloud

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/unixpickle/model3d/model3d"

	"github.com/Faultbox/meshfuse/pkg/math"
)

// ErrInvalidParams is returned for non-positive filter parameters.
var ErrInvalidParams = errors.New("invalid outlier filter parameters")

// Default statistical outlier parameters.
const (
	DefaultNeighbors = 20
	DefaultStdRatio  = 2.0
)

// RemoveStatisticalOutliers drops points whose mean distance to their
// nbNeighbors nearest neighbors exceeds the cloud-wide mean of that quantity
// by more than stdRatio population standard deviations. The input is left
// untouched; the filtered cloud and the number of removed points are
// returned.
func RemoveStatisticalOutliers(c *Cloud, nbNeighbors int, stdRatio float64) (*Cloud, int, error) {
	if nbNeighbors < 1 || stdRatio <= 0 {
		return nil, 0, fmt.Errorf("%w: nb_neighbors=%d std_ratio=%g", ErrInvalidParams, nbNeighbors, stdRatio)
	}
	if c.Len() == 0 {
		return New(0), 0, nil
	}

	avg := meanNeighborDistances(c.Points, nbNeighbors)

	mean, err := stats.Mean(avg)
	if err != nil {
		return nil, 0, err
	}
	std, err := stats.StandardDeviationPopulation(avg)
	if err != nil {
		return nil, 0, err
	}
	threshold := mean + stdRatio*std

	keep := make([]bool, c.Len())
	removed := 0
	for i, d := range avg {
		keep[i] = d <= threshold
		if !keep[i] {
			removed++
		}
	}
	return c.Subset(keep), removed, nil
}

// meanNeighborDistances returns, per point, the mean distance to its k
// nearest other points.
func meanNeighborDistances(points []math.Vec3, k int) stats.Float64Data {
	coords := make([]model3d.Coord3D, len(points))
	for i, p := range points {
		coords[i] = toCoord(p)
	}
	tree := model3d.NewCoordTree(coords)

	avg := make(stats.Float64Data, len(points))
	for i, c := range coords {
		// The nearest result is the query point itself.
		neighbors := tree.KNN(k+1, c)
		if len(neighbors) <= 1 {
			continue
		}
		var sum float64
		for _, n := range neighbors[1:] {
			sum += n.Dist(c)
		}
		avg[i] = sum / float64(len(neighbors)-1)
	}
	return avg
}

func toCoord(p math.Vec3) model3d.Coord3D {
	return model3d.XYZ(p.X, p.Y, p.Z)
}
