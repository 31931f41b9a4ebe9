package render

import (
	gomath "math"
	"sort"

	"github.com/Faultbox/meshfuse/internal/camera"
	"github.com/Faultbox/meshfuse/internal/scene"
	"github.com/Faultbox/meshfuse/pkg/math"
)

// Screen-space dilation added to every projected covariance, in pixels².
const lowPass = 0.3

// SplatRenderer is a CPU rasterizer for Gaussian and surfel scene models.
// Depth is taken where the pixel ray meets each primitive's tangent plane,
// and fragments are composited front to back.
type SplatRenderer struct {
	Near             float64 // Primitives closer than this are culled
	MinAlpha         float64 // Fragments below this opacity are dropped
	MaxAlpha         float64
	MinTransmittance float64 // Compositing stops below this transmittance
}

// NewSplatRenderer returns a renderer with the usual 3DGS constants.
func NewSplatRenderer() *SplatRenderer {
	return &SplatRenderer{
		Near:             0.01,
		MinAlpha:         1.0 / 255.0,
		MaxAlpha:         0.99,
		MinTransmittance: 1e-4,
	}
}

type fragment struct {
	depth  float64
	alpha  float64
	normal math.Vec3
}

// Render implements Renderer.
func (r *SplatRenderer) Render(cam *camera.Camera, model scene.Model, depthRatio float64) (*Maps, error) {
	if cam.Width <= 0 || cam.Height <= 0 || cam.Fx == 0 || cam.Fy == 0 {
		return nil, ErrInvalidCamera
	}

	toCam := cam.ParentToCamera()
	fragments := make([][]fragment, cam.Pixels())
	for _, g := range model.Gaussians() {
		r.splat(cam, toCam, g, fragments)
	}

	maps := NewMaps(cam.Width, cam.Height)
	for i, frags := range fragments {
		if len(frags) > 0 {
			r.composite(frags, depthRatio, maps, i)
		}
	}
	return maps, nil
}

// splat projects one primitive and appends its fragments to the pixels it
// covers.
func (r *SplatRenderer) splat(cam *camera.Camera, toCam math.Mat4, g scene.Gaussian, fragments [][]fragment) {
	mean := toCam.TransformPoint(g.Mean)
	if mean.Z <= r.Near {
		return
	}
	u, v, _ := cam.Project(mean)

	// Projected 2D covariance: J * W * R * S^2 * R^T * W^T * J^T.
	invZ := 1 / mean.Z
	scales := [3]float64{g.Scale.X, g.Scale.Y, g.Scale.Z}
	var a, b, c float64
	for i, s := range scales {
		if s == 0 {
			continue
		}
		m := toCam.TransformDirection(g.Rotation.Column(i)).Scale(s)
		jx := cam.Fx * invZ * (m.X - mean.X*invZ*m.Z)
		jy := cam.Fy * invZ * (m.Y - mean.Y*invZ*m.Z)
		a += jx * jx
		b += jx * jy
		c += jy * jy
	}
	a += lowPass
	c += lowPass

	det := a*c - b*b
	if det <= 0 {
		return
	}
	ia, ib, ic := c/det, -b/det, a/det

	mid := 0.5 * (a + c)
	lambda := mid + gomath.Sqrt(gomath.Max(0.1, mid*mid-det))
	radius := gomath.Ceil(3 * gomath.Sqrt(lambda))

	x0 := max(0, int(gomath.Floor(u-radius)))
	x1 := min(cam.Width-1, int(gomath.Ceil(u+radius)))
	y0 := max(0, int(gomath.Floor(v-radius)))
	y1 := min(cam.Height-1, int(gomath.Ceil(v+radius)))
	if x0 > x1 || y0 > y1 {
		return
	}

	// Normal faces the camera.
	n := toCam.TransformDirection(g.Normal())
	if n.Dot(mean) > 0 {
		n = n.Scale(-1)
	}
	nParent := cam.Pose.TransformDirection(n)
	nDotMean := n.Dot(mean)

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := float64(x) - u
			dy := float64(y) - v
			power := -0.5*(ia*dx*dx+ic*dy*dy) - ib*dx*dy
			if power > 0 {
				continue
			}
			alpha := gomath.Min(r.MaxAlpha, g.Opacity*gomath.Exp(power))
			if alpha < r.MinAlpha {
				continue
			}

			depth := mean.Z
			ray := math.Vec3{X: (float64(x) - cam.Cx) / cam.Fx, Y: (float64(y) - cam.Cy) / cam.Fy, Z: 1}
			if denom := n.Dot(ray); gomath.Abs(denom) > 1e-6 {
				if t := nDotMean / denom; t > r.Near {
					depth = t
				}
			}

			idx := cam.Index(x, y)
			fragments[idx] = append(fragments[idx], fragment{depth: depth, alpha: alpha, normal: nParent})
		}
	}
}

// composite blends the fragments of pixel i front to back.
func (r *SplatRenderer) composite(frags []fragment, depthRatio float64, maps *Maps, i int) {
	sort.Slice(frags, func(a, b int) bool {
		return frags[a].depth < frags[b].depth
	})

	transmittance := 1.0
	var median, weightSum, depthSum float64
	// Running sums of w, w*z and w*z^2 over the fragments in front.
	var sumW, sumWZ, sumWZ2, dist float64
	var normal math.Vec3

	for _, f := range frags {
		w := f.alpha * transmittance
		if transmittance > 0.5 {
			median = f.depth
		}

		z := f.depth
		dist += w * (z*z*sumW - 2*z*sumWZ + sumWZ2)
		sumW += w
		sumWZ += w * z
		sumWZ2 += w * z * z

		weightSum += w
		depthSum += w * z
		normal = normal.Add(f.normal.Scale(w))

		transmittance *= 1 - f.alpha
		if transmittance < r.MinTransmittance {
			break
		}
	}

	if weightSum == 0 {
		return
	}
	expected := depthSum / weightSum
	maps.Depth[i] = expected*(1-depthRatio) + median*depthRatio
	maps.Normal[i] = normal.Normalize()
	maps.Alpha[i] = weightSum
	maps.Dist[i] = dist
}
