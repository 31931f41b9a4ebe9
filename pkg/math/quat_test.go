package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := math.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)
	if math.Abs(length-1.0) > 1e-9 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
}

func TestQuatToMat4MatchesRotateY(t *testing.T) {
	// Quarter turn about Y, scalar first as stored in scene files.
	q := QuatFromWXYZ(math.Cos(math.Pi/4), 0, math.Sin(math.Pi/4), 0)

	if !q.ToMat4().ApproxEqual(RotateY(math.Pi/2), 1e-9) {
		t.Errorf("quaternion matrix %v should equal RotateY(90)", q.ToMat4())
	}
}

func TestQuatFromWXYZ(t *testing.T) {
	q := QuatFromWXYZ(1, 0, 0, 0)
	if q != QuatIdentity() {
		t.Errorf("QuatFromWXYZ(1,0,0,0) should be identity, got %v", q)
	}
}
