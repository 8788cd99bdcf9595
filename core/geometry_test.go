package core

import (
	"math"
	"testing"
)

func almostEqualVec(a, b Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func TestDistanceTo(t *testing.T) {
	a := Vec3{X: 0, Y: 0, Z: 0}
	b := Vec3{X: 3, Y: 4, Z: 0}
	if got := a.DistanceTo(b); got != 5 {
		t.Fatalf("DistanceTo = %v, want 5", got)
	}
	if got := a.DistanceSquaredTo(b); got != 25 {
		t.Fatalf("DistanceSquaredTo = %v, want 25", got)
	}
}

func TestQuaternionRotateAboutZ(t *testing.T) {
	q := QuaternionFromAxisAngle(ZAxis, math.Pi/2)
	got := q.Rotate(XAxis)
	if !almostEqualVec(got, YAxis, 1e-12) {
		t.Fatalf("rotating +X by 90deg about Z = %+v, want +Y", got)
	}
	back := q.Conjugate().Rotate(got)
	if !almostEqualVec(back, XAxis, 1e-12) {
		t.Fatalf("conjugate rotation = %+v, want +X", back)
	}
}

func TestRotationBetweenMapsFromOntoTo(t *testing.T) {
	cases := []struct {
		name     string
		from, to Vec3
	}{
		{"y-to-x", YAxis, XAxis},
		{"diagonal", Vec3{X: 1, Y: 1, Z: 1}, XAxis},
		{"antiparallel", Vec3{X: -1}, XAxis},
		{"identity", Vec3{X: 2}, XAxis},
		{"down", Vec3{Z: -5}, XAxis},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := RotationBetween(tc.from, tc.to)
			got := q.Rotate(tc.from.Normalize())
			if !almostEqualVec(got, tc.to.Normalize(), 1e-9) {
				t.Fatalf("RotationBetween(%+v,%+v) maps from to %+v", tc.from, tc.to, got)
			}
		})
	}
}

func TestMulComposesRotations(t *testing.T) {
	a := QuaternionFromAxisAngle(ZAxis, math.Pi/2)
	b := QuaternionFromAxisAngle(XAxis, math.Pi/2)
	composed := a.Mul(b)
	want := a.Rotate(b.Rotate(YAxis))
	if got := composed.Rotate(YAxis); !almostEqualVec(got, want, 1e-12) {
		t.Fatalf("composed rotation = %+v, want %+v", got, want)
	}
}

func TestSphericalAngles(t *testing.T) {
	az, el := SphericalAngles(Vec3{X: 0, Y: 1, Z: 0})
	if math.Abs(az-math.Pi/2) > 1e-12 || el != 0 {
		t.Fatalf("SphericalAngles(+Y) = (%v, %v), want (pi/2, 0)", az, el)
	}
	_, el = SphericalAngles(Vec3{Z: 1})
	if math.Abs(el-math.Pi/2) > 1e-12 {
		t.Fatalf("elevation of +Z = %v, want pi/2", el)
	}
}
