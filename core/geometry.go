package core

import "math"

// Vec3 is a world-frame vector in metres (or metres per second, etc.).
type Vec3 struct {
	X, Y, Z float64
}

// Unit axes.
var (
	XAxis = Vec3{X: 1}
	YAxis = Vec3{Y: 1}
	ZAxis = Vec3{Z: 1}
)

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return math.Sqrt(v.DistanceSquaredTo(other))
}

// DistanceSquaredTo returns the squared distance between two points.
func (v Vec3) DistanceSquaredTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the cross product v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns the unit vector along v. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Quaternion is a rotation in (W, X, Y, Z) form. The zero value is not a
// valid rotation; use IdentityQuaternion.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion is the rotation that leaves every vector unchanged.
var IdentityQuaternion = Quaternion{W: 1}

// QuaternionFromAxisAngle builds a rotation of angle radians about axis.
func QuaternionFromAxisAngle(axis Vec3, angle float64) Quaternion {
	a := axis.Normalize()
	s, c := math.Sincos(angle / 2)
	return Quaternion{W: c, X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// RotationBetween returns the shortest rotation mapping direction from onto
// direction to. Both inputs are normalised internally; a zero input yields
// the identity.
func RotationBetween(from, to Vec3) Quaternion {
	f := from.Normalize()
	t := to.Normalize()
	if f == (Vec3{}) || t == (Vec3{}) {
		return IdentityQuaternion
	}
	d := f.Dot(t)
	if d >= 1-1e-12 {
		return IdentityQuaternion
	}
	if d <= -1+1e-12 {
		// Antiparallel: rotate half a turn about any axis orthogonal to f.
		axis := XAxis.Cross(f)
		if axis.Norm() < 1e-6 {
			axis = YAxis.Cross(f)
		}
		return QuaternionFromAxisAngle(axis, math.Pi)
	}
	c := f.Cross(t)
	q := Quaternion{W: 1 + d, X: c.X, Y: c.Y, Z: c.Z}
	return q.Normalize()
}

// Normalize returns q scaled to unit length.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return IdentityQuaternion
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Mul returns the composition q ∘ r (apply r first, then q).
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Rotate applies the rotation to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	// v' = v + 2w(u×v) + 2u×(u×v), u = (x, y, z)
	u := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// SphericalAngles returns the azimuth (atan2(y, x)) and elevation
// (atan2(z, hypot(x, y))) of v in radians.
func SphericalAngles(v Vec3) (azimuth, elevation float64) {
	return math.Atan2(v.Y, v.X), math.Atan2(v.Z, math.Hypot(v.X, v.Y))
}
