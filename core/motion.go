package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/swarm-simulator/timectrl"
)

// ContactPoint is a single contact reported by the physics world.
type ContactPoint struct {
	Position Vec3
	Normal   Vec3
	OtherID  EntityID
}

// PhysicalEntity is the read-only view of a body owned by the physics world.
// The executive and the propagation engine only read from it.
type PhysicalEntity interface {
	TruthPosition() Vec3
	TruthOrientation() Quaternion
	TruthLinearVelocity() Vec3
	TruthAngularVelocity() Vec3
	TruthLinearAcceleration() Vec3
	TruthAngularAcceleration() Vec3
	ContactPoints() []ContactPoint
}

// StaticBody never moves.
type StaticBody struct {
	Position    Vec3
	Orientation Quaternion
}

// NewStaticBody places a body at pos with identity orientation.
func NewStaticBody(pos Vec3) *StaticBody {
	return &StaticBody{Position: pos, Orientation: IdentityQuaternion}
}

func (b *StaticBody) TruthPosition() Vec3 { return b.Position }

func (b *StaticBody) TruthOrientation() Quaternion {
	if b.Orientation == (Quaternion{}) {
		return IdentityQuaternion
	}
	return b.Orientation
}

func (b *StaticBody) TruthLinearVelocity() Vec3      { return Vec3{} }
func (b *StaticBody) TruthAngularVelocity() Vec3     { return Vec3{} }
func (b *StaticBody) TruthLinearAcceleration() Vec3  { return Vec3{} }
func (b *StaticBody) TruthAngularAcceleration() Vec3 { return Vec3{} }
func (b *StaticBody) ContactPoints() []ContactPoint  { return nil }

// KinematicBody moves with constant linear velocity and constant yaw rate.
// Its pose is a pure function of simulated time, so it needs no update hook
// and stays consistent for every reader within a step.
type KinematicBody struct {
	clock timectrl.SimClock

	Origin   Vec3
	Velocity Vec3
	// Heading is the initial yaw (radians about +Z) at time T0.
	Heading float64
	// YawRate in radians per second about +Z.
	YawRate float64
	T0      float64
}

// NewKinematicBody constructs a body that starts at origin at the clock's
// current time.
func NewKinematicBody(clock timectrl.SimClock, origin, velocity Vec3, heading float64) *KinematicBody {
	return &KinematicBody{
		clock:    clock,
		Origin:   origin,
		Velocity: velocity,
		Heading:  heading,
		T0:       clock.Now(),
	}
}

func (b *KinematicBody) elapsed() float64 {
	return b.clock.Now() - b.T0
}

func (b *KinematicBody) TruthPosition() Vec3 {
	return b.Origin.Add(b.Velocity.Scale(b.elapsed()))
}

func (b *KinematicBody) TruthOrientation() Quaternion {
	return QuaternionFromAxisAngle(ZAxis, b.Heading+b.YawRate*b.elapsed())
}

func (b *KinematicBody) TruthLinearVelocity() Vec3      { return b.Velocity }
func (b *KinematicBody) TruthAngularVelocity() Vec3     { return Vec3{Z: b.YawRate} }
func (b *KinematicBody) TruthLinearAcceleration() Vec3  { return Vec3{} }
func (b *KinematicBody) TruthAngularAcceleration() Vec3 { return Vec3{} }
func (b *KinematicBody) ContactPoints() []ContactPoint  { return nil }

// OrbitalBody propagates a TLE with SGP4. Simulated time is interpreted as
// seconds after Epoch. Positions are ECEF in metres; orientation is
// nadir-pointing (+X towards the Earth's centre).
type OrbitalBody struct {
	clock timectrl.SimClock
	sat   satellite.Satellite
	Epoch time.Time
}

// NewOrbitalBody constructs an orbital body from TLE lines.
func NewOrbitalBody(clock timectrl.SimClock, line1, line2 string, epoch time.Time) *OrbitalBody {
	return &OrbitalBody{
		clock: clock,
		sat:   satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		Epoch: epoch.UTC(),
	}
}

// ErrInvalidTLE reports a two-line element set SGP4 cannot parse.
var ErrInvalidTLE = errors.New("invalid TLE")

// ValidateTLE checks the fixed-column layout the SGP4 parser slices into,
// and that the element set parses.
func ValidateTLE(line1, line2 string) (err error) {
	switch {
	case len(line1) < 69 || !strings.HasPrefix(line1, "1 "):
		return fmt.Errorf("%w: line 1 %q", ErrInvalidTLE, line1)
	case len(line2) < 69 || !strings.HasPrefix(line2, "2 "):
		return fmt.Errorf("%w: line 2 %q", ErrInvalidTLE, line2)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidTLE, r)
		}
	}()
	satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return nil
}

const kmToM = 1000.0

func (b *OrbitalBody) state() (pos, vel Vec3) {
	at := b.Epoch.Add(time.Duration(b.clock.Now() * float64(time.Second)))
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	posECI, velECI := satellite.Propagate(b.sat, year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	posECEF := satellite.ECIToECEF(posECI, gmst)
	velECEF := satellite.ECIToECEF(velECI, gmst)

	pos = Vec3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
	vel = Vec3{X: velECEF.X * kmToM, Y: velECEF.Y * kmToM, Z: velECEF.Z * kmToM}
	return pos, vel
}

func (b *OrbitalBody) TruthPosition() Vec3 {
	pos, _ := b.state()
	return pos
}

func (b *OrbitalBody) TruthOrientation() Quaternion {
	pos, _ := b.state()
	return RotationBetween(XAxis, pos.Scale(-1))
}

func (b *OrbitalBody) TruthLinearVelocity() Vec3 {
	_, vel := b.state()
	return vel
}

// TruthAngularVelocity approximates the nadir-pointing body rate as the
// orbital rate about the orbit normal.
func (b *OrbitalBody) TruthAngularVelocity() Vec3 {
	pos, vel := b.state()
	r2 := pos.Dot(pos)
	if r2 == 0 {
		return Vec3{}
	}
	return pos.Cross(vel).Scale(1 / r2)
}

// TruthLinearAcceleration is the two-body gravitational acceleration.
func (b *OrbitalBody) TruthLinearAcceleration() Vec3 {
	const muEarth = 3.986004418e14 // m^3/s^2
	pos, _ := b.state()
	r := pos.Norm()
	if r == 0 {
		return Vec3{}
	}
	return pos.Scale(-muEarth / math.Pow(r, 3))
}

func (b *OrbitalBody) TruthAngularAcceleration() Vec3 { return Vec3{} }
func (b *OrbitalBody) ContactPoints() []ContactPoint  { return nil }
