package rf

import "github.com/signalsfoundry/swarm-simulator/core"

// RadioID identifies a radio within one propagation engine.
type RadioID int

// Receiver is the callback side of a radio. Receive runs synchronously
// inside Transmit, so implementations must not block.
type Receiver interface {
	Receive(now float64, payload any, power float64)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(now float64, payload any, power float64)

func (f ReceiverFunc) Receive(now float64, payload any, power float64) { f(now, payload, power) }

// FrequencyBand is a [MinGHz, MaxGHz] band. The zero band matches every band.
type FrequencyBand struct {
	MinGHz float64 `yaml:"min_ghz"`
	MaxGHz float64 `yaml:"max_ghz"`
}

// IsZero reports whether the band is unset.
func (b FrequencyBand) IsZero() bool { return b.MinGHz == 0 && b.MaxGHz == 0 }

// IsCompatible returns true if the bands overlap at all, or either is unset.
func (b FrequencyBand) IsCompatible(other FrequencyBand) bool {
	if b.IsZero() || other.IsZero() {
		return true
	}
	return !(b.MaxGHz < other.MinGHz || b.MinGHz > other.MaxGHz)
}

// Radio is a transmit/receive endpoint mounted on a physical entity. Its
// position and pointing are derived from the owner on every query.
type Radio struct {
	ID      RadioID
	OwnerID core.EntityID
	Owner   core.PhysicalEntity
	Pattern AntennaPattern
	Band    FrequencyBand

	// Boresight is the antenna pointing direction in the owner's body frame.
	// The zero vector means +X.
	Boresight core.Vec3
	// Offset is the antenna mounting point in the owner's body frame.
	Offset core.Vec3

	Receiver Receiver
}

// NewRadio builds an isotropic radio pointing along the owner's +X axis.
func NewRadio(id RadioID, ownerID core.EntityID, owner core.PhysicalEntity, recv Receiver) *Radio {
	return &Radio{
		ID:       id,
		OwnerID:  ownerID,
		Owner:    owner,
		Pattern:  Isotropic{},
		Receiver: recv,
	}
}

// Position returns the antenna's world position.
func (r *Radio) Position() core.Vec3 {
	pos := r.Owner.TruthPosition()
	if r.Offset == (core.Vec3{}) {
		return pos
	}
	return pos.Add(r.Owner.TruthOrientation().Rotate(r.Offset))
}

// Pointing returns the antenna boresight in the world frame.
func (r *Radio) Pointing() core.Vec3 {
	b := r.Boresight
	if b == (core.Vec3{}) {
		b = core.XAxis
	}
	return r.Owner.TruthOrientation().Rotate(b)
}

// antennaFrame returns the rotation taking world vectors into the antenna
// frame, i.e. the rotation that maps the world boresight onto +X.
func (r *Radio) antennaFrame() core.Quaternion {
	return core.RotationBetween(r.Pointing(), core.XAxis)
}

func (r *Radio) gain(azimuth, elevation float64) float64 {
	if r.Pattern == nil {
		return 0
	}
	return r.Pattern.Gain(azimuth, elevation)
}
