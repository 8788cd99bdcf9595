// Package swarm is a small reference behaviour for the simulator: agents
// wander an arena, broadcast beacons over the propagation engine and keep a
// neighbour table of whoever they hear above the noise floor.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/signalsfoundry/swarm-simulator/core"
	"github.com/signalsfoundry/swarm-simulator/internal/logging"
	"github.com/signalsfoundry/swarm-simulator/rf"
	"github.com/signalsfoundry/swarm-simulator/sensor"
)

// ErrUnexpectedEvent is returned by HandleEvent for payloads a Beacon does
// not understand.
var ErrUnexpectedEvent = errors.New("unexpected event payload")

// Config is shared by every agent of a swarm.
type Config struct {
	Speed         float64
	ArenaRadius   float64
	Altitude      float64
	BeaconPeriod  float64
	NeighbourTTL  float64
	TxPower       float64
	MinSNRdB      float64
	Pattern       rf.AntennaPattern
	PositionNoise sensor.Spec
	// Orbit flies every agent on one TLE instead of the arena. Agent k is
	// placed (k-1)*Spacing seconds further along the track.
	Orbit         *Orbit
}

// Orbit is a shared two-line element set for an orbital swarm.
type Orbit struct {
	Line1, Line2 string
	Epoch        time.Time
	Spacing      float64
}

// Message is the beacon payload. Position is the sender's own noisy
// estimate, not its truth position.
type Message struct {
	From     core.EntityID
	Seq      uint64
	Position core.Vec3
	SentAt   float64
}

// beaconTick is the self-scheduled event that triggers a broadcast.
type beaconTick struct{}

// Neighbour is the latest beacon heard from one peer.
type Neighbour struct {
	ID        core.EntityID
	LastHeard float64
	Power     float64
	Position  core.Vec3
}

// Stats counts one agent's radio activity.
type Stats struct {
	Sent   uint64
	Heard  uint64
	Missed uint64
}

// Beacon is one swarm agent. It owns its body, radio and position sensor and
// exposes only the Model lifecycle to the executive.
type Beacon struct {
	cfg     Config
	engine  *rf.Engine
	radioID rf.RadioID

	rt     core.Runtime
	log    logging.Logger
	body   core.PhysicalEntity
	kin    *core.KinematicBody
	radio  *rf.Radio
	sensor sensor.PositionSensor

	seq        uint64
	stats      Stats
	neighbours map[core.EntityID]Neighbour
}

// NewBeacon builds an agent that registers a radio with engine under
// radioID when initialised.
func NewBeacon(engine *rf.Engine, radioID rf.RadioID, cfg Config) *Beacon {
	return &Beacon{
		cfg:        cfg,
		engine:     engine,
		radioID:    radioID,
		neighbours: make(map[core.EntityID]Neighbour),
	}
}

// Initialize places the agent at a uniformly random point of the arena
// disc with a random heading, or on its orbit slot, registers its radio and
// schedules the first beacon at a random phase of the period.
func (b *Beacon) Initialize(rt core.Runtime) error {
	b.rt = rt
	b.log = logging.OrNoop(rt.Logger())
	rng := rt.Rand()

	if o := b.cfg.Orbit; o != nil {
		offset := time.Duration(float64(rt.ID()-1) * o.Spacing * float64(time.Second))
		b.body = core.NewOrbitalBody(rt.Clock(), o.Line1, o.Line2, o.Epoch.Add(offset))
	} else {
		r := b.cfg.ArenaRadius * math.Sqrt(rng.Float64())
		theta := 2 * math.Pi * rng.Float64()
		heading := 2 * math.Pi * rng.Float64()
		origin := core.Vec3{X: r * math.Cos(theta), Y: r * math.Sin(theta), Z: b.cfg.Altitude}
		velocity := core.Vec3{X: b.cfg.Speed * math.Cos(heading), Y: b.cfg.Speed * math.Sin(heading)}
		b.kin = core.NewKinematicBody(rt.Clock(), origin, velocity, heading)
		b.body = b.kin
	}

	noise, err := sensor.New(b.cfg.PositionNoise, rng)
	if err != nil {
		return fmt.Errorf("position sensor: %w", err)
	}
	b.sensor = sensor.PositionSensor{Body: b.body, Noise: noise}

	b.radio = rf.NewRadio(b.radioID, rt.ID(), b.body, rf.ReceiverFunc(b.receive))
	if b.cfg.Pattern != nil {
		b.radio.Pattern = b.cfg.Pattern
	}
	if err := b.engine.Register(b.radio); err != nil {
		return err
	}

	if b.cfg.BeaconPeriod > 0 {
		return rt.ScheduleSelf(b.cfg.BeaconPeriod*rng.Float64(), beaconTick{})
	}
	return nil
}

// HandleEvent broadcasts a beacon and schedules the next one.
func (b *Beacon) HandleEvent(ev core.Event) error {
	if _, ok := ev.Payload.(beaconTick); !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, ev.Payload)
	}
	b.seq++
	msg := Message{
		From:     b.rt.ID(),
		Seq:      b.seq,
		Position: b.sensor.Read(),
		SentAt:   ev.Time,
	}
	delivered := b.engine.Transmit(b.radio, msg, b.cfg.TxPower)
	b.stats.Sent++
	b.log.Debug(context.Background(), "beacon sent",
		logging.Uint64("seq", b.seq),
		logging.Int("delivered", delivered),
		logging.Float("sim_time", ev.Time),
	)
	return b.rt.ScheduleSelf(b.cfg.BeaconPeriod, beaconTick{})
}

// receive runs inside the sender's Transmit. Receptions that do not clear
// the noise floor by MinSNRdB are counted as missed.
func (b *Beacon) receive(now float64, payload any, power float64) {
	msg, ok := payload.(Message)
	if !ok {
		return
	}
	if !rf.Detectable(power, b.engine.NoiseFloor(), b.cfg.MinSNRdB) {
		b.stats.Missed++
		return
	}
	b.stats.Heard++
	b.neighbours[msg.From] = Neighbour{
		ID:        msg.From,
		LastHeard: now,
		Power:     power,
		Position:  msg.Position,
	}
}

// Update keeps the agent inside the arena and ages out stale neighbours.
func (b *Beacon) Update(now float64) {
	b.bounce(now)
	if b.cfg.NeighbourTTL > 0 {
		for id, n := range b.neighbours {
			if now-n.LastHeard > b.cfg.NeighbourTTL {
				delete(b.neighbours, id)
			}
		}
	}
}

// bounce reflects the velocity off the arena wall when the agent is outside
// it and still heading outward. The body is re-anchored at the current pose
// so its motion stays a pure function of time. Orbital agents have no wall.
func (b *Beacon) bounce(now float64) {
	if b.kin == nil || b.cfg.ArenaRadius <= 0 {
		return
	}
	pos := b.kin.TruthPosition()
	radial := core.Vec3{X: pos.X, Y: pos.Y}
	if radial.Norm() <= b.cfg.ArenaRadius {
		return
	}
	n := radial.Normalize()
	v := b.kin.Velocity
	if v.Dot(n) <= 0 {
		return
	}
	reflected := v.Sub(n.Scale(2 * v.Dot(n)))
	b.kin.Origin = pos
	b.kin.T0 = now
	b.kin.Velocity = reflected
	b.kin.Heading = math.Atan2(reflected.Y, reflected.X)
}

// Destroy removes the agent's radio from the engine.
func (b *Beacon) Destroy() {
	if b.radio != nil {
		b.engine.Unregister(b.radio)
	}
}

// ID returns the executive-assigned entity ID, or 0 before Initialize.
func (b *Beacon) ID() core.EntityID {
	if b.rt == nil {
		return 0
	}
	return b.rt.ID()
}

// Position returns the agent's truth position.
func (b *Beacon) Position() core.Vec3 {
	if b.body == nil {
		return core.Vec3{}
	}
	return b.body.TruthPosition()
}

// Neighbours returns the current neighbour table ordered by ID.
func (b *Beacon) Neighbours() []Neighbour {
	out := make([]Neighbour, 0, len(b.neighbours))
	for _, n := range b.neighbours {
		out = append(out, n)
	}
	slices.SortFunc(out, func(x, y Neighbour) int { return int(x.ID) - int(y.ID) })
	return out
}

// Stats returns the agent's counters.
func (b *Beacon) Stats() Stats { return b.stats }
