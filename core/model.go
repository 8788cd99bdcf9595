package core

import (
	"math/rand/v2"

	"github.com/signalsfoundry/swarm-simulator/internal/logging"
	"github.com/signalsfoundry/swarm-simulator/timectrl"
)

// EntityID identifies a model within one Executive. Valid IDs are in
// (0, MaxEntityID].
type EntityID int

// MaxEntityID bounds how many models a single Executive can register.
const MaxEntityID EntityID = 1<<31 - 1

// LifecycleState is the per-model lifecycle.
type LifecycleState int

const (
	Uninitialized LifecycleState = iota
	Active
	Destroyed
)

func (s LifecycleState) String() string {
	switch s {
	case Active:
		return "active"
	case Destroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Model is the minimal lifecycle contract the Executive drives. Agents own
// their capabilities (radios, sensors) and expose only this to the Executive.
type Model interface {
	// Initialize is called exactly once, in registration order, before the
	// first Update. The Runtime stays valid for the lifetime of the run.
	Initialize(rt Runtime) error
	// Update is called exactly once per step while the model is Active.
	Update(now float64)
}

// EventHandler is implemented by models that accept scheduled events.
type EventHandler interface {
	HandleEvent(ev Event) error
}

// Destroyer is implemented by models that release resources at teardown.
type Destroyer interface {
	Destroy()
}

// Runtime is the Executive's surface exposed to a single model.
type Runtime interface {
	ID() EntityID
	Clock() timectrl.SimClock
	// Schedule queues payload for delivery to target at simulated time at.
	Schedule(target EntityID, at float64, payload any) error
	// ScheduleSelf queues payload for this model delay seconds from now.
	ScheduleSelf(delay float64, payload any) error
	// Rand is this model's private random stream.
	Rand() *rand.Rand
	Logger() logging.Logger
}

// Event is a payload bound for one model at one simulated time.
type Event struct {
	Target  EntityID
	Time    float64
	Seq     uint64
	Payload any
}

type modelRuntime struct {
	id   EntityID
	exec *Executive
	rng  *rand.Rand
	log  logging.Logger
}

func (r *modelRuntime) ID() EntityID             { return r.id }
func (r *modelRuntime) Clock() timectrl.SimClock { return r.exec.clock }
func (r *modelRuntime) Rand() *rand.Rand         { return r.rng }
func (r *modelRuntime) Logger() logging.Logger   { return r.log }

func (r *modelRuntime) Schedule(target EntityID, at float64, payload any) error {
	return r.exec.ScheduleEvent(target, at, payload)
}

func (r *modelRuntime) ScheduleSelf(delay float64, payload any) error {
	return r.exec.ScheduleEvent(r.id, r.exec.clock.Now()+delay, payload)
}
