package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/swarm-simulator/internal/logging"
	"github.com/signalsfoundry/swarm-simulator/timectrl"
)

var (
	ErrInvalidState  = errors.New("executive in wrong state")
	ErrPaused        = errors.New("executive paused")
	ErrStopped       = errors.New("executive stopped")
	ErrEventInPast   = errors.New("event scheduled in the past")
	ErrEntityLimit   = errors.New("entity id space exhausted")
	ErrUnknownEntity = errors.New("unknown entity")
	ErrModelPanic    = errors.New("model panicked")
)

// ExecState is the Executive's run state.
type ExecState int

const (
	NotStarted ExecState = iota
	Running
	Paused
	Stopped
)

func (s ExecState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "not_started"
	}
}

// SeedSource hands out independent random streams by name. The variation
// package's SeedFactory satisfies it.
type SeedSource interface {
	Stream(name string) *rand.Rand
}

// ExecutiveMetrics receives step and delivery counts. The observability
// package's ExecutiveCollector satisfies it.
type ExecutiveMetrics interface {
	ObserveStep(now float64, queueDepth int)
	EventDelivered()
	EventDropped()
	EventFaulted()
}

// ExecutiveConfig is the explicit configuration record for one Executive.
// The zero value runs accelerated with ID-derived seeds and no logging.
type ExecutiveConfig struct {
	// Pacer throttles wall-clock cadence in Run. Nil runs accelerated.
	Pacer *timectrl.Pacer
	// Seeds supplies per-model random streams ("entity/<id>").
	Seeds   SeedSource
	Logger  logging.Logger
	Metrics ExecutiveMetrics
}

// Stats is a snapshot of executive counters.
type Stats struct {
	Steps           uint64
	EventsScheduled uint64
	EventsDelivered uint64
	EventsDropped   uint64
	EventFaults     uint64
	UpdateFaults    uint64
}

type entry struct {
	id    EntityID
	model Model
	state LifecycleState
	rt    *modelRuntime
}

// Executive owns simulated time, the model registry and event delivery for
// one run. Stepping is single-threaded; Pause, Resume, Stop and
// ScheduleEvent may be called from other goroutines.
type Executive struct {
	clock *timectrl.Clock
	cfg   ExecutiveConfig
	log   logging.Logger

	mu              sync.Mutex
	state           ExecState
	wake            chan struct{}
	stepping        bool
	teardownPending bool
	entries         []*entry
	byID            map[EntityID]*entry
	queue           eventQueue
	listeners       []func(now float64)
	closers         []io.Closer

	steps, scheduled, delivered, dropped, faults, updateFaults atomic.Uint64
}

// NewExecutive builds an Executive driving clock.
func NewExecutive(clock *timectrl.Clock, cfg ExecutiveConfig) *Executive {
	return &Executive{
		clock: clock,
		cfg:   cfg,
		log:   logging.OrNoop(cfg.Logger).With(logging.String("component", "executive")),
		byID:  make(map[EntityID]*entry),
	}
}

// Clock returns the read-only view of simulated time.
func (e *Executive) Clock() timectrl.SimClock { return e.clock }

// State returns the current run state.
func (e *Executive) State() ExecState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Register adds a model and assigns its ID. Models can only be registered
// before Start.
func (e *Executive) Register(m Model) (EntityID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != NotStarted {
		return 0, fmt.Errorf("%w: register after start (state %s)", ErrInvalidState, e.state)
	}
	if EntityID(len(e.entries)) >= MaxEntityID {
		return 0, ErrEntityLimit
	}
	id := EntityID(len(e.entries) + 1)
	ent := &entry{id: id, model: m, state: Uninitialized}
	ent.rt = &modelRuntime{
		id:   id,
		exec: e,
		rng:  e.streamFor(id),
		log:  e.log.With(logging.Int("entity_id", int(id))),
	}
	e.entries = append(e.entries, ent)
	e.byID[id] = ent
	return id, nil
}

func (e *Executive) streamFor(id EntityID) *rand.Rand {
	if e.cfg.Seeds != nil {
		return e.cfg.Seeds.Stream(fmt.Sprintf("entity/%d", id))
	}
	return rand.New(rand.NewPCG(uint64(id), 0x9e3779b97f4a7c15))
}

// Model returns the model registered under id.
func (e *Executive) Model(id EntityID) (Model, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	return ent.model, true
}

// Lifecycle returns the lifecycle state of id.
func (e *Executive) Lifecycle(id EntityID) (LifecycleState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return Uninitialized, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return ent.state, nil
}

// AddStepListener registers fn to run after every completed step with the
// advanced time.
func (e *Executive) AddStepListener(fn func(now float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// AddCloser registers a collaborator (e.g. the propagation engine) to be
// closed at teardown, in reverse order of registration.
func (e *Executive) AddCloser(c io.Closer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closers = append(e.closers, c)
}

// Start initializes every registered model in registration order and moves
// the Executive to Running. If any Initialize fails the Executive is stopped
// and the error returned.
func (e *Executive) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != NotStarted {
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, st)
	}
	entries := append([]*entry(nil), e.entries...)
	e.mu.Unlock()

	for _, ent := range entries {
		err := safeCall(func() error { return ent.model.Initialize(ent.rt) })
		if err != nil {
			e.log.Error(ctx, "model initialize failed",
				logging.Int("entity_id", int(ent.id)), logging.Err(err))
			e.Stop()
			return fmt.Errorf("initialize entity %d: %w", ent.id, err)
		}
		e.mu.Lock()
		if e.state == Stopped {
			e.mu.Unlock()
			return ErrStopped
		}
		ent.state = Active
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Stopped {
		return ErrStopped
	}
	e.state = Running
	e.log.Info(ctx, "executive started",
		logging.Int("models", len(entries)),
		logging.Float("step_size", e.clock.StepSize()),
	)
	return nil
}

// Pause moves Running to Paused. It has no effect in other states and never
// alters simulated time. A step in progress completes.
func (e *Executive) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return
	}
	e.state = Paused
	e.wake = make(chan struct{})
}

// Resume moves Paused back to Running.
func (e *Executive) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Paused {
		return
	}
	e.state = Running
	close(e.wake)
	e.wake = nil
}

// Stop moves the Executive to the terminal Stopped state from any state.
// Pending events are discarded, models are destroyed in reverse registration
// order and registered closers are closed. Repeated calls are no-ops. When
// called during a step, teardown runs as soon as the current delivery or
// update returns.
func (e *Executive) Stop() {
	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return
	}
	if e.state == Paused && e.wake != nil {
		close(e.wake)
		e.wake = nil
	}
	e.state = Stopped
	if e.stepping {
		e.teardownPending = true
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.teardown()
}

func (e *Executive) teardown() {
	e.mu.Lock()
	dropped := e.queue.clear()
	entries := append([]*entry(nil), e.entries...)
	var destroy []Destroyer
	for i := len(entries) - 1; i >= 0; i-- {
		ent := entries[i]
		if ent.state == Active {
			if d, ok := ent.model.(Destroyer); ok {
				destroy = append(destroy, d)
			}
		}
		ent.state = Destroyed
	}
	closers := e.closers
	e.closers = nil
	e.mu.Unlock()

	e.dropped.Add(uint64(dropped))
	for _, d := range destroy {
		_ = safeCall(func() error { d.Destroy(); return nil })
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			e.log.Warn(context.Background(), "closer failed during teardown", logging.Err(err))
		}
	}
	e.log.Info(context.Background(), "executive stopped",
		logging.Float("sim_time", e.clock.Now()),
		logging.Uint64("steps", e.steps.Load()),
		logging.Int("events_discarded", dropped),
	)
}

// Destroy marks one model Destroyed mid-run. Events still queued for it are
// dropped at delivery time.
func (e *Executive) Destroy(id EntityID) error {
	e.mu.Lock()
	ent, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	wasActive := ent.state == Active
	ent.state = Destroyed
	e.mu.Unlock()

	if d, ok := ent.model.(Destroyer); ok && wasActive {
		_ = safeCall(func() error { d.Destroy(); return nil })
	}
	return nil
}

// ScheduleEvent queues payload for target at simulated time at. Scheduling
// before the current time is a usage error. Targets are not validated here:
// events for unknown or destroyed models are dropped at delivery.
func (e *Executive) ScheduleEvent(target EntityID, at float64, payload any) error {
	now := e.clock.Now()
	if math.IsNaN(at) || at < now {
		return fmt.Errorf("%w: target %d at t=%g, now t=%g", ErrEventInPast, target, at, now)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Stopped {
		return ErrStopped
	}
	e.queue.push(target, at, payload)
	e.scheduled.Add(1)
	return nil
}

// PendingEvents returns the number of queued events.
func (e *Executive) PendingEvents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.len()
}

// Step runs exactly one step: deliver due events, update every Active model
// in registration order, then advance the clock.
func (e *Executive) Step(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case NotStarted:
		e.mu.Unlock()
		return fmt.Errorf("%w: step before start", ErrInvalidState)
	case Paused:
		e.mu.Unlock()
		return ErrPaused
	case Stopped:
		e.mu.Unlock()
		return ErrStopped
	}
	e.stepping = true
	entries := e.entries
	e.mu.Unlock()

	stopped := e.runStep(ctx, entries)

	e.mu.Lock()
	e.stepping = false
	pending := e.teardownPending
	e.teardownPending = false
	e.mu.Unlock()
	if pending {
		e.teardown()
	}
	if stopped {
		return ErrStopped
	}
	return nil
}

// runStep reports whether the executive was stopped part-way through.
func (e *Executive) runStep(ctx context.Context, entries []*entry) bool {
	now := e.clock.Now()

	for {
		e.mu.Lock()
		if e.state == Stopped {
			e.mu.Unlock()
			return true
		}
		ev, ok := e.queue.popDue(now)
		var target *entry
		active := false
		if ok {
			target = e.byID[ev.Target]
			active = target != nil && target.state == Active
		}
		e.mu.Unlock()
		if !ok {
			break
		}
		if !active {
			e.drop(ctx, ev, "target not active")
			continue
		}
		e.deliver(ctx, target, ev)
	}

	for _, ent := range entries {
		e.mu.Lock()
		st, lc := e.state, ent.state
		e.mu.Unlock()
		if st == Stopped {
			return true
		}
		if lc != Active {
			continue
		}
		if err := safeCall(func() error { ent.model.Update(now); return nil }); err != nil {
			e.updateFaults.Add(1)
			e.log.Error(ctx, "model update failed",
				logging.Int("entity_id", int(ent.id)), logging.Float("sim_time", now), logging.Err(err))
		}
	}

	// The last model may have stopped the executive.
	e.mu.Lock()
	stopped := e.state == Stopped
	e.mu.Unlock()
	if stopped {
		return true
	}

	advanced := e.clock.Advance()
	e.steps.Add(1)

	e.mu.Lock()
	depth := e.queue.len()
	listeners := e.listeners
	e.mu.Unlock()
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveStep(advanced, depth)
	}
	for _, fn := range listeners {
		fn(advanced)
	}
	return false
}

func (e *Executive) deliver(ctx context.Context, ent *entry, ev Event) {
	h, ok := ent.model.(EventHandler)
	if !ok {
		e.drop(ctx, ev, "target has no event handler")
		return
	}
	if err := safeCall(func() error { return h.HandleEvent(ev) }); err != nil {
		e.faults.Add(1)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.EventFaulted()
		}
		e.log.Warn(ctx, "event handler failed",
			logging.Int("entity_id", int(ent.id)),
			logging.Float("event_time", ev.Time),
			logging.Uint64("event_seq", ev.Seq),
			logging.Err(err),
		)
		return
	}
	e.delivered.Add(1)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EventDelivered()
	}
}

func (e *Executive) drop(ctx context.Context, ev Event, reason string) {
	e.dropped.Add(1)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EventDropped()
	}
	e.log.Debug(ctx, "event dropped",
		logging.Int("entity_id", int(ev.Target)),
		logging.Uint64("event_seq", ev.Seq),
		logging.String("reason", reason),
	)
}

// Run steps until simulated time reaches until (until <= 0 runs until
// stopped). It blocks while Paused, waits on the Pacer between steps and
// returns nil once stopped or the horizon is reached. Run does not stop the
// Executive when the horizon is reached.
func (e *Executive) Run(ctx context.Context, until float64) error {
	step := e.clock.StepSize()
	for {
		if until > 0 && e.clock.Now() >= until-step*1e-9 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		e.mu.Lock()
		st, wake := e.state, e.wake
		e.mu.Unlock()
		switch st {
		case Stopped:
			return nil
		case NotStarted:
			return fmt.Errorf("%w: run before start", ErrInvalidState)
		case Paused:
			select {
			case <-wake:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if err := e.cfg.Pacer.Wait(ctx, step); err != nil {
			return err
		}
		switch err := e.Step(ctx); {
		case err == nil, errors.Is(err, ErrPaused):
		case errors.Is(err, ErrStopped):
			return nil
		default:
			return err
		}
	}
}

// Stats returns a snapshot of the executive's counters.
func (e *Executive) Stats() Stats {
	return Stats{
		Steps:           e.steps.Load(),
		EventsScheduled: e.scheduled.Load(),
		EventsDelivered: e.delivered.Load(),
		EventsDropped:   e.dropped.Load(),
		EventFaults:     e.faults.Load(),
		UpdateFaults:    e.updateFaults.Load(),
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModelPanic, r)
		}
	}()
	return fn()
}
