package rf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/signalsfoundry/swarm-simulator/core"
	"github.com/signalsfoundry/swarm-simulator/internal/logging"
	"github.com/signalsfoundry/swarm-simulator/timectrl"
)

var (
	ErrRadioExists  = errors.New("radio already registered")
	ErrInvalidRadio = errors.New("invalid radio")
	ErrEngineClosed = errors.New("propagation engine closed")
)

// AttenuationLaw selects how received power falls off with distance.
type AttenuationLaw int

const (
	// InverseSquare is rx = P / (d² + 1). The +1 keeps zero range finite.
	InverseSquare AttenuationLaw = iota
	// TwoRay is inverse-square up to the crossover distance 4π·ht·hr/λ and
	// P·(ht·hr)² / (d⁴ + 1) beyond it, with heights taken from the Z axis.
	TwoRay
)

func (l AttenuationLaw) String() string {
	switch l {
	case TwoRay:
		return "two_ray"
	default:
		return "inverse_square"
	}
}

// ParseAttenuationLaw maps a config string to a law. Empty means InverseSquare.
func ParseAttenuationLaw(s string) (AttenuationLaw, error) {
	switch s {
	case "", "inverse_square":
		return InverseSquare, nil
	case "two_ray":
		return TwoRay, nil
	default:
		return InverseSquare, fmt.Errorf("unknown attenuation law %q", s)
	}
}

// EngineConfig is the explicit configuration record for a propagation engine.
type EngineConfig struct {
	// RangeThreshold culls receivers farther than this many meters. Power
	// beyond it is exactly zero; this is a modeling simplification, not a
	// physical cutoff. Non-positive disables culling.
	RangeThreshold float64
	NoiseMean      float64
	NoiseStdDev    float64
	Law            AttenuationLaw
	// Wavelength in meters, used by TwoRay only.
	Wavelength float64
}

// DefaultEngineConfig returns a 100 m range with a quiet noise floor.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RangeThreshold: 100,
		NoiseMean:      1e-6,
		NoiseStdDev:    1e-7,
		Law:            InverseSquare,
		Wavelength:     0.125,
	}
}

// PropagationMetrics receives per-transmission counts. The observability
// package's PropagationCollector satisfies it.
type PropagationMetrics interface {
	Transmitted()
	Received(power float64)
	Culled()
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logging.Logger) EngineOption {
	return func(e *Engine) { e.log = logging.OrNoop(log).With(logging.String("component", "rf")) }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m PropagationMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// Engine routes transmissions to every other registered radio with the
// received power computed from antenna geometry and distance. The radio set
// is expected to change only between steps; the lock just keeps misuse from
// corrupting it.
type Engine struct {
	clock   timectrl.SimClock
	cfg     EngineConfig
	log     logging.Logger
	metrics PropagationMetrics

	mu     sync.RWMutex
	radios []*Radio
	byID   map[RadioID]*Radio
	closed bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine builds an engine reading time from clock and drawing noise
// samples from rng. A nil rng gets a fixed-seed stream.
func NewEngine(clock timectrl.SimClock, rng *rand.Rand, cfg EngineConfig, opts ...EngineOption) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	e := &Engine{
		clock: clock,
		cfg:   cfg,
		log:   logging.Noop(),
		byID:  make(map[RadioID]*Radio),
		rng:   rng,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig { return e.cfg }

// Register adds r to the radio set.
func (e *Engine) Register(r *Radio) error {
	if r == nil || r.Owner == nil || r.Receiver == nil {
		return fmt.Errorf("%w: radio needs an owner and a receiver", ErrInvalidRadio)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if _, ok := e.byID[r.ID]; ok {
		return fmt.Errorf("%w: %d", ErrRadioExists, r.ID)
	}
	e.radios = append(e.radios, r)
	e.byID[r.ID] = r
	e.log.Debug(context.Background(), "radio registered",
		logging.Int("radio_id", int(r.ID)),
		logging.Int("owner_id", int(r.OwnerID)),
	)
	return nil
}

// Unregister removes r. Unknown radios are ignored.
func (e *Engine) Unregister(r *Radio) {
	if r == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byID[r.ID] != r {
		return
	}
	delete(e.byID, r.ID)
	for i, cur := range e.radios {
		if cur == r {
			e.radios = append(e.radios[:i:i], e.radios[i+1:]...)
			break
		}
	}
}

// Radios returns the registered radios in registration order.
func (e *Engine) Radios() []*Radio {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Radio(nil), e.radios...)
}

// Transmit delivers payload to every registered radio other than tx that is
// within range and shares a band with it, and returns how many receivers were
// called. Received power can be NaN if the antenna pattern returns NaN.
func (e *Engine) Transmit(tx *Radio, payload any, txPower float64) int {
	if tx == nil {
		return 0
	}
	radios := e.Radios()
	if e.metrics != nil {
		e.metrics.Transmitted()
	}
	now := e.clock.Now()
	txPos := tx.Position()
	frame := tx.antennaFrame()

	delivered := 0
	for _, rx := range radios {
		if rx == tx || !tx.Band.IsCompatible(rx.Band) {
			continue
		}
		rxPos := rx.Position()
		p, inRange := e.power(tx, frame, txPos, rxPos, txPower)
		if !inRange {
			if e.metrics != nil {
				e.metrics.Culled()
			}
			continue
		}
		rx.Receiver.Receive(now, payload, p)
		delivered++
		if e.metrics != nil {
			e.metrics.Received(p)
		}
	}
	return delivered
}

// PowerAt returns the power rx would receive from tx. It is exactly zero
// beyond the range threshold.
func (e *Engine) PowerAt(tx, rx *Radio, txPower float64) float64 {
	p, _ := e.power(tx, tx.antennaFrame(), tx.Position(), rx.Position(), txPower)
	return p
}

func (e *Engine) power(tx *Radio, frame core.Quaternion, txPos, rxPos core.Vec3, txPower float64) (float64, bool) {
	diff := rxPos.Sub(txPos)
	d2 := diff.Dot(diff)
	if thr := e.cfg.RangeThreshold; thr > 0 && d2 > thr*thr {
		return 0, false
	}
	adjusted := txPower
	if d2 > 0 {
		az, el := core.SphericalAngles(frame.Rotate(diff))
		adjusted = txPower * DBToLinear(tx.gain(az, el))
	}
	return e.attenuate(adjusted, d2, txPos.Z, rxPos.Z), true
}

func (e *Engine) attenuate(p, d2, ht, hr float64) float64 {
	if e.cfg.Law == TwoRay && e.cfg.Wavelength > 0 {
		h := math.Abs(ht * hr)
		crossover := 4 * math.Pi * h / e.cfg.Wavelength
		if d2 > crossover*crossover {
			return p * h * h / (d2*d2 + 1)
		}
	}
	return p / (d2 + 1)
}

// NoiseFloor returns a fresh Gaussian noise sample. It is never added to
// received power by the engine.
func (e *Engine) NoiseFloor() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.cfg.NoiseMean + e.rng.NormFloat64()*e.cfg.NoiseStdDev
}

// Close unregisters every radio. Transmissions after Close deliver nothing
// and Register fails with ErrEngineClosed. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	n := len(e.radios)
	e.radios = nil
	e.byID = make(map[RadioID]*Radio)
	e.closed = true
	e.log.Debug(context.Background(), "propagation engine closed", logging.Int("radios", n))
	return nil
}
