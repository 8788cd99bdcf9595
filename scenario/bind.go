package scenario

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/swarm-simulator/rf"
	"github.com/signalsfoundry/swarm-simulator/sensor"
	"github.com/signalsfoundry/swarm-simulator/timectrl"
	"github.com/signalsfoundry/swarm-simulator/variation"
)

// Defaults applied to settings a file leaves empty.
const (
	DefaultStepSize     = 0.1
	DefaultDuration     = 10.0
	DefaultTxPower      = 1.0
	DefaultSwarmCount   = 8
	DefaultSpeed        = 1.0
	DefaultArenaRadius  = 50.0
	DefaultAltitude     = 10.0
	DefaultBeaconPeriod = 1.0
	DefaultOrbitSpacing = 1.0
)

// RunSpec is a scenario with every setting bound for one variation.
type RunSpec struct {
	Name      string
	Variation variation.Variation
	Executive ExecutiveSpec
	Radio     RadioSpec
	Swarm     SwarmSpec
}

// ExecutiveSpec holds bound executive settings.
type ExecutiveSpec struct {
	StepSize    float64
	Duration    float64
	Pacing      timectrl.Mode
	PacingScale float64
}

// RadioSpec holds bound radio settings.
type RadioSpec struct {
	Engine   rf.EngineConfig
	TxPower  float64
	MinSNRdB float64
	Pattern  rf.AntennaPattern
}

// SwarmSpec holds bound swarm settings.
type SwarmSpec struct {
	Count         int
	Speed         float64
	ArenaRadius   float64
	Altitude      float64
	BeaconPeriod  float64
	NeighbourTTL  float64
	PositionNoise sensor.Spec
	// Orbit is nil for arena swarms.
	Orbit         *OrbitSpec
}

// OrbitSpec holds a bound orbital placement.
type OrbitSpec struct {
	Line1, Line2 string
	Epoch        time.Time
	Spacing      float64
}

// Bind resolves every setting against v's parameters and validates the
// result.
func (f *File) Bind(v variation.Variation) (*RunSpec, error) {
	b := &binder{params: v.Params()}
	defEngine := rf.DefaultEngineConfig()

	spec := &RunSpec{Name: f.Name, Variation: v}
	spec.Executive = ExecutiveSpec{
		StepSize:    b.float("executive.step_size", f.Executive.StepSize, DefaultStepSize),
		Duration:    b.float("executive.duration", f.Executive.Duration, DefaultDuration),
		PacingScale: b.float("executive.pacing_scale", f.Executive.PacingScale, 1),
	}
	spec.Radio = RadioSpec{
		Engine: rf.EngineConfig{
			RangeThreshold: b.float("radio.range_threshold", f.Radio.RangeThreshold, defEngine.RangeThreshold),
			NoiseMean:      b.float("radio.noise_mean", f.Radio.NoiseMean, defEngine.NoiseMean),
			NoiseStdDev:    b.float("radio.noise_stddev", f.Radio.NoiseStdDev, defEngine.NoiseStdDev),
			Wavelength:     b.float("radio.wavelength", f.Radio.Wavelength, defEngine.Wavelength),
		},
		TxPower:  b.float("radio.tx_power", f.Radio.TxPower, DefaultTxPower),
		MinSNRdB: b.float("radio.min_snr_db", f.Radio.MinSNRdB, 0),
	}
	ant := f.Radio.Antenna
	switch ant.Kind {
	case "cosine":
		spec.Radio.Pattern = rf.CosinePattern{
			PeakDB:   b.float("radio.antenna.peak_db", ant.PeakDB, 0),
			Exponent: b.float("radio.antenna.exponent", ant.Exponent, 1),
			FloorDB:  b.float("radio.antenna.floor_db", ant.FloorDB, -30),
		}
	default:
		spec.Radio.Pattern = rf.Isotropic{GainDB: b.float("radio.antenna.gain_db", ant.GainDB, 0)}
	}
	spec.Swarm = SwarmSpec{
		Count:         b.int("swarm.count", f.Swarm.Count, DefaultSwarmCount),
		Speed:         b.float("swarm.speed", f.Swarm.Speed, DefaultSpeed),
		ArenaRadius:   b.float("swarm.arena_radius", f.Swarm.ArenaRadius, DefaultArenaRadius),
		Altitude:      b.float("swarm.altitude", f.Swarm.Altitude, DefaultAltitude),
		BeaconPeriod:  b.float("swarm.beacon_period", f.Swarm.BeaconPeriod, DefaultBeaconPeriod),
		PositionNoise: f.Swarm.PositionNoise,
	}
	spec.Swarm.NeighbourTTL = b.float("swarm.neighbour_ttl", f.Swarm.NeighbourTTL, 3*spec.Swarm.BeaconPeriod)
	if f.Swarm.Body == "orbital" && f.Swarm.Orbit != nil {
		o := f.Swarm.Orbit
		spec.Swarm.Orbit = &OrbitSpec{Spacing: b.float("swarm.orbit.spacing", o.Spacing, DefaultOrbitSpacing)}
		if len(o.TLE) == 2 {
			spec.Swarm.Orbit.Line1, spec.Swarm.Orbit.Line2 = o.TLE[0], o.TLE[1]
		}
		if epoch, err := time.Parse(time.RFC3339, o.Epoch); err == nil {
			spec.Swarm.Orbit.Epoch = epoch
		} else if b.err == nil {
			b.err = fmt.Errorf("%w: swarm.orbit.epoch: %v", ErrInvalidScenario, err)
		}
	}
	if b.err != nil {
		return nil, b.err
	}

	spec.Executive.Pacing = timectrl.ParseMode(f.Executive.Pacing)
	var err error
	if spec.Radio.Engine.Law, err = rf.ParseAttenuationLaw(f.Radio.Law); err != nil {
		return nil, fmt.Errorf("%w: radio.law: %v", ErrInvalidScenario, err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *RunSpec) validate() error {
	switch {
	case s.Executive.StepSize <= 0:
		return fmt.Errorf("%w: executive.step_size must be > 0, got %g", ErrInvalidScenario, s.Executive.StepSize)
	case s.Executive.Duration < 0:
		return fmt.Errorf("%w: executive.duration must be >= 0, got %g", ErrInvalidScenario, s.Executive.Duration)
	case s.Executive.PacingScale <= 0:
		return fmt.Errorf("%w: executive.pacing_scale must be > 0, got %g", ErrInvalidScenario, s.Executive.PacingScale)
	case s.Radio.Engine.NoiseStdDev < 0:
		return fmt.Errorf("%w: radio.noise_stddev must be >= 0, got %g", ErrInvalidScenario, s.Radio.Engine.NoiseStdDev)
	case s.Swarm.Count < 0:
		return fmt.Errorf("%w: swarm.count must be >= 0, got %d", ErrInvalidScenario, s.Swarm.Count)
	case s.Swarm.ArenaRadius <= 0:
		return fmt.Errorf("%w: swarm.arena_radius must be > 0, got %g", ErrInvalidScenario, s.Swarm.ArenaRadius)
	case s.Swarm.BeaconPeriod <= 0:
		return fmt.Errorf("%w: swarm.beacon_period must be > 0, got %g", ErrInvalidScenario, s.Swarm.BeaconPeriod)
	case s.Swarm.Orbit != nil && s.Swarm.Orbit.Spacing < 0:
		return fmt.Errorf("%w: swarm.orbit.spacing must be >= 0, got %g", ErrInvalidScenario, s.Swarm.Orbit.Spacing)
	}
	return nil
}
