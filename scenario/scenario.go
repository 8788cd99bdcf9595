// Package scenario reads YAML scenario files. A file declares the looping
// variables handed to the variation resolver and the component settings of
// every run; any setting may reference a variable with ${name} or
// ${name:default} and is bound per variation by File.Bind.
package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/swarm-simulator/core"
	"github.com/signalsfoundry/swarm-simulator/sensor"
	"github.com/signalsfoundry/swarm-simulator/variation"
)

// ErrInvalidScenario wraps every structural or binding error in a file.
var ErrInvalidScenario = errors.New("invalid scenario")

// Expr is a scalar that may contain placeholders. Plain YAML numbers decode
// into it unchanged.
type Expr string

// File is the on-disk scenario shape.
type File struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Repetitions int           `yaml:"repetitions,omitempty"`
	MasterSeed  *VariableDef  `yaml:"master_seed,omitempty"`
	Variables   []VariableDef `yaml:"variables"`
	Executive   ExecutiveDef  `yaml:"executive"`
	Radio       RadioDef      `yaml:"radio"`
	Swarm       SwarmDef      `yaml:"swarm"`
}

// VariableDef is one looping variable as written in a file.
type VariableDef struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	DependsOn    []string `yaml:"depends_on,omitempty"`
	Value        Expr     `yaml:"value,omitempty"`
	Lower        Expr     `yaml:"lower,omitempty"`
	Upper        Expr     `yaml:"upper,omitempty"`
	Step         Expr     `yaml:"step,omitempty"`
	Items        []Expr   `yaml:"items,omitempty"`
	First        int      `yaml:"first,omitempty"`
	Count        int      `yaml:"count,omitempty"`
	Distribution string   `yaml:"distribution,omitempty"`
	Mean         Expr     `yaml:"mean,omitempty"`
	StdDev       Expr     `yaml:"stddev,omitempty"`
	Seed         *uint64  `yaml:"seed,omitempty"`
}

// ExecutiveDef configures the simulation executive.
type ExecutiveDef struct {
	StepSize    Expr   `yaml:"step_size"`
	Duration    Expr   `yaml:"duration"`
	Pacing      string `yaml:"pacing,omitempty"`
	PacingScale Expr   `yaml:"pacing_scale,omitempty"`
}

// RadioDef configures the propagation engine and every agent radio.
type RadioDef struct {
	RangeThreshold Expr       `yaml:"range_threshold"`
	NoiseMean      Expr       `yaml:"noise_mean"`
	NoiseStdDev    Expr       `yaml:"noise_stddev"`
	Law            string     `yaml:"law,omitempty"`
	Wavelength     Expr       `yaml:"wavelength,omitempty"`
	TxPower        Expr       `yaml:"tx_power"`
	MinSNRdB       Expr       `yaml:"min_snr_db,omitempty"`
	Antenna        AntennaDef `yaml:"antenna"`
}

// AntennaDef selects an antenna pattern.
type AntennaDef struct {
	Kind     string `yaml:"kind"`
	GainDB   Expr   `yaml:"gain_db,omitempty"`
	PeakDB   Expr   `yaml:"peak_db,omitempty"`
	Exponent Expr   `yaml:"exponent,omitempty"`
	FloorDB  Expr   `yaml:"floor_db,omitempty"`
}

// SwarmDef configures the demo beacon swarm.
type SwarmDef struct {
	Count         Expr        `yaml:"count"`
	Speed         Expr        `yaml:"speed"`
	ArenaRadius   Expr        `yaml:"arena_radius"`
	Altitude      Expr        `yaml:"altitude,omitempty"`
	BeaconPeriod  Expr        `yaml:"beacon_period"`
	NeighbourTTL  Expr        `yaml:"neighbour_ttl,omitempty"`
	PositionNoise sensor.Spec `yaml:"position_noise,omitempty"`
	Body          string      `yaml:"body,omitempty"`
	Orbit         *OrbitDef   `yaml:"orbit,omitempty"`
}

// OrbitDef places an orbital swarm on one TLE. Epoch is RFC 3339; spacing
// is the along-track gap between consecutive agents in seconds.
type OrbitDef struct {
	TLE     []string `yaml:"tle"`
	Epoch   string   `yaml:"epoch"`
	Spacing Expr     `yaml:"spacing,omitempty"`
}

// Validate checks everything that can be checked before variables are
// bound: names, kinds, spellings, the noise model and the orbit.
func (f *File) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if f.Repetitions < 0 {
		return fmt.Errorf("%w: repetitions must be >= 0, got %d", ErrInvalidScenario, f.Repetitions)
	}
	for i, d := range f.Variables {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: variables[%d] has no name", ErrInvalidScenario, i)
		}
		if _, err := d.toVariable(); err != nil {
			return fmt.Errorf("%w: variables[%d]: %v", ErrInvalidScenario, i, err)
		}
	}
	if f.MasterSeed != nil {
		if _, err := f.MasterSeed.toVariable(); err != nil {
			return fmt.Errorf("%w: master_seed: %v", ErrInvalidScenario, err)
		}
	}
	switch f.Executive.Pacing {
	case "", "accelerated", "realtime", "real-time":
	default:
		return fmt.Errorf("%w: unknown pacing %q", ErrInvalidScenario, f.Executive.Pacing)
	}
	switch f.Radio.Antenna.Kind {
	case "", "isotropic", "cosine":
	default:
		return fmt.Errorf("%w: unknown antenna kind %q", ErrInvalidScenario, f.Radio.Antenna.Kind)
	}
	if _, err := sensor.New(f.Swarm.PositionNoise, nil); err != nil {
		return fmt.Errorf("%w: swarm.position_noise: %v", ErrInvalidScenario, err)
	}
	switch f.Swarm.Body {
	case "", "kinematic":
	case "orbital":
		if err := f.Swarm.Orbit.validate(); err != nil {
			return fmt.Errorf("%w: swarm.orbit: %v", ErrInvalidScenario, err)
		}
	default:
		return fmt.Errorf("%w: unknown swarm body %q", ErrInvalidScenario, f.Swarm.Body)
	}
	return nil
}

func (o *OrbitDef) validate() error {
	if o == nil {
		return errors.New("required for an orbital body")
	}
	if len(o.TLE) != 2 {
		return fmt.Errorf("tle needs 2 lines, got %d", len(o.TLE))
	}
	if err := core.ValidateTLE(o.TLE[0], o.TLE[1]); err != nil {
		return err
	}
	if _, err := time.Parse(time.RFC3339, o.Epoch); err != nil {
		return fmt.Errorf("epoch: %v", err)
	}
	return nil
}

// Scenario converts the variable tree for the resolver.
func (f *File) Scenario() (variation.Scenario, error) {
	sc := variation.Scenario{Repetitions: f.Repetitions}
	for i, d := range f.Variables {
		v, err := d.toVariable()
		if err != nil {
			return variation.Scenario{}, fmt.Errorf("%w: variables[%d]: %v", ErrInvalidScenario, i, err)
		}
		sc.Variables = append(sc.Variables, v)
	}
	if f.MasterSeed != nil {
		v, err := f.MasterSeed.toVariable()
		if err != nil {
			return variation.Scenario{}, fmt.Errorf("%w: master_seed: %v", ErrInvalidScenario, err)
		}
		sc.MasterSeed = &v
	}
	return sc, nil
}

func (d VariableDef) toVariable() (variation.LoopingVariable, error) {
	kind, err := variation.ParseKind(d.Kind)
	if err != nil {
		return variation.LoopingVariable{}, err
	}
	dist, err := variation.ParseDistribution(d.Distribution)
	if err != nil {
		return variation.LoopingVariable{}, err
	}
	items := make([]string, len(d.Items))
	for i, it := range d.Items {
		items[i] = string(it)
	}
	return variation.LoopingVariable{
		Name:         d.Name,
		Kind:         kind,
		DependsOn:    append([]string(nil), d.DependsOn...),
		Value:        string(d.Value),
		Lower:        string(d.Lower),
		Upper:        string(d.Upper),
		Step:         string(d.Step),
		Items:        items,
		First:        d.First,
		Count:        d.Count,
		Distribution: dist,
		Mean:         string(d.Mean),
		StdDev:       string(d.StdDev),
		Seed:         d.Seed,
	}, nil
}

// binder substitutes placeholders from one variation and records the first
// error so Bind can read fields in sequence.
type binder struct {
	params variation.Params
	err    error
}

func (b *binder) text(field string, e Expr, def string) string {
	if b.err != nil {
		return ""
	}
	s := strings.TrimSpace(string(e))
	if s == "" {
		return def
	}
	out, err := variation.Substitute(s, b.params.Get)
	if err != nil {
		b.err = fmt.Errorf("%w: %s: %v", ErrInvalidScenario, field, err)
		return ""
	}
	return strings.TrimSpace(out)
}

func (b *binder) float(field string, e Expr, def float64) float64 {
	s := b.text(field, e, "")
	if b.err != nil {
		return 0
	}
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		b.err = fmt.Errorf("%w: %s: malformed number %q", ErrInvalidScenario, field, s)
		return 0
	}
	return f
}

func (b *binder) int(field string, e Expr, def int) int {
	f := b.float(field, e, float64(def))
	if b.err != nil {
		return 0
	}
	if f != float64(int(f)) {
		b.err = fmt.Errorf("%w: %s: %v is not an integer", ErrInvalidScenario, field, f)
		return 0
	}
	return int(f)
}
