// Package sensor holds the noise-injection contract shared by every sensor
// an agent carries. Sensors read truth from a core.PhysicalEntity and pass
// each reading through a Noise before handing it to behaviour code.
package sensor

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/swarm-simulator/core"
)

// Noise perturbs a true reading. Implementations draw from their own stream
// so that each sensor's noise is reproducible per seed.
type Noise interface {
	Perturb(truth float64) float64
}

// None passes readings through unchanged.
type None struct{}

func (None) Perturb(truth float64) float64 { return truth }

// Gaussian adds N(Mean, StdDev) to each reading.
type Gaussian struct {
	Mean   float64
	StdDev float64
	rng    *rand.Rand
}

// NewGaussian builds additive Gaussian noise drawing from rng.
func NewGaussian(rng *rand.Rand, mean, stddev float64) *Gaussian {
	return &Gaussian{Mean: mean, StdDev: stddev, rng: rng}
}

func (g *Gaussian) Perturb(truth float64) float64 {
	return truth + g.Mean + g.rng.NormFloat64()*g.StdDev
}

// Uniform adds a sample from [Min, Max) to each reading.
type Uniform struct {
	Min float64
	Max float64
	rng *rand.Rand
}

// NewUniform builds additive uniform noise drawing from rng.
func NewUniform(rng *rand.Rand, min, max float64) *Uniform {
	return &Uniform{Min: min, Max: max, rng: rng}
}

func (u *Uniform) Perturb(truth float64) float64 {
	return truth + u.Min + u.rng.Float64()*(u.Max-u.Min)
}

// PerturbVec applies n independently to each component of v, in X, Y, Z
// order.
func PerturbVec(n Noise, v core.Vec3) core.Vec3 {
	return core.Vec3{X: n.Perturb(v.X), Y: n.Perturb(v.Y), Z: n.Perturb(v.Z)}
}

// Spec describes a noise model in configuration files.
type Spec struct {
	Kind   string  `yaml:"kind"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// New builds the noise model described by s. An empty kind means None.
func New(s Spec, rng *rand.Rand) (Noise, error) {
	switch s.Kind {
	case "", "none":
		return None{}, nil
	case "gaussian":
		if s.StdDev < 0 {
			return nil, fmt.Errorf("gaussian noise: negative stddev %g", s.StdDev)
		}
		return NewGaussian(rng, s.Mean, s.StdDev), nil
	case "uniform":
		if s.Max < s.Min {
			return nil, fmt.Errorf("uniform noise: max %g below min %g", s.Max, s.Min)
		}
		return NewUniform(rng, s.Min, s.Max), nil
	default:
		return nil, fmt.Errorf("unknown noise kind %q", s.Kind)
	}
}

// PositionSensor reports a noisy copy of an entity's true position.
type PositionSensor struct {
	Body  core.PhysicalEntity
	Noise Noise
}

// Read samples the sensor.
func (s PositionSensor) Read() core.Vec3 {
	n := s.Noise
	if n == nil {
		n = None{}
	}
	return PerturbVec(n, s.Body.TruthPosition())
}
