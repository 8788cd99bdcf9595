package rf

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// AntennaPattern maps a direction in the antenna's own frame to a
// directional gain in dB. Boresight is +X; azimuth is measured in the XY
// plane from +X towards +Y and elevation towards +Z, both in radians.
type AntennaPattern interface {
	Gain(azimuth, elevation float64) float64
}

// PatternFunc adapts a plain function to AntennaPattern.
type PatternFunc func(azimuth, elevation float64) float64

func (f PatternFunc) Gain(azimuth, elevation float64) float64 { return f(azimuth, elevation) }

// Isotropic radiates GainDB in every direction.
type Isotropic struct {
	GainDB float64
}

func (p Isotropic) Gain(float64, float64) float64 { return p.GainDB }

// CosinePattern is a single-lobe pattern: PeakDB on boresight, rolling off as
// cos^Exponent of the off-boresight angle and never dropping below FloorDB.
type CosinePattern struct {
	PeakDB   float64
	Exponent float64
	FloorDB  float64
}

func (p CosinePattern) Gain(azimuth, elevation float64) float64 {
	c := math.Cos(azimuth) * math.Cos(elevation)
	if c <= 0 {
		return p.FloorDB
	}
	g := p.PeakDB + p.Exponent*LinearToDB(c)
	if g < p.FloorDB {
		return p.FloorDB
	}
	return g
}

// ErrInvalidPattern reports a malformed tabulated pattern.
var ErrInvalidPattern = errors.New("invalid antenna pattern")

// TabulatedPattern interpolates measured gains bilinearly over an
// azimuth/elevation grid. Directions outside the grid clamp to its edge.
type TabulatedPattern struct {
	azimuths   []float64
	elevations []float64
	gains      [][]float64 // [elevation][azimuth], dB
}

// NewTabulatedPattern validates and builds a pattern. Axes must be strictly
// increasing and gains must be len(elevations) rows of len(azimuths) values.
func NewTabulatedPattern(azimuths, elevations []float64, gainsDB [][]float64) (*TabulatedPattern, error) {
	if len(azimuths) == 0 || len(elevations) == 0 {
		return nil, fmt.Errorf("%w: empty axis", ErrInvalidPattern)
	}
	if !strictlyIncreasing(azimuths) || !strictlyIncreasing(elevations) {
		return nil, fmt.Errorf("%w: axes must be strictly increasing", ErrInvalidPattern)
	}
	if len(gainsDB) != len(elevations) {
		return nil, fmt.Errorf("%w: %d gain rows for %d elevations", ErrInvalidPattern, len(gainsDB), len(elevations))
	}
	rows := make([][]float64, len(gainsDB))
	for i, row := range gainsDB {
		if len(row) != len(azimuths) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d azimuths", ErrInvalidPattern, i, len(row), len(azimuths))
		}
		rows[i] = append([]float64(nil), row...)
	}
	return &TabulatedPattern{
		azimuths:   append([]float64(nil), azimuths...),
		elevations: append([]float64(nil), elevations...),
		gains:      rows,
	}, nil
}

func (p *TabulatedPattern) Gain(azimuth, elevation float64) float64 {
	i0, i1, ta := bracket(p.azimuths, azimuth)
	j0, j1, te := bracket(p.elevations, elevation)
	g00 := p.gains[j0][i0]
	g01 := p.gains[j0][i1]
	g10 := p.gains[j1][i0]
	g11 := p.gains[j1][i1]
	low := g00 + (g01-g00)*ta
	high := g10 + (g11-g10)*ta
	return low + (high-low)*te
}

// bracket returns neighbouring indices around x and the interpolation weight.
func bracket(axis []float64, x float64) (int, int, float64) {
	n := len(axis)
	if n == 1 || x <= axis[0] {
		return 0, 0, 0
	}
	if x >= axis[n-1] {
		return n - 1, n - 1, 0
	}
	hi := sort.SearchFloat64s(axis, x)
	if axis[hi] == x {
		return hi, hi, 0
	}
	lo := hi - 1
	return lo, hi, (x - axis[lo]) / (axis[hi] - axis[lo])
}

func strictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}
