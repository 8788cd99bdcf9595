package sensor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/swarm-simulator/core"
)

func TestNoneIsIdentity(t *testing.T) {
	if got := (None{}).Perturb(3.5); got != 3.5 {
		t.Fatalf("Perturb = %v, want 3.5", got)
	}
}

func TestGaussianStatistics(t *testing.T) {
	g := NewGaussian(rand.New(rand.NewPCG(7, 7)), 1, 0.5)
	const n = 20000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		d := g.Perturb(10) - 10
		sum += d
		sumSq += d * d
	}
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)
	if math.Abs(mean-1) > 0.02 {
		t.Fatalf("mean offset = %v, want ~1", mean)
	}
	if math.Abs(std-0.5) > 0.02 {
		t.Fatalf("stddev = %v, want ~0.5", std)
	}
}

func TestUniformBounds(t *testing.T) {
	u := NewUniform(rand.New(rand.NewPCG(3, 4)), -1, 2)
	for i := 0; i < 1000; i++ {
		d := u.Perturb(0)
		if d < -1 || d >= 2 {
			t.Fatalf("sample %v outside [-1, 2)", d)
		}
	}
}

func TestNoiseIsReproduciblePerSeed(t *testing.T) {
	a := NewGaussian(rand.New(rand.NewPCG(42, 0)), 0, 1)
	b := NewGaussian(rand.New(rand.NewPCG(42, 0)), 0, 1)
	for i := 0; i < 100; i++ {
		if x, y := a.Perturb(0), b.Perturb(0); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestNewFromSpec(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	cases := []struct {
		spec    Spec
		wantErr bool
	}{
		{spec: Spec{}},
		{spec: Spec{Kind: "gaussian", StdDev: 1}},
		{spec: Spec{Kind: "uniform", Min: 0, Max: 1}},
		{spec: Spec{Kind: "gaussian", StdDev: -1}, wantErr: true},
		{spec: Spec{Kind: "uniform", Min: 2, Max: 1}, wantErr: true},
		{spec: Spec{Kind: "laplace"}, wantErr: true},
	}
	for _, tc := range cases {
		_, err := New(tc.spec, rng)
		if (err != nil) != tc.wantErr {
			t.Fatalf("New(%+v) err = %v, wantErr %v", tc.spec, err, tc.wantErr)
		}
	}
}

func TestPositionSensor(t *testing.T) {
	body := core.NewStaticBody(core.Vec3{X: 1, Y: 2, Z: 3})
	exact := PositionSensor{Body: body}
	if got := exact.Read(); got != body.Position {
		t.Fatalf("noiseless read = %+v, want %+v", got, body.Position)
	}

	noisy := PositionSensor{Body: body, Noise: NewUniform(rand.New(rand.NewPCG(5, 5)), 0.5, 0.6)}
	got := noisy.Read()
	for _, d := range []float64{got.X - 1, got.Y - 2, got.Z - 3} {
		if d < 0.5 || d >= 0.6 {
			t.Fatalf("component offset %v outside [0.5, 0.6)", d)
		}
	}
}
