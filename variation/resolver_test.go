package variation

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func paramsOf(t *testing.T, seq *Sequence) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, v := range seq.All() {
		out = append(out, v.Params().Map())
	}
	return out
}

func TestCartesianCompleteness(t *testing.T) {
	seq, err := Resolve(Scenario{Variables: []LoopingVariable{
		NewRanged("x", "0", "2", "1"),
		NewEnumerated("y", "a", "b"),
	}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Len() != 6 || seq.Combinations() != 6 {
		t.Fatalf("Len = %d, Combinations = %d, want 6", seq.Len(), seq.Combinations())
	}

	want := []map[string]string{
		{"x": "0", "y": "a"}, {"x": "0", "y": "b"},
		{"x": "1", "y": "a"}, {"x": "1", "y": "b"},
		{"x": "2", "y": "a"}, {"x": "2", "y": "b"},
	}
	if got := paramsOf(t, seq); !reflect.DeepEqual(got, want) {
		t.Fatalf("variations = %v, want %v", got, want)
	}
	if keys := seq.At(0).Params().Keys(); !reflect.DeepEqual(keys, []string{"x", "y"}) {
		t.Fatalf("param order = %v", keys)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	sc := Scenario{
		MasterSeed: &LoopingVariable{Name: "seed", Kind: Enumerated, Items: []string{"7", "8"}},
		Variables: []LoopingVariable{
			NewRandomUniform("noise", "0", "1", 3),
			NewRandomInteger("count", "1", "${max}", 2),
			NewConstant("max", "10"),
			NewRandomGaussian("offset", "0", "2", 1),
		},
		Repetitions: 2,
	}
	a, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Len() != b.Len() || a.Len() != 2*3*2*1*2 {
		t.Fatalf("Len = %d and %d, want 24", a.Len(), b.Len())
	}
	for i := 0; i < a.Len(); i++ {
		va, vb := a.At(i), b.At(i)
		if !reflect.DeepEqual(va.Params().Map(), vb.Params().Map()) {
			t.Fatalf("run %d params differ: %v vs %v", i, va.Params(), vb.Params())
		}
		if !reflect.DeepEqual(va.Seeds(), vb.Seeds()) {
			t.Fatalf("run %d seeds differ", i)
		}
		if va.RunSeed() != vb.RunSeed() || va.MasterSeed() != vb.MasterSeed() {
			t.Fatalf("run %d run seeds differ", i)
		}
	}
}

func TestMasterSeedChangesDraws(t *testing.T) {
	resolve := func(seed string) string {
		seq, err := Resolve(Scenario{
			MasterSeed: &LoopingVariable{Kind: Constant, Value: seed},
			Variables:  []LoopingVariable{NewRandomUniform("u", "0", "1", 1)},
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		v, _ := seq.At(0).Get("u")
		return v
	}
	if resolve("1") == resolve("2") {
		t.Fatalf("different master seeds produced the same draw")
	}
	if resolve("3") != resolve("3") {
		t.Fatalf("same master seed produced different draws")
	}
}

func TestFixedSeedIsUsedVerbatim(t *testing.T) {
	seed := uint64(99)
	v := NewRandomInteger("n", "0", "1000000", 1)
	v.Seed = &seed
	run := func(master string) string {
		seq, err := Resolve(Scenario{
			MasterSeed: &LoopingVariable{Kind: Constant, Value: master},
			Variables:  []LoopingVariable{v},
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if s, _ := seq.At(0).Seed("n"); s != 99 {
			t.Fatalf("seed = %d, want 99", s)
		}
		val, _ := seq.At(0).Get("n")
		return val
	}
	if run("1") != run("2") {
		t.Fatalf("fixed seed draws should not depend on the master seed")
	}
}

func TestSeedsDrawnInDeclarationOrder(t *testing.T) {
	// b depends on a, so topological order is a, b, but seeds follow
	// declaration order: b gets the first draw.
	sc := Scenario{Variables: []LoopingVariable{
		NewRandomUniform("b", "${a}", "10", 1),
		NewRandomUniform("a", "0", "1", 1),
	}}
	seq, err := Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	ref := drawSeeds([]LoopingVariable{NewRandomUniform("b", "0", "1", 1), NewRandomUniform("a", "0", "1", 1)}, 1)
	v := seq.At(0)
	if s, _ := v.Seed("b"); s != ref["b"] {
		t.Fatalf("seed(b) = %d, want %d", s, ref["b"])
	}
	if s, _ := v.Seed("a"); s != ref["a"] {
		t.Fatalf("seed(a) = %d, want %d", s, ref["a"])
	}
	if keys := v.Params().Keys(); !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Fatalf("binding order = %v, want [a b]", keys)
	}
}

func TestCyclicDependencyFails(t *testing.T) {
	_, err := Resolve(Scenario{Variables: []LoopingVariable{
		NewConstant("a", "${b}"),
		NewConstant("b", "${c}"),
		NewConstant("c", "${a}"),
		NewConstant("free", "1"),
	}})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Variable != "a" {
		t.Fatalf("expected ConfigError naming a, got %#v", err)
	}
	if strings.Contains(err.Error(), "free") {
		t.Fatalf("error lists a resolvable variable: %v", err)
	}

	self := NewConstant("s", "1")
	self.DependsOn = []string{"s"}
	if _, err := Resolve(Scenario{Variables: []LoopingVariable{self}}); !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("self dependency: expected ErrCyclicDependency, got %v", err)
	}
}

func TestMissingDependency(t *testing.T) {
	_, err := Resolve(Scenario{Variables: []LoopingVariable{NewConstant("a", "${ghost}")}})
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("placeholder: expected ErrMissingDependency, got %v", err)
	}

	v := NewConstant("a", "1")
	v.DependsOn = []string{"ghost"}
	if _, err := Resolve(Scenario{Variables: []LoopingVariable{v}}); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("depends_on: expected ErrMissingDependency, got %v", err)
	}
}

func TestPlaceholderDefault(t *testing.T) {
	seq, err := Resolve(Scenario{Variables: []LoopingVariable{
		NewConstant("speed", "${base:2.5}"),
		NewConstant("label", "run-${speed}-${mode:fast}"),
	}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := map[string]string{"speed": "2.5", "label": "run-2.5-fast"}
	if got := seq.At(0).Params().Map(); !reflect.DeepEqual(got, want) {
		t.Fatalf("params = %v, want %v", got, want)
	}
}

func TestDependentValuesFollowBinding(t *testing.T) {
	seq, err := Resolve(Scenario{Variables: []LoopingVariable{
		NewRanged("count", "1", "${n}", "1"),
		NewEnumerated("n", "1", "3"),
	}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []map[string]string{
		{"n": "1", "count": "1"},
		{"n": "3", "count": "1"},
		{"n": "3", "count": "2"},
		{"n": "3", "count": "3"},
	}
	if got := paramsOf(t, seq); !reflect.DeepEqual(got, want) {
		t.Fatalf("variations = %v, want %v", got, want)
	}
}

func TestDuplicateVariable(t *testing.T) {
	_, err := Resolve(Scenario{Variables: []LoopingVariable{NewConstant("a", "1"), NewConstant("a", "2")}})
	if !errors.Is(err, ErrDuplicateVariable) {
		t.Fatalf("expected ErrDuplicateVariable, got %v", err)
	}
	_, err = Resolve(Scenario{Variables: []LoopingVariable{NewConstant("seed", "1")}})
	if !errors.Is(err, ErrDuplicateVariable) {
		t.Fatalf("collision with master seed: expected ErrDuplicateVariable, got %v", err)
	}
}

func TestRangedValues(t *testing.T) {
	cases := []struct {
		lower, upper, step string
		want               []string
		err                error
	}{
		{lower: "0", upper: "1", step: "0.5", want: []string{"0", "0.5", "1"}},
		{lower: "0", upper: "0.3", step: "0.1", want: []string{"0", "0.1", "0.2", "0.3"}},
		{lower: "1", upper: "0", step: "-0.5", want: []string{"1", "0.5", "0"}},
		{lower: "0", upper: "1", step: "0.4", want: []string{"0", "0.4", "0.8"}},
		{lower: "2", upper: "2", step: "1", want: []string{"2"}},
		{lower: "3", upper: "-1", step: "-2", want: []string{"3", "1", "-1"}},
		{lower: "1000000000000", upper: "1000000000002", step: "1", want: []string{"1000000000000", "1000000000001", "1000000000002"}},
		{lower: "1000000000000", upper: "1000000000001", step: "0.5", want: []string{"1000000000000", "1000000000000.5", "1000000000001"}},
		{lower: "0.25", upper: "1", step: "0.25", want: []string{"0.25", "0.5", "0.75", "1"}},
		{lower: "0", upper: "1", step: "0", err: ErrZeroStep},
		{lower: "1", upper: "0", step: "0.5", err: ErrInconsistentBounds},
		{lower: "0", upper: "1", step: "-0.5", err: ErrInconsistentBounds},
		{lower: "zero", upper: "1", step: "0.5", err: ErrMalformedNumber},
		{lower: "0", upper: "1e", step: "0.5", err: ErrMalformedNumber},
	}
	for _, tc := range cases {
		seq, err := Resolve(Scenario{Variables: []LoopingVariable{NewRanged("r", tc.lower, tc.upper, tc.step)}})
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%s..%s/%s: expected %v, got %v", tc.lower, tc.upper, tc.step, tc.err, err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || !strings.Contains(cfgErr.Fragment, tc.lower) {
				t.Fatalf("error should carry the offending fragment: %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s..%s/%s: %v", tc.lower, tc.upper, tc.step, err)
		}
		var got []string
		for _, v := range seq.All() {
			s, _ := v.Get("r")
			got = append(got, s)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s..%s/%s = %v, want %v", tc.lower, tc.upper, tc.step, got, tc.want)
		}
	}
}

func TestEnumeratedSelection(t *testing.T) {
	v := NewEnumerated("e", "a", "b", "c", "d")
	v.First = 2
	v.Count = 2
	seq, err := Resolve(Scenario{Variables: []LoopingVariable{v}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var got []string
	for _, run := range seq.All() {
		s, _ := run.Get("e")
		got = append(got, s)
	}
	if !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("values = %v, want [b c]", got)
	}

	if _, err := Resolve(Scenario{Variables: []LoopingVariable{NewEnumerated("e")}}); !errors.Is(err, ErrEmptyEnumeration) {
		t.Fatalf("expected ErrEmptyEnumeration, got %v", err)
	}
	v.Count = 5
	if _, err := Resolve(Scenario{Variables: []LoopingVariable{v}}); !errors.Is(err, ErrInvalidVariable) {
		t.Fatalf("expected ErrInvalidVariable for count overflow, got %v", err)
	}
}

func TestRandomDraws(t *testing.T) {
	seq, err := Resolve(Scenario{Variables: []LoopingVariable{
		NewRandomInteger("i", "3", "5", 50),
	}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Len() != 50 {
		t.Fatalf("Len = %d, want 50", seq.Len())
	}
	seen := map[string]bool{}
	for _, v := range seq.All() {
		s, _ := v.Get("i")
		if s != "3" && s != "4" && s != "5" {
			t.Fatalf("draw %q outside 3..5", s)
		}
		seen[s] = true
	}
	if len(seen) != 3 {
		t.Fatalf("50 draws from 3..5 only produced %v", seen)
	}

	if _, err := Resolve(Scenario{Variables: []LoopingVariable{NewRandomUniform("u", "2", "1", 1)}}); !errors.Is(err, ErrInconsistentBounds) {
		t.Fatalf("expected ErrInconsistentBounds, got %v", err)
	}
	if _, err := Resolve(Scenario{Variables: []LoopingVariable{NewRandomGaussian("g", "0", "-1", 1)}}); !errors.Is(err, ErrInvalidVariable) {
		t.Fatalf("expected ErrInvalidVariable for negative stddev, got %v", err)
	}
}

func TestEmptyScenario(t *testing.T) {
	seq, err := Resolve(Scenario{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Len() != 1 {
		t.Fatalf("Len = %d, want 1", seq.Len())
	}
	v := seq.At(0)
	if v.Params().Len() != 0 || v.MasterSeed() != 1 {
		t.Fatalf("unexpected variation %+v", v)
	}
}

func TestMasterSeedValidation(t *testing.T) {
	cases := []LoopingVariable{
		{Kind: Random},
		{Kind: Constant, Value: "1.5"},
		{Kind: Enumerated, Items: []string{"1", "x"}},
	}
	for _, mv := range cases {
		_, err := Resolve(Scenario{MasterSeed: &mv})
		if !errors.Is(err, ErrInvalidMasterSeed) {
			t.Fatalf("%s: expected ErrInvalidMasterSeed, got %v", mv.String(), err)
		}
	}

	seq, err := Resolve(Scenario{
		MasterSeed: &LoopingVariable{Kind: Ranged, Lower: "1", Upper: "3", Step: "1"},
		Variables:  []LoopingVariable{NewEnumerated("v", "a", "b")},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Combinations() != 6 {
		t.Fatalf("Combinations = %d, want 6", seq.Combinations())
	}
	for i, want := range []int64{1, 1, 2, 2, 3, 3} {
		if got := seq.At(i).MasterSeed(); got != want {
			t.Fatalf("run %d master seed = %d, want %d", i, got, want)
		}
	}
}

func TestLargeRangedMasterSeed(t *testing.T) {
	seq, err := Resolve(Scenario{
		MasterSeed: &LoopingVariable{Kind: Ranged, Lower: "1700000000000", Upper: "1700000000002", Step: "1"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Len() != 3 {
		t.Fatalf("Len = %d, want 3", seq.Len())
	}
	for i, want := range []int64{1700000000000, 1700000000001, 1700000000002} {
		if got := seq.At(i).MasterSeed(); got != want {
			t.Fatalf("run %d master seed = %d, want %d", i, got, want)
		}
	}
}

func TestTooManyVariations(t *testing.T) {
	_, err := Resolve(Scenario{Variables: []LoopingVariable{
		NewRanged("a", "1", "10", "1"),
		NewRanged("b", "1", "10", "1"),
	}}, WithMaxVariations(50))
	if !errors.Is(err, ErrTooManyVariations) {
		t.Fatalf("expected ErrTooManyVariations, got %v", err)
	}
}
