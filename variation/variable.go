package variation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Kind is how a looping variable computes its values.
type Kind int

const (
	Constant Kind = iota
	Ranged
	Enumerated
	Random
)

func (k Kind) String() string {
	switch k {
	case Ranged:
		return "ranged"
	case Enumerated:
		return "enumerated"
	case Random:
		return "random"
	default:
		return "constant"
	}
}

// ParseKind maps a scenario-file kind name. Empty means Constant.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "constant":
		return Constant, nil
	case "ranged", "range", "for":
		return Ranged, nil
	case "enumerated", "enum", "list":
		return Enumerated, nil
	case "random":
		return Random, nil
	default:
		return Constant, fmt.Errorf("%w: unknown kind %q", ErrInvalidVariable, s)
	}
}

// Distribution is the sampling law of a Random variable.
type Distribution int

const (
	// Uniform draws a real from [Lower, Upper).
	Uniform Distribution = iota
	// Integer draws an integer from [Lower, Upper] inclusive.
	Integer
	// Gaussian draws from N(Mean, StdDev).
	Gaussian
)

func (d Distribution) String() string {
	switch d {
	case Integer:
		return "integer"
	case Gaussian:
		return "gaussian"
	default:
		return "uniform"
	}
}

// ParseDistribution maps a scenario-file distribution name. Empty means Uniform.
func ParseDistribution(s string) (Distribution, error) {
	switch strings.ToLower(s) {
	case "", "uniform":
		return Uniform, nil
	case "integer", "int":
		return Integer, nil
	case "gaussian", "normal":
		return Gaussian, nil
	default:
		return Uniform, fmt.Errorf("%w: unknown distribution %q", ErrInvalidVariable, s)
	}
}

// maxRangedValues bounds a single ranged variable.
const maxRangedValues = 1_000_000

// rangeEpsilon absorbs float error when counting ranged steps, so that
// lower=0 upper=0.3 step=0.1 includes 0.3.
const rangeEpsilon = 1e-9

// LoopingVariable is one named scenario parameter. Every textual field may
// contain ${name} or ${name:default} placeholders that are bound from
// already-resolved variables.
type LoopingVariable struct {
	Name      string
	Kind      Kind
	DependsOn []string

	// Constant.
	Value string

	// Ranged, and the bounds of Uniform and Integer random draws.
	Lower string
	Upper string
	Step  string

	// Enumerated. First is the 1-based index of the first item used (0
	// means 1) and Count how many items are used (0 means all remaining).
	Items []string
	First int

	// Random. Count is the number of draws (0 means 1). Seed fixes the
	// variable's stream; otherwise it is drawn from the master seed.
	Distribution Distribution
	Mean         string
	StdDev       string
	Seed         *uint64

	Count int
}

// NewConstant declares a constant variable.
func NewConstant(name, value string) LoopingVariable {
	return LoopingVariable{Name: name, Kind: Constant, Value: value}
}

// NewRanged declares lower..upper inclusive in increments of step.
func NewRanged(name, lower, upper, step string) LoopingVariable {
	return LoopingVariable{Name: name, Kind: Ranged, Lower: lower, Upper: upper, Step: step}
}

// NewEnumerated declares an explicit list of values.
func NewEnumerated(name string, items ...string) LoopingVariable {
	return LoopingVariable{Name: name, Kind: Enumerated, Items: append([]string(nil), items...)}
}

// NewRandomUniform declares count draws from [lower, upper).
func NewRandomUniform(name, lower, upper string, count int) LoopingVariable {
	return LoopingVariable{Name: name, Kind: Random, Distribution: Uniform, Lower: lower, Upper: upper, Count: count}
}

// NewRandomInteger declares count integer draws from [lower, upper].
func NewRandomInteger(name, lower, upper string, count int) LoopingVariable {
	return LoopingVariable{Name: name, Kind: Random, Distribution: Integer, Lower: lower, Upper: upper, Count: count}
}

// NewRandomGaussian declares count draws from N(mean, stddev).
func NewRandomGaussian(name, mean, stddev string, count int) LoopingVariable {
	return LoopingVariable{Name: name, Kind: Random, Distribution: Gaussian, Mean: mean, StdDev: stddev, Count: count}
}

// String renders the definition the way it is reported in errors.
func (v *LoopingVariable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s(", v.Kind, v.Name)
	switch v.Kind {
	case Constant:
		fmt.Fprintf(&b, "value=%q", v.Value)
	case Ranged:
		fmt.Fprintf(&b, "lower=%q upper=%q step=%q", v.Lower, v.Upper, v.Step)
	case Enumerated:
		fmt.Fprintf(&b, "items=%q", v.Items)
		if v.First != 0 {
			fmt.Fprintf(&b, " first=%d", v.First)
		}
		if v.Count != 0 {
			fmt.Fprintf(&b, " count=%d", v.Count)
		}
	case Random:
		fmt.Fprintf(&b, "distribution=%s", v.Distribution)
		if v.Distribution == Gaussian {
			fmt.Fprintf(&b, " mean=%q stddev=%q", v.Mean, v.StdDev)
		} else {
			fmt.Fprintf(&b, " lower=%q upper=%q", v.Lower, v.Upper)
		}
		if v.Count != 0 {
			fmt.Fprintf(&b, " count=%d", v.Count)
		}
		if v.Seed != nil {
			fmt.Fprintf(&b, " seed=%d", *v.Seed)
		}
	}
	if len(v.DependsOn) > 0 {
		fmt.Fprintf(&b, " depends_on=%q", v.DependsOn)
	}
	b.WriteString(")")
	return b.String()
}

// templates returns every textual field that may carry placeholders.
func (v *LoopingVariable) templates() []string {
	switch v.Kind {
	case Constant:
		return []string{v.Value}
	case Ranged:
		return []string{v.Lower, v.Upper, v.Step}
	case Enumerated:
		return v.Items
	case Random:
		if v.Distribution == Gaussian {
			return []string{v.Mean, v.StdDev}
		}
		return []string{v.Lower, v.Upper}
	}
	return nil
}

// validate checks structure that does not depend on bound values.
func (v *LoopingVariable) validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidVariable)
	}
	if v.Count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidVariable, v.Count)
	}
	switch v.Kind {
	case Constant, Ranged:
	case Enumerated:
		if len(v.Items) == 0 {
			return ErrEmptyEnumeration
		}
		first := v.First
		if first == 0 {
			first = 1
		}
		if first < 1 || first > len(v.Items) {
			return fmt.Errorf("%w: first %d outside 1..%d", ErrInvalidVariable, v.First, len(v.Items))
		}
		if v.Count > 0 && first-1+v.Count > len(v.Items) {
			return fmt.Errorf("%w: count %d from item %d exceeds %d items", ErrInvalidVariable, v.Count, first, len(v.Items))
		}
	case Random:
		switch v.Distribution {
		case Uniform, Integer, Gaussian:
		default:
			return fmt.Errorf("%w: unknown distribution %d", ErrInvalidVariable, v.Distribution)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidVariable, v.Kind)
	}
	return nil
}

// values computes the variable's ordered values given the bound parameters.
// seed is only used by Random variables.
func (v *LoopingVariable) values(lookup func(string) (string, bool), seed uint64) ([]string, error) {
	sub := func(s string) (string, error) { return Substitute(s, lookup) }

	switch v.Kind {
	case Constant:
		val, err := sub(v.Value)
		if err != nil {
			return nil, err
		}
		return []string{val}, nil

	case Ranged:
		lower, err := numberField(v.Lower, "lower", sub)
		if err != nil {
			return nil, err
		}
		upper, err := numberField(v.Upper, "upper", sub)
		if err != nil {
			return nil, err
		}
		step, err := numberField(v.Step, "step", sub)
		if err != nil {
			return nil, err
		}
		return rangeValues(lower, upper, step)

	case Enumerated:
		first := v.First
		if first == 0 {
			first = 1
		}
		items := v.Items[first-1:]
		if v.Count > 0 {
			items = items[:v.Count]
		}
		out := make([]string, len(items))
		for i, item := range items {
			val, err := sub(item)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil

	case Random:
		return v.draw(sub, seed)
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidVariable, v.Kind)
}

func (v *LoopingVariable) draw(sub func(string) (string, error), seed uint64) ([]string, error) {
	n := v.Count
	if n == 0 {
		n = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	out := make([]string, n)

	switch v.Distribution {
	case Uniform:
		lo, err := parseFloatField(v.Lower, "lower", sub)
		if err != nil {
			return nil, err
		}
		hi, err := parseFloatField(v.Upper, "upper", sub)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("%w: upper %g below lower %g", ErrInconsistentBounds, hi, lo)
		}
		for i := range out {
			out[i] = FormatNumber(lo + rng.Float64()*(hi-lo))
		}

	case Integer:
		lo, err := parseIntField(v.Lower, "lower", sub)
		if err != nil {
			return nil, err
		}
		hi, err := parseIntField(v.Upper, "upper", sub)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("%w: upper %d below lower %d", ErrInconsistentBounds, hi, lo)
		}
		span := uint64(hi-lo) + 1
		for i := range out {
			var off uint64
			if span == 0 {
				off = rng.Uint64()
			} else {
				off = rng.Uint64N(span)
			}
			out[i] = strconv.FormatInt(lo+int64(off), 10)
		}

	case Gaussian:
		mean, err := parseFloatField(v.Mean, "mean", sub)
		if err != nil {
			return nil, err
		}
		std, err := parseFloatField(v.StdDev, "stddev", sub)
		if err != nil {
			return nil, err
		}
		if std < 0 {
			return nil, fmt.Errorf("%w: negative stddev %g", ErrInvalidVariable, std)
		}
		for i := range out {
			out[i] = FormatNumber(mean + rng.NormFloat64()*std)
		}
	}
	return out, nil
}

// bound is one numeric field: its substituted literal and parsed value.
type bound struct {
	text string
	f    float64
}

func numberField(tmpl, field string, sub func(string) (string, error)) (bound, error) {
	s, err := sub(tmpl)
	if err != nil {
		return bound{}, err
	}
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return bound{}, fmt.Errorf("%w: %s %q", ErrMalformedNumber, field, s)
	}
	return bound{text: s, f: f}, nil
}

// rangeValues enumerates lower + k*step for k = 0..floor((upper-lower)/step + ε).
// Counting instead of accumulating keeps the upper bound stable. Integer
// literals are stepped exactly; otherwise values are rounded to the decimal
// places of lower and step.
func rangeValues(lower, upper, step bound) ([]string, error) {
	if step.f == 0 {
		return nil, ErrZeroStep
	}
	if (step.f > 0 && lower.f > upper.f) || (step.f < 0 && lower.f < upper.f) {
		return nil, fmt.Errorf("%w: lower %s upper %s step %s", ErrInconsistentBounds, lower.text, upper.text, step.text)
	}
	if out, ok, err := intRangeValues(lower, upper, step); ok {
		return out, err
	}
	steps := math.Floor((upper.f-lower.f)/step.f + rangeEpsilon)
	if math.IsNaN(steps) || math.IsInf(steps, 0) || steps >= maxRangedValues {
		return nil, tooManyRanged(lower, upper, step)
	}
	dec := max(decimalPlaces(lower.f), decimalPlaces(step.f))
	n := int(steps) + 1
	out := make([]string, n)
	for k := 0; k < n; k++ {
		out[k] = formatDecimal(lower.f+float64(k)*step.f, dec)
	}
	return out, nil
}

// intRangeValues handles ranges whose three literals are all integers. ok is
// false when any of them is not.
func intRangeValues(lower, upper, step bound) (out []string, ok bool, err error) {
	lo, err1 := strconv.ParseInt(lower.text, 10, 64)
	hi, err2 := strconv.ParseInt(upper.text, 10, 64)
	st, err3 := strconv.ParseInt(step.text, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false, nil
	}
	var span, stride uint64
	if st > 0 {
		span, stride = uint64(hi)-uint64(lo), uint64(st)
	} else {
		span, stride = uint64(lo)-uint64(hi), -uint64(st)
	}
	n := span/stride + 1
	if n > maxRangedValues {
		return nil, true, tooManyRanged(lower, upper, step)
	}
	out = make([]string, n)
	x := lo
	for k := range out {
		out[k] = strconv.FormatInt(x, 10)
		if k < len(out)-1 {
			x += st
		}
	}
	return out, true, nil
}

func tooManyRanged(lower, upper, step bound) error {
	return fmt.Errorf("%w: lower %s upper %s step %s yields too many values", ErrInvalidVariable, lower.text, upper.text, step.text)
}

// decimalPlaces counts the fractional digits in f's shortest decimal form.
func decimalPlaces(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// formatDecimal rounds f to dec places and trims trailing zeros.
func formatDecimal(f float64, dec int) string {
	s := strconv.FormatFloat(f, 'f', dec, 64)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

// FormatNumber renders a random draw rounded to 12 significant digits in
// its shortest form, so 0.30000000000000004 becomes "0.3" and 1.0 becomes "1".
func FormatNumber(f float64) string {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', 12, 64), 64)
	if err != nil {
		r = f
	}
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'g', -1, 64)
}

func parseFloatField(tmpl, field string, sub func(string) (string, error)) (float64, error) {
	b, err := numberField(tmpl, field, sub)
	return b.f, err
}

func parseIntField(tmpl, field string, sub func(string) (string, error)) (int64, error) {
	s, err := sub(tmpl)
	if err != nil {
		return 0, err
	}
	n, err := parseInteger(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedNumber, field, s)
	}
	return n, nil
}

// parseInteger accepts integer literals and integral floats such as "3" or
// "3.0", since substituted values may carry a fractional zero.
func parseInteger(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<62 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}
