package variation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Params is an insertion-ordered name→value map. The zero value is empty and
// ready to use. Params handed out by a Variation are copies.
type Params struct {
	keys []string
	vals map[string]string
}

// Len returns the number of bound names.
func (p Params) Len() int { return len(p.keys) }

// Keys returns the names in binding order.
func (p Params) Keys() []string { return append([]string(nil), p.keys...) }

// Get returns the value bound to name.
func (p Params) Get(name string) (string, bool) {
	v, ok := p.vals[name]
	return v, ok
}

// Float parses the value bound to name as a float64.
func (p Params) Float(name string) (float64, error) {
	v, ok := p.vals[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingDependency, name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformedNumber, name, v)
	}
	return f, nil
}

// Int parses the value bound to name as an integer.
func (p Params) Int(name string) (int64, error) {
	v, ok := p.vals[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingDependency, name)
	}
	n, err := parseInteger(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformedNumber, name, v)
	}
	return n, nil
}

// All iterates name/value pairs in binding order.
func (p Params) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range p.keys {
			if !yield(k, p.vals[k]) {
				return
			}
		}
	}
}

// Map returns an unordered copy.
func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.vals[k]
	}
	return out
}

// MarshalJSON encodes p as a JSON object with keys in binding order.
func (p Params) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.vals[k])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (p Params) String() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", k, p.vals[k])
	}
	return b.String()
}

func (p *Params) set(name, value string) {
	if p.vals == nil {
		p.vals = make(map[string]string)
	}
	if _, ok := p.vals[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.vals[name] = value
}

func (p Params) clone() Params {
	out := Params{keys: append([]string(nil), p.keys...), vals: make(map[string]string, len(p.vals))}
	for k, v := range p.vals {
		out.vals[k] = v
	}
	return out
}

func (p Params) lookup(name string) (string, bool) { return p.Get(name) }
