package variation

import (
	"errors"
	"fmt"
)

var (
	ErrCyclicDependency   = errors.New("cyclic variable dependency")
	ErrMissingDependency  = errors.New("missing variable dependency")
	ErrDuplicateVariable  = errors.New("duplicate variable name")
	ErrInvalidVariable    = errors.New("invalid variable definition")
	ErrZeroStep           = errors.New("ranged variable step is zero")
	ErrInconsistentBounds = errors.New("bounds inconsistent with step")
	ErrMalformedNumber    = errors.New("malformed numeric literal")
	ErrEmptyEnumeration   = errors.New("enumerated variable has no items")
	ErrInvalidMasterSeed  = errors.New("invalid master seed")
	ErrTooManyVariations  = errors.New("too many variations")
)

// ConfigError is a fatal scenario configuration error. It names the
// offending variable and the definition fragment that caused it, and wraps
// one of the package sentinels.
type ConfigError struct {
	Variable string
	Fragment string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("scenario: %v", e.Err)
	}
	if e.Fragment == "" {
		return fmt.Sprintf("variable %q: %v", e.Variable, e.Err)
	}
	return fmt.Sprintf("variable %q: %v (in %s)", e.Variable, e.Err, e.Fragment)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(v *LoopingVariable, err error) *ConfigError {
	if v == nil {
		return &ConfigError{Err: err}
	}
	return &ConfigError{Variable: v.Name, Fragment: v.String(), Err: err}
}
