package variation

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRE matches ${name} and ${name:default}.
var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.\-]*)(?::([^}]*))?\}`)

type placeholder struct {
	name       string
	def        string
	hasDefault bool
}

// placeholders returns every placeholder in s in order of appearance.
func placeholders(s string) []placeholder {
	if !strings.Contains(s, "${") {
		return nil
	}
	var out []placeholder
	for _, m := range placeholderRE.FindAllStringSubmatchIndex(s, -1) {
		p := placeholder{name: s[m[2]:m[3]]}
		if m[4] >= 0 {
			p.def = s[m[4]:m[5]]
			p.hasDefault = true
		}
		out = append(out, p)
	}
	return out
}

// HasPlaceholders reports whether s references another variable.
func HasPlaceholders(s string) bool {
	return placeholderRE.MatchString(s)
}

// Substitute replaces every placeholder in s with its bound value, falling
// back to the literal default. A placeholder with neither is an error
// wrapping ErrMissingDependency.
func Substitute(s string, lookup func(name string) (string, bool)) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var missing string
	out := placeholderRE.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderRE.FindStringSubmatch(match)
		if v, ok := lookup(sub[1]); ok {
			return v
		}
		if strings.Contains(match, ":") {
			return sub[2]
		}
		if missing == "" {
			missing = sub[1]
		}
		return match
	})
	if missing != "" {
		return "", fmt.Errorf("%w: %q referenced by %q", ErrMissingDependency, missing, s)
	}
	return out, nil
}
