// Package shape classifies the top-level fields of an evaluation record as
// scalar or complex from a declarative shape description (a JSON Schema
// document). Complex fields are stored opaque-encoded in leaderboard tables.
package shape

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var (
	// ErrNoProperties is returned when the description has no object at $.properties.
	ErrNoProperties = errors.New("shape description has no properties")

	propertiesExpr = jp.MustParseString("$.properties")
)

// Set is an immutable set of field names.
type Set struct {
	names map[string]struct{}
}

// NewSet builds a Set from names. Empty names are ignored.
func NewSet(names ...string) Set {
	s := Set{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s.names[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of names.
func (s Set) Len() int { return len(s.names) }

// Names returns the names in sorted order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Union returns a new Set holding the names of s and other.
func (s Set) Union(other Set) Set {
	return NewSet(append(s.Names(), other.Names()...)...)
}

// LoadFile reads and classifies the shape description at path.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read shape %s: %w", path, err)
	}
	return Load(data)
}

// Load classifies a shape description given as JSON bytes.
func Load(data []byte) (Set, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return Set{}, fmt.Errorf("parse shape: %w", err)
	}
	return Classify(doc)
}

// Classify returns the names of the complex top-level properties of doc.
func Classify(doc any) (Set, error) {
	props, ok := propertiesExpr.First(doc).(map[string]any)
	if !ok {
		return Set{}, ErrNoProperties
	}
	var complexNames []string
	for name, prop := range props {
		if isComplex(doc, prop, map[string]bool{}) {
			complexNames = append(complexNames, name)
		}
	}
	return NewSet(complexNames...), nil
}

// isComplex applies the classification rule to one property declaration.
// seen guards against $ref cycles.
func isComplex(doc, prop any, seen map[string]bool) bool {
	m, ok := prop.(map[string]any)
	if !ok {
		return false
	}
	for _, poly := range []string{"oneOf", "anyOf", "allOf"} {
		if _, has := m[poly]; has {
			return true
		}
	}
	if ref, has := m["$ref"].(string); has {
		if seen[ref] {
			return true
		}
		seen[ref] = true
		target, found := resolveRef(doc, ref)
		if !found {
			// An unresolvable reference has no static shape.
			return true
		}
		return isComplex(doc, target, seen)
	}
	if typeIsComplex(m["type"], doc, seen) {
		return true
	}
	_, hasProps := m["properties"]
	_, hasItems := m["items"]
	return hasProps || hasItems
}

func typeIsComplex(t, doc any, seen map[string]bool) bool {
	switch v := t.(type) {
	case string:
		return v == "object" || v == "array"
	case []any:
		for _, member := range v {
			if typeIsComplex(member, doc, seen) {
				return true
			}
		}
	case map[string]any:
		return isComplex(doc, v, seen)
	}
	return false
}

// resolveRef follows a local JSON pointer reference such as "#/$defs/Model".
func resolveRef(doc any, ref string) (any, bool) {
	pointer, ok := strings.CutPrefix(ref, "#")
	if !ok {
		return nil, false
	}
	x := jp.R()
	for _, seg := range strings.Split(strings.Trim(pointer, "/"), "/") {
		if seg == "" {
			continue
		}
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		x = x.C(seg)
	}
	got := x.Get(doc)
	if len(got) == 0 {
		return nil, false
	}
	return got[0], true
}

// Classification is the process-wide result of shape inspection.
type Classification struct {
	Complex Set
	// Source is the description path, or empty when the fallback set is used.
	Source string
	// Err records why the description could not be used.
	Err error
}

// Degraded reports whether the explicit fallback set is in use.
func (c Classification) Degraded() bool { return c.Source == "" }

// Resolve classifies the description at path. When it is missing or
// malformed the caller-supplied fallback set is used instead and the
// failure is recorded on the result rather than returned.
func Resolve(path string, fallback []string) Classification {
	if path != "" {
		set, err := LoadFile(path)
		if err == nil {
			return Classification{Complex: set, Source: path}
		}
		return Classification{Complex: NewSet(fallback...), Err: err}
	}
	return Classification{Complex: NewSet(fallback...), Err: errors.New("no shape description configured")}
}
