package contract

import (
	"fmt"
	"maps"
)

// ParamType is the type of a parameter value.
type ParamType string

const (
	FloatParam  ParamType = "float"
	StringParam ParamType = "string"
)

// Parameter declares a named input of an action schema.
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	// Optional parameters may be left unbound.
	Optional bool
}

// Bindings are the parameter values of one action instance. They are
// copied on construction and never change afterwards.
type Bindings struct {
	values map[string]any
}

// Bind checks values against decls and freezes them.
func Bind(decls []Parameter, values map[string]any) (Bindings, error) {
	out := make(map[string]any, len(decls))
	for _, d := range decls {
		v, ok := values[d.Name]
		if !ok {
			if d.Optional {
				continue
			}
			return Bindings{}, fmt.Errorf("parameter %q is required", d.Name)
		}
		switch d.Type {
		case FloatParam:
			f, ok := toFloat(v)
			if !ok {
				return Bindings{}, fmt.Errorf("parameter %q must be a number, got %T", d.Name, v)
			}
			out[d.Name] = f
		case StringParam:
			s, ok := v.(string)
			if !ok {
				return Bindings{}, fmt.Errorf("parameter %q must be a string, got %T", d.Name, v)
			}
			out[d.Name] = s
		default:
			return Bindings{}, fmt.Errorf("parameter %q has unknown type %q", d.Name, d.Type)
		}
	}
	for name := range values {
		if !declared(decls, name) {
			return Bindings{}, fmt.Errorf("unknown parameter %q", name)
		}
	}
	return Bindings{values: out}, nil
}

func declared(decls []Parameter, name string) bool {
	for _, d := range decls {
		if d.Name == name {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Float returns a bound numeric parameter, zero when unbound.
func (b Bindings) Float(name string) float64 {
	f, _ := b.values[name].(float64)
	return f
}

// String returns a bound string parameter, empty when unbound.
func (b Bindings) String(name string) string {
	s, _ := b.values[name].(string)
	return s
}

// Has reports whether name is bound.
func (b Bindings) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

// Map returns a copy of the bound values.
func (b Bindings) Map() map[string]any {
	return maps.Clone(b.values)
}
