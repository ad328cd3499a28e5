package contract

import (
	"github.com/autopeer-io/houston/internal/mission/core"
)

// Role is the point in an action's life at which a predicate is checked.
type Role string

const (
	Precondition  Role = "precondition"
	Invariant     Role = "invariant"
	Postcondition Role = "postcondition"
)

// Budget estimates the resources a displacement will cost.
type Budget interface {
	ExpectedBattery(from, to core.Position) (float64, error)
	ExpectedTime(from, to core.Position) (float64, error)
}

// Inputs is everything a predicate may look at.
type Inputs struct {
	// Now is the snapshot under evaluation.
	Now Snapshot
	// Initial is the snapshot taken before the action was dispatched.
	Initial Snapshot
	Params  Bindings
	Budget  Budget
}

// Check is the body of a predicate. It must not have side effects. An
// error means the predicate could not be decided and counts as false.
type Check func(in Inputs) (bool, error)

// Predicate is a named boolean condition over Inputs.
type Predicate struct {
	Name        string
	Description string
	Role        Role
	Check       Check
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Predicate   string `json:"predicate"`
	Description string `json:"description,omitempty"`
	Role        Role   `json:"role"`
	Holds       bool   `json:"holds"`
	Error       string `json:"error,omitempty"`
}

// Evaluate runs the predicate against in.
func (p Predicate) Evaluate(in Inputs) Verdict {
	v := Verdict{Predicate: p.Name, Description: p.Description, Role: p.Role}
	ok, err := p.Check(in)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Holds = ok
	return v
}

// String describes the verdict for logs and reports.
func (v Verdict) String() string {
	s := string(v.Role) + " " + v.Predicate
	if v.Description != "" {
		s += " (" + v.Description + ")"
	}
	if v.Error != "" {
		return s + " undecided: " + v.Error
	}
	if v.Holds {
		return s + " holds"
	}
	return s + " is false"
}

// FirstFailure evaluates preds in order and returns the first verdict that
// does not hold.
func FirstFailure(preds []Predicate, in Inputs) (Verdict, bool) {
	for _, p := range preds {
		if v := p.Evaluate(in); !v.Holds {
			return v, true
		}
	}
	return Verdict{}, false
}

// Failures evaluates every predicate and returns those that do not hold.
func Failures(preds []Predicate, in Inputs) []Verdict {
	var out []Verdict
	for _, p := range preds {
		if v := p.Evaluate(in); !v.Holds {
			out = append(out, v)
		}
	}
	return out
}
