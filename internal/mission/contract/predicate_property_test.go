package contract

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/autopeer-io/houston/internal/mission/core"
)

// Evaluating a predicate twice against the same snapshot gives the same verdict.
func TestPredicatePurity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	expr, err := CompileExpression("envelope", "altitude > -0.3 && battery > 0.0 && armed", Invariant)
	if err != nil {
		t.Fatal(err)
	}
	budget := Predicate{
		Name: "battery budget",
		Role: Precondition,
		Check: func(in Inputs) (bool, error) {
			from, err := in.Now.Position()
			if err != nil {
				return false, err
			}
			to := from
			to.Altitude = in.Params.Float("altitude")
			need, err := in.Budget.ExpectedBattery(from, to)
			if err != nil {
				return false, err
			}
			b, err := in.Now.Float(core.VarBattery)
			return b >= need, err
		},
	}
	params := []Parameter{{Name: "altitude", Type: FloatParam}}

	properties.Property("verdicts are repeatable", prop.ForAll(
		func(alt, battery, target float64, armed bool) bool {
			values := groundValues()
			values[core.VarAltitude] = core.Float(alt)
			values[core.VarBattery] = core.Float(battery)
			values[core.VarArmed] = core.Bool(armed)
			snap := NewSnapshot(time.Unix(0, 0), values)

			b, err := Bind(params, map[string]any{"altitude": target})
			if err != nil {
				return false
			}
			in := Inputs{Now: snap, Initial: snap, Params: b, Budget: fakeBudget{perMetre: 0.5}}

			for _, p := range []Predicate{expr, budget} {
				if p.Evaluate(in) != p.Evaluate(in) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-5, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
