package actions

import (
	"fmt"
	"math"

	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
)

// tolerance is ε, shared by every altitude and position check.
const tolerance = contract.DefaultTolerance

func batteryPositive(role contract.Role) contract.Predicate {
	return contract.Predicate{
		Name:        "battery",
		Description: "battery > 0",
		Role:        role,
		Check: func(in contract.Inputs) (bool, error) {
			b, err := in.Now.Float(core.VarBattery)
			return b > 0, err
		},
	}
}

func armedIs(want bool, role contract.Role) contract.Predicate {
	return contract.Predicate{
		Name:        "armed",
		Description: fmt.Sprintf("armed == %t", want),
		Role:        role,
		Check: func(in contract.Inputs) (bool, error) {
			armed, err := in.Now.Bool(core.VarArmed)
			return armed == want, err
		},
	}
}

func altitudeAbove(limit float64, role contract.Role) contract.Predicate {
	return contract.Predicate{
		Name:        "altitude",
		Description: fmt.Sprintf("altitude > %g", limit),
		Role:        role,
		Check: func(in contract.Inputs) (bool, error) {
			alt, err := in.Now.Float(core.VarAltitude)
			return alt > limit, err
		},
	}
}

func altitudeBelow(limit float64, role contract.Role) contract.Predicate {
	return contract.Predicate{
		Name:        "altitude",
		Description: fmt.Sprintf("altitude < %g", limit),
		Role:        role,
		Check: func(in contract.Inputs) (bool, error) {
			alt, err := in.Now.Float(core.VarAltitude)
			return alt < limit, err
		},
	}
}

// altitudeNear holds when the live altitude is within ε of the bound
// "altitude" parameter.
func altitudeNear(role contract.Role) contract.Predicate {
	return contract.Predicate{
		Name:        "altitude",
		Description: "|altitude - target| < ε",
		Role:        role,
		Check: func(in contract.Inputs) (bool, error) {
			alt, err := in.Now.Float(core.VarAltitude)
			return math.Abs(alt-in.Params.Float(ParamAltitude)) < tolerance, err
		},
	}
}

// batteryBudget holds when the remaining battery covers the expected cost
// of moving from the current position to target(in).
func batteryBudget(target func(in contract.Inputs, from core.Position) core.Position) contract.Predicate {
	return contract.Predicate{
		Name:        "battery",
		Description: "battery >= expected battery usage",
		Role:        contract.Precondition,
		Check: func(in contract.Inputs) (bool, error) {
			from, err := in.Now.Position()
			if err != nil {
				return false, err
			}
			need, err := in.Budget.ExpectedBattery(from, target(in, from))
			if err != nil {
				return false, err
			}
			b, err := in.Now.Float(core.VarBattery)
			return b >= need, err
		},
	}
}

// withinTime holds when the time elapsed on the vehicle clock since the
// initial snapshot is under the expected time of the move.
func withinTime(target func(in contract.Inputs, from core.Position) core.Position) contract.Predicate {
	return contract.Predicate{
		Name:        "time",
		Description: "elapsed < expected time",
		Role:        contract.Postcondition,
		Check: func(in contract.Inputs) (bool, error) {
			from, err := in.Initial.Position()
			if err != nil {
				return false, err
			}
			limit, err := in.Budget.ExpectedTime(from, target(in, from))
			if err != nil {
				return false, err
			}
			start, err := in.Initial.Clock()
			if err != nil {
				return false, err
			}
			now, err := in.Now.Clock()
			if err != nil {
				return false, err
			}
			return now.Sub(start).Seconds() < limit, nil
		},
	}
}

// Targets for the budget predicates.

func verticalTo(altitude func(in contract.Inputs) float64) func(contract.Inputs, core.Position) core.Position {
	return func(in contract.Inputs, from core.Position) core.Position {
		to := from
		to.Altitude = altitude(in)
		return to
	}
}

func paramAltitude(in contract.Inputs) float64 { return in.Params.Float(ParamAltitude) }

func ground(contract.Inputs) float64 { return 0 }

func gotoTarget(in contract.Inputs, _ core.Position) core.Position {
	return targetOf(in.Params)
}

func targetOf(b contract.Bindings) core.Position {
	return core.Position{
		Latitude:  b.Float(ParamLatitude),
		Longitude: b.Float(ParamLongitude),
		Altitude:  b.Float(ParamAltitude),
	}
}
