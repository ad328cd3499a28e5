// Package actions declares the flight actions the engine can run, each
// with its contract, its command and its completion check.
package actions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/geo"
)

// Action names.
const (
	Arm     = "arm"
	SetMode = "mode"
	Takeoff = "takeoff"
	Goto    = "goto"
	Land    = "land"
)

// Parameter names.
const (
	ParamMode      = "mode"
	ParamAltitude  = "altitude"
	ParamLatitude  = "latitude"
	ParamLongitude = "longitude"
)

// Config tunes the completion checks.
type Config struct {
	// ConfirmTimeout bounds the wait for arm and mode changes to show in telemetry.
	ConfirmTimeout time.Duration
	// NavigateLogEvery and AltitudeLogEvery are the progress log cadences.
	NavigateLogEvery time.Duration
	AltitudeLogEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:   5 * time.Second,
		NavigateLogEvery: 2 * time.Second,
		AltitudeLogEvery: 5 * time.Second,
	}
}

// NewCatalog returns the schemas of every action.
func NewCatalog(cfg Config) contract.Catalog {
	c, err := contract.NewCatalog(
		armSchema(cfg),
		setModeSchema(cfg),
		takeoffSchema(cfg),
		gotoSchema(cfg),
		landSchema(cfg),
	)
	if err != nil {
		panic(err)
	}
	return c
}

func armSchema(cfg Config) *contract.Schema {
	return &contract.Schema{
		Name:           Arm,
		Preconditions:  []contract.Predicate{armedIs(false, contract.Precondition)},
		Invariants:     []contract.Predicate{batteryPositive(contract.Invariant)},
		Postconditions: []contract.Predicate{armedIs(true, contract.Postcondition)},
		Dispatch: func(ctx context.Context, env *contract.Env, _ contract.Inputs) error {
			return env.Commander.Arm(ctx, true)
		},
		Await: func(ctx context.Context, env *contract.Env, _ contract.Inputs) contract.Completion {
			return confirm(ctx, env, cfg.ConfirmTimeout, "System ARMED", "System could not be ARMED",
				func(s contract.Snapshot) (bool, error) { return s.Bool(core.VarArmed) }, core.VarArmed)
		},
	}
}

func setModeSchema(cfg Config) *contract.Schema {
	return &contract.Schema{
		Name:       SetMode,
		Parameters: []contract.Parameter{{Name: ParamMode, Type: contract.StringParam, Description: "flight mode"}},
		Invariants: []contract.Predicate{batteryPositive(contract.Invariant)},
		Postconditions: []contract.Predicate{{
			Name:        "mode",
			Description: "mode == requested mode",
			Role:        contract.Postcondition,
			Check: func(in contract.Inputs) (bool, error) {
				mode, err := in.Now.String(core.VarMode)
				return mode == in.Params.String(ParamMode), err
			},
		}},
		Dispatch: func(ctx context.Context, env *contract.Env, in contract.Inputs) error {
			return env.Commander.SetMode(ctx, in.Params.String(ParamMode))
		},
		Await: func(ctx context.Context, env *contract.Env, in contract.Inputs) contract.Completion {
			want := in.Params.String(ParamMode)
			return confirm(ctx, env, cfg.ConfirmTimeout, "Mode changed to "+want, "System mode could not be changed to "+want,
				func(s contract.Snapshot) (bool, error) {
					mode, err := s.String(core.VarMode)
					return mode == want, err
				}, core.VarMode)
		},
	}
}

func takeoffSchema(cfg Config) *contract.Schema {
	return &contract.Schema{
		Name:       Takeoff,
		Parameters: []contract.Parameter{{Name: ParamAltitude, Type: contract.FloatParam, Description: "target altitude above home"}},
		Preconditions: []contract.Predicate{
			batteryBudget(verticalTo(paramAltitude)),
			altitudeBelow(tolerance, contract.Precondition),
			armedIs(true, contract.Precondition),
		},
		Invariants: []contract.Predicate{
			armedIs(true, contract.Invariant),
			altitudeAbove(-tolerance, contract.Invariant),
		},
		Postconditions: []contract.Predicate{altitudeNear(contract.Postcondition)},
		Dispatch: func(ctx context.Context, env *contract.Env, in contract.Inputs) error {
			return env.Commander.Takeoff(ctx, in.Params.Float(ParamAltitude))
		},
		Await: func(ctx context.Context, env *contract.Env, in contract.Inputs) contract.Completion {
			target := in.Params.Float(ParamAltitude)
			return env.Poller.Await(ctx, env.Session, env.Log, contract.Wait{
				Gap: func(ctx context.Context) (float64, error) {
					alt, err := env.Registry.Float(ctx, core.VarAltitude)
					return math.Max(0, target-alt), err
				},
				Progress: fmt.Sprintf("Waiting to reach alt. Goal: %g", target),
				LogEvery: cfg.AltitudeLogEvery,
				Success:  "System reached height",
				Failure:  "System did not reach height on time",
			})
		},
	}
}

func gotoSchema(cfg Config) *contract.Schema {
	return &contract.Schema{
		Name: Goto,
		Parameters: []contract.Parameter{
			{Name: ParamLatitude, Type: contract.FloatParam, Description: "target latitude"},
			{Name: ParamLongitude, Type: contract.FloatParam, Description: "target longitude"},
			{Name: ParamAltitude, Type: contract.FloatParam, Description: "target altitude above home"},
		},
		Preconditions: []contract.Predicate{
			batteryBudget(gotoTarget),
			altitudeAbove(0, contract.Precondition),
		},
		Invariants: []contract.Predicate{
			batteryPositive(contract.Invariant),
			armedIs(true, contract.Invariant),
			altitudeAbove(-tolerance, contract.Invariant),
		},
		Postconditions: []contract.Predicate{
			altitudeNear(contract.Postcondition),
			batteryPositive(contract.Postcondition),
			withinTime(gotoTarget),
		},
		Dispatch: func(ctx context.Context, env *contract.Env, in contract.Inputs) error {
			return env.Commander.SetpointPosition(ctx, geo.ToLocal(env.Home, targetOf(in.Params)))
		},
		Await: func(ctx context.Context, env *contract.Env, in contract.Inputs) contract.Completion {
			target := targetOf(in.Params)
			setpoint := geo.ToLocal(env.Home, target)
			return env.Poller.Await(ctx, env.Session, env.Log, contract.Wait{
				Gap: func(ctx context.Context) (float64, error) {
					s := env.Registry.Snapshot(ctx, core.VarLatitude, core.VarLongitude)
					lat, err1 := s.Float(core.VarLatitude)
					lon, err2 := s.Float(core.VarLongitude)
					if err := errors.Join(err1, err2); err != nil {
						return 0, err
					}
					return geo.GreatCircle(core.Position{Latitude: lat, Longitude: lon}, target), nil
				},
				// The setpoint is republished while navigating, as the flight
				// controller drops out of guided navigation without a stream.
				OnTick: func(ctx context.Context) {
					if err := env.Commander.SetpointPosition(ctx, setpoint); err != nil {
						env.Log.Debug("Setpoint publish failed", "error", err)
					}
				},
				Progress: "Navigating",
				LogEvery: cfg.NavigateLogEvery,
				Success:  "System reached location",
				Failure:  "System did not reach location on time",
			})
		},
	}
}

func landSchema(cfg Config) *contract.Schema {
	return &contract.Schema{
		Name: Land,
		Preconditions: []contract.Predicate{
			batteryBudget(verticalTo(ground)),
			altitudeAbove(tolerance, contract.Precondition),
			armedIs(true, contract.Precondition),
		},
		Invariants: []contract.Predicate{
			batteryPositive(contract.Invariant),
			altitudeAbove(-tolerance, contract.Invariant),
		},
		Postconditions: []contract.Predicate{
			altitudeBelow(tolerance, contract.Postcondition),
			batteryPositive(contract.Postcondition),
			withinTime(verticalTo(ground)),
		},
		Dispatch: func(ctx context.Context, env *contract.Env, _ contract.Inputs) error {
			return env.Commander.Land(ctx)
		},
		Await: func(ctx context.Context, env *contract.Env, _ contract.Inputs) contract.Completion {
			return env.Poller.Await(ctx, env.Session, env.Log, contract.Wait{
				Gap: func(ctx context.Context) (float64, error) {
					alt, err := env.Registry.Float(ctx, core.VarAltitude)
					return math.Max(0, alt), err
				},
				Progress: "Waiting to reach land. Goal: ~0",
				LogEvery: cfg.AltitudeLogEvery,
				Success:  "System has landed",
				Failure:  "System did not land on time",
			})
		},
	}
}

// confirm waits, without a stabilization hold, for a state flag to show
// in telemetry. Not seeing it within timeout is a failure.
func confirm(ctx context.Context, env *contract.Env, timeout time.Duration, success, failure string,
	ok func(contract.Snapshot) (bool, error), variable string,
) contract.Completion {
	if timeout <= 0 {
		timeout = DefaultConfig().ConfirmTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := env.Poller.Await(cctx, env.Session, env.Log, contract.Wait{
		Gap: func(ctx context.Context) (float64, error) {
			held, err := ok(env.Registry.Snapshot(ctx, variable))
			if err != nil || !held {
				return 1, err
			}
			return 0, nil
		},
		NoHold:  true,
		Success: success,
		Failure: failure,
	})
	if !done.Reached && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		done.Err = fmt.Errorf("%s: not confirmed within %s", failure, timeout)
	}
	return done
}
