package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/geo"
	"github.com/autopeer-io/houston/pkg/log"
)

// Status is the outcome of one action.
type Status string

const (
	Succeeded             Status = "Succeeded"
	Failed                Status = "Failed"
	Incomplete            Status = "Incomplete"
	PreconditionViolation Status = "PreconditionViolation"
	Skipped               Status = "Skipped"
)

// Result records what happened to one action instance.
type Result struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	Status Status         `json:"status"`
	Reason string         `json:"reason,omitempty"`
	// Postconditions lists the postconditions that did not hold. They are
	// informational and never change Status; the first is wrapped in Err.
	Postconditions []Verdict     `json:"postconditions,omitempty"`
	Started        time.Time     `json:"started"`
	Elapsed        time.Duration `json:"elapsed"`

	// Displacement is the great-circle or vertical distance covered, in metres.
	Displacement float64 `json:"displacement"`
	// BatteryUsed is the battery consumed between dispatch and completion.
	BatteryUsed float64 `json:"batteryUsed"`

	Err error `json:"-"`
}

// Ok reports whether the action succeeded.
func (r Result) Ok() bool {
	return r.Status == Succeeded
}

// Watcher is told which action is in flight so that its invariants can be
// checked concurrently.
type Watcher interface {
	Watch(inst *Instance, initial Snapshot)
	Unwatch(inst *Instance)
}

// Enforcer runs action instances under their contract: preconditions gate
// the dispatch, invariants are handed to the Watcher while in flight and
// postconditions are recorded after completion.
type Enforcer struct {
	env     *Env
	watcher Watcher
	clock   clock.PassiveClock
	log     log.Logger
}

// NewEnforcer creates an Enforcer. watcher may be nil.
func NewEnforcer(env *Env, watcher Watcher, clk clock.PassiveClock) *Enforcer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := env.Log
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Enforcer{env: env, watcher: watcher, clock: clk, log: logger.WithName("enforcer")}
}

// Env returns the environment actions run in.
func (e *Enforcer) Env() *Env {
	return e.env
}

// Skip returns the result of an action that was never attempted.
func (e *Enforcer) Skip(inst *Instance, reason string) Result {
	return Result{
		Action:  inst.Name(),
		Params:  inst.Params.Map(),
		Status:  Skipped,
		Reason:  reason,
		Started: e.clock.Now(),
	}
}

// Run executes inst. It never returns an error; the outcome is in Result.
func (e *Enforcer) Run(ctx context.Context, inst *Instance) Result {
	if !e.env.Session.Active() {
		return e.Skip(inst, "mission no longer active")
	}

	res := Result{Action: inst.Name(), Params: inst.Params.Map(), Started: e.clock.Now()}
	logger := e.log.WithValues("action", inst.Name())

	initial := e.env.Registry.Snapshot(ctx)
	in := Inputs{Now: initial, Initial: initial, Params: inst.Params, Budget: e.env.Budget}

	if v, failed := FirstFailure(inst.Schema.Preconditions, in); failed {
		res.Status = PreconditionViolation
		res.Reason = v.String()
		res.Err = fmt.Errorf("%w: %s: %s", core.ErrPreconditionViolation, inst.Name(), v)
		res.Elapsed = e.clock.Since(res.Started)
		logger.Warn("Precondition not satisfied, action not dispatched", "predicate", v.Predicate, "reason", v.Error)
		return res
	}

	if e.watcher != nil {
		e.watcher.Watch(inst, initial)
		defer e.watcher.Unwatch(inst)
	}

	if err := inst.Schema.Dispatch(ctx, e.env, in); err != nil {
		res.Status = Failed
		res.Reason = err.Error()
		res.Err = err
		res.Elapsed = e.clock.Since(res.Started)
		logger.Error(err, "Dispatch failed")
		return res
	}

	done := Completion{Reached: true}
	if inst.Schema.Await != nil {
		done = inst.Schema.Await(ctx, e.env, in)
	}
	res.Elapsed = e.clock.Since(res.Started)
	res.Reason = done.Message

	switch {
	case done.Reached:
		res.Status = Succeeded
	case errors.Is(done.Err, core.ErrActionIncomplete):
		res.Status = Incomplete
		res.Err = done.Err
	default:
		res.Status = Failed
		res.Err = done.Err
	}
	logger.Info(done.Message, "status", res.Status, "elapsed", res.Elapsed.Round(time.Millisecond).String())

	if !done.Reached {
		return res
	}

	final := e.env.Registry.Snapshot(ctx)
	res.Displacement, res.BatteryUsed = measure(initial, final)

	after := Inputs{Now: final, Initial: initial, Params: inst.Params, Budget: e.env.Budget}
	res.Postconditions = Failures(inst.Schema.Postconditions, after)
	for _, v := range res.Postconditions {
		logger.Warn("Postcondition mismatch", "verdict", v.String())
	}
	if len(res.Postconditions) > 0 {
		res.Err = fmt.Errorf("%w: %s: %s", core.ErrPostconditionMismatch, inst.Name(), res.Postconditions[0])
	}

	return res
}

func measure(initial, final Snapshot) (float64, float64) {
	var displacement, used float64
	if from, err := initial.Position(); err == nil {
		if to, err := final.Position(); err == nil {
			displacement = geo.Displacement(from, to)
		}
	}
	if b0, err := initial.Float(core.VarBattery); err == nil {
		if b1, err := final.Float(core.VarBattery); err == nil {
			used = b0 - b1
		}
	}
	return displacement, used
}
