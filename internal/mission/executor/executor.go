// Package executor flies a mission as a sequence of legs, each one a
// takeoff, a list of waypoints and a landing run through the contract
// enforcer.
package executor

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/actions"
	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/geo"
	"github.com/autopeer-io/houston/pkg/log"
)

// Kind is the mission type.
type Kind string

const (
	// PTP flies to a single point and lands there.
	PTP Kind = "PTP"
	// MPTP flies through several points and lands at the last one.
	MPTP Kind = "MPTP"
	// Extraction flies to a point, lands, waits and flies back.
	Extraction Kind = "Extraction"
)

// Mission is what the executor flies. Waypoints are in the local frame
// anchored at home.
type Mission struct {
	Kind      Kind
	Waypoints []core.LocalPoint
	// Wait is the time spent on the ground at the extraction point.
	Wait time.Duration
}

// Leg names.
const (
	LegMain = "main"
	LegTo   = "to"
	LegFrom = "from"
)

// LegResult is the outcome of one leg.
type LegResult struct {
	Name    string            `json:"name"`
	Results []contract.Result `json:"results"`
	// Trace lists every state the leg went through, starting at idle.
	Trace []string `json:"trace"`
	// Aborted is set when the leg stopped before its landing was attempted.
	Aborted bool `json:"aborted"`
}

// Final returns the last state of the leg.
func (l LegResult) Final() string {
	if len(l.Trace) == 0 {
		return StateIdle
	}
	return l.Trace[len(l.Trace)-1]
}

// Output is the outcome of a whole mission.
type Output struct {
	Kind Kind        `json:"kind"`
	Legs []LegResult `json:"legs"`
}

// Results returns the results of every leg in execution order.
func (o Output) Results() []contract.Result {
	var all []contract.Result
	for _, l := range o.Legs {
		all = append(all, l.Results...)
	}
	return all
}

// Executor runs missions.
type Executor struct {
	catalog  contract.Catalog
	enforcer *contract.Enforcer
	clock    clock.Clock
	log      log.Logger
}

// New creates an Executor dispatching through enforcer.
func New(catalog contract.Catalog, enforcer *contract.Enforcer, clk clock.Clock) *Executor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := enforcer.Env().Log
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Executor{catalog: catalog, enforcer: enforcer, clock: clk, log: logger.WithName("executor")}
}

// step is one action of a leg together with the event that starts it.
// Consecutive steps sharing an event run in the same pending state.
type step struct {
	event string
	inst  *contract.Instance
	group int
}

type leg struct {
	name  string
	steps []step
}

// Validate checks that m can be flown.
func Validate(m Mission) error {
	switch m.Kind {
	case PTP, Extraction:
		if len(m.Waypoints) != 1 {
			return fmt.Errorf("%s mission needs exactly one waypoint, got %d", m.Kind, len(m.Waypoints))
		}
	case MPTP:
		if len(m.Waypoints) == 0 {
			return fmt.Errorf("%s mission needs at least one waypoint", m.Kind)
		}
	default:
		return fmt.Errorf("unsupported mission type %q", m.Kind)
	}
	for i, wp := range m.Waypoints {
		if wp.Z <= 0 {
			return fmt.Errorf("waypoint %d: altitude must be positive, got %g", i, wp.Z)
		}
	}
	if m.Wait < 0 {
		return fmt.Errorf("wait must not be negative, got %s", m.Wait)
	}
	return nil
}

// Run flies m and ends the session when done. A mission the monitor stops
// keeps the monitor's reason.
func (x *Executor) Run(ctx context.Context, m Mission) (Output, error) {
	out := Output{Kind: m.Kind}
	if err := Validate(m); err != nil {
		return out, err
	}
	env := x.enforcer.Env()
	defer env.Session.End(core.Completed)

	x.log.Info("Mission started", "kind", m.Kind, "waypoints", len(m.Waypoints))

	switch m.Kind {
	case PTP, MPTP:
		l, err := x.plan(LegMain, env.Home, m.Waypoints)
		if err != nil {
			return out, err
		}
		out.Legs = append(out.Legs, x.runLeg(ctx, l))

	case Extraction:
		origin := x.origin(ctx, env)
		target := m.Waypoints[0]
		to, err := x.plan(LegTo, env.Home, []core.LocalPoint{target})
		if err != nil {
			return out, err
		}
		back, err := x.plan(LegFrom, env.Home, []core.LocalPoint{{X: origin.X, Y: origin.Y, Z: target.Z}})
		if err != nil {
			return out, err
		}

		outbound := x.runLeg(ctx, to)
		out.Legs = append(out.Legs, outbound)
		if outbound.Aborted {
			out.Legs = append(out.Legs, x.skipLeg(back, "outbound leg aborted"))
			break
		}
		if !x.wait(ctx, env.Session, m.Wait) {
			out.Legs = append(out.Legs, x.skipLeg(back, "mission no longer active"))
			break
		}
		x.log.Info("Resetting initial position, returning to origin", "x", origin.X, "y", origin.Y)
		out.Legs = append(out.Legs, x.runLeg(ctx, back))
	}

	x.log.Info("Mission finished", "kind", m.Kind, "active", env.Session.Active())
	return out, nil
}

// plan builds the steps of a leg: switch to guided, arm and take off to the
// first waypoint's altitude, visit every waypoint, land.
func (x *Executor) plan(name string, home core.Position, waypoints []core.LocalPoint) (*leg, error) {
	l := &leg{name: name}
	add := func(event string, group int, action string, params map[string]any) error {
		inst, err := x.catalog.Instantiate(action, params)
		if err != nil {
			return fmt.Errorf("leg %s: %w", name, err)
		}
		l.steps = append(l.steps, step{event: event, inst: inst, group: group})
		return nil
	}

	group := 0
	if err := add(EventTakeoff, group, actions.SetMode, map[string]any{actions.ParamMode: core.ModeGuided}); err != nil {
		return nil, err
	}
	if err := add(EventTakeoff, group, actions.Arm, nil); err != nil {
		return nil, err
	}
	if err := add(EventTakeoff, group, actions.Takeoff, map[string]any{actions.ParamAltitude: waypoints[0].Z}); err != nil {
		return nil, err
	}
	for _, wp := range waypoints {
		group++
		p := geo.Offset(home, wp)
		if err := add(EventNavigate, group, actions.Goto, map[string]any{
			actions.ParamLatitude:  p.Latitude,
			actions.ParamLongitude: p.Longitude,
			actions.ParamAltitude:  wp.Z,
		}); err != nil {
			return nil, err
		}
	}
	group++
	if err := add(EventLand, group, actions.Land, nil); err != nil {
		return nil, err
	}
	return l, nil
}

// runLeg walks the leg's state machine. A precondition violation or an
// inactive session finishes the leg; remaining actions are skipped. Any
// other failure moves on to the next step.
func (x *Executor) runLeg(ctx context.Context, l *leg) LegResult {
	env := x.enforcer.Env()
	m := newLegMachine(l.name, x.log)
	res := LegResult{Name: l.name}
	logger := x.log.WithValues("leg", l.name)

	i := 0
	for i < len(l.steps) {
		if !env.Session.Active() {
			break
		}
		first := l.steps[i]
		m.fire(ctx, first.event)
		if first.event == EventLand {
			env.Session.SetPhase(core.PhaseLanding)
		}

		ok, aborted := true, false
		for i < len(l.steps) && l.steps[i].group == first.group {
			r := x.enforcer.Run(ctx, l.steps[i].inst)
			res.Results = append(res.Results, r)
			i++
			if r.Status == contract.PreconditionViolation || r.Status == contract.Skipped {
				aborted = true
				break
			}
			if !r.Ok() {
				ok = false
			}
		}

		if aborted || !ok {
			m.fire(ctx, EventFail)
		} else {
			m.fire(ctx, EventSucceed)
		}
		if aborted {
			logger.Warn("Leg aborted", "state", m.Current())
			break
		}

		switch first.event {
		case EventTakeoff:
			if ok {
				env.Session.SetPhase(core.PhaseAirborne)
			}
		case EventLand:
			if ok {
				env.Session.SetPhase(core.PhaseGround)
			}
		}
	}

	res.Aborted = i < len(l.steps)
	for ; i < len(l.steps); i++ {
		res.Results = append(res.Results, x.enforcer.Skip(l.steps[i].inst, "mission no longer active"))
	}

	m.fire(ctx, EventFinish)
	res.Trace = m.Trace()
	logger.Info("Leg finished", "trace", res.Trace)
	return res
}

func (x *Executor) skipLeg(l *leg, reason string) LegResult {
	res := LegResult{Name: l.name, Trace: []string{StateIdle, StateFinished}, Aborted: true}
	for _, s := range l.steps {
		res.Results = append(res.Results, x.enforcer.Skip(s.inst, reason))
	}
	return res
}

// origin returns the vehicle position in the local frame, home when it
// cannot be read.
func (x *Executor) origin(ctx context.Context, env *contract.Env) core.LocalPoint {
	pos, err := env.Registry.Position(ctx)
	if err != nil {
		x.log.Warn("Could not read initial position, using home", "error", err)
		return core.LocalPoint{}
	}
	return geo.ToLocal(env.Home, pos)
}

// wait holds on the ground for d. It returns false when the mission ends first.
func (x *Executor) wait(ctx context.Context, session *core.Session, d time.Duration) bool {
	if !session.Active() {
		return false
	}
	if d <= 0 {
		return true
	}
	x.log.Info("Waiting at extraction point", "duration", d.String())
	select {
	case <-x.clock.After(d):
		return session.Active()
	case <-session.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
