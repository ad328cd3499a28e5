package contract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/pkg/log"
)

func newTestEnv(tel *fakeTelemetry, cmd *fakeCommander) *Env {
	return &Env{
		Commander: cmd,
		Registry:  NewRegistry(tel, 50*time.Millisecond, nil),
		Session:   core.NewSession(),
		Poller:    NewPoller(PollerConfig{Interval: time.Millisecond}, nil),
		Budget:    fakeBudget{perMetre: 1},
		Log:       log.NewNopLogger(),
	}
}

func armSchema(counter *int) *Schema {
	return &Schema{
		Name: "arm",
		Preconditions: []Predicate{
			{Name: "disarmed", Role: Precondition, Check: func(in Inputs) (bool, error) {
				armed, err := in.Now.Bool(core.VarArmed)
				return !armed, err
			}},
			{Name: "counted", Role: Precondition, Check: func(Inputs) (bool, error) {
				*counter++
				return true, nil
			}},
		},
		Postconditions: []Predicate{
			{Name: "armed", Role: Postcondition, Check: func(in Inputs) (bool, error) {
				return in.Now.Bool(core.VarArmed)
			}},
		},
		Dispatch: func(ctx context.Context, env *Env, _ Inputs) error {
			return env.Commander.Arm(ctx, true)
		},
	}
}

func TestEnforcerPreconditionBlocksDispatch(t *testing.T) {
	values := groundValues()
	values[core.VarArmed] = core.Bool(true)
	tel, cmd := newFakeTelemetry(values), &fakeCommander{}
	watcher := &recordingWatcher{}

	counted := 0
	e := NewEnforcer(newTestEnv(tel, cmd), watcher, nil)
	res := e.Run(context.Background(), armSchema(&counted).MustBind(nil))

	assert.Equal(t, PreconditionViolation, res.Status)
	assert.True(t, errors.Is(res.Err, core.ErrPreconditionViolation))
	assert.Contains(t, res.Reason, "disarmed")
	assert.Empty(t, cmd.Calls())
	assert.Empty(t, watcher.watched)
	assert.Zero(t, counted, "evaluation short-circuits on the first failure")
}

func TestEnforcerUndecidablePreconditionBlocksDispatch(t *testing.T) {
	tel, cmd := newFakeTelemetry(groundValues()), &fakeCommander{}
	tel.stall[core.VarArmed] = true

	counted := 0
	e := NewEnforcer(newTestEnv(tel, cmd), nil, nil)
	res := e.Run(context.Background(), armSchema(&counted).MustBind(nil))

	assert.Equal(t, PreconditionViolation, res.Status)
	assert.Contains(t, res.Reason, "undecided")
	assert.Empty(t, cmd.Calls())
}

func TestEnforcerRecordsPostconditionMismatch(t *testing.T) {
	tel, cmd := newFakeTelemetry(groundValues()), &fakeCommander{}
	watcher := &recordingWatcher{}

	counted := 0
	e := NewEnforcer(newTestEnv(tel, cmd), watcher, nil)
	// The fake never becomes armed, so the postcondition fails.
	res := e.Run(context.Background(), armSchema(&counted).MustBind(nil))

	assert.Equal(t, Succeeded, res.Status)
	require.Len(t, res.Postconditions, 1)
	assert.Equal(t, "armed", res.Postconditions[0].Predicate)
	assert.ErrorIs(t, res.Err, core.ErrPostconditionMismatch)
	assert.Equal(t, []string{"arm"}, cmd.Calls())
	assert.Equal(t, []string{"arm"}, watcher.watched)
	assert.Equal(t, []string{"arm"}, watcher.unwatch)
	assert.Equal(t, 1, counted)
}

func TestEnforcerPostconditionsHold(t *testing.T) {
	tel, cmd := newFakeTelemetry(groundValues()), &fakeCommander{}
	s := armSchema(new(int))
	s.Await = func(ctx context.Context, env *Env, _ Inputs) Completion {
		tel.set(core.VarArmed, core.Bool(true))
		tel.set(core.VarBattery, core.Float(99))
		return Completion{Reached: true, Message: "System ARMED"}
	}

	res := NewEnforcer(newTestEnv(tel, cmd), nil, nil).Run(context.Background(), s.MustBind(nil))

	assert.True(t, res.Ok())
	assert.Empty(t, res.Postconditions)
	assert.NoError(t, res.Err)
	assert.Equal(t, "System ARMED", res.Reason)
	assert.InDelta(t, 1, res.BatteryUsed, 1e-9)
}

func TestEnforcerSkipsWhenInactive(t *testing.T) {
	tel, cmd := newFakeTelemetry(groundValues()), &fakeCommander{}
	env := newTestEnv(tel, cmd)
	env.Session.End(core.Completed)

	res := NewEnforcer(env, nil, nil).Run(context.Background(), armSchema(new(int)).MustBind(nil))

	assert.Equal(t, Skipped, res.Status)
	assert.Empty(t, cmd.Calls())
	assert.Zero(t, tel.reads[core.VarArmed])
}

func TestEnforcerDispatchError(t *testing.T) {
	tel, cmd := newFakeTelemetry(groundValues()), &fakeCommander{err: errBoom}

	res := NewEnforcer(newTestEnv(tel, cmd), nil, nil).Run(context.Background(), armSchema(new(int)).MustBind(nil))

	assert.Equal(t, Failed, res.Status)
	assert.True(t, errors.Is(res.Err, errBoom))
}

func TestEnforcerIncompleteWait(t *testing.T) {
	tel, cmd := newFakeTelemetry(groundValues()), &fakeCommander{}
	s := armSchema(new(int))
	s.Await = func(ctx context.Context, env *Env, _ Inputs) Completion {
		return env.Poller.Await(ctx, env.Session, env.Log, Wait{
			Gap:    func(context.Context) (float64, error) { return 1, nil },
			OnTick: func(context.Context) { env.Session.End(core.Completed) },
		})
	}

	res := NewEnforcer(newTestEnv(tel, cmd), nil, nil).Run(context.Background(), s.MustBind(nil))

	assert.Equal(t, Incomplete, res.Status)
	assert.True(t, errors.Is(res.Err, core.ErrActionIncomplete))
	assert.Empty(t, res.Postconditions)
}
