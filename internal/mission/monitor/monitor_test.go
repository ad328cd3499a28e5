package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/pkg/log"
)

type telemetry struct {
	mu      sync.Mutex
	values  map[string]core.Value
	stalled map[string]bool
}

func (f *telemetry) Read(ctx context.Context, name string) (core.Value, error) {
	f.mu.Lock()
	v, ok := f.values[name]
	stalled := f.stalled[name]
	f.mu.Unlock()
	if stalled {
		<-ctx.Done()
		return core.Value{}, ctx.Err()
	}
	if !ok {
		return core.Value{}, core.ErrUnknownVariable
	}
	return v, nil
}

func (f *telemetry) set(name string, v core.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = v
}

type harness struct {
	t       *testing.T
	clk     *testingclock.FakeClock
	tel     *telemetry
	session *core.Session
	mon     *Monitor
	cfg     Config
	ticked  chan State
	out     chan Output
}

func generous() Thresholds {
	return Thresholds{Time: 1000, Battery: 50, MaxHeight: 100, MinHeight: -5}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clk:     testingclock.NewFakeClock(time.Unix(1700000000, 0)),
		session: core.NewSession(),
		ticked:  make(chan State, 1),
		out:     make(chan Output, 1),
		tel: &telemetry{
			stalled: map[string]bool{},
			values: map[string]core.Value{
				core.VarTime:      core.Timestamp(time.Unix(1700000000, 0)),
				core.VarAltitude:  core.Float(0),
				core.VarLatitude:  core.Float(-35.3632607),
				core.VarLongitude: core.Float(149.1652351),
				core.VarBattery:   core.Float(100),
				core.VarArmed:     core.Bool(true),
				core.VarMode:      core.String(core.ModeGuided),
			},
		},
	}
	if cfg.Tick == 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	cfg.OnTick = func(s State) { h.ticked <- s }
	h.cfg = cfg
	registry := contract.NewRegistry(h.tel, 20*time.Millisecond, h.clk)
	h.mon = New(cfg, registry, h.session, h.clk, log.NewNopLogger())
	return h
}

func (h *harness) start(ctx context.Context) State {
	go func() { h.out <- h.mon.Run(ctx) }()
	return h.next()
}

func (h *harness) next() State {
	h.t.Helper()
	select {
	case s := <-h.ticked:
		return s
	case <-time.After(5 * time.Second):
		h.t.Fatal("monitor did not tick")
		return State{}
	}
}

// advance steps the clock n ticks, waiting for each to be processed.
func (h *harness) advance(n int) State {
	h.t.Helper()
	var s State
	for i := 0; i < n; i++ {
		h.clk.Step(h.cfg.Tick)
		s = h.next()
	}
	return s
}

func (h *harness) wait() Output {
	h.t.Helper()
	select {
	case o := <-h.out:
		return o
	case <-time.After(5 * time.Second):
		h.t.Fatal("monitor did not stop")
		return Output{}
	}
}

func TestBatteryFailureFlag(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: Thresholds{Time: 1000, Battery: 10, MaxHeight: 100, MinHeight: -5}, Intents: generous()})
	h.start(context.Background())

	h.tel.set(core.VarBattery, core.Float(95))
	h.advance(1)
	require.True(t, h.session.Active())

	h.tel.set(core.VarBattery, core.Float(85))
	h.clk.Step(h.cfg.Tick)
	out := h.wait()

	assert.False(t, h.session.Active())
	assert.True(t, errors.Is(h.session.Reason().Kind, core.ErrFailureFlag))
	assert.True(t, strings.HasPrefix(out.FailureFlag, "Battery exceeded: Expected: 10 - Current: 15"), out.FailureFlag)
	assert.Equal(t, 15.0, out.Final.BatteryUsed())
}

func TestTimeFailureFlag(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: Thresholds{Time: 1, Battery: 50, MaxHeight: 100, MinHeight: -5}, Intents: generous()})
	h.start(context.Background())

	h.advance(9)
	require.True(t, h.session.Active())
	h.clk.Step(h.cfg.Tick)
	out := h.wait()

	assert.True(t, strings.HasPrefix(out.FailureFlag, "Time exceeded: Expected: 1 Current: 1"), out.FailureFlag)
}

func TestInvariantViolationEndsMission(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: generous(), Intents: generous()})
	h.start(context.Background())

	schema := &contract.Schema{
		Name: "goto",
		Invariants: []contract.Predicate{{
			Name: "armed", Role: contract.Invariant,
			Check: func(in contract.Inputs) (bool, error) { return in.Now.Bool(core.VarArmed) },
		}},
	}
	inst := schema.MustBind(nil)
	h.mon.Watch(inst, contract.NewSnapshot(h.clk.Now(), nil))

	s := h.advance(1)
	assert.Equal(t, "goto", s.Action)
	require.True(t, h.session.Active())

	h.tel.set(core.VarArmed, core.Bool(false))
	h.clk.Step(h.cfg.Tick)
	out := h.wait()

	assert.True(t, errors.Is(h.session.Reason().Kind, core.ErrInvariantViolation))
	assert.Contains(t, out.FailureFlag, "Invariant violated during goto")
}

func TestUnwatchedInvariantsAreIgnored(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: generous(), Intents: generous()})
	h.start(context.Background())

	schema := &contract.Schema{
		Name: "land",
		Invariants: []contract.Predicate{{
			Name: "never", Role: contract.Invariant,
			Check: func(contract.Inputs) (bool, error) { return false, nil },
		}},
	}
	inst := schema.MustBind(nil)
	h.mon.Watch(inst, contract.Snapshot{})
	h.mon.Unwatch(inst)

	h.advance(3)
	assert.True(t, h.session.Active())
	h.session.End(core.Completed)
	assert.Empty(t, h.wait().FailureFlag)
}

func TestTimeoutIsNotAViolation(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: generous(), Intents: generous()})
	h.start(context.Background())

	schema := &contract.Schema{
		Name: "goto",
		Invariants: []contract.Predicate{{
			Name: "armed", Role: contract.Invariant,
			Check: func(in contract.Inputs) (bool, error) { return in.Now.Bool(core.VarArmed) },
		}},
	}
	h.mon.Watch(schema.MustBind(nil), contract.Snapshot{})
	h.tel.mu.Lock()
	h.tel.stalled[core.VarArmed] = true
	h.tel.mu.Unlock()

	h.advance(3)
	assert.True(t, h.session.Active())
	h.session.End(core.Completed)
	h.wait()
}

func TestMissionInvariant(t *testing.T) {
	ceiling, err := contract.CompileExpression("ceiling", "altitude < 20.0", contract.Invariant)
	require.NoError(t, err)

	h := newHarness(t, Config{FailureFlags: generous(), Intents: generous(), Invariants: []contract.Predicate{ceiling}})
	h.start(context.Background())

	h.tel.set(core.VarAltitude, core.Float(25))
	h.advance(1)
	assert.True(t, h.session.Active(), "mission invariants apply only while an action is in flight")

	h.mon.Watch((&contract.Schema{Name: "goto"}).MustBind(nil), contract.Snapshot{})
	h.clk.Step(h.cfg.Tick)
	out := h.wait()
	assert.True(t, errors.Is(h.session.Reason().Kind, core.ErrInvariantViolation))
	assert.Contains(t, out.FailureFlag, "ceiling")
}

func TestQualityAttributeSampling(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: generous(), Intents: generous(), ReportRate: time.Second})
	h.start(context.Background())

	h.advance(105)
	h.session.End(core.Completed)
	out := h.wait()

	expected := int(out.Duration() / time.Second)
	assert.InDelta(t, expected, len(out.Samples), 1)
	assert.Equal(t, 10, len(out.Samples))
	assert.InDelta(t, 1.0, out.Samples[0].Time, 1e-9)
	assert.Equal(t, -1.0, out.Samples[0].MinHeight)
}

func TestQualityAttributeSamplingKeepsSchedule(t *testing.T) {
	tests := []struct {
		rate time.Duration
		tick time.Duration
	}{
		{250 * time.Millisecond, 100 * time.Millisecond},
		{300 * time.Millisecond, 200 * time.Millisecond},
		{50 * time.Millisecond, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.rate.String()+"/"+tt.tick.String(), func(t *testing.T) {
			h := newHarness(t, Config{FailureFlags: generous(), Intents: generous(), ReportRate: tt.rate, Tick: tt.tick})
			h.start(context.Background())

			h.advance(100)
			h.session.End(core.Completed)
			out := h.wait()

			expected := int(out.Duration() / tt.rate)
			assert.InDelta(t, expected, len(out.Samples), 1, "duration=%v samples=%d", out.Duration(), len(out.Samples))
			for i := 1; i < len(out.Samples); i++ {
				assert.GreaterOrEqual(t, out.Samples[i].Time, out.Samples[i-1].Time)
			}
		})
	}
}

func TestIntentsRecordFirstViolation(t *testing.T) {
	h := newHarness(t, Config{
		FailureFlags: generous(),
		Intents:      Thresholds{Time: 2, Battery: 5, MaxHeight: 15, MinHeight: -5},
	})
	h.start(context.Background())

	h.tel.set(core.VarAltitude, core.Float(16))
	h.advance(1)
	h.tel.set(core.VarAltitude, core.Float(30))
	h.advance(30)
	h.session.End(core.Completed)
	out := h.wait()

	assert.True(t, out.Intents[IntentBattery].Success)
	assert.True(t, out.Intents[IntentMinHeight].Success)

	tm := out.Intents[IntentTime]
	require.False(t, tm.Success)
	assert.InDelta(t, 2.0, *tm.Time, 1e-9)

	mh := out.Intents[IntentMaxHeight]
	require.False(t, mh.Success)
	assert.Equal(t, 16.0, *mh.Value, "only the first violation is recorded")
}

func TestMinHeightLockedUntilAirborne(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: Thresholds{Time: 1000, Battery: 50, MaxHeight: 100, MinHeight: 2}, Intents: generous()})
	h.start(context.Background())

	// Climbing through the limit does not trip while locked.
	h.tel.set(core.VarAltitude, core.Float(1))
	s := h.advance(1)
	assert.Equal(t, -1.0, s.MinHeight)

	h.tel.set(core.VarAltitude, core.Float(10))
	h.session.SetPhase(core.PhaseAirborne)
	s = h.advance(1)
	assert.Equal(t, 10.0, s.MinHeight)

	h.tel.set(core.VarAltitude, core.Float(8))
	s = h.advance(1)
	assert.Equal(t, 8.0, s.MinHeight)

	// Descending to land is not tracked.
	h.session.SetPhase(core.PhaseLanding)
	h.tel.set(core.VarAltitude, core.Float(0))
	s = h.advance(1)
	assert.Equal(t, 8.0, s.MinHeight)
	assert.Equal(t, 10.0, s.MaxHeight)
	assert.True(t, h.session.Active())

	h.session.End(core.Completed)
	h.wait()
}

func TestCancellation(t *testing.T) {
	h := newHarness(t, Config{FailureFlags: generous(), Intents: generous()})
	ctx, cancel := context.WithCancel(context.Background())
	h.start(ctx)
	cancel()

	out := h.wait()
	assert.Empty(t, out.FailureFlag)
	assert.True(t, errors.Is(h.session.Reason().Kind, core.ErrUserCancellation))
}
