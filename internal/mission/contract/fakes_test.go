package contract

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/autopeer-io/houston/internal/mission/core"
)

type fakeTelemetry struct {
	mu     sync.Mutex
	values map[string]core.Value
	// stall makes reads of the named variables block until ctx is done.
	stall map[string]bool
	reads map[string]int
}

func newFakeTelemetry(values map[string]core.Value) *fakeTelemetry {
	return &fakeTelemetry{values: values, stall: map[string]bool{}, reads: map[string]int{}}
}

func (f *fakeTelemetry) Read(ctx context.Context, name string) (core.Value, error) {
	f.mu.Lock()
	f.reads[name]++
	stall := f.stall[name]
	v, ok := f.values[name]
	f.mu.Unlock()

	if stall {
		<-ctx.Done()
		return core.Value{}, ctx.Err()
	}
	if !ok {
		return core.Value{}, core.ErrUnknownVariable
	}
	return v, nil
}

func (f *fakeTelemetry) set(name string, v core.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = v
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCommander) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCommander) Arm(_ context.Context, arm bool) error {
	if arm {
		return f.record("arm")
	}
	return f.record("disarm")
}
func (f *fakeCommander) SetMode(_ context.Context, mode string) error { return f.record("mode " + mode) }
func (f *fakeCommander) Takeoff(context.Context, float64) error       { return f.record("takeoff") }
func (f *fakeCommander) Land(context.Context) error                   { return f.record("land") }
func (f *fakeCommander) SetpointPosition(context.Context, core.LocalPoint) error {
	return f.record("setpoint")
}

func (f *fakeCommander) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeBudget struct {
	perMetre float64
	err      error
}

func (b fakeBudget) ExpectedBattery(from, to core.Position) (float64, error) {
	if b.err != nil {
		return 0, b.err
	}
	return b.perMetre * (to.Altitude - from.Altitude), nil
}

func (b fakeBudget) ExpectedTime(from, to core.Position) (float64, error) {
	return b.ExpectedBattery(from, to)
}

type recordingWatcher struct {
	mu      sync.Mutex
	watched []string
	unwatch []string
}

func (w *recordingWatcher) Watch(inst *Instance, _ Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, inst.Name())
}

func (w *recordingWatcher) Unwatch(inst *Instance) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatch = append(w.unwatch, inst.Name())
}

func groundValues() map[string]core.Value {
	return map[string]core.Value{
		core.VarTime:      core.Timestamp(time.Unix(1700000000, 0)),
		core.VarAltitude:  core.Float(0),
		core.VarLatitude:  core.Float(-35.3632607),
		core.VarLongitude: core.Float(149.1652351),
		core.VarBattery:   core.Float(100),
		core.VarArmed:     core.Bool(false),
		core.VarMode:      core.String("STABILIZE"),
	}
}

var errBoom = errors.New("boom")
