// Package monitor watches a running mission: it maintains the battery and
// height aggregates, trips failure flags, checks the invariants of the
// action in flight, samples quality attributes and scores intents.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/pkg/log"
)

const (
	DefaultTick        = 100 * time.Millisecond
	DefaultInformEvery = 10 * time.Second
)

// Config configures one mission's monitor.
type Config struct {
	Tick         time.Duration
	InformEvery  time.Duration
	ReportRate   time.Duration
	FailureFlags Thresholds
	Intents      Thresholds
	// Invariants hold for the whole mission while any action is in flight.
	Invariants []contract.Predicate
	// OnTick, when set, receives the state after every tick.
	OnTick func(State)
}

type watch struct {
	inst    *contract.Instance
	initial contract.Snapshot
}

// Monitor is the mission watchdog. Run must be called once.
type Monitor struct {
	cfg      Config
	registry *contract.Registry
	session  *core.Session
	clock    clock.WithTicker
	log      log.Logger

	mu      sync.Mutex
	watched *watch

	// Aggregates below are written only by the Run goroutine.
	start          time.Time
	missionInitial contract.Snapshot
	haveInitial    bool
	batterySet     bool
	minUnlocked    bool
	nextSample     time.Time
	samples        []Sample
	intents        map[string]IntentOutcome
	failure        string

	stateMu sync.RWMutex
	state   State
}

var _ contract.Watcher = (*Monitor)(nil)

// New creates a monitor for the mission carried by session.
func New(cfg Config, registry *contract.Registry, session *core.Session, clk clock.WithTicker, logger log.Logger) *Monitor {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.InformEvery <= 0 {
		cfg.InformEvery = DefaultInformEvery
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Monitor{
		cfg:      cfg,
		registry: registry,
		session:  session,
		clock:    clk,
		log:      logger.WithName("monitor"),
		intents: map[string]IntentOutcome{
			IntentTime:      {Success: true},
			IntentBattery:   {Success: true},
			IntentMaxHeight: {Success: true},
			IntentMinHeight: {Success: true},
		},
		state: State{MinHeight: -1},
	}
}

// Watch implements contract.Watcher.
func (m *Monitor) Watch(inst *contract.Instance, initial contract.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched = &watch{inst: inst, initial: initial}
}

// Unwatch implements contract.Watcher.
func (m *Monitor) Unwatch(inst *contract.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watched != nil && m.watched.inst == inst {
		m.watched = nil
	}
}

// Current returns a copy of the live state.
func (m *Monitor) Current() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Run polls until the session ends or ctx is cancelled, in which case it
// ends the session as a user cancellation.
func (m *Monitor) Run(ctx context.Context) Output {
	m.start = m.clock.Now()
	m.nextSample = m.start.Add(m.cfg.ReportRate)

	ticker := m.clock.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	inform := rate.Sometimes{Interval: m.cfg.InformEvery}

	for {
		if m.session.Active() {
			inform.Do(func() {
				m.log.Info("Current time", "elapsed", m.clock.Since(m.start).Round(time.Millisecond).String())
			})
			m.tick(ctx)
		}

		select {
		case <-m.session.Done():
			return m.output()
		case <-ctx.Done():
			m.session.End(core.Reason{Kind: core.ErrUserCancellation, Message: "User interrupted test, exiting..."})
			return m.output()
		case <-ticker.C():
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	snap := m.registry.Snapshot(ctx)
	if !m.haveInitial {
		m.missionInitial, m.haveInitial = snap, true
	}
	state := m.aggregate(snap)

	if reason, tripped := m.checkFailureFlags(state); tripped {
		m.trip(core.ErrFailureFlag, reason)
	} else if reason, violated := m.checkInvariants(snap); violated {
		m.trip(core.ErrInvariantViolation, reason)
	} else {
		m.sampleQualityAttributes(state)
		m.checkIntents(state)
	}

	state.Samples = len(m.samples)
	m.stateMu.Lock()
	m.state = state
	m.stateMu.Unlock()

	if m.cfg.OnTick != nil {
		m.cfg.OnTick(state)
	}
}

// aggregate folds snap into the battery and height aggregates.
func (m *Monitor) aggregate(snap contract.Snapshot) State {
	state := m.Current()
	state.Elapsed = m.clock.Since(m.start)

	if b, err := snap.Float(core.VarBattery); err == nil {
		if !m.batterySet {
			state.InitialBattery, m.batterySet = b, true
		}
		state.Battery = b
	}

	if alt, err := snap.Float(core.VarAltitude); err == nil {
		state.Altitude = alt
		state.MaxHeight = math.Max(state.MaxHeight, alt)

		switch m.session.Phase() {
		case core.PhaseAirborne:
			if !m.minUnlocked {
				m.minUnlocked = true
				if state.MinHeight == -1 {
					state.MinHeight = alt
				}
			}
			state.MinHeight = math.Min(state.MinHeight, alt)
		default:
			m.minUnlocked = false
		}
	}

	m.mu.Lock()
	if m.watched != nil {
		state.Action = m.watched.inst.Name()
	} else {
		state.Action = ""
	}
	m.mu.Unlock()

	return state
}

func (m *Monitor) checkFailureFlags(s State) (string, bool) {
	ff := m.cfg.FailureFlags
	elapsed := s.Elapsed.Seconds()
	switch {
	case elapsed >= ff.Time:
		return fmt.Sprintf("Time exceeded: Expected: %v Current: %v", ff.Time, elapsed), true
	case s.BatteryUsed() >= ff.Battery:
		return fmt.Sprintf("Battery exceeded: Expected: %v - Current: %v - Time: %v", ff.Battery, s.BatteryUsed(), elapsed), true
	case s.MaxHeight >= ff.MaxHeight:
		return fmt.Sprintf("Max height exceeded: Expected: %v - Current: %v - Time: %v", ff.MaxHeight, s.MaxHeight, elapsed), true
	case s.MinHeight != -1 && s.MinHeight <= ff.MinHeight:
		return fmt.Sprintf("Min height exceeded: Expected: %v - Current: %v - Time: %v", ff.MinHeight, s.MinHeight, elapsed), true
	}
	return "", false
}

// checkInvariants evaluates the invariants of the action in flight and the
// mission-level invariants. Verdicts left undecided by a telemetry timeout
// carry no information and are ignored.
func (m *Monitor) checkInvariants(snap contract.Snapshot) (string, bool) {
	m.mu.Lock()
	w := m.watched
	m.mu.Unlock()
	if w == nil {
		return "", false
	}

	in := contract.Inputs{Now: snap, Initial: w.initial, Params: w.inst.Params}
	for _, p := range w.inst.Schema.Invariants {
		if v := p.Evaluate(in); violated(v, snap) {
			return fmt.Sprintf("Invariant violated during %s: %s", w.inst.Name(), v), true
		}
	}

	in = contract.Inputs{Now: snap, Initial: m.missionInitial}
	for _, p := range m.cfg.Invariants {
		if v := p.Evaluate(in); violated(v, snap) {
			return fmt.Sprintf("Mission invariant violated during %s: %s", w.inst.Name(), v), true
		}
	}
	return "", false
}

func violated(v contract.Verdict, snap contract.Snapshot) bool {
	if v.Holds {
		return false
	}
	if v.Error != "" && errors.Is(snap.Err(), core.ErrTelemetryTimeout) {
		return false
	}
	return true
}

// sampleQualityAttributes keeps a fixed schedule of one sample per
// ReportRate from the mission start. A tick that covers several periods
// records one sample for each.
func (m *Monitor) sampleQualityAttributes(s State) {
	if m.cfg.ReportRate <= 0 {
		return
	}
	for m.clock.Since(m.nextSample) >= 0 {
		m.nextSample = m.nextSample.Add(m.cfg.ReportRate)
		m.samples = append(m.samples, Sample{
			Time:      s.Elapsed.Seconds(),
			Battery:   s.BatteryUsed(),
			MinHeight: s.MinHeight,
			MaxHeight: s.MaxHeight,
		})
	}
}

func (m *Monitor) checkIntents(s State) {
	it := m.cfg.Intents
	elapsed := s.Elapsed.Seconds()
	if elapsed >= it.Time {
		m.violate(IntentTime, elapsed, elapsed)
	}
	if used := s.BatteryUsed(); used >= it.Battery {
		m.violate(IntentBattery, elapsed, used)
	}
	if s.MaxHeight >= it.MaxHeight {
		m.violate(IntentMaxHeight, elapsed, s.MaxHeight)
	}
	if s.MinHeight != -1 && s.MinHeight <= it.MinHeight {
		m.violate(IntentMinHeight, elapsed, s.MinHeight)
	}
}

// violate records the first violation of an intent only.
func (m *Monitor) violate(intent string, at, value float64) {
	if !m.intents[intent].Success {
		return
	}
	m.intents[intent] = IntentOutcome{Success: false, Time: &at, Value: &value}
	m.log.Info("Intent violated", "intent", intent, "time", at, "value", value)
}

func (m *Monitor) trip(kind error, reason string) {
	if m.session.End(core.Reason{Kind: kind, Message: reason}) {
		m.failure = reason
		m.log.Error(kind, reason)
	}
}

func (m *Monitor) output() Output {
	intents := make(map[string]IntentOutcome, len(m.intents))
	for k, v := range m.intents {
		intents[k] = v
	}
	final := m.Current()
	final.Elapsed = m.clock.Since(m.start)
	return Output{
		Start:       m.start,
		End:         m.clock.Now(),
		Samples:     append([]Sample(nil), m.samples...),
		Intents:     intents,
		FailureFlag: m.failure,
		Final:       final,
	}
}
