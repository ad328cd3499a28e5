package executor

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/houston/internal/pkg/util/fsm"
	"github.com/autopeer-io/houston/pkg/log"
)

// Leg states.
const (
	StateIdle            = "idle"
	StateTakeoffPending  = "takeoff_pending"
	StateTakeoffDone     = "takeoff_done"
	StateTakeoffFailed   = "takeoff_failed"
	StateNavigatePending = "navigate_pending"
	StateNavigateDone    = "navigate_done"
	StateNavigateFailed  = "navigate_failed"
	StateLandPending     = "land_pending"
	StateLandDone        = "land_done"
	StateLandFailed      = "land_failed"
	StateFinished        = "finished"
)

// Leg events.
const (
	EventTakeoff  = "event_takeoff"
	EventNavigate = "event_navigate"
	EventLand     = "event_land"
	EventSucceed  = "event_succeed"
	EventFail     = "event_fail"
	EventFinish   = "event_finish"
)

// airborne states are those from which the next navigation or landing may start.
var airborne = []string{StateTakeoffDone, StateTakeoffFailed, StateNavigateDone, StateNavigateFailed}

// legMachine is the state machine of one takeoff-navigate-land leg. It
// records every state it enters.
type legMachine struct {
	*fsm.FSM

	name string
	log  log.Logger

	mu    sync.Mutex
	trace []string
}

func newLegMachine(name string, logger log.Logger) *legMachine {
	m := &legMachine{name: name, log: logger, trace: []string{StateIdle}}

	events := fsm.Events{
		{Name: EventTakeoff, Src: []string{StateIdle}, Dst: StateTakeoffPending},
		{Name: EventNavigate, Src: airborne, Dst: StateNavigatePending},
		{Name: EventLand, Src: airborne, Dst: StateLandPending},

		{Name: EventSucceed, Src: []string{StateTakeoffPending}, Dst: StateTakeoffDone},
		{Name: EventSucceed, Src: []string{StateNavigatePending}, Dst: StateNavigateDone},
		{Name: EventSucceed, Src: []string{StateLandPending}, Dst: StateLandDone},

		{Name: EventFail, Src: []string{StateTakeoffPending}, Dst: StateTakeoffFailed},
		{Name: EventFail, Src: []string{StateNavigatePending}, Dst: StateNavigateFailed},
		{Name: EventFail, Src: []string{StateLandPending}, Dst: StateLandFailed},

		{Name: EventFinish, Src: []string{
			StateIdle,
			StateTakeoffPending, StateTakeoffDone, StateTakeoffFailed,
			StateNavigatePending, StateNavigateDone, StateNavigateFailed,
			StateLandPending, StateLandDone, StateLandFailed,
		}, Dst: StateFinished},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(m.enterState),
	}

	m.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	return m
}

func (m *legMachine) enterState(_ context.Context, e *fsm.Event) error {
	m.mu.Lock()
	m.trace = append(m.trace, e.Dst)
	m.mu.Unlock()
	m.log.Debug("Leg transition", "leg", m.name, "event", e.Event, "from", e.Src, "to", e.Dst)
	return nil
}

// fire triggers event. A rejected transition is a programming error and is logged.
func (m *legMachine) fire(ctx context.Context, event string) {
	if err := fsmutil.Fire(ctx, m.FSM, event); err != nil {
		m.log.Error(err, "Invalid leg transition", "leg", m.name, "event", event, "state", m.Current())
	}
}

func (m *legMachine) Trace() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.trace...)
}
