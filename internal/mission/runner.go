// Package mission wires the engine together: it connects to the vehicle,
// runs mission descriptions through the executor and the monitor, and hands
// the reports to the configured sinks.
package mission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/actions"
	"github.com/autopeer-io/houston/internal/mission/budget"
	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/description"
	"github.com/autopeer-io/houston/internal/mission/executor"
	"github.com/autopeer-io/houston/internal/mission/monitor"
	"github.com/autopeer-io/houston/internal/mission/report"
	"github.com/autopeer-io/houston/internal/pkg/metrics"
	"github.com/autopeer-io/houston/internal/pkg/server"
	"github.com/autopeer-io/houston/internal/vehicle/bridge"
	"github.com/autopeer-io/houston/internal/vehicle/sim"
	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/mqtt"
)

// Stop causes recorded in metrics.
const (
	causeFailureFlag = "failure_flag"
	causeInvariant   = "invariant"
	causeCancelled   = "cancelled"
)

// Runner runs one mission at a time against the configured vehicle.
type Runner struct {
	cfg   *Config
	clock clock.WithTicker
	log   log.Logger
	home  core.Position

	mqtt   mqtt.Client
	bridge *bridge.Bridge
	// simConfig is set when every mission gets a fresh simulated vehicle.
	simConfig *sim.Config

	store budget.Store
	sinks []report.Sink

	mu      sync.Mutex
	current atomic.Pointer[running]
	reports *reportRing
}

var _ server.Status = (*Runner)(nil)

type running struct {
	runID   string
	name    string
	kind    string
	session *core.Session
	monitor *monitor.Monitor
}

// CurrentMission is the body of the live mission endpoint.
type CurrentMission struct {
	RunID string        `json:"runId"`
	Name  string        `json:"name"`
	Type  string        `json:"type"`
	Phase string        `json:"phase"`
	State monitor.State `json:"state"`
}

// Serve runs the status server until ctx is done. It returns immediately
// when the server is disabled.
func (r *Runner) Serve(ctx context.Context) error {
	if !r.cfg.HttpOptions.Enabled {
		return nil
	}
	return server.NewServer(r.cfg.HttpOptions, r).Start(ctx)
}

// Close releases the vehicle connection and the sample store.
func (r *Runner) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if r.bridge != nil {
		r.bridge.Stop(ctx)
	}
	if r.mqtt != nil {
		r.mqtt.Disconnect(ctx)
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Error(err, "Failed to close sample store")
		}
	}
}

// Run executes one mission and returns its report. Missions are
// serialised: a second call waits for the first to finish. A description
// that cannot be planned fails with description.ErrMalformedMission and
// nothing is sent to the vehicle.
func (r *Runner) Run(ctx context.Context, doc *description.Document) (*report.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := doc.MDescription.Mission
	plan := doc.Plan()
	if err := executor.Validate(plan); err != nil {
		return nil, fmt.Errorf("%w: %v", description.ErrMalformedMission, err)
	}
	invariants, err := compileInvariants(m.Invariants)
	if err != nil {
		return nil, err
	}

	bcfg := r.cfg.budgetConfig()
	history, err := budget.Load(ctx, r.store, bcfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := r.log.WithValues("run", runID, "mission", m.Name)

	system, release := r.vehicle(ctx)
	defer release()

	eng := r.cfg.EngineOptions
	session := core.NewSession()
	registry := contract.NewRegistry(system, eng.TelemetryTimeout, r.clock)
	mon := monitor.New(monitor.Config{
		Tick:         eng.MonitorTick,
		InformEvery:  eng.InformInterval,
		ReportRate:   doc.ReportRate(),
		FailureFlags: m.FailureFlags,
		Intents:      m.Intents,
		Invariants:   invariants,
	}, registry, session, r.clock, logger.WithName("monitor"))

	env := &contract.Env{
		Commander: system,
		Registry:  registry,
		Session:   session,
		Poller: contract.NewPoller(contract.PollerConfig{
			Interval:  eng.PollInterval,
			Stabilize: eng.Stabilize,
			Tolerance: eng.Tolerance,
		}, r.clock),
		Budget: budget.NewEstimator(history, bcfg),
		Home:   r.homePosition(ctx, registry, logger),
		Log:    logger,
	}
	acfg := actions.DefaultConfig()
	acfg.ConfirmTimeout = eng.ConfirmTimeout
	exec := executor.New(actions.NewCatalog(acfg), contract.NewEnforcer(env, mon, r.clock), r.clock)

	r.current.Store(&running{runID: runID, name: m.Name, kind: m.Action.Type, session: session, monitor: mon})
	metrics.MissionActive.Set(1)
	defer func() {
		r.current.Store(nil)
		metrics.MissionActive.Set(0)
	}()

	logger.Info("Running mission", "type", m.Action.Type)

	var (
		execOut executor.Output
		monOut  monitor.Output
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		execOut, err = exec.Run(ctx, plan)
		return err
	})
	g.Go(func() error {
		monOut = mon.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reason := session.Reason()
	rep := report.Build(report.Meta{
		Name:       m.Name,
		RunID:      runID,
		RobotType:  doc.MDescription.RobotType,
		Map:        doc.MDescription.Map,
		LaunchFile: doc.MDescription.LaunchFile,
	}, execOut, monOut, reason)

	r.record(execOut, reason, monOut.Duration(), plan.Kind)
	if r.cfg.StoreOptions.Ingest {
		r.ingest(context.WithoutCancel(ctx), execOut)
	}
	r.reports.add(rep)

	logger.Info("Mission ended", "reason", reason.Error(), "duration", monOut.Duration().Round(time.Millisecond).String())
	if err := report.Publish(context.WithoutCancel(ctx), rep, r.sinks...); err != nil {
		logger.Error(err, "Report was not written to every sink")
	}
	return rep, nil
}

// vehicle returns the live system for one mission. A simulated vehicle is
// created fresh at home and its physics stop when release is called.
func (r *Runner) vehicle(ctx context.Context) (core.LiveSystem, func()) {
	if r.simConfig == nil {
		return r.bridge, func() {}
	}
	v := sim.New(*r.simConfig, r.clock)
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()
	return v, func() {
		cancel()
		<-done
	}
}

// homePosition captures the vehicle's position before takeoff as the origin
// of the local frame. The configured home is used when it cannot be read.
func (r *Runner) homePosition(ctx context.Context, registry *contract.Registry, logger log.Logger) core.Position {
	pos, err := registry.Position(ctx)
	if err != nil {
		logger.Warn("Could not read vehicle position, using configured home", "error", err)
		return r.home
	}
	pos.Altitude = 0
	return pos
}

func compileInvariants(invs []description.Invariant) ([]contract.Predicate, error) {
	preds := make([]contract.Predicate, 0, len(invs))
	for _, inv := range invs {
		p, err := contract.CompileExpression(inv.Name, inv.Expression, contract.Invariant)
		if err != nil {
			return nil, fmt.Errorf("%w: invariant %s: %v", description.ErrMalformedMission, inv.Name, err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func (r *Runner) record(out executor.Output, reason core.Reason, d time.Duration, kind executor.Kind) {
	for _, res := range out.Results() {
		dispatched := res.Status != contract.Skipped && res.Status != contract.PreconditionViolation
		metrics.ObserveAction(res.Action, string(res.Status), res.Elapsed, dispatched)
	}
	metrics.ObserveMission(string(kind), stopCause(reason), d)
}

func stopCause(reason core.Reason) string {
	switch {
	case errors.Is(reason.Kind, core.ErrFailureFlag):
		return causeFailureFlag
	case errors.Is(reason.Kind, core.ErrInvariantViolation):
		return causeInvariant
	case errors.Is(reason.Kind, core.ErrUserCancellation):
		return causeCancelled
	default:
		return ""
	}
}

// ingest adds the cost of every completed displacement to the store.
func (r *Runner) ingest(ctx context.Context, out executor.Output) {
	var obs []budget.Observation
	for _, res := range out.Results() {
		if res.Action != actions.Goto || !res.Ok() {
			continue
		}
		obs = append(obs, budget.Observation{
			Distance:    res.Displacement,
			BatteryUsed: res.BatteryUsed,
			Elapsed:     res.Elapsed,
		})
	}
	n, err := budget.Ingest(ctx, r.store, obs)
	if err != nil {
		r.log.Error(err, "Failed to ingest samples")
		return
	}
	metrics.SamplesIngested.WithLabelValues(string(budget.Battery)).Add(float64(n))
	metrics.SamplesIngested.WithLabelValues(string(budget.Time)).Add(float64(n))
	if n > 0 {
		r.log.Debug("Samples ingested", "count", n)
	}
}

// Ready reports whether a mission can start now.
func (r *Runner) Ready() bool {
	if r.current.Load() != nil {
		return false
	}
	return r.mqtt == nil || r.mqtt.IsConnected()
}

func (r *Runner) LatestReport() (any, bool) {
	rep, ok := r.reports.latest()
	return rep, ok
}

func (r *Runner) Report(runID string) (any, bool) {
	rep, ok := r.reports.get(runID)
	return rep, ok
}

func (r *Runner) CurrentMission() (any, bool) {
	cur := r.current.Load()
	if cur == nil {
		return nil, false
	}
	return CurrentMission{
		RunID: cur.runID,
		Name:  cur.name,
		Type:  cur.kind,
		Phase: cur.session.Phase().String(),
		State: cur.monitor.Current(),
	}, true
}

// reportRing keeps the most recent reports.
type reportRing struct {
	mu    sync.RWMutex
	keep  int
	order []string
	byID  map[string]*report.Report
}

func newReportRing(keep int) *reportRing {
	if keep < 1 {
		keep = 1
	}
	return &reportRing{keep: keep, byID: map[string]*report.Report{}}
}

func (q *reportRing) add(rep *report.Report) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = append(q.order, rep.RunID)
	q.byID[rep.RunID] = rep
	for len(q.order) > q.keep {
		delete(q.byID, q.order[0])
		q.order = q.order[1:]
	}
}

func (q *reportRing) latest() (*report.Report, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.order) == 0 {
		return nil, false
	}
	return q.byID[q.order[len(q.order)-1]], true
}

func (q *reportRing) get(runID string) (*report.Report, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rep, ok := q.byID[runID]
	return rep, ok
}
