package mission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/houston/internal/mission/actions"
	"github.com/autopeer-io/houston/internal/mission/budget"
	"github.com/autopeer-io/houston/internal/mission/contract"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/description"
	"github.com/autopeer-io/houston/internal/mission/executor"
	"github.com/autopeer-io/houston/internal/mission/report"
	"github.com/autopeer-io/houston/pkg/options"
)

const tick = 100 * time.Millisecond

const generous = `{"Time": 600, "Battery": 50, "MaxHeight": 100, "MinHeight": -5}`

func testConfig(t *testing.T, clk *testingclock.FakeClock) *Config {
	t.Helper()
	cfg := &Config{
		EngineOptions:  options.NewEngineOptions(),
		VehicleOptions: options.NewVehicleOptions(),
		StoreOptions:   options.NewStoreOptions(),
		SQLiteOptions:  options.NewSQLiteOptions(),
		RedisOptions:   options.NewRedisOptions(),
		MqttOptions:    options.NewMqttOptions(),
		S3Options:      options.NewS3Options(),
		HttpOptions:    options.NewHttpOptions(),
		ReportOptions:  options.NewReportOptions(),
		Quiet:          true,
		Clock:          clk,
	}
	cfg.EngineOptions.Stabilize = time.Second
	cfg.VehicleOptions.SimStep = tick
	cfg.ReportOptions.File = filepath.Join(t.TempDir(), "report.json")
	return cfg
}

// startRunner builds a runner on a simulated vehicle and advances the fake
// clock one tick at a time while anything waits on it.
func startRunner(t *testing.T) (*Runner, *Config) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Unix(1700000000, 0))
	cfg := testConfig(t, clk)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if clk.HasWaiters() {
				clk.Step(tick)
			}
			time.Sleep(200 * time.Microsecond)
		}
	}()

	r, err := cfg.NewRunner(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close(ctx)
		cancel()
		wg.Wait()
	})
	return r, cfg
}

func mission(t *testing.T, name, action, failureFlags, invariants string) *description.Document {
	t.Helper()
	if invariants == "" {
		invariants = "[]"
	}
	doc, err := description.Parse([]byte(fmt.Sprintf(`{"MDescription": {
		"RobotType": "ardupilot", "LaunchFile": "copter.launch", "Map": "empty",
		"Mission": {
			"Name": %q,
			"Action": %s,
			"QualityAttributes": {"ReportRate": 1},
			"Intents": {"Time": 120, "Battery": 20, "MaxHeight": 50, "MinHeight": 0},
			"FailureFlags": %s,
			"Invariants": %s
		}}}`, name, action, failureFlags, invariants)))
	require.NoError(t, err)
	return doc
}

func results(rep *report.Report) []contract.Result {
	var out []contract.Result
	for _, leg := range rep.Actions {
		out = append(out, leg.Results...)
	}
	return out
}

func TestShortPointToPointCompletes(t *testing.T) {
	r, cfg := startRunner(t)

	rep, err := r.Run(context.Background(), mission(t, "hop", `{"Type": "PTP", "x": 3, "y": 4, "alt": 5}`, generous, ""))
	require.NoError(t, err)

	assert.Equal(t, report.NoFailure, rep.FailureFlags)
	assert.False(t, rep.Stopped())
	assert.Equal(t, "PTP", rep.MissionType)
	assert.Equal(t, "hop", rep.Name)
	assert.NotEmpty(t, rep.RunID)
	for _, res := range results(rep) {
		assert.Equal(t, contract.Succeeded, res.Status, "%s: %s", res.Action, res.Reason)
	}
	assert.InDelta(t, rep.Finished.Sub(rep.Started).Seconds(), rep.OverallTime, 1e-9)
	assert.InDelta(t, rep.OverallTime, float64(len(rep.QualityAttributes)), 1.5)
	for _, outcome := range rep.Intents {
		assert.True(t, outcome.Success)
	}

	samples, err := r.store.Samples(context.Background(), budget.Battery, 50)
	require.NoError(t, err)
	assert.Len(t, samples, 1, "one displacement ingested")

	written, err := report.ReadFile(cfg.ReportOptions.File)
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, rep.RunID, written[0].RunID)

	latest, ok := r.LatestReport()
	require.True(t, ok)
	assert.Equal(t, rep, latest)
	byID, ok := r.Report(rep.RunID)
	require.True(t, ok)
	assert.Equal(t, rep, byID)
	_, ok = r.CurrentMission()
	assert.False(t, ok)
	assert.True(t, r.Ready())
}

func TestHomeIsCapturedFromVehicle(t *testing.T) {
	r, _ := startRunner(t)
	// The vehicle starts about 400 m away from the configured home.
	r.simConfig.Home = core.Position{Latitude: -35.3600, Longitude: 149.1700}

	rep, err := r.Run(context.Background(), mission(t, "away", `{"Type": "PTP", "x": 3, "y": 4, "alt": 5}`, generous, ""))
	require.NoError(t, err)

	assert.Equal(t, report.NoFailure, rep.FailureFlags)
	for _, res := range results(rep) {
		assert.Equal(t, contract.Succeeded, res.Status, "%s: %s", res.Action, res.Reason)
	}
}

func TestBatteryFailureFlagStopsBeforeLanding(t *testing.T) {
	r, _ := startRunner(t)

	rep, err := r.Run(context.Background(), mission(t, "drain",
		`{"Type": "PTP", "x": 100, "y": 0, "alt": 10}`,
		`{"Time": 600, "Battery": 1, "MaxHeight": 100, "MinHeight": -5}`, ""))
	require.NoError(t, err)

	assert.True(t, rep.Stopped())
	assert.True(t, strings.HasPrefix(rep.FailureFlags, core.ErrFailureFlag.Error()+": Battery exceeded"), rep.FailureFlags)
	assert.GreaterOrEqual(t, rep.BatteryUsed, 1.0)

	res := results(rep)
	last := res[len(res)-1]
	assert.Equal(t, actions.Land, last.Action)
	assert.Equal(t, contract.Skipped, last.Status)
	for _, x := range res {
		if x.Action == actions.Goto {
			assert.NotEqual(t, contract.Succeeded, x.Status)
		}
	}
}

func TestMissionInvariantStopsMultiPointMission(t *testing.T) {
	r, _ := startRunner(t)

	rep, err := r.Run(context.Background(), mission(t, "ceiling",
		`{"Type": "MPTP", "Locations": [{"x": 10, "y": 0, "alt": 5}, {"x": 10, "y": 10, "alt": 25}, {"x": 0, "y": 10, "alt": 5}]}`,
		generous, `[{"Name": "ceiling", "Expression": "altitude < 15.0"}]`))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rep.FailureFlags, core.ErrInvariantViolation.Error()), rep.FailureFlags)
	require.Len(t, rep.Actions, 1)
	leg := rep.Actions[0]

	var gotos []contract.Result
	for _, res := range leg.Results {
		if res.Action == actions.Goto {
			gotos = append(gotos, res)
		}
	}
	require.Len(t, gotos, 3)
	assert.Equal(t, contract.Succeeded, gotos[0].Status)
	assert.NotEqual(t, contract.Succeeded, gotos[1].Status)
	assert.Equal(t, contract.Skipped, gotos[2].Status)
	assert.Equal(t, contract.Skipped, leg.Results[len(leg.Results)-1].Status)
	assert.Equal(t, executor.StateFinished, leg.Trace[len(leg.Trace)-1])
}

func TestCancelledMission(t *testing.T) {
	r, _ := startRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *report.Report, 1)
	go func() {
		rep, err := r.Run(ctx, mission(t, "long", `{"Type": "PTP", "x": 200, "y": 0, "alt": 10}`, generous, ""))
		assert.NoError(t, err)
		done <- rep
	}()

	require.Eventually(t, func() bool {
		cur, ok := r.CurrentMission()
		return ok && cur.(CurrentMission).State.Altitude > 5
	}, 10*time.Second, time.Millisecond)
	assert.False(t, r.Ready())
	cancel()

	var rep *report.Report
	select {
	case rep = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("mission did not stop")
	}
	assert.True(t, strings.HasPrefix(rep.FailureFlags, core.ErrUserCancellation.Error()), rep.FailureFlags)
	assert.Equal(t, causeCancelled, stopCause(core.Reason{Kind: core.ErrUserCancellation}))
}

func TestMalformedMissionIsRejectedBeforeFlight(t *testing.T) {
	r, cfg := startRunner(t)

	doc := mission(t, "bad", `{"Type": "PTP", "x": 1, "y": 1, "alt": 5}`, generous,
		`[{"Name": "typo", "Expression": "altitud < 3.0"}]`)
	_, err := r.Run(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, description.ErrMalformedMission))

	_, ok := r.LatestReport()
	assert.False(t, ok)
	_, err = report.ReadFile(cfg.ReportOptions.File)
	assert.Error(t, err, "no report written")
}

func TestReportRingKeepsRecent(t *testing.T) {
	q := newReportRing(2)
	for _, id := range []string{"a", "b", "c"} {
		q.add(&report.Report{RunID: id})
	}
	_, ok := q.get("a")
	assert.False(t, ok)
	latest, ok := q.latest()
	require.True(t, ok)
	assert.Equal(t, "c", latest.RunID)
	_, ok = q.get("b")
	assert.True(t, ok)
}

func TestStopCause(t *testing.T) {
	tests := []struct {
		reason core.Reason
		want   string
	}{
		{core.Completed, ""},
		{core.Reason{Kind: core.ErrFailureFlag}, causeFailureFlag},
		{core.Reason{Kind: core.ErrInvariantViolation}, causeInvariant},
		{core.Reason{Kind: core.ErrUserCancellation}, causeCancelled},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stopCause(tt.reason), tt.reason.Error())
	}
}
