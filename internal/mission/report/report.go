// Package report assembles the mission report once the executor and the
// monitor have both stopped, and hands it to the configured sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/executor"
	"github.com/autopeer-io/houston/internal/mission/monitor"
	"github.com/autopeer-io/houston/pkg/log"
)

// NoFailure is the FailureFlags value of a mission that was not stopped.
const NoFailure = "None"

// Report is the record of one mission run.
type Report struct {
	Name        string `json:"Name"`
	RunID       string `json:"RunID"`
	MissionType string `json:"MissionType"`
	RobotType   string `json:"RobotType"`
	Map         string `json:"Map"`
	LaunchFile  string `json:"LaunchFile"`
	// OverallTime is the mission duration in seconds.
	OverallTime       float64                          `json:"OverallTime"`
	QualityAttributes []monitor.Sample                 `json:"QualityAttributes"`
	Intents           map[string]monitor.IntentOutcome `json:"Intents"`
	FailureFlags      string                           `json:"FailureFlags"`
	Actions           []executor.LegResult             `json:"Actions"`

	Started  time.Time `json:"Started"`
	Finished time.Time `json:"Finished"`
	// BatteryUsed and MaxHeight summarise the monitor's final aggregates.
	BatteryUsed float64 `json:"BatteryUsed"`
	MaxHeight   float64 `json:"MaxHeight"`
	MinHeight   float64 `json:"MinHeight"`
}

// Meta is what the report copies from the mission description.
type Meta struct {
	Name       string
	RunID      string
	RobotType  string
	Map        string
	LaunchFile string
}

// Build assembles the report. It must only be called once both the
// executor and the monitor have returned.
func Build(meta Meta, exec executor.Output, mon monitor.Output, reason core.Reason) *Report {
	r := &Report{
		Name:              meta.Name,
		RunID:             meta.RunID,
		MissionType:       string(exec.Kind),
		RobotType:         meta.RobotType,
		Map:               meta.Map,
		LaunchFile:        meta.LaunchFile,
		OverallTime:       mon.Duration().Seconds(),
		QualityAttributes: mon.Samples,
		Intents:           mon.Intents,
		FailureFlags:      NoFailure,
		Actions:           exec.Legs,
		Started:           mon.Start,
		Finished:          mon.End,
		BatteryUsed:       mon.Final.BatteryUsed(),
		MaxHeight:         mon.Final.MaxHeight,
		MinHeight:         mon.Final.MinHeight,
	}
	if reason.Kind != nil {
		r.FailureFlags = reason.Error()
	}
	if r.QualityAttributes == nil {
		r.QualityAttributes = []monitor.Sample{}
	}
	return r
}

// Stopped reports whether the mission was ended before all actions ran.
func (r *Report) Stopped() bool {
	return r.FailureFlags != NoFailure
}

// Sink receives finished reports.
type Sink interface {
	Name() string
	Write(ctx context.Context, r *Report) error
}

// Publish writes r to every sink. Every sink is tried; the errors are joined.
func Publish(ctx context.Context, r *Report, sinks ...Sink) error {
	logger := log.WithName("report")
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, r); err != nil {
			logger.Error(err, "Report sink failed", "sink", s.Name(), "run", r.RunID)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		logger.Debug("Report written", "sink", s.Name(), "run", r.RunID)
	}
	return errors.Join(errs...)
}
