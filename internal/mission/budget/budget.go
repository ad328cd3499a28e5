// Package budget estimates the battery and time a displacement will cost
// from statistics over historical samples.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/geo"
)

// ErrInsufficientHistory means fewer than two samples are available.
var ErrInsufficientHistory = errors.New("insufficient history")

// Kind names a sample series.
type Kind string

const (
	// Battery samples are percent of battery per metre.
	Battery Kind = "battery"
	// Time samples are seconds per metre.
	Time Kind = "time"
)

const (
	DefaultBatteryMargin = 0.025
	DefaultTimeMargin    = 2.0
	DefaultWindow        = 50

	// minIngestDistance filters out hovering actions, whose per-metre cost is meaningless.
	minIngestDistance = 1.0
)

// Store holds historical samples. Implementations must be safe for concurrent use.
type Store interface {
	// Samples returns up to window of the most recent samples of kind, newest first.
	Samples(ctx context.Context, kind Kind, window int) ([]float64, error)
	Append(ctx context.Context, kind Kind, values ...float64) error
	Close() error
}

// Config tunes the estimator.
type Config struct {
	BatteryMargin float64
	TimeMargin    float64
	Window        int
	// Seeds are used for a kind while the store holds fewer than two samples of it.
	SeedBattery []float64
	SeedTime    []float64
}

// DefaultConfig returns the default margins, window and seeds.
func DefaultConfig() Config {
	return Config{
		BatteryMargin: DefaultBatteryMargin,
		TimeMargin:    DefaultTimeMargin,
		Window:        DefaultWindow,
		SeedBattery:   []float64{0.04, 0.06, 0.05},
		SeedTime:      []float64{0.9, 1.1, 1.0},
	}
}

// History is the frozen sample window a mission is estimated against.
type History struct {
	Battery []float64
	Time    []float64
}

// Load reads the sample windows from store, falling back to the seeds.
func Load(ctx context.Context, store Store, cfg Config) (History, error) {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	battery, err := store.Samples(ctx, Battery, window)
	if err != nil {
		return History{}, fmt.Errorf("load battery samples: %w", err)
	}
	elapsed, err := store.Samples(ctx, Time, window)
	if err != nil {
		return History{}, fmt.Errorf("load time samples: %w", err)
	}

	if len(battery) < 2 {
		battery = append([]float64(nil), cfg.SeedBattery...)
	}
	if len(elapsed) < 2 {
		elapsed = append([]float64(nil), cfg.SeedTime...)
	}
	return History{Battery: battery, Time: elapsed}, nil
}

// Stats returns the mean and sample standard deviation.
func Stats(samples []float64) (mean, stdev float64, err error) {
	n := len(samples)
	if n < 2 {
		return 0, 0, fmt.Errorf("%w: %d sample(s), need 2", ErrInsufficientHistory, n)
	}
	mean, stdev = stat.MeanStdDev(samples, nil)
	return mean, stdev, nil
}

// Estimator computes (mean + stdev + margin) * distance.
type Estimator struct {
	history       History
	batteryMargin float64
	timeMargin    float64
}

// NewEstimator creates an estimator over a frozen history.
func NewEstimator(h History, cfg Config) *Estimator {
	return &Estimator{history: h, batteryMargin: cfg.BatteryMargin, timeMargin: cfg.TimeMargin}
}

// ExpectedBattery is the battery, in percent, that moving from one position
// to the other is expected to use at most.
func (e *Estimator) ExpectedBattery(from, to core.Position) (float64, error) {
	return expected(e.history.Battery, e.batteryMargin, from, to)
}

// ExpectedTime is the number of seconds the move is expected to take at most.
func (e *Estimator) ExpectedTime(from, to core.Position) (float64, error) {
	return expected(e.history.Time, e.timeMargin, from, to)
}

func expected(samples []float64, margin float64, from, to core.Position) (float64, error) {
	mean, stdev, err := Stats(samples)
	if err != nil {
		return 0, err
	}
	return (mean + stdev + margin) * geo.Displacement(from, to), nil
}

// Observation is the measured cost of one completed displacement.
type Observation struct {
	Distance    float64
	BatteryUsed float64
	Elapsed     time.Duration
}

// Ingest appends one sample of each kind per observation that covered at
// least a metre. It is the only writer of the store.
func Ingest(ctx context.Context, store Store, obs []Observation) (int, error) {
	var battery, elapsed []float64
	for _, o := range obs {
		if o.Distance < minIngestDistance || o.BatteryUsed < 0 {
			continue
		}
		battery = append(battery, o.BatteryUsed/o.Distance)
		elapsed = append(elapsed, o.Elapsed.Seconds()/o.Distance)
	}
	if len(battery) == 0 {
		return 0, nil
	}
	if err := store.Append(ctx, Battery, battery...); err != nil {
		return 0, fmt.Errorf("append battery samples: %w", err)
	}
	if err := store.Append(ctx, Time, elapsed...); err != nil {
		return 0, fmt.Errorf("append time samples: %w", err)
	}
	return len(battery), nil
}
