package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/pkg/log"
)

const (
	// DefaultTolerance is how close to a target counts as reached.
	DefaultTolerance = 0.3

	DefaultPollInterval = 100 * time.Millisecond
	DefaultStabilize    = 5 * time.Second
)

// PollerConfig tunes the completion wait.
type PollerConfig struct {
	Interval  time.Duration
	Stabilize time.Duration
	Tolerance float64
}

// Poller implements the fixed-rate completion wait shared by all actions:
// poll the gap to the target until it is within tolerance, then require it
// to stay there for the stabilization buffer.
type Poller struct {
	cfg   PollerConfig
	clock clock.WithTicker
}

// NewPoller returns a Poller driven by clk.
func NewPoller(cfg PollerConfig, clk clock.WithTicker) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Poller{cfg: cfg, clock: clk}
}

// Tolerance returns ε.
func (p *Poller) Tolerance() float64 {
	return p.cfg.Tolerance
}

// Wait describes one completion wait.
type Wait struct {
	// Gap measures the remaining distance to the target.
	Gap func(ctx context.Context) (float64, error)
	// OnTick runs after every tick, e.g. to republish a setpoint.
	OnTick func(ctx context.Context)
	// Progress labels the periodic progress line.
	Progress string
	// LogEvery is the progress cadence; zero disables it.
	LogEvery time.Duration
	// Failure is the message reported when the target is not held.
	Failure string
	Success string
	// NoHold skips the stabilization buffer, for state flags such as armed.
	NoHold bool
}

// Await runs w until the gap has stayed within tolerance for the
// stabilization buffer, the session ends, or ctx is done. A telemetry
// timeout is treated as no new information.
func (p *Poller) Await(ctx context.Context, session *core.Session, logger log.Logger, w Wait) Completion {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	progress := rate.Sometimes{Interval: w.LogEvery}
	start := p.clock.Now()

	var (
		gap       = -1.0
		holding   bool
		heldSince time.Time
	)

	for {
		if !session.Active() {
			return p.incomplete(w, gap, "mission ended")
		}

		g, err := w.Gap(ctx)
		switch {
		case err == nil:
			gap = g
			if gap <= p.cfg.Tolerance {
				if !holding {
					holding, heldSince = true, p.clock.Now()
				}
				if w.NoHold || p.clock.Since(heldSince) >= p.cfg.Stabilize {
					return Completion{Reached: true, Message: w.Success, Gap: gap}
				}
			} else {
				holding = false
			}
		case errors.Is(err, core.ErrTelemetryTimeout):
			logger.Debug("No telemetry, retrying", "error", err)
		case ctx.Err() != nil:
			return p.incomplete(w, gap, ctx.Err().Error())
		default:
			logger.Warn("Completion check failed", "error", err)
		}

		if w.LogEvery > 0 {
			progress.Do(func() {
				logger.Info(w.Progress, "remaining", gap, "elapsed", p.clock.Since(start).Round(time.Millisecond).String())
			})
		}

		select {
		case <-ctx.Done():
			return p.incomplete(w, gap, ctx.Err().Error())
		case <-session.Done():
			return p.incomplete(w, gap, "mission ended")
		case <-ticker.C():
		}

		if w.OnTick != nil {
			w.OnTick(ctx)
		}
	}
}

func (p *Poller) incomplete(w Wait, gap float64, cause string) Completion {
	return Completion{
		Message: w.Failure,
		Gap:     gap,
		Err:     fmt.Errorf("%w: %s (%s, remaining %.2f)", core.ErrActionIncomplete, w.Failure, cause, gap),
	}
}
