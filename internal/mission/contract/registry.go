package contract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/core"
)

// DefaultReadTimeout bounds a single telemetry read.
const DefaultReadTimeout = time.Second

// Registry gives named, read-on-demand access to the live variables. It
// holds no cached values and is safe for concurrent use.
type Registry struct {
	telemetry core.Telemetry
	timeout   time.Duration
	clock     clock.PassiveClock
}

// NewRegistry creates a Registry reading from t with the given per-read timeout.
func NewRegistry(t core.Telemetry, timeout time.Duration, clk clock.PassiveClock) *Registry {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Registry{telemetry: t, timeout: timeout, clock: clk}
}

// Read fetches one variable. A read that does not answer within the
// timeout fails with core.ErrTelemetryTimeout.
func (r *Registry) Read(ctx context.Context, name string) (core.Value, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.telemetry.Read(rctx, name)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, core.ErrTelemetryTimeout) {
		return core.Value{}, err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return core.Value{}, fmt.Errorf("%w: %s after %s", core.ErrTelemetryTimeout, name, r.timeout)
	}
	return core.Value{}, fmt.Errorf("read %s: %w", name, err)
}

// Float reads a numeric variable.
func (r *Registry) Float(ctx context.Context, name string) (float64, error) {
	v, err := r.Read(ctx, name)
	return v.Float, err
}

// Position reads latitude, longitude and altitude.
func (r *Registry) Position(ctx context.Context) (core.Position, error) {
	s := r.Snapshot(ctx, core.VarLatitude, core.VarLongitude, core.VarAltitude)
	return s.Position()
}

// Snapshot reads the named variables concurrently, or every variable when
// names is empty. Failed reads are recorded in the snapshot, never returned.
func (r *Registry) Snapshot(ctx context.Context, names ...string) Snapshot {
	if len(names) == 0 {
		names = core.Variables
	}

	var (
		mu     sync.Mutex
		values = make(map[string]core.Value, len(names))
		errs   = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			v, err := r.Read(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[name] = err
				return nil
			}
			values[name] = v
			return nil
		})
	}
	_ = g.Wait()

	return Snapshot{Taken: r.clock.Now(), values: values, errs: errs}
}
