// Package bridge drives a vehicle over MQTT. A companion process next to
// the flight controller publishes telemetry and executes commands; see
// internal/pkg/mqtt/paths for the topics and payloads.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/pkg/metrics"
	"github.com/autopeer-io/houston/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/mqtt"
	"github.com/autopeer-io/houston/pkg/mqtt/topic"
)

var (
	ErrCommandRejected = errors.New("command rejected by vehicle")
	ErrNoAck           = errors.New("command not acknowledged")
)

// Config configures a Bridge.
type Config struct {
	VehicleID string
	// CommandTimeout bounds the wait for a command acknowledgement.
	CommandTimeout time.Duration
	// StaleAfter is the age beyond which a telemetry value is not served.
	// Zero serves values of any age.
	StaleAfter time.Duration
}

type sample struct {
	value    core.Value
	received time.Time
}

type ack struct {
	success bool
	message string
}

// Bridge implements core.LiveSystem over MQTT.
type Bridge struct {
	client mqtt.Client
	topics *topic.Builder
	cfg    Config
	clock  clock.PassiveClock
	log    log.Logger

	mu      sync.Mutex
	values  map[string]sample
	updated chan struct{}
	pending map[string]chan ack
}

var _ core.LiveSystem = (*Bridge)(nil)

func New(client mqtt.Client, builder *topic.Builder, cfg Config, clk clock.PassiveClock) *Bridge {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Bridge{
		client:  client,
		topics:  builder,
		cfg:     cfg,
		clock:   clk,
		log:     log.WithName("bridge").WithValues("vehicle", cfg.VehicleID),
		values:  map[string]sample{},
		updated: make(chan struct{}),
		pending: map[string]chan ack{},
	}
}

// Start subscribes to the vehicle's topics. The client must be started.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.client.AwaitConnection(ctx); err != nil {
		metrics.VehicleConnectivityStatus.Set(0)
		return fmt.Errorf("broker not reachable: %w", err)
	}
	metrics.VehicleConnectivityStatus.Set(1)

	subs := map[string]mqtt.MessageHandler{
		paths.State:          structHandler(b.log, b.onState),
		paths.GlobalPosition: structHandler(b.log, b.onGlobal),
		paths.Battery:        structHandler(b.log, b.onBattery),
		paths.CommandAck:     structHandler(b.log, b.onAck),
	}
	for segment, h := range subs {
		t := b.topics.Build(segment, b.cfg.VehicleID)
		if err := b.client.Subscribe(ctx, t, 1, h); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", t, err)
		}
	}
	b.log.Info("Vehicle bridge started", "root", b.topics.Root())
	return nil
}

// Stop drops the subscriptions.
func (b *Bridge) Stop(ctx context.Context) {
	for _, segment := range []string{paths.State, paths.GlobalPosition, paths.Battery, paths.CommandAck} {
		if err := b.client.Unsubscribe(ctx, b.topics.Build(segment, b.cfg.VehicleID)); err != nil {
			b.log.Debug("Unsubscribe failed", "segment", segment, "error", err)
		}
	}
	metrics.VehicleConnectivityStatus.Set(0)
}

func (b *Bridge) store(values map[string]core.Value) {
	now := b.clock.Now()
	b.mu.Lock()
	for name, v := range values {
		b.values[name] = sample{value: v, received: now}
	}
	close(b.updated)
	b.updated = make(chan struct{})
	b.mu.Unlock()
}

func (b *Bridge) onState(_ context.Context, f map[string]any) error {
	values := map[string]core.Value{}
	if v, ok := f["armed"].(bool); ok {
		values[core.VarArmed] = core.Bool(v)
	}
	if v, ok := f["mode"].(string); ok {
		values[core.VarMode] = core.String(v)
	}
	if len(values) == 0 {
		return errors.New("state carries no known field")
	}
	// Without a vehicle clock the receipt time stands in for it.
	if v, ok := f["time"].(float64); ok {
		sec := int64(v)
		values[core.VarTime] = core.Timestamp(time.Unix(sec, int64((v-float64(sec))*1e9)))
	} else {
		values[core.VarTime] = core.Timestamp(b.clock.Now())
	}
	b.store(values)
	return nil
}

func (b *Bridge) onGlobal(_ context.Context, f map[string]any) error {
	lat, ok1 := f["latitude"].(float64)
	lon, ok2 := f["longitude"].(float64)
	alt, ok3 := f["altitude"].(float64)
	if !ok1 || !ok2 || !ok3 {
		return errors.New("global position needs latitude, longitude and altitude")
	}
	b.store(map[string]core.Value{
		core.VarLatitude:  core.Float(lat),
		core.VarLongitude: core.Float(lon),
		core.VarAltitude:  core.Float(alt),
	})
	return nil
}

func (b *Bridge) onBattery(_ context.Context, f map[string]any) error {
	v, ok := f["remaining"].(float64)
	if !ok {
		return errors.New("battery needs remaining")
	}
	b.store(map[string]core.Value{core.VarBattery: core.Float(v)})
	return nil
}

func (b *Bridge) onAck(_ context.Context, f map[string]any) error {
	id, _ := f["requestID"].(string)
	success, _ := f["success"].(bool)
	message, _ := f["message"].(string)

	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		b.log.Debug("Ack for unknown request", "requestID", id)
		return nil
	}
	ch <- ack{success: success, message: message}
	return nil
}

// Read returns the latest value of name. It waits for the first value, or
// a fresh one when the latest is stale, until ctx is done.
func (b *Bridge) Read(ctx context.Context, name string) (core.Value, error) {
	if !knownVariable(name) {
		return core.Value{}, fmt.Errorf("%w: %s", core.ErrUnknownVariable, name)
	}
	for {
		b.mu.Lock()
		s, ok := b.values[name]
		updated := b.updated
		b.mu.Unlock()

		if ok && (b.cfg.StaleAfter <= 0 || b.clock.Since(s.received) <= b.cfg.StaleAfter) {
			return s.value, nil
		}
		select {
		case <-ctx.Done():
			return core.Value{}, ctx.Err()
		case <-updated:
		}
	}
}

func knownVariable(name string) bool {
	for _, v := range core.Variables {
		if v == name {
			return true
		}
	}
	return false
}

// send publishes a command and waits for its acknowledgement.
func (b *Bridge) send(ctx context.Context, command string, args map[string]any) (err error) {
	defer func() { metrics.ObserveCommand(command, err) }()

	id := uuid.NewString()
	fields := map[string]any{"requestID": id, "command": command}
	for k, v := range args {
		fields[k] = v
	}
	payload, err := encode(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", command, err)
	}

	ch := make(chan ack, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.client.Publish(ctx, b.topics.Build(paths.Command, b.cfg.VehicleID), 1, false, payload); err != nil {
		return fmt.Errorf("publish %s: %w", command, err)
	}

	timeout := time.NewTimer(b.cfg.CommandTimeout)
	defer timeout.Stop()
	select {
	case a := <-ch:
		if !a.success {
			return fmt.Errorf("%w: %s: %s", ErrCommandRejected, command, a.message)
		}
		return nil
	case <-timeout.C:
		return fmt.Errorf("%w: %s after %s", ErrNoAck, command, b.cfg.CommandTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) Arm(ctx context.Context, arm bool) error {
	return b.send(ctx, "arm", map[string]any{"value": arm})
}

func (b *Bridge) SetMode(ctx context.Context, mode string) error {
	return b.send(ctx, "mode", map[string]any{"mode": mode})
}

func (b *Bridge) Takeoff(ctx context.Context, altitude float64) error {
	return b.send(ctx, "takeoff", map[string]any{"altitude": altitude})
}

func (b *Bridge) Land(ctx context.Context) error {
	return b.send(ctx, "land", nil)
}

// SetpointPosition is fire-and-forget: it is republished every poll tick.
func (b *Bridge) SetpointPosition(ctx context.Context, p core.LocalPoint) error {
	payload, err := encode(map[string]any{"requestID": uuid.NewString(), "command": "setpoint", "x": p.X, "y": p.Y, "z": p.Z})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.topics.Build(paths.Command, b.cfg.VehicleID), 0, false, payload)
}
