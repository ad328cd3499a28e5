package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/mqtt"
	"github.com/autopeer-io/houston/pkg/mqtt/topic"
)

// Agent is the vehicle side of the bridge: it publishes the telemetry of a
// live system and executes the commands it receives. It serves the
// simulator over MQTT and documents the protocol a companion must speak.
type Agent struct {
	client    mqtt.Client
	topics    *topic.Builder
	vehicleID string
	system    core.LiveSystem
	period    time.Duration
	clock     clock.WithTicker
	log       log.Logger
}

func NewAgent(client mqtt.Client, builder *topic.Builder, vehicleID string, system core.LiveSystem,
	period time.Duration, clk clock.WithTicker,
) *Agent {
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Agent{
		client:    client,
		topics:    builder,
		vehicleID: vehicleID,
		system:    system,
		period:    period,
		clock:     clk,
		log:       log.WithName("agent").WithValues("vehicle", vehicleID),
	}
}

// Run serves commands and publishes telemetry until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting vehicle agent", "vehicleID", a.vehicleID)

	cmdTopic := a.topics.Build(paths.Command, a.vehicleID)
	if err := a.client.Subscribe(ctx, cmdTopic, 1, structHandler(a.log, a.onCommand)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", cmdTopic, err)
	}
	defer func() {
		_ = a.client.Unsubscribe(context.WithoutCancel(ctx), cmdTopic)
	}()

	ticker := a.clock.NewTicker(a.period)
	defer ticker.Stop()
	for {
		if err := a.Publish(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("Telemetry publish failed", "error", err)
		}
		select {
		case <-ctx.Done():
			log.Info("Agent shutting down...")
			return nil
		case <-ticker.C():
		}
	}
}

// Publish sends one round of telemetry.
func (a *Agent) Publish(ctx context.Context) error {
	read := func(name string) (core.Value, error) {
		rctx, cancel := context.WithTimeout(ctx, a.period)
		defer cancel()
		return a.system.Read(rctx, name)
	}

	var errs []error
	values := map[string]core.Value{}
	for _, name := range core.Variables {
		v, err := read(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[name] = v
	}

	g, gctx := errgroup.WithContext(ctx)
	publish := func(segment string, fields map[string]any) {
		g.Go(func() error {
			payload, err := encode(fields)
			if err != nil {
				return err
			}
			return a.client.Publish(gctx, a.topics.Build(segment, a.vehicleID), 0, false, payload)
		})
	}

	armed, okArmed := values[core.VarArmed]
	mode, okMode := values[core.VarMode]
	if okArmed && okMode {
		state := map[string]any{"armed": armed.Bool, "mode": mode.Str}
		if t, ok := values[core.VarTime]; ok {
			state["time"] = float64(t.Time.UnixNano()) / 1e9
		}
		publish(paths.State, state)
	}
	lat, ok1 := values[core.VarLatitude]
	lon, ok2 := values[core.VarLongitude]
	alt, ok3 := values[core.VarAltitude]
	if ok1 && ok2 && ok3 {
		publish(paths.GlobalPosition, map[string]any{"latitude": lat.Float, "longitude": lon.Float, "altitude": alt.Float})
	}
	if b, ok := values[core.VarBattery]; ok {
		publish(paths.Battery, map[string]any{"remaining": b.Float})
	}

	errs = append(errs, g.Wait())
	return errors.Join(errs...)
}

func (a *Agent) onCommand(ctx context.Context, f map[string]any) error {
	id, _ := f["requestID"].(string)
	command, _ := f["command"].(string)

	var err error
	switch command {
	case "arm":
		v, _ := f["value"].(bool)
		err = a.system.Arm(ctx, v)
	case "mode":
		v, _ := f["mode"].(string)
		err = a.system.SetMode(ctx, v)
	case "takeoff":
		v, _ := f["altitude"].(float64)
		err = a.system.Takeoff(ctx, v)
	case "land":
		err = a.system.Land(ctx)
	case "setpoint":
		x, _ := f["x"].(float64)
		y, _ := f["y"].(float64)
		z, _ := f["z"].(float64)
		// Setpoints are streamed and never acknowledged.
		return a.system.SetpointPosition(ctx, core.LocalPoint{X: x, Y: y, Z: z})
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	reply := map[string]any{"requestID": id, "success": err == nil}
	if err != nil {
		reply["message"] = err.Error()
		a.log.Info("Command refused", "command", command, "error", err)
	}
	payload, encErr := encode(reply)
	if encErr != nil {
		return encErr
	}
	return a.client.Publish(ctx, a.topics.Build(paths.CommandAck, a.vehicleID), 1, false, payload)
}
