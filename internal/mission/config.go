package mission

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/budget"
	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/report"
	"github.com/autopeer-io/houston/internal/vehicle/bridge"
	"github.com/autopeer-io/houston/internal/vehicle/sim"
	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/mqtt"
	"github.com/autopeer-io/houston/pkg/mqtt/topic"
	"github.com/autopeer-io/houston/pkg/options"
)

type Config struct {
	EngineOptions  *options.EngineOptions
	VehicleOptions *options.VehicleOptions
	StoreOptions   *options.StoreOptions
	SQLiteOptions  *options.SQLiteOptions
	RedisOptions   *options.RedisOptions
	MqttOptions    *options.MqttOptions
	S3Options      *options.S3Options
	HttpOptions    *options.HttpOptions
	ReportOptions  *options.ReportOptions

	// Quiet suppresses the console report table.
	Quiet bool
	// Out receives the report table; stdout when nil.
	Out io.Writer
	// Clock drives every timer of the engine; the real clock when nil.
	Clock clock.WithTicker
}

// NewRunner connects to the vehicle and the sample store and prepares the
// report sinks. Close releases them.
func (cfg *Config) NewRunner(ctx context.Context) (*Runner, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	r := &Runner{
		cfg:     cfg,
		clock:   clk,
		log:     log.WithName("runner"),
		reports: newReportRing(cfg.ReportOptions.Keep),
		home: core.Position{
			Latitude:  cfg.VehicleOptions.HomeLatitude,
			Longitude: cfg.VehicleOptions.HomeLongitude,
		},
	}

	needMQTT := cfg.VehicleOptions.Driver == options.DriverMQTT || cfg.ReportOptions.PublishMQTT
	if needMQTT {
		client, err := InitializeMQTTClient(ctx, cfg.MqttOptions)
		if err != nil {
			return nil, err
		}
		r.mqtt = client
	}
	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	switch cfg.VehicleOptions.Driver {
	case options.DriverMQTT:
		b := bridge.New(r.mqtt, topics, bridge.Config{
			VehicleID:      cfg.VehicleOptions.ID,
			CommandTimeout: cfg.VehicleOptions.CommandTimeout,
			StaleAfter:     cfg.VehicleOptions.StaleAfter,
		}, clk)
		if err := b.Start(ctx); err != nil {
			r.Close(ctx)
			return nil, err
		}
		r.bridge = b
	default:
		simCfg := cfg.simConfig()
		r.simConfig = &simCfg
	}

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	r.store = store

	sinks, err := cfg.newSinks(ctx, r.mqtt, topics)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	r.sinks = sinks

	return r, nil
}

func (cfg *Config) simConfig() sim.Config {
	c := sim.DefaultConfig()
	c.Home = core.Position{
		Latitude:  cfg.VehicleOptions.HomeLatitude,
		Longitude: cfg.VehicleOptions.HomeLongitude,
	}
	c.ClimbRate = cfg.VehicleOptions.SimClimbRate
	c.Speed = cfg.VehicleOptions.SimSpeed
	c.BatteryPerMetre = cfg.VehicleOptions.SimBatteryPerMetre
	c.BatteryPerSecond = cfg.VehicleOptions.SimBatteryPerSecond
	c.Step = cfg.VehicleOptions.SimStep
	return c
}

// ServeVehicle runs a simulated vehicle behind the MQTT bridge protocol
// until ctx is done, so that an engine using the mqtt driver has a vehicle
// to fly.
func (cfg *Config) ServeVehicle(ctx context.Context) error {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	client, err := InitializeMQTTClient(ctx, cfg.MqttOptions)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	vehicle := sim.New(cfg.simConfig(), clk)
	agent := bridge.NewAgent(client, topic.NewBuilder(cfg.MqttOptions.TopicRoot), cfg.VehicleOptions.ID,
		vehicle, cfg.EngineOptions.PollInterval, clk)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return vehicle.Run(ctx) })
	g.Go(func() error { return agent.Run(ctx) })
	return g.Wait()
}

// InitializeMQTTClient starts a client and waits for the first connection.
func InitializeMQTTClient(ctx context.Context, opts *options.MqttOptions) (mqtt.Client, error) {
	client, err := mqtt.NewClient(opts.ToClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create mqtt client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start mqtt client: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.AwaitConnection(cctx); err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Broker, err)
	}
	log.Info("Connected to MQTT broker", "broker", opts.Broker)
	return client, nil
}

// OpenStore opens the configured historical sample store.
func (cfg *Config) OpenStore(ctx context.Context) (budget.Store, error) {
	switch cfg.StoreOptions.Backend {
	case options.StoreSQLite:
		return budget.OpenSQLiteStore(ctx, cfg.SQLiteOptions.Path)
	case options.StoreRedis:
		client, err := cfg.RedisOptions.NewClient()
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}
		return budget.NewRedisStore(client, cfg.RedisOptions.KeyPrefix), nil
	default:
		return budget.NewMemoryStore(), nil
	}
}

func (cfg *Config) budgetConfig() budget.Config {
	return budget.Config{
		BatteryMargin: cfg.StoreOptions.BatteryMargin,
		TimeMargin:    cfg.StoreOptions.TimeMargin,
		Window:        cfg.StoreOptions.Window,
		SeedBattery:   cfg.StoreOptions.SeedBattery,
		SeedTime:      cfg.StoreOptions.SeedTime,
	}
}

func (cfg *Config) newSinks(ctx context.Context, client mqtt.Client, topics *topic.Builder) ([]report.Sink, error) {
	var sinks []report.Sink
	if cfg.ReportOptions.File != "" {
		sinks = append(sinks, report.NewFileSink(cfg.ReportOptions.File))
	}
	if cfg.S3Options.Enabled {
		s3, err := report.NewS3Sink(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		if err := s3.CheckBucket(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	if cfg.ReportOptions.PublishMQTT && client != nil {
		sinks = append(sinks, report.NewMQTTSink(client, topics, cfg.VehicleOptions.ID))
	}
	if cfg.ReportOptions.Table && !cfg.Quiet {
		out := cfg.Out
		if out == nil {
			out = os.Stdout
		}
		sinks = append(sinks, report.NewTableSink(out))
	}
	return sinks, nil
}
