package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/houston/cmd/houston/app/options"
	"github.com/autopeer-io/houston/internal/mission"
	"github.com/autopeer-io/houston/internal/mission/description"
	"github.com/autopeer-io/houston/pkg/app"
	"github.com/autopeer-io/houston/pkg/log"
)

const (
	commandName = "houston"
	commandDesc = `Houston flies scripted missions on a drone and verifies them as they run.
Every action is checked against its contract (preconditions before dispatch,
invariants while in flight, postconditions after), while a monitor watches
the hard limits of the mission and scores its intents. A report is written
once the mission ends.`
)

func NewApp() *app.App {
	opts := options.NewHoustonOptions()
	application := app.NewApp(
		commandName,
		"Run and verify drone missions",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithCommands(
			app.NewCommand("json-mission FILE", "Run the mission described in a JSON or YAML file",
				app.WithCommandArgs(cobra.ExactArgs(1)),
				app.WithCommandExample("  houston json-mission missions/ptp.json -q"),
				app.WithCommandRunFunc(runFile(opts)),
			),
			app.NewCommand("random-mission TYPE QUANTITY", "Generate and run random missions of type PTP, MPTP, EXTR or RDM",
				app.WithCommandArgs(cobra.ExactArgs(2)),
				app.WithCommandExample("  houston random-mission RDM 10 --store.backend=sqlite"),
				app.WithCommandRunFunc(runRandom(opts)),
			),
			app.NewCommand("watch-missions DIR", "Run every mission file written to a directory",
				app.WithCommandArgs(cobra.ExactArgs(1)),
				app.WithCommandRunFunc(runWatch(opts)),
			),
			app.NewCommand("serve-sim", "Serve a simulated vehicle over the MQTT bridge",
				app.WithCommandDescription("serve-sim publishes the telemetry of an in-process simulator and executes\n"+
					"the commands it receives, for engines started with --vehicle.driver=mqtt."),
				app.WithCommandArgs(cobra.NoArgs),
				app.WithCommandRunFunc(runSim(opts)),
			),
		),
	)
	return application
}

// withRunner connects the engine, serves the status endpoints and calls fn.
// The server stops once fn returns.
func withRunner(opts *options.HoustonOptions, fn func(ctx context.Context, r *mission.Runner) error) error {
	ctx := genericapiserver.SetupSignalContext()

	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	runner, err := cfg.NewRunner(ctx)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}
	defer runner.Close(ctx)

	serveCtx, stop := context.WithCancel(ctx)
	g := errgroup.Group{}
	g.Go(func() error {
		return runner.Serve(serveCtx)
	})
	g.Go(func() error {
		defer stop()
		return fn(ctx, runner)
	})
	return g.Wait()
}

func runFile(opts *options.HoustonOptions) app.CommandRunFunc {
	return func(args []string) error {
		doc, err := description.LoadFile(args[0])
		if err != nil {
			return err
		}
		return withRunner(opts, func(ctx context.Context, r *mission.Runner) error {
			_, err := r.Run(ctx, doc)
			return err
		})
	}
}

func runRandom(opts *options.HoustonOptions) app.CommandRunFunc {
	return func(args []string) error {
		kind := args[0]
		quantity, err := strconv.Atoi(args[1])
		if err != nil || quantity < 1 {
			return fmt.Errorf("quantity must be a positive integer, got %q", args[1])
		}

		seed := uint64(time.Now().UnixNano())
		gen := description.NewGenerator(description.DefaultGeneratorConfig(), seed)
		log.Info("Generating random missions", "type", kind, "quantity", quantity, "seed", seed)

		return withRunner(opts, func(ctx context.Context, r *mission.Runner) error {
			for i := range quantity {
				if ctx.Err() != nil {
					return nil
				}
				doc, err := gen.Generate(kind)
				if err != nil {
					return err
				}
				if data, err := doc.JSON(); err == nil {
					log.Debug("Generated mission", "index", i+1, "description", string(data))
				}
				if _, err := r.Run(ctx, doc); err != nil {
					return fmt.Errorf("mission %d: %w", i+1, err)
				}
			}
			return nil
		})
	}
}

func runWatch(opts *options.HoustonOptions) app.CommandRunFunc {
	return func(args []string) error {
		return withRunner(opts, func(ctx context.Context, r *mission.Runner) error {
			w := mission.NewWatcher(args[0], r, mission.DefaultDebounce, nil)
			if opts.ReportOptions.File != "" {
				w.Ignore(opts.ReportOptions.File)
			}
			return w.Run(ctx)
		})
	}
}

func runSim(opts *options.HoustonOptions) app.CommandRunFunc {
	return func(args []string) error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg.ServeVehicle(ctx)
	}
}
