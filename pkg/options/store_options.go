package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

// Historical sample store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// StoreOptions configures the historical samples behind the budget estimates.
type StoreOptions struct {
	Backend string `json:"backend" mapstructure:"backend"`
	// Window is how many recent samples of each kind are used.
	Window int `json:"window" mapstructure:"window"`

	BatteryMargin float64 `json:"battery-margin" mapstructure:"battery-margin"`
	TimeMargin    float64 `json:"time-margin" mapstructure:"time-margin"`

	// SeedBattery and SeedTime stand in when the store has fewer than two samples.
	SeedBattery []float64 `json:"seed-battery" mapstructure:"seed-battery"`
	SeedTime    []float64 `json:"seed-time" mapstructure:"seed-time"`

	// Ingest adds the samples of each mission to the store.
	Ingest bool `json:"ingest" mapstructure:"ingest"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Backend:       StoreMemory,
		Window:        50,
		BatteryMargin: 0.025,
		TimeMargin:    2,
		SeedBattery:   []float64{0.04, 0.06, 0.05},
		SeedTime:      []float64{0.9, 1.1, 1.0},
		Ingest:        true,
	}
}

func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Backend {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		errors = append(errors, fmt.Errorf("--store.backend must be one of memory, sqlite, redis, got %q", o.Backend))
	}
	if o.Window < 2 {
		errors = append(errors, fmt.Errorf("--store.window must be at least 2"))
	}
	if o.BatteryMargin < 0 || o.TimeMargin < 0 {
		errors = append(errors, fmt.Errorf("--store margins must not be negative"))
	}

	return errors
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "store.backend", o.Backend, "Historical sample store: memory, sqlite or redis.")
	fs.IntVar(&o.Window, "store.window", o.Window, "Number of recent samples used for estimates.")
	fs.Float64Var(&o.BatteryMargin, "store.battery-margin", o.BatteryMargin, "Safety margin added to the battery-per-metre estimate.")
	fs.Float64Var(&o.TimeMargin, "store.time-margin", o.TimeMargin, "Safety margin added to the seconds-per-metre estimate.")
	fs.Float64SliceVar(&o.SeedBattery, "store.seed-battery", o.SeedBattery, "Battery-per-metre samples used while the store has fewer than two.")
	fs.Float64SliceVar(&o.SeedTime, "store.seed-time", o.SeedTime, "Seconds-per-metre samples used while the store has fewer than two.")
	fs.BoolVar(&o.Ingest, "store.ingest", o.Ingest, "Add the samples of every mission to the store.")
}
