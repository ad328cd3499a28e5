package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*EngineOptions)(nil)

// EngineOptions tunes how actions are awaited and how the monitor polls.
type EngineOptions struct {
	// PollInterval is the completion check period.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
	// Stabilize is how long a target must stay within tolerance.
	Stabilize time.Duration `json:"stabilize" mapstructure:"stabilize"`
	// Tolerance is ε, in metres.
	Tolerance float64 `json:"tolerance" mapstructure:"tolerance"`

	MonitorTick    time.Duration `json:"monitor-tick" mapstructure:"monitor-tick"`
	InformInterval time.Duration `json:"inform-interval" mapstructure:"inform-interval"`

	TelemetryTimeout time.Duration `json:"telemetry-timeout" mapstructure:"telemetry-timeout"`
	ConfirmTimeout   time.Duration `json:"confirm-timeout" mapstructure:"confirm-timeout"`
}

func NewEngineOptions() *EngineOptions {
	return &EngineOptions{
		PollInterval:     100 * time.Millisecond,
		Stabilize:        5 * time.Second,
		Tolerance:        0.3,
		MonitorTick:      100 * time.Millisecond,
		InformInterval:   10 * time.Second,
		TelemetryTimeout: 2 * time.Second,
		ConfirmTimeout:   5 * time.Second,
	}
}

func (o *EngineOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.PollInterval <= 0 {
		errors = append(errors, fmt.Errorf("--engine.poll-interval must be positive"))
	}
	if o.MonitorTick <= 0 {
		errors = append(errors, fmt.Errorf("--engine.monitor-tick must be positive"))
	}
	if o.Stabilize < 0 {
		errors = append(errors, fmt.Errorf("--engine.stabilize must not be negative"))
	}
	if o.Tolerance <= 0 {
		errors = append(errors, fmt.Errorf("--engine.tolerance must be positive"))
	}
	if o.TelemetryTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--engine.telemetry-timeout must be positive"))
	}
	if o.ConfirmTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--engine.confirm-timeout must be positive"))
	}

	return errors
}

func (o *EngineOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.PollInterval, "engine.poll-interval", o.PollInterval, "Period of action completion checks.")
	fs.DurationVar(&o.Stabilize, "engine.stabilize", o.Stabilize, "How long a target must be held within tolerance before an action completes.")
	fs.Float64Var(&o.Tolerance, "engine.tolerance", o.Tolerance, "Distance in metres under which a target counts as reached.")
	fs.DurationVar(&o.MonitorTick, "engine.monitor-tick", o.MonitorTick, "Period of the monitor checks.")
	fs.DurationVar(&o.InformInterval, "engine.inform-interval", o.InformInterval, "Period of the monitor's status log line.")
	fs.DurationVar(&o.TelemetryTimeout, "engine.telemetry-timeout", o.TelemetryTimeout, "Bound on every telemetry read.")
	fs.DurationVar(&o.ConfirmTimeout, "engine.confirm-timeout", o.ConfirmTimeout, "How long arm and mode changes may take to show in telemetry.")
}
