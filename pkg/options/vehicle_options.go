package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VehicleOptions)(nil)

// Vehicle drivers.
const (
	DriverSim  = "sim"
	DriverMQTT = "mqtt"
)

// VehicleOptions selects and configures the live system.
type VehicleOptions struct {
	Driver string `json:"driver" mapstructure:"driver"`
	ID     string `json:"id" mapstructure:"id"`

	// Home is where the local frame is anchored.
	HomeLatitude  float64 `json:"home-latitude" mapstructure:"home-latitude"`
	HomeLongitude float64 `json:"home-longitude" mapstructure:"home-longitude"`

	// CommandTimeout and StaleAfter apply to the mqtt driver.
	CommandTimeout time.Duration `json:"command-timeout" mapstructure:"command-timeout"`
	StaleAfter     time.Duration `json:"stale-after" mapstructure:"stale-after"`

	// The remaining options shape the sim driver.
	SimClimbRate        float64       `json:"sim-climb-rate" mapstructure:"sim-climb-rate"`
	SimSpeed            float64       `json:"sim-speed" mapstructure:"sim-speed"`
	SimBatteryPerMetre  float64       `json:"sim-battery-per-metre" mapstructure:"sim-battery-per-metre"`
	SimBatteryPerSecond float64       `json:"sim-battery-per-second" mapstructure:"sim-battery-per-second"`
	SimStep             time.Duration `json:"sim-step" mapstructure:"sim-step"`
}

func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{
		Driver:              DriverSim,
		ID:                  "uav-1",
		HomeLatitude:        -35.3632607,
		HomeLongitude:       149.1652351,
		CommandTimeout:      5 * time.Second,
		StaleAfter:          2 * time.Second,
		SimClimbRate:        2.5,
		SimSpeed:            5,
		SimBatteryPerMetre:  0.05,
		SimBatteryPerSecond: 0.01,
		SimStep:             20 * time.Millisecond,
	}
}

func (o *VehicleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Driver {
	case DriverSim, DriverMQTT:
	default:
		errors = append(errors, fmt.Errorf("--vehicle.driver must be %q or %q, got %q", DriverSim, DriverMQTT, o.Driver))
	}
	if o.ID == "" {
		errors = append(errors, fmt.Errorf("--vehicle.id must not be empty"))
	}
	if o.HomeLatitude < -90 || o.HomeLatitude > 90 || o.HomeLongitude < -180 || o.HomeLongitude > 180 {
		errors = append(errors, fmt.Errorf("home position %g,%g is out of range", o.HomeLatitude, o.HomeLongitude))
	}
	if o.SimSpeed <= 0 || o.SimClimbRate <= 0 {
		errors = append(errors, fmt.Errorf("--vehicle.sim-speed and --vehicle.sim-climb-rate must be positive"))
	}

	return errors
}

func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "vehicle.driver", o.Driver, "Live system driver: 'sim' (in-process simulator) or 'mqtt' (vehicle bridge).")
	fs.StringVar(&o.ID, "vehicle.id", o.ID, "Vehicle identifier used in bridge topics.")
	fs.Float64Var(&o.HomeLatitude, "vehicle.home-latitude", o.HomeLatitude, "Latitude of the local frame origin.")
	fs.Float64Var(&o.HomeLongitude, "vehicle.home-longitude", o.HomeLongitude, "Longitude of the local frame origin.")
	fs.DurationVar(&o.CommandTimeout, "vehicle.command-timeout", o.CommandTimeout, "How long to wait for a command acknowledgement from the bridge.")
	fs.DurationVar(&o.StaleAfter, "vehicle.stale-after", o.StaleAfter, "Age beyond which bridge telemetry is not used. Zero disables the check.")
	fs.Float64Var(&o.SimClimbRate, "vehicle.sim-climb-rate", o.SimClimbRate, "Simulator vertical speed in m/s.")
	fs.Float64Var(&o.SimSpeed, "vehicle.sim-speed", o.SimSpeed, "Simulator horizontal speed in m/s.")
	fs.Float64Var(&o.SimBatteryPerMetre, "vehicle.sim-battery-per-metre", o.SimBatteryPerMetre, "Simulator battery drain in percent per metre.")
	fs.Float64Var(&o.SimBatteryPerSecond, "vehicle.sim-battery-per-second", o.SimBatteryPerSecond, "Simulator battery drain in percent per armed second.")
	fs.DurationVar(&o.SimStep, "vehicle.sim-step", o.SimStep, "Simulator physics step.")
}
