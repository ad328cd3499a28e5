// Package sim is an in-process multicopter that implements core.LiveSystem.
// Its physics are kinematic: it climbs, descends and flies straight towards
// setpoints at fixed rates, draining battery with distance and air time.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/geo"
	"github.com/autopeer-io/houston/pkg/log"
)

// Config sets the vehicle's performance.
type Config struct {
	Home core.Position
	// ClimbRate is the vertical speed in m/s.
	ClimbRate float64
	// Speed is the horizontal speed in m/s.
	Speed float64
	// BatteryPerMetre is the percent of battery used per metre flown.
	BatteryPerMetre float64
	// BatteryPerSecond is the percent of battery used per second armed.
	BatteryPerSecond float64
	InitialBattery   float64
	// Step is the physics integration period.
	Step time.Duration
}

func DefaultConfig() Config {
	return Config{
		Home:             geo.Home,
		ClimbRate:        2.5,
		Speed:            5,
		BatteryPerMetre:  0.05,
		BatteryPerSecond: 0.01,
		InitialBattery:   100,
		Step:             20 * time.Millisecond,
	}
}

// Command is a command received by the vehicle.
type Command struct {
	Name string
	At   time.Time
	Arg  string
}

// Vehicle is the simulated multicopter. All methods are safe for concurrent use.
type Vehicle struct {
	cfg   Config
	clock clock.WithTicker
	log   log.Logger

	mu       sync.Mutex
	pos      core.LocalPoint
	setpoint *core.LocalPoint
	climbTo  float64
	armed    bool
	mode     string
	battery  float64
	commands []Command
	stalled  map[string]bool
	last     time.Time
}

var _ core.LiveSystem = (*Vehicle)(nil)

// New creates a disarmed vehicle on the ground at home.
func New(cfg Config, clk clock.WithTicker) *Vehicle {
	def := DefaultConfig()
	if cfg.Home == (core.Position{}) {
		cfg.Home = def.Home
	}
	if cfg.ClimbRate <= 0 {
		cfg.ClimbRate = def.ClimbRate
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.InitialBattery <= 0 {
		cfg.InitialBattery = def.InitialBattery
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Vehicle{
		cfg:     cfg,
		clock:   clk,
		log:     log.WithName("sim"),
		mode:    "STABILIZE",
		battery: cfg.InitialBattery,
		stalled: map[string]bool{},
		last:    clk.Now(),
	}
}

// Run integrates the physics until ctx is done.
func (v *Vehicle) Run(ctx context.Context) error {
	ticker := v.clock.NewTicker(v.cfg.Step)
	defer ticker.Stop()

	v.mu.Lock()
	v.last = v.clock.Now()
	v.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			v.step()
		}
	}
}

func (v *Vehicle) step() {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()
	dt := now.Sub(v.last).Seconds()
	v.last = now
	if dt <= 0 || !v.armed {
		return
	}

	v.drain(v.cfg.BatteryPerSecond * dt)

	switch {
	case v.mode == core.ModeLand:
		v.moveVertical(0, dt)
		if v.pos.Z <= 0 {
			v.pos.Z = 0
			v.armed = false
			v.setpoint = nil
		}
	case v.setpoint != nil:
		v.moveTowards(*v.setpoint, dt)
	case v.climbTo > v.pos.Z:
		v.moveVertical(v.climbTo, dt)
	}
}

func (v *Vehicle) moveVertical(target, dt float64) {
	delta := target - v.pos.Z
	maxStep := v.cfg.ClimbRate * dt
	if math.Abs(delta) > maxStep {
		delta = math.Copysign(maxStep, delta)
	}
	v.pos.Z += delta
	v.drain(v.cfg.BatteryPerMetre * math.Abs(delta))
}

func (v *Vehicle) moveTowards(target core.LocalPoint, dt float64) {
	dx, dy := target.X-v.pos.X, target.Y-v.pos.Y
	horizontal := math.Hypot(dx, dy)
	maxStep := v.cfg.Speed * dt
	if horizontal > maxStep {
		dx, dy = dx*maxStep/horizontal, dy*maxStep/horizontal
		horizontal = maxStep
	}
	v.pos.X += dx
	v.pos.Y += dy
	v.drain(v.cfg.BatteryPerMetre * horizontal)
	v.moveVertical(target.Z, dt)
}

func (v *Vehicle) drain(amount float64) {
	v.battery = math.Max(0, v.battery-amount)
}

// Read implements core.Telemetry.
func (v *Vehicle) Read(ctx context.Context, name string) (core.Value, error) {
	v.mu.Lock()
	if v.stalled[name] {
		v.mu.Unlock()
		<-ctx.Done()
		return core.Value{}, ctx.Err()
	}
	defer v.mu.Unlock()

	switch name {
	case core.VarTime:
		return core.Timestamp(v.clock.Now()), nil
	case core.VarAltitude:
		return core.Float(v.pos.Z), nil
	case core.VarLatitude:
		return core.Float(geo.Offset(v.cfg.Home, v.pos).Latitude), nil
	case core.VarLongitude:
		return core.Float(geo.Offset(v.cfg.Home, v.pos).Longitude), nil
	case core.VarBattery:
		return core.Float(v.battery), nil
	case core.VarArmed:
		return core.Bool(v.armed), nil
	case core.VarMode:
		return core.String(v.mode), nil
	default:
		return core.Value{}, fmt.Errorf("%w: %s", core.ErrUnknownVariable, name)
	}
}

func (v *Vehicle) record(name, arg string) {
	v.commands = append(v.commands, Command{Name: name, At: v.clock.Now(), Arg: arg})
	v.log.Debug("Command received", "command", name, "arg", arg)
}

// Arm implements core.Commander.
func (v *Vehicle) Arm(_ context.Context, arm bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("arm", fmt.Sprint(arm))
	if !arm && v.pos.Z > 0 {
		return fmt.Errorf("refusing to disarm in flight")
	}
	v.armed = arm
	return nil
}

// SetMode implements core.Commander.
func (v *Vehicle) SetMode(_ context.Context, mode string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("mode", mode)
	v.mode = mode
	return nil
}

// Takeoff implements core.Commander.
func (v *Vehicle) Takeoff(_ context.Context, altitude float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("takeoff", fmt.Sprint(altitude))
	if !v.armed || v.mode != core.ModeGuided {
		return fmt.Errorf("takeoff rejected: armed=%t mode=%s", v.armed, v.mode)
	}
	v.climbTo = altitude
	v.setpoint = nil
	return nil
}

// Land implements core.Commander.
func (v *Vehicle) Land(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("land", "")
	v.mode = core.ModeLand
	return nil
}

// SetpointPosition implements core.Commander.
func (v *Vehicle) SetpointPosition(_ context.Context, p core.LocalPoint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("setpoint", fmt.Sprintf("%.2f,%.2f,%.2f", p.X, p.Y, p.Z))
	if v.mode != core.ModeGuided {
		return fmt.Errorf("setpoint rejected in mode %s", v.mode)
	}
	v.setpoint = &p
	return nil
}

// Stall makes reads of name hang until the caller gives up, or resumes them.
func (v *Vehicle) Stall(name string, stalled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stalled[name] = stalled
}

// Commands returns the commands received so far, in order.
func (v *Vehicle) Commands() []Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Command(nil), v.commands...)
}

// Local returns the position in the local frame.
func (v *Vehicle) Local() core.LocalPoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

// Battery returns the remaining battery percentage.
func (v *Vehicle) Battery() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.battery
}

// Armed reports whether the motors are armed.
func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}
