package core

import (
	"context"
	"fmt"
	"time"
)

// Variable names exposed by every live system.
const (
	VarTime      = "time"
	VarAltitude  = "altitude"
	VarLatitude  = "latitude"
	VarLongitude = "longitude"
	VarBattery   = "battery"
	VarArmed     = "armed"
	VarMode      = "mode"
)

// Variables lists every readable variable in a stable order.
var Variables = []string{VarTime, VarAltitude, VarLatitude, VarLongitude, VarBattery, VarArmed, VarMode}

// Flight modes understood by the command port.
const (
	ModeGuided = "GUIDED"
	ModeLand   = "LAND"
)

// Value is a single telemetry reading. Exactly one field is meaningful,
// depending on the variable it was read from.
type Value struct {
	Float float64
	Bool  bool
	Str   string
	Time  time.Time
}

func Float(v float64) Value { return Value{Float: v} }

func Bool(v bool) Value { return Value{Bool: v} }

func String(v string) Value { return Value{Str: v} }

func Timestamp(t time.Time) Value { return Value{Time: t} }

func (v Value) String() string {
	switch {
	case !v.Time.IsZero():
		return v.Time.Format(time.RFC3339Nano)
	case v.Str != "":
		return v.Str
	case v.Bool:
		return "true"
	default:
		return fmt.Sprintf("%g", v.Float)
	}
}

// Position is a point in the global frame; Altitude is relative to home.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// LocalPoint is a point in metres east (X), north (Y) and up (Z) of home.
type LocalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Telemetry reads live variables. Each call fetches a fresh value and must
// honour ctx's deadline.
type Telemetry interface {
	Read(ctx context.Context, name string) (Value, error)
}

// Commander issues fire-and-acknowledge commands. An acknowledgement does
// not mean the command has taken effect.
type Commander interface {
	Arm(ctx context.Context, arm bool) error
	SetMode(ctx context.Context, mode string) error
	Takeoff(ctx context.Context, altitude float64) error
	Land(ctx context.Context) error
	SetpointPosition(ctx context.Context, p LocalPoint) error
}

// LiveSystem is the vehicle as seen by the engine.
type LiveSystem interface {
	Telemetry
	Commander
}
