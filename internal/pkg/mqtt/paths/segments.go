package paths

// Topic segments of the vehicle bridge protocol.
// The bridge runs next to the flight controller (for example a MAVLink
// router) and republishes its state on these topics.

// Downstream: Houston -> Vehicle
const (
	// Command carries one flight command (arm, set-mode, takeoff, land, setpoint).
	// Payload: {"requestID": "...", "command": "takeoff", "altitude": 10}
	// Pattern: {root}/command/{vehicleID}
	Command = "command"
)

// Upstream: Vehicle -> Houston
const (
	// CommandAck acknowledges a command by request id.
	// Payload: {"requestID": "...", "success": true, "message": "..."}
	// Pattern: {root}/command/ack/{vehicleID}
	CommandAck = "command/ack"

	// State carries the flight controller state and its clock in unix seconds.
	// Payload: {"armed": true, "mode": "GUIDED", "time": 1700000000.25}
	State = "telemetry/state"

	// GlobalPosition carries the fused global position. Altitude is relative to home.
	// Payload: {"latitude": -35.36, "longitude": 149.16, "altitude": 10.02}
	GlobalPosition = "telemetry/global"

	// Battery carries the remaining battery percentage.
	// Payload: {"remaining": 87.5}
	Battery = "telemetry/battery"

	// Report carries finished mission reports.
	// Pattern: {root}/report/{vehicleID}
	Report = "report"
)
