package monitor

import (
	"time"
)

// Thresholds are the four limits shared by failure flags and intents.
// Time is in seconds, Battery in percent used, heights in metres.
type Thresholds struct {
	Time      float64 `json:"Time"`
	Battery   float64 `json:"Battery"`
	MaxHeight float64 `json:"MaxHeight"`
	MinHeight float64 `json:"MinHeight"`
}

// Intent names.
const (
	IntentTime      = "Time"
	IntentBattery   = "Battery"
	IntentMaxHeight = "MaxHeight"
	IntentMinHeight = "MinHeight"
)

// Sample is one quality-attribute record.
type Sample struct {
	Time      float64 `json:"Time"`
	Battery   float64 `json:"Battery"`
	MinHeight float64 `json:"MinHeight"`
	MaxHeight float64 `json:"MaxHeight"`
}

// IntentOutcome is Success until the intent is first violated, at which
// point the time and observed value are recorded and never updated again.
type IntentOutcome struct {
	Success bool     `json:"Success"`
	Time    *float64 `json:"Time,omitempty"`
	Value   *float64 `json:"Value,omitempty"`
}

// State is the monitor's view of the mission so far.
type State struct {
	Elapsed        time.Duration `json:"elapsed"`
	InitialBattery float64       `json:"initialBattery"`
	Battery        float64       `json:"battery"`
	// MinHeight is -1 until takeoff completes.
	MinHeight float64 `json:"minHeight"`
	MaxHeight float64 `json:"maxHeight"`
	Altitude  float64 `json:"altitude"`
	Action    string  `json:"action,omitempty"`
	Samples   int     `json:"samples"`
}

// BatteryUsed is the battery consumed since the first reading.
func (s State) BatteryUsed() float64 {
	return s.InitialBattery - s.Battery
}

// Output is handed over when the monitor stops.
type Output struct {
	Start   time.Time
	End     time.Time
	Samples []Sample
	Intents map[string]IntentOutcome
	// FailureFlag is the reason the monitor ended the mission, empty if it did not.
	FailureFlag string
	Final       State
}

// Duration is the span between mission start and monitor exit.
func (o Output) Duration() time.Duration {
	return o.End.Sub(o.Start)
}
