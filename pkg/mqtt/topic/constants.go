package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard matches exactly one topic level,
	// e.g. "houston/v1/telemetry/+/uav-1" matches "houston/v1/telemetry/battery/uav-1".
	Wildcard = "+"

	// MultiWildcard matches the current level and all subsequent levels.
	// It must be the last character in the topic filter.
	MultiWildcard = "#"
)
