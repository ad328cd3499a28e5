package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("houston/v1/")
	assert.Equal(t, "houston/v1", b.Root())
	assert.Equal(t, "houston/v1/command/uav-1", b.Build("command", "uav-1"))
	assert.Equal(t, "houston/v1/telemetry/state/+", b.Wildcard("telemetry/state"))
}
