package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autopeer-io/houston/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/houston/pkg/mqtt"
	"github.com/autopeer-io/houston/pkg/mqtt/topic"
)

// MQTTSink publishes reports on {root}/report/{vehicleID}.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

func NewMQTTSink(client mqtt.Client, builder *topic.Builder, vehicleID string) *MQTTSink {
	return &MQTTSink{client: client, topic: builder.Build(paths.Report, vehicleID)}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Topic() string { return s.topic }

func (s *MQTTSink) Write(ctx context.Context, r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return s.client.Publish(ctx, s.topic, 1, false, data)
}
