package bridge

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/mqtt"
)

type HandlerFunc func(ctx context.Context, payload []byte) error

type TypedHandlerFunc[T any, P interface {
	*T
	proto.Message
}] func(ctx context.Context, msg P) error

// ProtoAdapter decodes JSON payloads into P before calling handler.
func ProtoAdapter[T any, P interface {
	*T
	proto.Message
}](handler TypedHandlerFunc[T, P]) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var msg P = new(T)

		unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := unmarshaler.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("proto unmarshal failed: %w", err)
		}

		return handler(ctx, msg)
	}
}

// structHandler adapts a handler of free-form JSON objects to an MQTT handler.
func structHandler(logger log.Logger, fn func(ctx context.Context, fields map[string]any) error) mqtt.MessageHandler {
	h := ProtoAdapter(func(ctx context.Context, msg *structpb.Struct) error {
		return fn(ctx, msg.AsMap())
	})
	return func(ctx context.Context, topic string, payload []byte) {
		if err := h(ctx, payload); err != nil {
			logger.Warn("Dropping message", "topic", topic, "error", err)
		}
	}
}

// encode renders fields as a JSON object.
func encode(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}
