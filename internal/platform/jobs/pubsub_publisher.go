package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/sahel-market/api/internal/services"
)

// PubSubRealtimePublisher mirrors state changes onto the realtime Pub/Sub
// topic consumed by the storefront and back-office socket bridges.
type PubSubRealtimePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	clock   func() time.Time
}

// NewPubSubRealtimePublisher constructs a Pub/Sub backed realtime publisher.
func NewPubSubRealtimePublisher(topic *pubsub.Topic) (*PubSubRealtimePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub realtime publisher: topic is required")
	}
	return &PubSubRealtimePublisher{
		topic:   topic,
		marshal: json.Marshal,
		clock:   time.Now,
	}, nil
}

// PublishRealtimeEvent enqueues one event on the configured topic. The channel
// and event name ride as attributes so bridges can filter without decoding.
func (p *PubSubRealtimePublisher) PublishRealtimeEvent(ctx context.Context, event services.RealtimeEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub realtime publisher: not initialised")
	}
	if strings.TrimSpace(event.Event) == "" {
		return errors.New("pubsub realtime publisher: event name is required")
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = p.clock().UTC()
	}

	data, err := p.marshal(map[string]any{
		"event":      event.Event,
		"channel":    event.Channel,
		"occurredAt": occurredAt.Format(time.RFC3339Nano),
		"payload":    event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", event.Event)
	setAttr(attrs, "channel", event.Channel)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
