package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// PubSub publishes alerts as JSON messages to a topic.
type PubSub struct {
	topic *pubsub.Topic
}

// NewPubSub wraps an existing topic handle.
func NewPubSub(topic *pubsub.Topic) *PubSub {
	return &PubSub{topic: topic}
}

type alertMessage struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Message    string `json:"message"`
	ObservedAt string `json:"observed_at"`
}

// Notify publishes the alert and waits for the server ack.
func (p *PubSub) Notify(ctx context.Context, alert stock.Alert) error {
	if p.topic == nil {
		return deliveryError("pubsub", fmt.Errorf("topic is not configured"))
	}
	data, err := json.Marshal(alertMessage{
		Identity:   alert.Identity,
		Name:       alert.Name,
		URL:        alert.URL,
		Message:    alert.Message,
		ObservedAt: alert.ObservedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return deliveryError("pubsub", fmt.Errorf("marshal alert: %w", err))
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"identity": alert.Identity, "event": "restock"},
	})
	if _, err := result.Get(ctx); err != nil {
		return deliveryError("pubsub", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSub) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	return nil
}
