// Package events publishes content lifecycle notifications to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"finitefield.org/manual/internal/services"
)

// PubSubSnapshotPublisher publishes snapshot saved events to a Pub/Sub topic.
type PubSubSnapshotPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.SnapshotEventPublisher = (*PubSubSnapshotPublisher)(nil)

// NewPubSubSnapshotPublisher constructs a publisher for topic.
func NewPubSubSnapshotPublisher(topic *pubsub.Topic) (*PubSubSnapshotPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub snapshot publisher: topic is required")
	}
	return &PubSubSnapshotPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishSnapshotSaved sends event and waits for the server-assigned message id.
func (p *PubSubSnapshotPublisher) PublishSnapshotSaved(ctx context.Context, event services.SnapshotSavedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub snapshot publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":   "snapshot.saved",
			"reason":  event.Reason,
			"savedAt": event.SavedAt.UTC().Format(time.RFC3339Nano),
			"pages":   strconv.Itoa(event.Pages),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish snapshot event: %w", err)
	}
	return id, nil
}
