package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/aistore/storefront/internal/services"
)

// EventCheckoutSessionCreated is the eventType attribute on checkout messages.
const EventCheckoutSessionCreated = "checkout.session.created"

// PubSubCheckoutPublisher publishes checkout lifecycle events to a Pub/Sub topic.
type PubSubCheckoutPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCheckoutPublisher constructs a publisher bound to topic.
func NewPubSubCheckoutPublisher(topic *pubsub.Topic) (*PubSubCheckoutPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub checkout publisher: topic is required")
	}
	return &PubSubCheckoutPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishCheckoutSessionCreated enqueues the event and waits for the server ack.
func (p *PubSubCheckoutPublisher) PublishCheckoutSessionCreated(ctx context.Context, event services.CheckoutSessionCreatedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub checkout publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal checkout event: %w", err)
	}

	attrs := map[string]string{"eventType": EventCheckoutSessionCreated}
	setAttr(attrs, "sessionId", event.SessionID)
	setAttr(attrs, "authUserId", event.AuthUserID)
	setAttr(attrs, "cmsCustomerId", event.CustomerID)
	setAttr(attrs, "idempotencyKey", event.IdempotencyKey)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey(p.topic, event.SessionID),
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish checkout event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubCheckoutPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func orderingKey(topic *pubsub.Topic, sessionID string) string {
	if !topic.EnableMessageOrdering {
		return ""
	}
	return strings.TrimSpace(sessionID)
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
