package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/services"
)

// PubSubOrderEventPublisher publishes order domain events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)

type orderEventMessage struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"orderId"`
	UserID     string             `json:"userId"`
	Currency   string             `json:"currency"`
	GrandTotal string             `json:"grandTotal"`
	Correction *correctionMessage `json:"correction,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

type correctionMessage struct {
	Reason         string `json:"reason"`
	PromotionCode  string `json:"promotionCode,omitempty"`
	PreviousTotal  string `json:"previousTotal"`
	CorrectedTotal string `json:"correctedTotal"`
	Message        string `json:"message"`
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	// events for one order are delivered in publish order
	topic.EnableMessageOrdering = true
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent sends the event and waits for the server to acknowledge it.
// Amounts travel as two-decimal strings.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	payload := orderEventMessage{
		Type:       event.Type,
		OrderID:    event.OrderID,
		UserID:     event.UserID,
		Currency:   event.Currency,
		GrandTotal: domain.FormatCents(event.GrandTotal),
		OccurredAt: event.OccurredAt.UTC(),
	}
	if c := event.Correction; c != nil {
		payload.Correction = &correctionMessage{
			Reason:         c.Reason,
			PromotionCode:  c.PromotionCode,
			PreviousTotal:  domain.FormatCents(c.PreviousTotal),
			CorrectedTotal: domain.FormatCents(c.CorrectedTotal),
			Message:        c.Message,
		}
	}

	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: strings.TrimSpace(event.OrderID),
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
