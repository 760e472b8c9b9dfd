package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

// Envelope wraps every event on the wire. ID lets consumers drop
// redeliveries.
type Envelope struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// sink delivers one encoded envelope to a broker.
type sink interface {
	send(ctx context.Context, topic, key string, body []byte) error
	close() error
}

// Publisher implements port.EventPublisher over a broker sink. Events are
// keyed by order id so one order's events stay in sequence.
type Publisher struct {
	sink sink
	now  func() time.Time
}

var _ port.EventPublisher = (*Publisher)(nil)

func newPublisher(s sink) *Publisher {
	return &Publisher{sink: s, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Publisher) PublishInventoryReserved(ctx context.Context, evt domain.InventoryReserved) error {
	return p.publish(ctx, domain.TopicInventoryReserved, evt.OrderID, evt)
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, evt domain.OrderCreated) error {
	return p.publish(ctx, domain.TopicOrderCreated, evt.OrderID, evt)
}

func (p *Publisher) PublishOrderCancelled(ctx context.Context, evt domain.OrderCancelled) error {
	return p.publish(ctx, domain.TopicOrderCancelled, evt.OrderID, evt)
}

func (p *Publisher) PublishPaymentCompleted(ctx context.Context, evt domain.PaymentCompleted) error {
	return p.publish(ctx, domain.TopicPaymentCompleted, evt.OrderID, evt)
}

func (p *Publisher) Close() error {
	return p.sink.close()
}

func (p *Publisher) publish(ctx context.Context, topic, key string, evt any) error {
	body, err := encode(topic, evt, p.now())
	if err != nil {
		return err
	}
	if err := p.sink.send(ctx, topic, key, body); err != nil {
		return errors.WithMessagef(err, "failed to publish %s", topic)
	}
	return nil
}

func encode(topic string, evt any, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to serialize event")
	}
	body, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: at,
		Payload:    payload,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to serialize envelope")
	}
	return body, nil
}
