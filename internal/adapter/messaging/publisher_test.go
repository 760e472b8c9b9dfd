package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/rl1809/flash-deal/internal/core/domain"
)

type sentMessage struct {
	topic string
	key   string
	body  []byte
}

type mockSink struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockSink) send(_ context.Context, topic, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{topic: topic, key: key, body: body})
	return nil
}

func (m *mockSink) close() error { return nil }

func TestPublisher_Envelope(t *testing.T) {
	sink := &mockSink{}
	p := newPublisher(sink)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	err := p.PublishOrderCreated(context.Background(), domain.OrderCreated{
		OrderID:        "order-1",
		UserID:         "user-1",
		OrderNumber:    "ORD-order-1",
		IdempotencyKey: "order:order-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sink.sent))
	}
	msg := sink.sent[0]
	if msg.topic != domain.TopicOrderCreated || msg.key != "order-1" {
		t.Errorf("unexpected routing %s/%s", msg.topic, msg.key)
	}

	var env Envelope
	if err := json.Unmarshal(msg.body, &env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if env.ID == "" || env.Topic != domain.TopicOrderCreated || !env.OccurredAt.Equal(at) {
		t.Errorf("unexpected envelope %+v", env)
	}

	var evt domain.OrderCreated
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if evt.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", evt.UserID)
	}
}

func TestPublisher_Topics(t *testing.T) {
	sink := &mockSink{}
	p := newPublisher(sink)
	ctx := context.Background()

	p.PublishInventoryReserved(ctx, domain.InventoryReserved{OrderID: "o"})
	p.PublishOrderCancelled(ctx, domain.OrderCancelled{OrderID: "o"})
	p.PublishPaymentCompleted(ctx, domain.PaymentCompleted{OrderID: "o"})

	want := []string{domain.TopicInventoryReserved, domain.TopicOrderCancelled, domain.TopicPaymentCompleted}
	if len(sink.sent) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(sink.sent))
	}
	for i, topic := range want {
		if sink.sent[i].topic != topic {
			t.Errorf("message %d: expected %s, got %s", i, topic, sink.sent[i].topic)
		}
	}
}

func TestPublisher_SinkError(t *testing.T) {
	broker := errors.New("broker down")
	p := newPublisher(&mockSink{err: broker})

	err := p.PublishOrderCancelled(context.Background(), domain.OrderCancelled{OrderID: "o"})
	if !errors.Is(err, broker) {
		t.Errorf("expected broker error, got %v", err)
	}
}
