package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

type amqpSink struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher declares a durable topic exchange and routes each event
// by its topic name.
func NewAMQPPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to declare exchange %s", exchange)
	}
	return newPublisher(&amqpSink{conn: conn, ch: ch, exchange: exchange}), nil
}

func (a *amqpSink) send(_ context.Context, topic, key string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.ch.Publish(a.exchange, topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: key,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
}

func (a *amqpSink) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ch.Close(); err != nil {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}
