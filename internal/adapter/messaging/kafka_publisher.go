package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes each event to the topic named after it. One
// writer is shared by all topics; the key picks the partition.
func NewKafkaPublisher(brokers []string) *Publisher {
	return newPublisher(&kafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	})
}

func (k *kafkaSink) send(ctx context.Context, topic, key string, body []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
	})
}

func (k *kafkaSink) close() error {
	return k.writer.Close()
}
