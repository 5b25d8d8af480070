package outbox

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// KafkaPublisher publishes messages with a kafka-go Writer. The key keeps
// events of one order on one partition; the event_type header carries the
// message topic.
type KafkaPublisher struct {
	w     *kafka.Writer
	topic string
}

// NewKafkaPublisher creates a publisher writing to brokers. When topic is
// non-empty every message goes to it, otherwise each message's own topic is
// used.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		topic: topic,
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes msgs synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := p.w.WriteMessages(ctx, toKafka(p.topic, msgs)...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.w.Close(); err != nil {
		return errors.Wrap(err, "close kafka writer")
	}
	return nil
}

func toKafka(topic string, msgs []Message) []kafka.Message {
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		t := topic
		if t == "" {
			t = m.Topic
		}
		out[i] = kafka.Message{
			Topic: t,
			Key:   []byte(m.Key),
			Value: m.Payload,
			Time:  m.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(m.Topic)},
			},
		}
	}
	return out
}
