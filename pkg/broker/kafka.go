package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/config"
)

// KafkaQueue implements Queue on a Kafka topic with manual offset
// commits. The durable-queue semantics map as follows: Ack and Discard
// commit the offset (Discard just skips handling), Requeue re-publishes
// the raw message to the same topic before committing, so the broker
// redelivers it with at-least-once semantics and no redelivery cap.
type KafkaQueue struct {
	name   string
	reader *kafka.Reader
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewKafkaQueue opens a reader and a requeue writer for one topic.
func NewKafkaQueue(cfg config.Broker, topic string, log *zap.SugaredLogger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("queue topic is required")
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	transport := &kafka.Transport{}

	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicit operator opt-in
		}
		dialer.TLS = tlsConfig
		transport.TLS = tlsConfig
	}

	if cfg.SASLUsername != "" {
		mechanism, err := saslMechanism(cfg)
		if err != nil {
			return nil, err
		}
		dialer.SASLMechanism = mechanism
		transport.SASL = mechanism
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    topic,
		Dialer:   dialer,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}

	log.Infow("Kafka queue opened",
		"topic", topic,
		"brokers", cfg.Brokers,
		"groupID", cfg.GroupID,
		"tls", cfg.TLSEnabled,
		"sasl", cfg.SASLUsername != "")

	return &KafkaQueue{
		name:   topic,
		reader: reader,
		writer: writer,
		log:    log.Named("kafka-queue").With("topic", topic),
	}, nil
}

func saslMechanism(cfg config.Broker) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "", "plain":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	case "scram-sha-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "scram-sha-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", cfg.SASLMechanism)
	}
}

func (q *KafkaQueue) Name() string { return q.name }

func (q *KafkaQueue) Fetch(ctx context.Context) (Delivery, error) {
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{Value: msg.Value, meta: msg}, nil
}

func (q *KafkaQueue) Ack(ctx context.Context, d Delivery) error {
	msg, ok := d.meta.(kafka.Message)
	if !ok {
		return fmt.Errorf("delivery does not carry a kafka message")
	}
	return q.reader.CommitMessages(ctx, msg)
}

func (q *KafkaQueue) Discard(ctx context.Context, d Delivery) error {
	// Committing without handling drops the message permanently.
	return q.Ack(ctx, d)
}

func (q *KafkaQueue) Requeue(ctx context.Context, d Delivery) error {
	msg, ok := d.meta.(kafka.Message)
	if !ok {
		return fmt.Errorf("delivery does not carry a kafka message")
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers}); err != nil {
		// Leave the offset uncommitted so the message is redelivered
		// after a rebalance instead of being lost.
		return fmt.Errorf("republishing message for redelivery: %w", err)
	}
	return q.reader.CommitMessages(ctx, msg)
}

func (q *KafkaQueue) Close() error {
	q.log.Info("Closing Kafka queue")
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return fmt.Errorf("closing writer: %w", werr)
	}
	if rerr != nil {
		return fmt.Errorf("closing reader: %w", rerr)
	}
	return nil
}
