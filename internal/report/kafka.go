package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/galois26/event-feed/internal/config"
)

// messageWriter is the part of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaSink struct {
	topic string
	w     messageWriter
}

// NewKafka publishes each report as one message keyed by run id.
func NewKafka(cfg config.KafkaConfig) (Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("reports.kafka.brokers is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("reports.kafka.topic is empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return &kafkaSink{topic: cfg.Topic, w: w}, nil
}

func (k *kafkaSink) Name() string { return "kafka:" + k.topic }

func (k *kafkaSink) Push(ctx context.Context, r *Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	at := r.FinishedAt
	if at.IsZero() {
		at = r.StartedAt
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.RunID),
		Value: b,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(r.Op)},
		},
	})
}

func (k *kafkaSink) Close() error { return k.w.Close() }
