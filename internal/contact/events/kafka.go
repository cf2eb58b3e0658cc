package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"contactlink/pkg/platform/circuit"
	"contactlink/pkg/platform/sentinel"
)

const defaultProduceTimeout = 2 * time.Second

// RecordProducer is the subset of *kgo.Client the publisher needs.
type RecordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher produces events keyed by primary contact id, so every change
// to one cluster lands on one partition in order. When the broker keeps
// failing the breaker opens and events go to the fallback instead.
type KafkaPublisher struct {
	producer       RecordProducer
	topic          string
	fallback       Publisher
	breaker        *circuit.Breaker
	logger         *slog.Logger
	produceTimeout time.Duration
}

type KafkaOption func(*KafkaPublisher)

func WithFallback(p Publisher) KafkaOption {
	return func(k *KafkaPublisher) {
		k.fallback = p
	}
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *KafkaPublisher) {
		k.breaker = b
	}
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaPublisher) {
		k.logger = logger
	}
}

func WithProduceTimeout(d time.Duration) KafkaOption {
	return func(k *KafkaPublisher) {
		if d > 0 {
			k.produceTimeout = d
		}
	}
}

func NewKafkaPublisher(producer RecordProducer, topic string, opts ...KafkaOption) *KafkaPublisher {
	k := &KafkaPublisher{
		producer:       producer,
		topic:          topic,
		breaker:        circuit.New("kafka-events"),
		logger:         slog.Default(),
		produceTimeout: defaultProduceTimeout,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.fallback == nil {
		k.fallback = NewLogPublisher(k.logger)
	}
	return k
}

func (k *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(evs))
	for _, e := range evs {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(strconv.FormatInt(e.PrimaryContactID, 10)),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "type", Value: []byte(e.Type)},
				{Key: "request_id", Value: []byte(e.RequestID)},
			},
		})
	}

	// Produce on a detached context so a finished request does not abort
	// delivery of events for a resolution that already committed.
	produceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.produceTimeout)
	defer cancel()

	if err := k.producer.ProduceSync(produceCtx, records...).FirstErr(); err != nil {
		useFallback, change := k.breaker.RecordFailure()
		if change.Opened {
			k.logger.WarnContext(ctx, "event broker circuit opened; publishing to fallback",
				"breaker", k.breaker.Name(),
				"error", err,
			)
		}
		if useFallback {
			return k.fallback.Publish(ctx, evs...)
		}
		return fmt.Errorf("produce %d events: %w: %w", len(evs), sentinel.ErrUnavailable, err)
	}

	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.logger.InfoContext(ctx, "event broker circuit closed", "breaker", k.breaker.Name())
	}
	return nil
}
