package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"contactlink/pkg/platform/circuit"
	"contactlink/pkg/platform/sentinel"
)

type fakeProducer struct {
	mu      sync.Mutex
	err     error
	records []*kgo.Record
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func (p *fakeProducer) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func testEvent(contactID, primaryID int64) Event {
	return Event{
		ID:               "evt-1",
		Type:             TypeContactLinked,
		ContactID:        contactID,
		PrimaryContactID: primaryID,
		RequestID:        "req-1",
		OccurredAt:       time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestPublisher(producer RecordProducer, fallback Publisher, threshold int) *KafkaPublisher {
	return NewKafkaPublisher(producer, "contact.links",
		WithFallback(fallback),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(threshold), circuit.WithSuccessThreshold(1))),
		WithKafkaLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestKafkaPublisherProducesKeyedRecords(t *testing.T) {
	producer := &fakeProducer{}
	pub := newTestPublisher(producer, NewMemoryPublisher(), 2)

	require.NoError(t, pub.Publish(context.Background(), testEvent(7, 3)))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "contact.links", rec.Topic)
	assert.Equal(t, "3", string(rec.Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, testEvent(7, 3), decoded)
	assert.Contains(t, rec.Headers, kgo.RecordHeader{Key: "type", Value: []byte("contact.linked")})
}

func TestKafkaPublisherFallsBackWhenBreakerOpens(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker unreachable")}
	fallback := NewMemoryPublisher()
	pub := newTestPublisher(producer, fallback, 2)
	ctx := context.Background()

	err := pub.Publish(ctx, testEvent(1, 1))
	require.Error(t, err, "failures below the threshold surface")
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Empty(t, fallback.Events())

	require.NoError(t, pub.Publish(ctx, testEvent(2, 1)))
	assert.Len(t, fallback.Events(), 1)
	assert.True(t, pub.breaker.IsOpen())

	producer.setErr(nil)
	require.NoError(t, pub.Publish(ctx, testEvent(3, 1)))
	assert.False(t, pub.breaker.IsOpen())
	assert.Len(t, producer.records, 1)
}

func TestKafkaPublisherIgnoresEmptyBatch(t *testing.T) {
	producer := &fakeProducer{err: errors.New("unused")}
	pub := newTestPublisher(producer, NewMemoryPublisher(), 1)
	assert.NoError(t, pub.Publish(context.Background()))
}

func TestMemoryPublisherOfType(t *testing.T) {
	pub := NewMemoryPublisher()
	created := testEvent(1, 1)
	created.Type = TypeContactCreated
	require.NoError(t, pub.Publish(context.Background(), created, testEvent(2, 1)))

	assert.Len(t, pub.Events(), 2)
	assert.Equal(t, []Event{created}, pub.OfType(TypeContactCreated))
	assert.Empty(t, pub.OfType(TypeContactDemoted))
}
