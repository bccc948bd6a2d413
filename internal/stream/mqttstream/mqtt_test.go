package mqttstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// fakeBroker is an in-memory client; only the methods used here are implemented.
type fakeBroker struct {
	mqtt.Client
	mu         sync.Mutex
	publishErr error
	handlers   map[string]mqtt.MessageHandler
	published  []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) IsConnected() bool { return true }
func (b *fakeBroker) Disconnect(uint)   {}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	if b.publishErr != nil {
		b.mu.Unlock()
		return fakeToken{err: b.publishErr}
	}
	b.published = append(b.published, topic)
	var matched []mqtt.MessageHandler
	for filter, handler := range b.handlers {
		if strings.HasSuffix(filter, "/#") && strings.HasPrefix(topic, strings.TrimSuffix(filter, "#")) {
			matched = append(matched, handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range matched {
		handler(b, fakeMessage{topic: topic, payload: payload.([]byte)})
	}
	return fakeToken{}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = callback
	return fakeToken{}
}

func (b *fakeBroker) Unsubscribe(topics ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	return fakeToken{}
}

type sliceSink struct {
	mu      sync.Mutex
	records []dto.Record
	ctxErrs []error
}

func (s *sliceSink) Add(ctx context.Context, record dto.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
}

func (s *sliceSink) snapshot() []dto.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.Record(nil), s.records...)
}

// gatedSink blocks every Add until release is closed.
type gatedSink struct {
	sliceSink
	release chan struct{}
}

func (s *gatedSink) Add(ctx context.Context, record dto.Record) {
	<-s.release
	s.sliceSink.Add(ctx, record)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "traffic/TrafficDataStream/partition-1", Topic("traffic", "TrafficDataStream", "partition-1"))
}

func TestProducerToSubscriber(t *testing.T) {
	broker := newFakeBroker()
	sink := &sliceSink{}

	sub := NewSubscriber(broker, "traffic", "TrafficDataStream", 1, sink, logger.Discard())
	require.NoError(t, sub.Start(context.Background()))

	producer := NewProducer(broker, "traffic", 1, logger.Discard())
	record := dto.Record{StreamName: "TrafficDataStream", Data: "aGVsbG8=", PartitionKey: "partition-0", SequenceHint: 7}

	ack, err := producer.PutRecord(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "1", ack.SequenceNumber)
	assert.Equal(t, "traffic/TrafficDataStream/partition-0", ack.ShardID)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, record, sink.snapshot()[0])

	sub.Stop()
	_, err = producer.PutRecord(context.Background(), record)
	require.NoError(t, err)
	assert.Len(t, sink.snapshot(), 1)
}

func TestSubscriberDropsUnreadableMessages(t *testing.T) {
	broker := newFakeBroker()
	sink := &sliceSink{}

	sub := NewSubscriber(broker, "traffic", "s", 0, sink, logger.Discard())
	require.NoError(t, sub.Start(context.Background()))

	broker.Publish("traffic/s/p", 0, false, []byte("{not json"))
	sub.Stop()
	assert.Empty(t, sink.snapshot())
}

func TestSubscriber_SlowSinkDoesNotBlockCallback(t *testing.T) {
	broker := newFakeBroker()
	sink := &gatedSink{release: make(chan struct{})}

	sub := NewSubscriber(broker, "traffic", "s", 1, sink, logger.Discard())
	require.NoError(t, sub.Start(context.Background()))

	published := make(chan struct{})
	go func() {
		defer close(published)
		broker.Publish("traffic/s/p", 1, false, []byte(`{"data":"a"}`))
		broker.Publish("traffic/s/p", 1, false, []byte(`{"data":"b"}`))
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("message callback waited on the sink")
	}
	assert.Empty(t, sink.snapshot())

	close(sink.release)
	sub.Stop()

	records := sink.snapshot()
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Data)
	assert.Equal(t, "b", records[1].Data)
}

func TestSubscriber_DeliveryOutlivesStartContext(t *testing.T) {
	broker := newFakeBroker()
	sink := &sliceSink{}

	ctx, cancel := context.WithCancel(context.Background())
	sub := NewSubscriber(broker, "traffic", "s", 1, sink, logger.Discard())
	require.NoError(t, sub.Start(ctx))
	cancel()

	broker.Publish("traffic/s/p", 1, false, []byte(`{"data":"late"}`))
	sub.Stop()

	require.Len(t, sink.snapshot(), 1)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.NoError(t, sink.ctxErrs[0])
}

func TestProducerPublishError(t *testing.T) {
	broker := newFakeBroker()
	broker.publishErr = errors.New("not connected")

	_, err := NewProducer(broker, "traffic", 1, logger.Discard()).PutRecord(context.Background(), dto.Record{StreamName: "s", PartitionKey: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traffic/s/p")
}
