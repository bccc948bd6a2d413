// Package mqttstream carries ingestion records over an MQTT broker. Records are
// published to <prefix>/<stream>/<partitionKey> as JSON.
package mqttstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
)

// PublishTimeout bounds the wait for a broker acknowledgment.
const PublishTimeout = 2 * time.Second

// DeliveryBuffer is how many received records may wait for the sink before the
// message callback blocks.
const DeliveryBuffer = 256

// Topic builds the topic of one partition; pass "#" to match every partition.
func Topic(prefix, stream, partitionKey string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, stream, partitionKey)
}

// Connect dials the broker with automatic reconnects enabled.
func Connect(broker, clientID string, logger *logger.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("MQTT connection established (broker %s, client %s)", broker, clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warning("MQTT connection lost, will auto-reconnect: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}

// Producer implements stream.Producer on top of an MQTT client.
type Producer struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *logger.Logger
	seq    atomic.Int64
}

// NewProducer creates a producer publishing under prefix with the given QoS.
func NewProducer(client mqtt.Client, prefix string, qos byte, logger *logger.Logger) *Producer {
	return &Producer{client: client, prefix: prefix, qos: qos, logger: logger}
}

// PutRecord implements stream.Producer.
func (p *Producer) PutRecord(ctx context.Context, record dto.Record) (dto.Ack, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return dto.Ack{}, fmt.Errorf("failed to marshal record: %w", err)
	}

	topic := Topic(p.prefix, record.StreamName, record.PartitionKey)
	token := p.client.Publish(topic, p.qos, false, payload)

	timeout := PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return dto.Ack{}, fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return dto.Ack{}, fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	return dto.Ack{ShardID: topic, SequenceNumber: strconv.FormatInt(p.seq.Add(1), 10)}, nil
}

// Close implements stream.Producer.
func (p *Producer) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}

// RecordSink accepts records received from the broker.
type RecordSink interface {
	Add(ctx context.Context, record dto.Record)
}

// Subscriber feeds every record of one stream into a sink. The message callback
// only queues records; a separate goroutine hands them to the sink, so a slow batch
// never stalls the client's message router.
type Subscriber struct {
	client mqtt.Client
	topic  string
	qos    byte
	sink   RecordSink
	logger *logger.Logger

	queue    chan dto.Record
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSubscriber creates a subscriber for all partitions of stream.
func NewSubscriber(client mqtt.Client, prefix, stream string, qos byte, sink RecordSink, logger *logger.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		topic:  Topic(prefix, stream, "#"),
		qos:    qos,
		sink:   sink,
		logger: logger,
		queue:  make(chan dto.Record, DeliveryBuffer),
		quit:   make(chan struct{}),
	}
}

// Start subscribes. Records reach the sink with ctx's values but not its
// cancellation; Stop ends delivery.
func (s *Subscriber) Start(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		var record dto.Record
		if err := json.Unmarshal(msg.Payload(), &record); err != nil {
			s.logger.Error("Dropping unreadable message on %s: %v", msg.Topic(), err)
			return
		}
		select {
		case s.queue <- record:
		case <-s.quit:
			s.logger.Warning("Subscriber stopped, dropping record from %s", msg.Topic())
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe to %s timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s failed: %w", s.topic, err)
	}

	s.wg.Add(1)
	go s.deliver(context.WithoutCancel(ctx))

	s.logger.Info("Subscribed to %s", s.topic)
	return nil
}

func (s *Subscriber) deliver(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case record := <-s.queue:
			s.sink.Add(ctx, record)
		case <-s.quit:
			for {
				select {
				case record := <-s.queue:
					s.sink.Add(ctx, record)
				default:
					return
				}
			}
		}
	}
}

// Stop unsubscribes, disconnects and waits until queued records reach the sink.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
		s.client.Disconnect(250)
		close(s.quit)
		s.wg.Wait()
	})
}
