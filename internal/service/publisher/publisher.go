package publisher

import (
	"context"
	"fmt"
	"sync"

	"trafficflow/internal/codec"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
	"trafficflow/internal/metrics"
	"trafficflow/internal/model"
	"trafficflow/internal/stream"
)

// DefaultPartitionKey is the single key used by the fixed strategy.
const DefaultPartitionKey = "partition-key"

// PartitionKeyer picks the partition key of the next record.
type PartitionKeyer interface {
	Next() string
}

// FixedKey always returns the same key.
type FixedKey string

func (k FixedKey) Next() string { return string(k) }

// RoundRobin cycles through partition-0 .. partition-(n-1).
type RoundRobin struct {
	mu    sync.Mutex
	n     int
	index int
}

// NewRoundRobin creates a round-robin keyer over n partitions (at least one).
func NewRoundRobin(n int) *RoundRobin {
	if n < 1 {
		n = 1
	}
	return &RoundRobin{n: n}
}

func (r *RoundRobin) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("partition-%d", r.index)
	r.index = (r.index + 1) % r.n
	return key
}

// NewKeyer maps a strategy name to a keyer; unknown names fall back to fixed.
func NewKeyer(strategy string, partitions int) PartitionKeyer {
	if strategy == "round-robin" {
		return NewRoundRobin(partitions)
	}
	return FixedKey(DefaultPartitionKey)
}

// PublisherService encodes frames and puts them on the ingestion channel.
type PublisherService struct {
	producer   stream.Producer
	streamName string
	keys       PartitionKeyer
	logger     *logger.Logger

	mu       sync.Mutex
	sequence int64
}

// NewPublisherService creates a publisher over producer.
func NewPublisherService(producer stream.Producer, streamName string, keys PartitionKeyer, logger *logger.Logger) *PublisherService {
	return &PublisherService{
		producer:   producer,
		streamName: streamName,
		keys:       keys,
		logger:     logger,
	}
}

// Publish sends one raw frame as one record. A failure loses this frame only; the
// error wraps model.ErrPublish and nothing is retried.
func (p *PublisherService) Publish(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	p.sequence++
	record := dto.Record{
		StreamName:   p.streamName,
		Data:         codec.Encode(frame),
		PartitionKey: p.keys.Next(),
		SequenceHint: p.sequence,
	}
	p.mu.Unlock()

	ack, err := p.producer.PutRecord(ctx, record)
	if err != nil {
		metrics.PublishFailuresTotal.Inc()
		p.logger.Error("Failed to publish record %d (partition %s) to %s: %v", record.SequenceHint, record.PartitionKey, p.streamName, err)
		return fmt.Errorf("%w: record %d: %v", model.ErrPublish, record.SequenceHint, err)
	}

	metrics.RecordsPublishedTotal.Inc()
	p.logger.Info("Sent record %d (%d bytes) to %s. Shard %s, sequence %s",
		record.SequenceHint, len(frame), p.streamName, ack.ShardID, ack.SequenceNumber)
	return nil
}

// Close closes the underlying producer.
func (p *PublisherService) Close() error {
	return p.producer.Close()
}
