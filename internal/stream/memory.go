package stream

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"trafficflow/internal/dto"
)

// ErrClosed is returned when publishing to a closed channel.
var ErrClosed = errors.New("stream closed")

// Memory is an in-process channel. Records put on it are added to a Batcher in
// publish order.
type Memory struct {
	batcher *Batcher

	mu     sync.Mutex
	seq    int64
	closed bool
}

// NewMemory creates an in-process channel feeding batcher.
func NewMemory(batcher *Batcher) *Memory {
	return &Memory{batcher: batcher}
}

// PutRecord implements Producer.
func (m *Memory) PutRecord(ctx context.Context, record dto.Record) (dto.Ack, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return dto.Ack{}, ErrClosed
	}
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	m.batcher.Add(ctx, record)
	return dto.Ack{ShardID: "shard-" + record.PartitionKey, SequenceNumber: strconv.FormatInt(seq, 10)}, nil
}

// Close implements Producer.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
