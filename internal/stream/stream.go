// Package stream is the ingestion channel between frame publishers and the consumer.
// Delivery is at-least-once; consumers must tolerate duplicate records.
package stream

import (
	"context"

	"trafficflow/internal/dto"
)

// Producer puts records onto the channel. PutRecord returns once the transport has
// accepted or rejected the record.
type Producer interface {
	PutRecord(ctx context.Context, record dto.Record) (dto.Ack, error)
	Close() error
}

// BatchHandler processes one batch of records, i.e. one consumer invocation.
type BatchHandler func(ctx context.Context, batch []dto.Record) error
