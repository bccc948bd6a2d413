package stream

import (
	"context"
	"sync"
	"time"

	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
)

// Batcher buffers received records and hands them to a BatchHandler when the batch
// limit is reached or the flush interval elapses. Batches are handled one at a time.
type Batcher struct {
	handler       BatchHandler
	limit         int
	flushInterval time.Duration
	logger        *logger.Logger

	mu      sync.Mutex
	pending []dto.Record

	handleMu sync.Mutex
}

// NewBatcher creates a Batcher. A limit below one means one record per batch.
func NewBatcher(handler BatchHandler, limit int, flushInterval time.Duration, logger *logger.Logger) *Batcher {
	if limit < 1 {
		limit = 1
	}
	return &Batcher{
		handler:       handler,
		limit:         limit,
		flushInterval: flushInterval,
		logger:        logger,
		pending:       make([]dto.Record, 0, limit),
	}
}

// Run flushes on every tick until ctx is done, then flushes what is left. A batch
// already handed to the handler is finished even if ctx is cancelled meanwhile.
func (b *Batcher) Run(ctx context.Context) {
	flushCtx := context.WithoutCancel(ctx)

	if b.flushInterval <= 0 {
		<-ctx.Done()
		b.Flush(flushCtx)
		return
	}

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(flushCtx)
			return
		case <-ticker.C:
			b.Flush(flushCtx)
		}
	}
}

// Add buffers one record and flushes synchronously when the batch is full.
func (b *Batcher) Add(ctx context.Context, record dto.Record) {
	b.mu.Lock()
	b.pending = append(b.pending, record)
	full := len(b.pending) >= b.limit
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
}

// Pending returns the number of buffered records.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush hands all buffered records to the handler as one batch.
func (b *Batcher) Flush(ctx context.Context) {
	b.handleMu.Lock()
	defer b.handleMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]dto.Record, 0, b.limit)
	b.mu.Unlock()

	if err := b.handler(ctx, batch); err != nil {
		b.logger.Error("Batch of %d records completed with errors: %v", len(batch), err)
		return
	}
	b.logger.Info("Flushed batch of %d records", len(batch))
}
