package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]dto.Record
	err     error
}

func (r *batchRecorder) handle(_ context.Context, batch []dto.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *batchRecorder) snapshot() [][]dto.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]dto.Record(nil), r.batches...)
}

func rec(i int) dto.Record {
	return dto.Record{Data: fmt.Sprintf("payload-%d", i), SequenceHint: int64(i)}
}

func TestBatcher_FlushesAtLimit(t *testing.T) {
	recorder := &batchRecorder{}
	b := NewBatcher(recorder.handle, 3, 0, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		b.Add(ctx, rec(i))
	}

	batches := recorder.snapshot()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Equal(t, int64(3), batches[1][0].SequenceHint)
	assert.Equal(t, 1, b.Pending())
}

func TestBatcher_FlushEmptyIsNoop(t *testing.T) {
	recorder := &batchRecorder{}
	b := NewBatcher(recorder.handle, 3, 0, logger.Discard())

	b.Flush(context.Background())
	assert.Empty(t, recorder.snapshot())
}

func TestBatcher_RunFlushesOnTickAndOnStop(t *testing.T) {
	recorder := &batchRecorder{}
	b := NewBatcher(recorder.handle, 100, 20*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	b.Add(ctx, rec(1))
	assert.Eventually(t, func() bool { return len(recorder.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	b.Add(ctx, rec(2))
	cancel()
	<-done

	batches := recorder.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, int64(2), batches[1][0].SequenceHint)
}

func TestBatcher_TickFlushSurvivesShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	handlerErr := make(chan error, 1)
	handler := func(ctx context.Context, batch []dto.Record) error {
		close(started)
		<-release
		handlerErr <- ctx.Err()
		return nil
	}
	b := NewBatcher(handler, 100, 10*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	b.Add(context.Background(), rec(1))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tick flush never started")
	}

	cancel()
	close(release)
	<-done

	assert.NoError(t, <-handlerErr)
}

func TestBatcher_HandlerErrorDoesNotRequeue(t *testing.T) {
	recorder := &batchRecorder{err: errors.New("partial failure")}
	b := NewBatcher(recorder.handle, 2, 0, logger.Discard())

	b.Add(context.Background(), rec(1))
	b.Add(context.Background(), rec(2))

	assert.Len(t, recorder.snapshot(), 1)
	assert.Zero(t, b.Pending())
}

func TestMemory_PutRecordFeedsBatcher(t *testing.T) {
	recorder := &batchRecorder{}
	m := NewMemory(NewBatcher(recorder.handle, 2, 0, logger.Discard()))

	ack, err := m.PutRecord(context.Background(), dto.Record{PartitionKey: "p", Data: "a"})
	require.NoError(t, err)
	assert.Equal(t, "1", ack.SequenceNumber)
	assert.Equal(t, "shard-p", ack.ShardID)

	_, err = m.PutRecord(context.Background(), dto.Record{PartitionKey: "p", Data: "b"})
	require.NoError(t, err)
	require.Len(t, recorder.snapshot(), 1)

	require.NoError(t, m.Close())
	_, err = m.PutRecord(context.Background(), dto.Record{Data: "c"})
	assert.ErrorIs(t, err, ErrClosed)
}
