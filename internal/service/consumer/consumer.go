package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"trafficflow/internal/codec"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
	"trafficflow/internal/metrics"
	"trafficflow/internal/model"
	"trafficflow/internal/repository"
	"trafficflow/internal/service/classifier"
)

// Segmenter counts vehicles per lane in one encoded image.
type Segmenter interface {
	CountVehicles(imageBytes []byte) (model.LaneCounts, error)
}

// Notifier receives every observation after it has been persisted.
type Notifier interface {
	Notify(obs model.TrafficObservation)
}

// DecodedRecord is a record whose payload decoded to image bytes.
type DecodedRecord struct {
	Index        int
	PartitionKey string
	Image        []byte
}

// BatchResult summarizes one processed batch. Observations follow batch order.
type BatchResult struct {
	Received     int
	Observations []model.TrafficObservation
	Skipped      int
	Failed       int
}

// ConsumerService runs decode, segmentation, classification and persistence for
// batches of ingestion records.
type ConsumerService struct {
	segmenter  Segmenter
	classifier *classifier.Classifier
	repo       repository.ObservationRepository
	notifier   Notifier
	numWorkers int
	logger     *logger.Logger
}

// NewConsumerService creates a consumer. notifier may be nil.
func NewConsumerService(segmenter Segmenter, classifier *classifier.Classifier, repo repository.ObservationRepository, notifier Notifier, numWorkers int, logger *logger.Logger) *ConsumerService {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &ConsumerService{
		segmenter:  segmenter,
		classifier: classifier,
		repo:       repo,
		notifier:   notifier,
		numWorkers: numWorkers,
		logger:     logger,
	}
}

// DecodeBatch decodes every record independently, in batch order. Malformed
// payloads are logged and left out.
func (c *ConsumerService) DecodeBatch(records []dto.Record) []DecodedRecord {
	decoded := make([]DecodedRecord, 0, len(records))
	for i, record := range records {
		image, err := codec.Decode(record.Data)
		if err != nil {
			metrics.DecodeFailuresTotal.Inc()
			c.logger.Error("Failed to decode record %d (partition %s, seq %d): %v", i+1, record.PartitionKey, record.SequenceHint, err)
			continue
		}

		metrics.RecordsDecodedTotal.Inc()
		decoded = append(decoded, DecodedRecord{Index: i, PartitionKey: record.PartitionKey, Image: image})
	}
	return decoded
}

type frameOutcome struct {
	observation *model.TrafficObservation
	err         error
}

// ProcessBatch handles one batch. Undecodable records and images are skipped and
// never fail the batch. The returned error is non-nil only when observations were
// lost on persist (each wrapping model.ErrPersist) or ctx ended early.
func (c *ConsumerService) ProcessBatch(ctx context.Context, records []dto.Record) (BatchResult, error) {
	metrics.BatchSize.Observe(float64(len(records)))
	c.logger.Info("📥 Processing batch of %d records", len(records))

	frames := c.DecodeBatch(records)
	outcomes := make([]frameOutcome, len(frames))

	tasks := make(chan int)
	var wg sync.WaitGroup
	workers := c.numWorkers
	if workers > len(frames) {
		workers = len(frames)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				outcomes[i] = c.processFrame(ctx, frames[i])
			}
		}()
	}

	var ctxErr error
dispatch:
	for i := range frames {
		if ctxErr = ctx.Err(); ctxErr == nil {
			select {
			case <-ctx.Done():
				ctxErr = ctx.Err()
			case tasks <- i:
				continue
			}
		}
		for j := i; j < len(frames); j++ {
			outcomes[j] = frameOutcome{err: ctxErr}
		}
		break dispatch
	}
	close(tasks)
	wg.Wait()

	result := BatchResult{
		Received:     len(records),
		Observations: make([]model.TrafficObservation, 0, len(frames)),
		Skipped:      len(records) - len(frames),
	}

	var errs error
	for _, outcome := range outcomes {
		switch {
		case outcome.observation != nil:
			result.Observations = append(result.Observations, *outcome.observation)
		case errors.Is(outcome.err, model.ErrPersist):
			result.Failed++
			errs = multierr.Append(errs, outcome.err)
		default:
			result.Skipped++
		}
	}
	if ctxErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("batch interrupted: %w", ctxErr))
	}

	c.logger.Info("✅ Batch done: %d stored, %d skipped, %d failed", len(result.Observations), result.Skipped, result.Failed)
	return result, errs
}

// processFrame runs one decoded frame from segmentation to persistence.
func (c *ConsumerService) processFrame(ctx context.Context, frame DecodedRecord) frameOutcome {
	if err := ctx.Err(); err != nil {
		return frameOutcome{err: err}
	}

	counts, err := c.segmenter.CountVehicles(frame.Image)
	if err != nil {
		metrics.ImageDecodeFailuresTotal.Inc()
		c.logger.Warning("Skipping image %d: %v", frame.Index+1, err)
		return frameOutcome{err: err}
	}

	obs := c.classifier.Observe(counts)
	if err := c.repo.Insert(ctx, obs); err != nil {
		metrics.PersistFailuresTotal.Inc()
		c.logger.Error("Failed to persist observation %s for record %d: %v", obs.Key, frame.Index+1, err)
		return frameOutcome{err: fmt.Errorf("%w: record %d: %v", model.ErrPersist, frame.Index+1, err)}
	}

	metrics.ObservationsPersistedTotal.WithLabelValues(string(obs.Direction)).Inc()
	c.logger.Info("📝 Saved %s: top=%d left=%d bottom=%d right=%d direction=%s",
		obs.Key, obs.Top, obs.Left, obs.Bottom, obs.Right, obs.Direction)

	if c.notifier != nil {
		c.notifier.Notify(obs)
	}
	return frameOutcome{observation: &obs}
}
