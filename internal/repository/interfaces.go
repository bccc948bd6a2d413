package repository

import (
	"context"

	"trafficflow/internal/model"
)

// ObservationRepository defines the interface for traffic observation storage.
// Observations are insert-only.
type ObservationRepository interface {
	// Create operations
	Insert(ctx context.Context, obs model.TrafficObservation) error

	// Read operations
	GetByKey(ctx context.Context, key string) (*model.TrafficObservation, error)
	List(ctx context.Context, limit int) ([]model.TrafficObservation, error)
	Count(ctx context.Context) (int, error)
}
