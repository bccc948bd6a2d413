package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"trafficflow/internal/model"
)

// ObservationRepository implements repository.ObservationRepository for SQLite.
type ObservationRepository struct {
	db *DB
}

// NewObservationRepository creates a new SQLite observation repository.
func NewObservationRepository(db *DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// Insert writes one observation. A key that already exists is an error; rows are
// never replaced.
func (r *ObservationRepository) Insert(ctx context.Context, obs model.TrafficObservation) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO observations (pk, timestamp, top, left_lane, bottom, right_lane, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, obs.Key, obs.Timestamp, obs.Top, obs.Left, obs.Bottom, obs.Right, string(obs.Direction))
	if err != nil {
		return fmt.Errorf("failed to insert observation %s: %w", obs.Key, err)
	}
	return nil
}

// InsertBatch writes several observations in a single transaction. Any failure
// rolls the whole batch back.
func (r *ObservationRepository) InsertBatch(ctx context.Context, observations []model.TrafficObservation) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (pk, timestamp, top, left_lane, bottom, right_lane, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		if _, err := stmt.ExecContext(ctx, obs.Key, obs.Timestamp, obs.Top, obs.Left, obs.Bottom, obs.Right, string(obs.Direction)); err != nil {
			return fmt.Errorf("failed to insert observation %s: %w", obs.Key, err)
		}
	}

	return tx.Commit()
}

// GetByKey retrieves an observation by its primary key. A missing key returns nil, nil.
func (r *ObservationRepository) GetByKey(ctx context.Context, key string) (*model.TrafficObservation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var obs model.TrafficObservation
	var direction string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT pk, timestamp, top, left_lane, bottom, right_lane, direction
		FROM observations WHERE pk = ?
	`, key).Scan(&obs.Key, &obs.Timestamp, &obs.Top, &obs.Left, &obs.Bottom, &obs.Right, &direction)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	obs.Direction = model.Direction(direction)
	return &obs, nil
}

// List returns up to limit observations, newest first. A non-positive limit returns all.
func (r *ObservationRepository) List(ctx context.Context, limit int) ([]model.TrafficObservation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT pk, timestamp, top, left_lane, bottom, right_lane, direction
		FROM observations ORDER BY timestamp DESC, pk DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	observations := make([]model.TrafficObservation, 0)
	for rows.Next() {
		var obs model.TrafficObservation
		var direction string
		if err := rows.Scan(&obs.Key, &obs.Timestamp, &obs.Top, &obs.Left, &obs.Bottom, &obs.Right, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.Direction = model.Direction(direction)
		observations = append(observations, obs)
	}

	return observations, rows.Err()
}

// Count returns the number of stored observations.
func (r *ObservationRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}
