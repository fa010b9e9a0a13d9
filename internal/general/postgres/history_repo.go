package postgres

import (
	"context"
	"time"

	"bus-tracker/internal/tracker/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepo persists accepted location samples using pgx and plain SQL.
// The archive feeds the prediction engine's history heuristics; it is never
// on the broadcast hot path.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

// NewHistoryRepo constructs a new HistoryRepo.
func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// Save inserts a single location_history record.
func (repo *HistoryRepo) Save(ctx context.Context, sample domain.VehicleLocationSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	_, err := repo.pool.Exec(ctx, `
		INSERT INTO location_history (
			bus_id, latitude, longitude, speed_kmh, heading_degrees, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		sample.VehicleID,
		sample.Latitude,
		sample.Longitude,
		sample.SpeedKmh,
		sample.HeadingDegrees,
		sample.Timestamp.UTC(),
	)

	return err
}

// RecentAverageSpeed returns the mean moving speed recorded for a vehicle in
// the given window. ok is false when there is not enough history to trust.
func (repo *HistoryRepo) RecentAverageSpeed(ctx context.Context, vehicleID string, window time.Duration) (float64, bool, error) {
	var avg *float64
	var count int

	err := repo.pool.QueryRow(ctx, `
		SELECT AVG(speed_kmh), COUNT(*)
		FROM location_history
		WHERE bus_id = $1
		  AND speed_kmh > 5
		  AND recorded_at > $2
	`, vehicleID, time.Now().UTC().Add(-window)).Scan(&avg, &count)
	if err != nil {
		return 0, false, err
	}

	if avg == nil || count < 3 {
		return 0, false, nil
	}
	return *avg, true, nil
}
