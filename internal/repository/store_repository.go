package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/storepulse/storepulse-api/internal/models"
)

// ErrNoObservations is returned when the dataset holds no observations at
// all, so there is no reference "now" to anchor report windows on.
var ErrNoObservations = errors.New("no observations ingested")

type StoreRepository interface {
	ListStoreIDs(ctx context.Context) ([]string, error)
	MaxObservationTimestamp(ctx context.Context) (time.Time, error)
	ObservationsInRange(ctx context.Context, storeID string, from, to time.Time) ([]models.StoreObservation, error)
	LatestObservationBefore(ctx context.Context, storeID string, before time.Time) (*models.StoreObservation, error)
	BusinessHours(ctx context.Context, storeID string) ([]models.BusinessHours, error)
	Timezone(ctx context.Context, storeID string) (string, error)
	Summary(ctx context.Context) (models.DatasetSummary, error)
}

type storeRepository struct {
	db *sql.DB
}

func NewStoreRepository(db *sql.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) ListStoreIDs(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT store_id
		FROM monitoring.store_status
		ORDER BY store_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *storeRepository) MaxObservationTimestamp(ctx context.Context) (time.Time, error) {
	const query = `SELECT MAX(timestamp_utc) FROM monitoring.store_status`
	var max sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return time.Time{}, err
	}
	if !max.Valid {
		return time.Time{}, ErrNoObservations
	}
	return max.Time.UTC(), nil
}

func (r *storeRepository) ObservationsInRange(ctx context.Context, storeID string, from, to time.Time) ([]models.StoreObservation, error) {
	const query = `
		SELECT store_id, timestamp_utc, status
		FROM monitoring.store_status
		WHERE store_id = $1 AND timestamp_utc >= $2 AND timestamp_utc <= $3
		ORDER BY timestamp_utc, id
	`
	rows, err := r.db.QueryContext(ctx, query, storeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []models.StoreObservation
	for rows.Next() {
		var o models.StoreObservation
		if err := rows.Scan(&o.StoreID, &o.TimestampUTC, &o.Status); err != nil {
			return nil, err
		}
		o.TimestampUTC = o.TimestampUTC.UTC()
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (r *storeRepository) LatestObservationBefore(ctx context.Context, storeID string, before time.Time) (*models.StoreObservation, error) {
	const query = `
		SELECT store_id, timestamp_utc, status
		FROM monitoring.store_status
		WHERE store_id = $1 AND timestamp_utc < $2
		ORDER BY timestamp_utc DESC, id DESC
		LIMIT 1
	`
	var o models.StoreObservation
	err := r.db.QueryRowContext(ctx, query, storeID, before).Scan(&o.StoreID, &o.TimestampUTC, &o.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	o.TimestampUTC = o.TimestampUTC.UTC()
	return &o, nil
}

func (r *storeRepository) BusinessHours(ctx context.Context, storeID string) ([]models.BusinessHours, error) {
	const query = `
		SELECT store_id, day_of_week, start_time_local, end_time_local
		FROM monitoring.business_hours
		WHERE store_id = $1
		ORDER BY day_of_week, start_time_local
	`
	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []models.BusinessHours
	for rows.Next() {
		var h models.BusinessHours
		if err := rows.Scan(&h.StoreID, &h.DayOfWeek, &h.StartTimeLocal, &h.EndTimeLocal); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// Timezone returns the store's configured timezone name, or "" when the store
// has none and the caller should apply the configured default.
func (r *storeRepository) Timezone(ctx context.Context, storeID string) (string, error) {
	const query = `SELECT timezone_str FROM monitoring.store_timezones WHERE store_id = $1`
	var tz string
	err := r.db.QueryRowContext(ctx, query, storeID).Scan(&tz)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return tz, nil
}

func (r *storeRepository) Summary(ctx context.Context) (models.DatasetSummary, error) {
	const query = `
		SELECT
			(SELECT COUNT(DISTINCT store_id) FROM monitoring.store_status),
			(SELECT COUNT(*) FROM monitoring.store_status),
			(SELECT COUNT(*) FROM monitoring.business_hours),
			(SELECT COUNT(*) FROM monitoring.store_timezones)
	`
	var s models.DatasetSummary
	err := r.db.QueryRowContext(ctx, query).Scan(&s.Stores, &s.Observations, &s.HoursRows, &s.TimezoneRows)
	return s, err
}
