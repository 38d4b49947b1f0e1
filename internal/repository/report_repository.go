package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/storepulse/storepulse-api/internal/models"
)

var (
	// ErrReportNotFound distinguishes an unknown report id from any job state.
	ErrReportNotFound = errors.New("report not found")
	// ErrReportTerminal is returned when completing or failing a job that has
	// already left the Running state. Terminal transitions happen exactly once.
	ErrReportTerminal = errors.New("report already in a terminal state")
)

type ReportRepository interface {
	Create(ctx context.Context, id string) (models.ReportJob, error)
	Get(ctx context.Context, id string) (models.ReportJob, error)
	Complete(ctx context.Context, id string, rows []models.ReportRow, storesTotal, storesFailed int) error
	Fail(ctx context.Context, id, reason string) error
	Rows(ctx context.Context, id string) ([]models.ReportRow, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, id string) (models.ReportJob, error) {
	const query = `
		INSERT INTO monitoring.report_jobs (id, status)
		VALUES ($1, $2)
		RETURNING id, status, created_at
	`
	var job models.ReportJob
	err := r.db.QueryRowContext(ctx, query, id, models.ReportStatusRunning).
		Scan(&job.ID, &job.Status, &job.CreatedAt)
	return job, err
}

func (r *reportRepository) Get(ctx context.Context, id string) (models.ReportJob, error) {
	const query = `
		SELECT id, status, error_message, stores_total, stores_failed, created_at, completed_at
		FROM monitoring.report_jobs
		WHERE id = $1
	`
	var job models.ReportJob
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Status,
		&job.ErrorMessage,
		&job.StoresTotal,
		&job.StoresFailed,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return job, ErrReportNotFound
		}
		return job, err
	}
	return job, nil
}

// Complete writes the materialized rows and moves the job Running -> Complete
// in one transaction. The conditional UPDATE enforces the single-writer
// terminal transition: a job already Complete or Failed is left untouched.
func (r *reportRepository) Complete(ctx context.Context, id string, rows []models.ReportRow, storesTotal, storesFailed int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE monitoring.report_jobs
		SET status = $1, stores_total = $2, stores_failed = $3, completed_at = NOW()
		WHERE id = $4 AND status = $5
	`, models.ReportStatusComplete, storesTotal, storesFailed, id, models.ReportStatusRunning)
	if err != nil {
		return err
	}
	if err := requireTransition(res, id); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("monitoring", "report_rows",
		"report_id", "store_id",
		"uptime_last_hour", "uptime_last_day", "uptime_last_week",
		"downtime_last_hour", "downtime_last_day", "downtime_last_week"))
	if err != nil {
		return errors.Wrap(err, "failed to prepare bulk insert")
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, id, row.StoreID,
			row.UptimeLastHour, row.UptimeLastDay, row.UptimeLastWeek,
			row.DowntimeLastHour, row.DowntimeLastDay, row.DowntimeLastWeek); err != nil {
			stmt.Close()
			return errors.Wrapf(err, "failed to insert row for store %s", row.StoreID)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return errors.Wrap(err, "failed to flush bulk insert")
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *reportRepository) Fail(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE monitoring.report_jobs
		SET status = $1, error_message = $2, completed_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.ReportStatusFailed, reason, id, models.ReportStatusRunning)
	if err != nil {
		return err
	}
	return requireTransition(res, id)
}

func (r *reportRepository) Rows(ctx context.Context, id string) ([]models.ReportRow, error) {
	const query = `
		SELECT store_id,
		       uptime_last_hour, uptime_last_day, uptime_last_week,
		       downtime_last_hour, downtime_last_day, downtime_last_week
		FROM monitoring.report_rows
		WHERE report_id = $1
		ORDER BY store_id
	`
	result, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	rows := []models.ReportRow{}
	for result.Next() {
		var row models.ReportRow
		if err := result.Scan(
			&row.StoreID,
			&row.UptimeLastHour,
			&row.UptimeLastDay,
			&row.UptimeLastWeek,
			&row.DowntimeLastHour,
			&row.DowntimeLastDay,
			&row.DowntimeLastWeek,
		); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, result.Err()
}

func requireTransition(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(ErrReportTerminal, "report %s", id)
	}
	return nil
}
