package models

import "time"

// ReportStatus is the job lifecycle state. The only legal transitions are
// Running -> Complete and Running -> Failed.
type ReportStatus string

const (
	ReportStatusRunning  ReportStatus = "Running"
	ReportStatusComplete ReportStatus = "Complete"
	ReportStatusFailed   ReportStatus = "Failed"
)

// ReportJob is one asynchronous report run.
type ReportJob struct {
	ID           string       `json:"report_id" db:"id"`
	Status       ReportStatus `json:"status" db:"status"`
	ErrorMessage *string      `json:"error,omitempty" db:"error_message"`
	StoresTotal  int          `json:"stores_total" db:"stores_total"`
	StoresFailed int          `json:"stores_failed" db:"stores_failed"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// ReportRow is the per-store result. Hour-window fields are whole minutes
// (floored); day/week fields are hours rounded half-up to two decimals.
type ReportRow struct {
	StoreID          string  `json:"store_id" db:"store_id"`
	UptimeLastHour   int64   `json:"uptime_last_hour" db:"uptime_last_hour"`
	UptimeLastDay    float64 `json:"uptime_last_day" db:"uptime_last_day"`
	UptimeLastWeek   float64 `json:"uptime_last_week" db:"uptime_last_week"`
	DowntimeLastHour int64   `json:"downtime_last_hour" db:"downtime_last_hour"`
	DowntimeLastDay  float64 `json:"downtime_last_day" db:"downtime_last_day"`
	DowntimeLastWeek float64 `json:"downtime_last_week" db:"downtime_last_week"`
}
