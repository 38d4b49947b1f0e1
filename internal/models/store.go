package models

import (
	"fmt"
	"time"
)

// Status is the closed set of poll outcomes. Anything else is rejected at the
// ingestion boundary, never inside the engine.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus validates a raw status value from an ingest source.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// StoreObservation is a single activity poll for a store.
type StoreObservation struct {
	StoreID      string    `json:"store_id" db:"store_id"`
	TimestampUTC time.Time `json:"timestamp_utc" db:"timestamp_utc"`
	Status       Status    `json:"status" db:"status"`
}

// BusinessHours is one open interval on one local weekday.
// DayOfWeek is 0 = Monday through 6 = Sunday.
type BusinessHours struct {
	StoreID        string `json:"store_id" db:"store_id"`
	DayOfWeek      int    `json:"day_of_week" db:"day_of_week"`
	StartTimeLocal string `json:"start_time_local" db:"start_time_local"` // "HH:MM:SS"
	EndTimeLocal   string `json:"end_time_local" db:"end_time_local"`
}

// StoreTimezone maps a store to an IANA timezone name. At most one per store.
type StoreTimezone struct {
	StoreID      string `json:"store_id" db:"store_id"`
	TimezoneName string `json:"timezone_str" db:"timezone_str"`
}

// DatasetSummary holds row counts for the backing tables, logged before a run.
type DatasetSummary struct {
	Stores       int `json:"stores"`
	Observations int `json:"observations"`
	HoursRows    int `json:"business_hours_rows"`
	TimezoneRows int `json:"timezone_rows"`
}
