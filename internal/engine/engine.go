// Package engine computes uptime/downtime within business hours for the three
// trailing report windows, anchored at a fixed reference "now".
package engine

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/storepulse/storepulse-api/internal/models"
	"github.com/storepulse/storepulse-api/internal/schedule"
	"github.com/storepulse/storepulse-api/internal/timeline"
)

// StoreInputs carries everything Compute needs for one store. The result is a
// pure function of these inputs, so identical inputs always produce identical
// rows.
type StoreInputs struct {
	StoreID      string
	Timezone     string // IANA name, already defaulted by the caller
	Hours        []models.BusinessHours
	Observations []models.StoreObservation
	Now          time.Time // max observation timestamp across the dataset
}

// Compute produces the report row for one store. Errors (unknown timezone,
// malformed schedule) are per-store: the caller records them and moves on.
func Compute(in StoreInputs) (models.ReportRow, error) {
	loc, err := time.LoadLocation(in.Timezone)
	if err != nil {
		return models.ReportRow{}, errors.Wrapf(err, "unknown timezone %q", in.Timezone)
	}
	resolver, err := schedule.NewResolver(in.Hours, loc)
	if err != nil {
		return models.ReportRow{}, errors.Wrap(err, "malformed schedule")
	}
	tl := timeline.New(in.Observations, in.Now)

	hourUp, hourDown := accumulate(resolver, tl, in.Now.Add(-time.Hour), in.Now)
	dayUp, dayDown := accumulate(resolver, tl, in.Now.Add(-24*time.Hour), in.Now)
	weekUp, weekDown := accumulate(resolver, tl, in.Now.Add(-7*24*time.Hour), in.Now)

	return models.ReportRow{
		StoreID:          in.StoreID,
		UptimeLastHour:   floorMinutes(hourUp),
		UptimeLastDay:    roundHours(dayUp),
		UptimeLastWeek:   roundHours(weekUp),
		DowntimeLastHour: floorMinutes(hourDown),
		DowntimeLastDay:  roundHours(dayDown),
		DowntimeLastWeek: roundHours(weekDown),
	}, nil
}

// accumulate intersects the business-open intervals of [start, end) with the
// status step function and sums piece durations by status. An empty timeline
// is undetermined: both sums stay zero rather than guessing.
func accumulate(resolver *schedule.Resolver, tl timeline.Timeline, start, end time.Time) (up, down time.Duration) {
	if tl.Empty() {
		return 0, 0
	}
	for _, iv := range resolver.IntervalsOverlapping(schedule.Interval{Start: start, End: end}) {
		cursor := iv.Start
		for _, change := range tl.ChangesWithin(iv.Start, iv.End) {
			up, down = tally(up, down, tl.StatusAt(cursor), change.Sub(cursor))
			cursor = change
		}
		up, down = tally(up, down, tl.StatusAt(cursor), iv.End.Sub(cursor))
	}
	return up, down
}

func tally(up, down time.Duration, status models.Status, d time.Duration) (time.Duration, time.Duration) {
	if status == models.StatusActive {
		return up + d, down
	}
	return up, down + d
}

// floorMinutes converts a duration to whole minutes, flooring.
func floorMinutes(d time.Duration) int64 {
	return int64(d/time.Second) / 60
}

// roundHours converts a duration to hours rounded half-up to two decimals.
func roundHours(d time.Duration) float64 {
	hours := float64(d/time.Second) / 3600
	return math.Round(hours*100) / 100
}
