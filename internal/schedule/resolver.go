package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/storepulse/storepulse-api/internal/models"
)

// Interval is a half-open UTC interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the interval length, zero for empty intervals.
func (iv Interval) Duration() time.Duration {
	if !iv.End.After(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

type localSpan struct {
	startSec int // seconds since local midnight
	endSec   int
}

// Resolver answers "is this store open at instant T" for one store, given its
// weekly schedule rows and timezone. A store with zero schedule rows is open
// 24/7; a store with rows for some days only is closed on the other days.
type Resolver struct {
	loc     *time.Location
	byDay   [7][]localSpan // indexed by day_of_week, 0 = Monday
	open247 bool
}

// NewResolver validates the schedule rows and builds a resolver. A row whose
// start is after its end is invalid input and rejected; a row with start equal
// to end is an empty interval and skipped.
func NewResolver(rows []models.BusinessHours, loc *time.Location) (*Resolver, error) {
	r := &Resolver{loc: loc, open247: len(rows) == 0}
	for _, row := range rows {
		if row.DayOfWeek < 0 || row.DayOfWeek > 6 {
			return nil, fmt.Errorf("invalid day_of_week %d for store %s", row.DayOfWeek, row.StoreID)
		}
		startSec, err := parseLocalTime(row.StartTimeLocal)
		if err != nil {
			return nil, fmt.Errorf("invalid start_time_local %q for store %s: %w", row.StartTimeLocal, row.StoreID, err)
		}
		endSec, err := parseLocalTime(row.EndTimeLocal)
		if err != nil {
			return nil, fmt.Errorf("invalid end_time_local %q for store %s: %w", row.EndTimeLocal, row.StoreID, err)
		}
		if startSec > endSec {
			return nil, fmt.Errorf("schedule interval %s-%s wraps past midnight for store %s day %d",
				row.StartTimeLocal, row.EndTimeLocal, row.StoreID, row.DayOfWeek)
		}
		if startSec == endSec {
			continue
		}
		r.byDay[row.DayOfWeek] = append(r.byDay[row.DayOfWeek], localSpan{startSec: startSec, endSec: endSec})
	}
	for day := range r.byDay {
		sort.Slice(r.byDay[day], func(i, j int) bool {
			return r.byDay[day][i].startSec < r.byDay[day][j].startSec
		})
	}
	return r, nil
}

// IsOpen reports whether the store is open at the given UTC instant.
func (r *Resolver) IsOpen(instant time.Time) bool {
	if r.open247 {
		return true
	}
	local := instant.In(r.loc)
	for _, span := range r.byDay[weekdayIndex(local.Weekday())] {
		start, end := r.spanBounds(local, span)
		if !instant.Before(start) && instant.Before(end) {
			return true
		}
	}
	return false
}

// IntervalsOverlapping returns the business-open UTC sub-intervals of the
// query window, sorted ascending, merged, and clipped to the window. The UTC
// offset is recomputed for every local calendar day touched, so results stay
// correct across DST transitions.
func (r *Resolver) IntervalsOverlapping(window Interval) []Interval {
	if !window.End.After(window.Start) {
		return nil
	}
	if r.open247 {
		return []Interval{window}
	}

	var out []Interval
	day := r.localMidnight(window.Start.In(r.loc))
	for day.Before(window.End) {
		for _, span := range r.byDay[weekdayIndex(day.Weekday())] {
			start, end := r.spanBounds(day, span)
			if start.Before(window.Start) {
				start = window.Start
			}
			if end.After(window.End) {
				end = window.End
			}
			if start.Before(end) {
				out = append(out, Interval{Start: start.UTC(), End: end.UTC()})
			}
		}
		day = r.nextDay(day)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return mergeIntervals(out)
}

// spanBounds materializes a local span on the calendar day of the given local
// time. time.Date normalizes through the location, which bakes in that day's
// UTC offset.
func (r *Resolver) spanBounds(local time.Time, span localSpan) (time.Time, time.Time) {
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, span.startSec, 0, r.loc)
	end := time.Date(y, m, d, 0, 0, span.endSec, 0, r.loc)
	return start, end
}

func (r *Resolver) localMidnight(local time.Time) time.Time {
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

func (r *Resolver) nextDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, r.loc)
}

func mergeIntervals(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	merged := ivs[:1]
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// weekdayIndex maps Go's Sunday-based weekday to the schedule's Monday-based one.
func weekdayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// parseLocalTime parses "HH:MM:SS" (seconds optional) into seconds since midnight.
func parseLocalTime(s string) (int, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("malformed time of day")
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time of day out of range")
	}
	return h*3600 + m*60 + sec, nil
}
