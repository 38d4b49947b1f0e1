// Package timeline turns a store's raw activity polls into a step function of
// status over time: the status observed at t_i holds over [t_i, t_i+1).
package timeline

import (
	"sort"
	"time"

	"github.com/storepulse/storepulse-api/internal/models"
)

// Point is one step of the reconstructed status function.
type Point struct {
	At     time.Time
	Status models.Status
}

// Timeline is a sorted, deduplicated status step function for one store,
// restricted to observations at or before the reference "now".
type Timeline struct {
	points []Point
}

// New builds a timeline from unordered observations. Observations after now
// are dropped. Duplicate timestamps are tolerated: the sort is stable and the
// first-seen observation at a given instant wins.
func New(obs []models.StoreObservation, now time.Time) Timeline {
	points := make([]Point, 0, len(obs))
	for _, o := range obs {
		if o.TimestampUTC.After(now) {
			continue
		}
		points = append(points, Point{At: o.TimestampUTC, Status: o.Status})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })

	deduped := points[:0]
	for _, p := range points {
		if len(deduped) > 0 && p.At.Equal(deduped[len(deduped)-1].At) {
			continue
		}
		deduped = append(deduped, p)
	}
	return Timeline{points: deduped}
}

// Empty reports whether the store has no usable observations at all. An empty
// timeline means the whole window is of undetermined status.
func (t Timeline) Empty() bool {
	return len(t.points) == 0
}

// Points returns the underlying step function.
func (t Timeline) Points() []Point {
	return t.points
}

// StatusAt returns the status in effect at the given instant: the status of
// the latest observation at or before it, or the earliest observation's
// status extended backward when the instant precedes all observations.
// Must not be called on an empty timeline.
func (t Timeline) StatusAt(at time.Time) models.Status {
	idx := sort.Search(len(t.points), func(i int) bool { return t.points[i].At.After(at) })
	if idx == 0 {
		return t.points[0].Status
	}
	return t.points[idx-1].Status
}

// ChangesWithin returns the observation instants strictly inside (start, end),
// ascending. These are the only places the step function can change value.
func (t Timeline) ChangesWithin(start, end time.Time) []time.Time {
	var out []time.Time
	from := sort.Search(len(t.points), func(i int) bool { return t.points[i].At.After(start) })
	for _, p := range t.points[from:] {
		if !p.At.Before(end) {
			break
		}
		out = append(out, p.At)
	}
	return out
}
