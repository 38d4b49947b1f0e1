package timeline

import (
	"testing"
	"time"

	"github.com/storepulse/storepulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(storeID, ts string, status models.Status) models.StoreObservation {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return models.StoreObservation{StoreID: storeID, TimestampUTC: parsed, Status: status}
}

func at(ts string) time.Time {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestNewSortsUnorderedObservations(t *testing.T) {
	tl := New([]models.StoreObservation{
		obs("s1", "2023-06-05T12:00:00Z", models.StatusInactive),
		obs("s1", "2023-06-05T08:00:00Z", models.StatusActive),
		obs("s1", "2023-06-05T10:00:00Z", models.StatusActive),
	}, at("2023-06-05T16:00:00Z"))

	points := tl.Points()
	require.Len(t, points, 3)
	assert.Equal(t, at("2023-06-05T08:00:00Z"), points[0].At)
	assert.Equal(t, at("2023-06-05T10:00:00Z"), points[1].At)
	assert.Equal(t, at("2023-06-05T12:00:00Z"), points[2].At)
}

func TestNewDropsObservationsAfterNow(t *testing.T) {
	tl := New([]models.StoreObservation{
		obs("s1", "2023-06-05T08:00:00Z", models.StatusActive),
		obs("s1", "2023-06-05T18:00:00Z", models.StatusInactive),
	}, at("2023-06-05T16:00:00Z"))

	require.Len(t, tl.Points(), 1)
	assert.Equal(t, models.StatusActive, tl.StatusAt(at("2023-06-05T16:00:00Z")))
}

func TestNewDuplicateTimestampFirstSeenWins(t *testing.T) {
	tl := New([]models.StoreObservation{
		obs("s1", "2023-06-05T08:00:00Z", models.StatusInactive),
		obs("s1", "2023-06-05T08:00:00Z", models.StatusActive),
	}, at("2023-06-05T16:00:00Z"))

	require.Len(t, tl.Points(), 1)
	assert.Equal(t, models.StatusInactive, tl.Points()[0].Status)
}

func TestEmptyTimeline(t *testing.T) {
	tl := New(nil, at("2023-06-05T16:00:00Z"))
	assert.True(t, tl.Empty())

	// Observations only after now also leave it undetermined.
	tl = New([]models.StoreObservation{
		obs("s1", "2023-06-05T18:00:00Z", models.StatusActive),
	}, at("2023-06-05T16:00:00Z"))
	assert.True(t, tl.Empty())
}

func TestStatusAtExtendsEarliestBackward(t *testing.T) {
	tl := New([]models.StoreObservation{
		obs("s1", "2023-06-05T10:00:00Z", models.StatusActive),
		obs("s1", "2023-06-05T14:00:00Z", models.StatusInactive),
	}, at("2023-06-05T16:00:00Z"))

	// Before the first observation: nearest neighbor into the past.
	assert.Equal(t, models.StatusActive, tl.StatusAt(at("2023-06-05T01:00:00Z")))
	// Exactly on a step.
	assert.Equal(t, models.StatusInactive, tl.StatusAt(at("2023-06-05T14:00:00Z")))
	// Between steps.
	assert.Equal(t, models.StatusActive, tl.StatusAt(at("2023-06-05T12:30:00Z")))
	// Last status holds to now.
	assert.Equal(t, models.StatusInactive, tl.StatusAt(at("2023-06-05T16:00:00Z")))
}

func TestChangesWithinIsStrict(t *testing.T) {
	tl := New([]models.StoreObservation{
		obs("s1", "2023-06-05T10:00:00Z", models.StatusActive),
		obs("s1", "2023-06-05T12:00:00Z", models.StatusInactive),
		obs("s1", "2023-06-05T14:00:00Z", models.StatusActive),
	}, at("2023-06-05T16:00:00Z"))

	changes := tl.ChangesWithin(at("2023-06-05T10:00:00Z"), at("2023-06-05T14:00:00Z"))
	require.Len(t, changes, 1)
	assert.Equal(t, at("2023-06-05T12:00:00Z"), changes[0])

	assert.Empty(t, tl.ChangesWithin(at("2023-06-05T12:00:00Z"), at("2023-06-05T12:00:00Z")))
}
