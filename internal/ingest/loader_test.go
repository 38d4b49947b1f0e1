package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2023-01-24 09:06:42.605777 UTC": time.Date(2023, 1, 24, 9, 6, 42, 605777000, time.UTC),
		"2023-01-24 09:06:42 UTC":        time.Date(2023, 1, 24, 9, 6, 42, 0, time.UTC),
		"2023-01-24T09:06:42Z":           time.Date(2023, 1, 24, 9, 6, 42, 0, time.UTC),
		" 2023-01-24 09:06:42 UTC ":      time.Date(2023, 1, 24, 9, 6, 42, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := parseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(want), raw)
	}

	_, err := parseTimestamp("24/01/2023 09:06")
	assert.Error(t, err)
}

func TestCSVReaderHeaderLookup(t *testing.T) {
	in := "Status, store_id ,timestamp_utc\nactive,123,2023-01-24 09:06:42 UTC\n"
	r, err := newCSVReader(strings.NewReader(in))
	require.NoError(t, err)

	row, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "active", row["status"])
	assert.Equal(t, "123", row["store_id"])
	assert.Equal(t, "2023-01-24 09:06:42 UTC", row["timestamp_utc"])
}

func TestDayFieldAliases(t *testing.T) {
	assert.Equal(t, "3", dayField(map[string]string{"day_of_week": "3"}))
	assert.Equal(t, "5", dayField(map[string]string{"day": "5"}))
	assert.Equal(t, "0", dayField(map[string]string{"dayofweek": "0"}))
	assert.Equal(t, "", dayField(map[string]string{"weekday": "2"}))
}
