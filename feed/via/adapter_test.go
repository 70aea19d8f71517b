package via

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainwatch/model"
	"trainwatch/stations"
)

func testAdapter(now time.Time) *Adapter {
	table := stations.NewTable([]stations.Station{
		{Code: "MTRL", Name: "Montréal", Timezone: "America/Toronto", Lon: -73.5673, Lat: 45.4995},
		{Code: "TRTO", Name: "Toronto", Timezone: "America/Toronto", Lon: -79.3832, Lat: 43.6453},
		{Code: "WNPG", Name: "Winnipeg", Timezone: "America/Winnipeg", Lon: -97.1335, Lat: 49.8880},
	})
	a := New(nil, "", table, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	a.now = func() time.Time { return now }
	return a
}

// 2024-02-19 15:00 UTC == 10:00 Eastern.
var testNow = time.Date(2024, 2, 19, 15, 0, 0, 0, time.UTC)

func TestDecodeArrivedSentinelPromotion(t *testing.T) {
	payload := `{
		"62": {
			"lat": 45.5, "lng": -73.6, "speed": 0, "direction": 245.0,
			"poll": "2024-02-19T09:58:00",
			"departed": true, "arrived": false,
			"times": [
				{
					"station": "Montréal", "code": "MTRL",
					"scheduled": "2024-02-19T09:00:00",
					"estimated": "2024-02-19T09:03:00",
					"eta": "ARR", "diffMin": 3,
					"departure": {
						"scheduled": "2024-02-19T09:05:00",
						"estimated": "2024-02-19T09:08:00"
					}
				},
				{
					"station": "Toronto", "code": "TRTO",
					"scheduled": "2024-02-19T14:30:00",
					"estimated": "2024-02-19T14:35:00",
					"eta": "14:35"
				}
			]
		}
	}`

	trains, err := testAdapter(testNow).decode([]byte(payload))
	require.NoError(t, err)
	require.Len(t, trains, 1)

	train := trains[0]
	assert.Equal(t, "via/62", train.ID)
	assert.Equal(t, "Toronto - Montréal", train.Name)
	assert.Equal(t, model.StatusActive, train.Status)
	require.Len(t, train.Stops, 2)

	mtrl := train.Stops[0]
	// Arrived sentinel: the estimate is now the actual, and the
	// forward-looking fields are gone.
	assert.Equal(t, model.EventActual, mtrl.Arrival.State)
	require.NotNil(t, mtrl.Arrival.Actual)
	assert.Equal(t, "2024-02-19T14:03:00Z", mtrl.Arrival.Actual.UTC().Format(time.RFC3339))
	assert.Nil(t, mtrl.Arrival.Scheduled)
	assert.Nil(t, mtrl.Arrival.Estimated)
	assert.Equal(t, 3, mtrl.Arrival.DelayMinutes())

	// Estimated departure 09:08 Eastern is before now (10:00): promoted.
	assert.Equal(t, model.EventActual, mtrl.Departure.State)
	require.NotNil(t, mtrl.Departure.Actual)
	assert.Equal(t, "2024-02-19T14:08:00Z", mtrl.Departure.Actual.UTC().Format(time.RFC3339))
	assert.Nil(t, mtrl.Departure.Estimated)

	trto := train.Stops[1]
	// A plain timestamp in eta is not the sentinel: still pending.
	assert.Equal(t, model.EventPending, trto.Arrival.State)
	require.NotNil(t, trto.Arrival.Estimated)
	assert.Equal(t, 5, trto.Arrival.DelayMinutes())
}

func TestRouteNameFallback(t *testing.T) {
	tests := []struct {
		number string
		want   string
	}{
		{"1", "The Canadian"},
		{"15", "The Ocean"},
		{"62", "Toronto - Montréal"},
		{"63-2", "Toronto - Montréal"},
		{"87", "Toronto - Sarnia"},
		{"601", "Montréal - Jonquière"},
		{"9999", "VIA Rail 9999"},
		// A key with no leading digits echoes the feed's own key, never
		// a parse artifact like "VIA Rail 0".
		{"EXTRA", "VIA Rail EXTRA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeName(tt.number))
	}
}

func TestDecodeNonNumericTrainKey(t *testing.T) {
	payload := `{
		"SPCL": {
			"departed": true, "arrived": false,
			"times": [{"station": "Toronto", "code": "TRTO", "scheduled": "2024-02-19T14:30:00"}]
		}
	}`
	trains, err := testAdapter(testNow).decode([]byte(payload))
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "via/SPCL", trains[0].ID)
	assert.Equal(t, "VIA Rail SPCL", trains[0].Name)
}

func TestDecodeKeepsEnglishAlertsOnly(t *testing.T) {
	payload := `{
		"622": {
			"departed": false, "arrived": false,
			"times": [{"station": "Winnipeg", "code": "WNPG", "scheduled": "2024-02-19T11:00:00"}],
			"alerts": [
				{
					"en": {"header": "Track work", "description": "Delays up to 30 min", "url": "https://example.test/a"},
					"fr": {"header": "Travaux", "description": "Retards", "url": "https://example.test/fr"}
				},
				{"en": {"header": "", "description": "", "url": ""}}
			]
		}
	}`

	trains, err := testAdapter(testNow).decode([]byte(payload))
	require.NoError(t, err)
	require.Len(t, trains, 1)

	train := trains[0]
	assert.Equal(t, model.StatusPredeparture, train.Status)
	require.Len(t, train.Alerts, 1)
	assert.Equal(t, "Track work\nDelays up to 30 min\nhttps://example.test/a", train.Alerts[0])

	// Winnipeg stop parses in its own zone: 11:00 Central is 17:00 UTC.
	require.NotNil(t, train.Stops[0].Arrival.Scheduled)
	assert.Equal(t, "2024-02-19T17:00:00Z", train.Stops[0].Arrival.Scheduled.UTC().Format(time.RFC3339))
}

func TestDecodeDropsTrainWithoutStops(t *testing.T) {
	payload := `{"700": {"departed": true, "arrived": false, "times": []}}`
	trains, err := testAdapter(testNow).decode([]byte(payload))
	require.NoError(t, err)
	assert.Empty(t, trains)
}
