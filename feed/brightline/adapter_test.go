package brightline

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"trainwatch/model"
	"trainwatch/stations"
)

var testNow = time.Date(2024, 2, 19, 15, 0, 0, 0, time.UTC)

func testAdapter() *Adapter {
	table := stations.NewTable([]stations.Station{
		{Code: "MIA", Name: "Miami", Timezone: "America/New_York", Lon: -80.1998, Lat: 25.7782},
		{Code: "FTL", Name: "Fort Lauderdale", Timezone: "America/New_York", Lon: -80.1420, Lat: 26.1224},
		{Code: "WPB", Name: "West Palm Beach", Timezone: "America/New_York", Lon: -80.0534, Lat: 26.7153},
	})
	a := New(nil, "", "", table, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	a.now = func() time.Time { return testNow }
	return a
}

func vehicleEntity(tripID string, lat, lon float32, ts int64) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id: proto.String("v-" + tripID),
		Vehicle: &gtfsrtpb.VehiclePosition{
			Trip:      &gtfsrtpb.TripDescriptor{TripId: proto.String(tripID)},
			Position:  &gtfsrtpb.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lon), Bearing: proto.Float32(12)},
			Timestamp: proto.Uint64(uint64(ts)),
		},
	}
}

func tripEntity(tripID string, stops ...*gtfsrtpb.TripUpdate_StopTimeUpdate) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id: proto.String("t-" + tripID),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip:           &gtfsrtpb.TripDescriptor{TripId: proto.String(tripID)},
			StopTimeUpdate: stops,
		},
	}
}

func stopTime(stopID string, arrival time.Time, delaySec int32) *gtfsrtpb.TripUpdate_StopTimeUpdate {
	return &gtfsrtpb.TripUpdate_StopTimeUpdate{
		StopId: proto.String(stopID),
		Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{
			Time:  proto.Int64(arrival.Unix()),
			Delay: proto.Int32(delaySec),
		},
		Departure: &gtfsrtpb.TripUpdate_StopTimeEvent{
			Time: proto.Int64(arrival.Add(2 * time.Minute).Unix()),
		},
	}
}

func feedMessage(ts int64, entities ...*gtfsrtpb.FeedEntity) *gtfsrtpb.FeedMessage {
	return &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(ts)),
		},
		Entity: entities,
	}
}

func TestJoinDropsUnmatchedEntries(t *testing.T) {
	a := testAdapter()

	positions := feedMessage(testNow.Unix(),
		vehicleEntity("903_20240219", 26.0, -80.15, testNow.Unix()),
		vehicleEntity("905_20240219", 26.5, -80.10, testNow.Unix()), // no trip update
	)
	updates := feedMessage(testNow.Unix(),
		tripEntity("903_20240219",
			stopTime("MIA", testNow.Add(-time.Hour), 0),
			stopTime("FTL", testNow.Add(10*time.Minute), 120),
			stopTime("WPB", testNow.Add(45*time.Minute), 120),
		),
		tripEntity("907_20240219", // no vehicle position
			stopTime("MIA", testNow.Add(time.Hour), 0),
		),
	)

	trains := a.join(positions, updates)
	require.Len(t, trains, 1)
	assert.Equal(t, "brightline/903", trains[0].ID)
	assert.Equal(t, "903", trains[0].Number)
}

func TestStatusInference(t *testing.T) {
	a := testAdapter()

	tests := []struct {
		name  string
		stops []*gtfsrtpb.TripUpdate_StopTimeUpdate
		want  model.FeedStatus
	}{
		{
			name: "all arrivals past means completed",
			stops: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				stopTime("MIA", testNow.Add(-2*time.Hour), 0),
				stopTime("WPB", testNow.Add(-10*time.Minute), 0),
			},
			want: model.StatusCompleted,
		},
		{
			name: "first arrival still future means predeparture",
			stops: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				stopTime("MIA", testNow.Add(30*time.Minute), 0),
				stopTime("WPB", testNow.Add(2*time.Hour), 0),
			},
			want: model.StatusPredeparture,
		},
		{
			name: "mid-route means active",
			stops: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				stopTime("MIA", testNow.Add(-30*time.Minute), 0),
				stopTime("WPB", testNow.Add(30*time.Minute), 0),
			},
			want: model.StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := feedMessage(testNow.Unix(), vehicleEntity("900_x", 26.0, -80.15, testNow.Unix()))
			updates := feedMessage(testNow.Unix(), tripEntity("900_x", tt.stops...))
			trains := a.join(positions, updates)
			require.Len(t, trains, 1)
			assert.Equal(t, tt.want, trains[0].Status)
		})
	}
}

func TestSpeedEstimate(t *testing.T) {
	a := testAdapter()

	t.Run("completed is zero", func(t *testing.T) {
		positions := feedMessage(testNow.Unix(), vehicleEntity("901_x", 26.7, -80.05, testNow.Unix()))
		updates := feedMessage(testNow.Unix(),
			tripEntity("901_x", stopTime("WPB", testNow.Add(-time.Minute), 0)))
		trains := a.join(positions, updates)
		require.Len(t, trains, 1)
		require.NotNil(t, trains[0].Speed)
		assert.Zero(t, *trains[0].Speed)
	})

	t.Run("active uses distance over time remaining", func(t *testing.T) {
		positions := feedMessage(testNow.Unix(), vehicleEntity("902_x", 26.0, -80.15, testNow.Unix()))
		updates := feedMessage(testNow.Unix(),
			tripEntity("902_x",
				stopTime("MIA", testNow.Add(-20*time.Minute), 0),
				stopTime("FTL", testNow.Add(10*time.Minute), 0)))
		trains := a.join(positions, updates)
		require.Len(t, trains, 1)
		require.NotNil(t, trains[0].Speed)
		// ~13.6 km to Fort Lauderdale in 10 minutes is roughly 50 mph.
		assert.InDelta(t, 50, *trains[0].Speed, 15)
	})

	t.Run("unknown next station leaves speed absent", func(t *testing.T) {
		positions := feedMessage(testNow.Unix(), vehicleEntity("904_x", 26.0, -80.15, testNow.Unix()))
		updates := feedMessage(testNow.Unix(),
			tripEntity("904_x",
				stopTime("MIA", testNow.Add(-20*time.Minute), 0),
				stopTime("NOPE", testNow.Add(10*time.Minute), 0)))
		trains := a.join(positions, updates)
		require.Len(t, trains, 1)
		assert.Nil(t, trains[0].Speed)
	})
}

func TestDelayRecoversSchedule(t *testing.T) {
	a := testAdapter()
	arr := testNow.Add(10 * time.Minute)
	positions := feedMessage(testNow.Unix(), vehicleEntity("906_x", 26.0, -80.15, testNow.Unix()))
	updates := feedMessage(testNow.Unix(),
		tripEntity("906_x",
			stopTime("MIA", testNow.Add(-20*time.Minute), 0),
			stopTime("FTL", arr, 300)))

	trains := a.join(positions, updates)
	require.Len(t, trains, 1)
	ftl := trains[0].Stops[1]
	require.NotNil(t, ftl.Arrival.Scheduled)
	assert.Equal(t, arr.Add(-5*time.Minute).Unix(), ftl.Arrival.Scheduled.Unix())
	assert.Equal(t, 5, ftl.Arrival.DelayMinutes())
}

type fakeFetcher struct {
	byURL map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	return f.byURL[url], nil
}

func TestPollDecodesWire(t *testing.T) {
	posMsg := feedMessage(testNow.Unix(), vehicleEntity("908_x", 26.0, -80.15, testNow.Unix()))
	tuMsg := feedMessage(testNow.Unix(),
		tripEntity("908_x",
			stopTime("MIA", testNow.Add(-20*time.Minute), 0),
			stopTime("FTL", testNow.Add(10*time.Minute), 0)))

	posRaw, err := proto.Marshal(posMsg)
	require.NoError(t, err)
	tuRaw, err := proto.Marshal(tuMsg)
	require.NoError(t, err)

	a := testAdapter()
	a.fetcher = &fakeFetcher{byURL: map[string][]byte{
		"pos": posRaw,
		"tu":  tuRaw,
	}}
	a.positionsURL = "pos"
	a.tripUpdatesURL = "tu"

	trains, err := a.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "brightline/908", trains[0].ID)
	require.NotNil(t, trains[0].Updated)
	assert.Equal(t, testNow.Unix(), trains[0].Updated.Unix())
}
