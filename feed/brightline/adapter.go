// Package brightline ingests the two Brightline GTFS-Realtime feeds.
// Vehicle positions and trip updates are polled independently and only
// become a train once both sides of the hash-join by trip id are
// present; the feed reports no status, so status is inferred from the
// schedule.
package brightline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"trainwatch/feed"
	"trainwatch/geo"
	"trainwatch/model"
	"trainwatch/stations"
)

// The corridor is entirely within one zone.
const corridorZone = "America/New_York"

// metersPerSecToMPH converts the estimated speed into the display unit
// the other agencies already report in.
const metersPerSecToMPH = 2.236936

// Adapter fetches and joins the Brightline feeds.
type Adapter struct {
	fetcher        feed.Fetcher
	positionsURL   string
	tripUpdatesURL string
	stations       *stations.Table
	logger         *slog.Logger
	now            func() time.Time
}

// New creates the Brightline adapter. The station table resolves stop
// ids to names, timezones and the coordinates the speed estimate needs.
func New(fetcher feed.Fetcher, positionsURL, tripUpdatesURL string, table *stations.Table, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		fetcher:        fetcher,
		positionsURL:   positionsURL,
		tripUpdatesURL: tripUpdatesURL,
		stations:       table,
		logger:         logger,
		now:            time.Now,
	}
}

// Agency implements feed.Adapter.
func (a *Adapter) Agency() model.Agency { return model.AgencyBrightline }

// Poll implements feed.Adapter.
func (a *Adapter) Poll(ctx context.Context) ([]model.Train, error) {
	posRaw, err := a.fetcher.Fetch(ctx, a.positionsURL)
	if err != nil {
		return nil, err
	}
	tuRaw, err := a.fetcher.Fetch(ctx, a.tripUpdatesURL)
	if err != nil {
		return nil, err
	}

	positions, err := decodeFeed(posRaw)
	if err != nil {
		return nil, err
	}
	updates, err := decodeFeed(tuRaw)
	if err != nil {
		return nil, err
	}
	return a.join(positions, updates), nil
}

func decodeFeed(raw []byte) (*gtfsrtpb.FeedMessage, error) {
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(raw, &fm); err != nil {
		return nil, fmt.Errorf("%w: brightline: %v", feed.ErrDecode, err)
	}
	return &fm, nil
}

// vehicleEntry is the position side of the join.
type vehicleEntry struct {
	lon, lat  float64
	hasCoords bool
	bearing   *float64
	updated   *time.Time
}

// join correlates the two feeds by trip id. An entry on either side
// with no counterpart cannot produce a valid combined record and is
// dropped, not defaulted.
func (a *Adapter) join(positions, updates *gtfsrtpb.FeedMessage) []model.Train {
	vehicles := map[string]vehicleEntry{}
	for _, e := range positions.Entity {
		v := e.Vehicle
		if v == nil || v.Trip == nil || v.Trip.TripId == nil {
			continue
		}
		entry := vehicleEntry{}
		if v.Position != nil && v.Position.Latitude != nil && v.Position.Longitude != nil {
			entry.lat = float64(*v.Position.Latitude)
			entry.lon = float64(*v.Position.Longitude)
			entry.hasCoords = true
			if v.Position.Bearing != nil {
				b := geo.NormalizeHeading(float64(*v.Position.Bearing))
				entry.bearing = &b
			}
		}
		if v.Timestamp != nil {
			ts := time.Unix(int64(*v.Timestamp), 0).UTC()
			entry.updated = &ts
		}
		vehicles[*v.Trip.TripId] = entry
	}

	var headerTime *time.Time
	if h := updates.Header; h != nil && h.Timestamp != nil {
		ts := time.Unix(int64(*h.Timestamp), 0).UTC()
		headerTime = &ts
	}

	now := a.now()
	var trains []model.Train
	for _, e := range updates.Entity {
		tu := e.TripUpdate
		if tu == nil || tu.Trip == nil || tu.Trip.TripId == nil {
			continue
		}
		tripID := *tu.Trip.TripId
		vehicle, ok := vehicles[tripID]
		if !ok {
			a.logger.Debug("brightline trip update without position", "trip", tripID)
			continue
		}
		t, err := a.mapTrain(tripID, tu, vehicle, headerTime, now)
		if err != nil {
			a.logger.Warn("dropping brightline train", "trip", tripID, "error", err)
			continue
		}
		trains = append(trains, t)
	}
	sort.Slice(trains, func(i, j int) bool { return trains[i].ID < trains[j].ID })
	return trains
}

func (a *Adapter) mapTrain(tripID string, tu *gtfsrtpb.TripUpdate, vehicle vehicleEntry, headerTime *time.Time, now time.Time) (model.Train, error) {
	// The trip id's first underscore-delimited segment is the train number.
	number, _, _ := strings.Cut(tripID, "_")
	if number == "" {
		return model.Train{}, fmt.Errorf("%w: empty trip id", feed.ErrPartialRecord)
	}

	t := model.Train{
		ID:      model.TrainID(model.AgencyBrightline, number),
		Agency:  model.AgencyBrightline,
		Name:    "Brightline",
		Number:  number,
		Alerts:  []string{},
		Heading: vehicle.bearing,
	}
	if vehicle.hasCoords {
		t.Coordinates = &model.Coordinates{vehicle.lon, vehicle.lat}
	}
	if vehicle.updated != nil {
		t.Updated = vehicle.updated
	} else {
		t.Updated = headerTime
	}

	for _, stu := range tu.StopTimeUpdate {
		if stu.StopId == nil {
			continue
		}
		t.Stops = append(t.Stops, a.mapStop(*stu.StopId, stu))
	}
	if len(t.Stops) == 0 {
		return model.Train{}, fmt.Errorf("%w: trip without stop time updates", feed.ErrPartialRecord)
	}

	// No feed-reported status: infer from the schedule. The next stop
	// is the first whose arrival is still in the future.
	nextIdx := -1
	for i, s := range t.Stops {
		if at := s.Arrival.Time(); at != nil && at.After(now) {
			nextIdx = i
			break
		}
	}
	switch {
	case nextIdx < 0:
		t.Status = model.StatusCompleted
	case nextIdx == 0:
		t.Status = model.StatusPredeparture
	default:
		t.Status = model.StatusActive
	}

	t.Speed = a.estimateSpeed(t, nextIdx, now)
	return t, nil
}

func (a *Adapter) mapStop(stopID string, stu *gtfsrtpb.TripUpdate_StopTimeUpdate) model.Stop {
	stop := model.Stop{Code: stopID, Name: stopID, Timezone: corridorZone}
	if a.stations != nil {
		if s, ok := a.stations.Get(stopID); ok {
			stop.Name = s.Name
			if s.Timezone != "" {
				stop.Timezone = s.Timezone
			}
		}
	}
	stop.Arrival = eventFromStopTime(stu.Arrival)
	stop.Departure = eventFromStopTime(stu.Departure)
	return stop
}

// eventFromStopTime maps a GTFS-RT stop time event: the feed time is
// the live estimate, and the schedule is recovered by backing the
// reported delay out of it.
func eventFromStopTime(ev *gtfsrtpb.TripUpdate_StopTimeEvent) model.StopEvent {
	if ev == nil || ev.Time == nil {
		return model.PendingEvent(nil, nil)
	}
	estimated := time.Unix(*ev.Time, 0).UTC()
	var scheduled *time.Time
	if ev.Delay != nil {
		s := estimated.Add(-time.Duration(*ev.Delay) * time.Second)
		scheduled = &s
	}
	return model.PendingEvent(scheduled, &estimated)
}

// estimateSpeed derives speed as great-circle distance to the next
// station over time remaining until its arrival. The feed does not
// report speed at all.
func (a *Adapter) estimateSpeed(t model.Train, nextIdx int, now time.Time) *float64 {
	if t.Status == model.StatusCompleted {
		zero := 0.0
		return &zero
	}
	if nextIdx < 0 || t.Coordinates == nil || a.stations == nil {
		return nil
	}
	next := t.Stops[nextIdx]
	station, ok := a.stations.Get(next.Code)
	if !ok {
		return nil
	}
	at := next.Arrival.Time()
	if at == nil {
		return nil
	}
	remaining := at.Sub(now).Seconds()
	if remaining <= 0 {
		// Division artifact territory; better undetermined than wrong.
		return nil
	}
	meters := geo.DistanceMeters(t.Coordinates.Lat(), t.Coordinates.Lon(), station.Lat, station.Lon)
	mph := meters / remaining * metersPerSecToMPH
	return &mph
}
