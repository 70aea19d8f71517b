// Package amtrak ingests the Amtrak live train feed: an encrypted
// GeoJSON-ish feature collection with one feature per train and the
// itinerary encoded as dynamically numbered Station<N> property keys.
package amtrak

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"trainwatch/feed"
	"trainwatch/model"
	"trainwatch/stations"
	"trainwatch/timeparse"
)

// Adapter fetches, decrypts and normalizes the Amtrak feed.
type Adapter struct {
	fetcher  feed.Fetcher
	url      string
	stations *stations.Table
	logger   *slog.Logger
}

// New creates the Amtrak adapter. stations may be nil; stop names then
// degrade to their codes.
func New(fetcher feed.Fetcher, url string, table *stations.Table, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{fetcher: fetcher, url: url, stations: table, logger: logger}
}

// Agency implements feed.Adapter.
func (a *Adapter) Agency() model.Agency { return model.AgencyAmtrak }

// Poll implements feed.Adapter.
func (a *Adapter) Poll(ctx context.Context) ([]model.Train, error) {
	raw, err := a.fetcher.Fetch(ctx, feed.CacheBust(a.url))
	if err != nil {
		return nil, err
	}
	plain, err := Decrypt(string(raw))
	if err != nil {
		return nil, err
	}
	return a.decode(plain)
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// stationBlob is one Station<N> value, itself a JSON-encoded string
// requiring a second parse pass. All times are 24-hour local strings.
type stationBlob struct {
	Code    string `json:"code"`
	Tz      string `json:"tz"`
	SchArr  string `json:"schArr"`
	SchDep  string `json:"schDep"`
	EstArr  string `json:"estArr"`
	EstDep  string `json:"estDep"`
	PostArr string `json:"postArr"`
	PostDep string `json:"postDep"`
}

func (a *Adapter) decode(plain []byte) ([]model.Train, error) {
	var fc featureCollection
	if err := json.Unmarshal(plain, &fc); err != nil {
		return nil, fmt.Errorf("%w: amtrak: %v", feed.ErrDecode, err)
	}

	trains := make([]model.Train, 0, len(fc.Features))
	for _, f := range fc.Features {
		t, err := a.mapTrain(f)
		if err != nil {
			a.logger.Warn("dropping amtrak train", "error", err)
			continue
		}
		trains = append(trains, t)
	}
	return trains, nil
}

func (a *Adapter) mapTrain(f feature) (model.Train, error) {
	number := propString(f.Properties, "TrainNum")
	if number == "" {
		return model.Train{}, fmt.Errorf("%w: feature without TrainNum", feed.ErrPartialRecord)
	}

	status, err := feedStatus(propString(f.Properties, "TrainState"))
	if err != nil {
		return model.Train{}, fmt.Errorf("train %s: %w", number, err)
	}

	t := model.Train{
		ID:     model.TrainID(model.AgencyAmtrak, number),
		Agency: model.AgencyAmtrak,
		Name:   propString(f.Properties, "RouteName"),
		Number: number,
		Status: status,
		Alerts: []string{},
	}

	// The status message is a free-text rider advisory; a non-empty one
	// becomes the train's single alert.
	if msg := strings.TrimSpace(propString(f.Properties, "StatusMsg")); msg != "" {
		t.Alerts = append(t.Alerts, msg)
	}

	if c := f.Geometry.Coordinates; len(c) == 2 {
		t.Coordinates = &model.Coordinates{c[0], c[1]}
	}

	// Speed stays in feed units (mph); conversion is a display concern.
	if v, ok := propFloat(f.Properties, "Velocity"); ok {
		t.Speed = &v
	}

	if name := propString(f.Properties, "Heading"); name != "" {
		if deg, err := headingFromCompass(name); err != nil {
			a.logger.Warn("amtrak heading unmapped", "train", number, "heading", name)
		} else {
			t.Heading = &deg
		}
	}

	if ts := propString(f.Properties, "LastValTS"); ts != "" {
		tz := propString(f.Properties, "EventTZ")
		if tz == "" {
			tz = "E"
		}
		if updated, err := timeparse.Parse(ts, tz, true); err != nil {
			a.logger.Warn("amtrak LastValTS unparseable", "train", number, "value", ts, "error", err)
		} else {
			t.Updated = &updated
		}
	}

	for _, blob := range orderedStations(f.Properties) {
		stop, err := a.mapStop(blob)
		if err != nil {
			a.logger.Warn("dropping amtrak stop", "train", number, "station", blob.Code, "error", err)
			continue
		}
		t.Stops = append(t.Stops, stop)
	}
	if len(t.Stops) == 0 {
		return model.Train{}, fmt.Errorf("%w: train %s has no usable stops", feed.ErrPartialRecord, number)
	}
	return t, nil
}

var stationKeyPattern = regexp.MustCompile(`^Station(\d+)$`)

// orderedStations extracts the Station<N> values in route order. The
// indices are not zero-padded and not necessarily contiguous, so the
// sort is numeric on N; a lexicographic sort would put Station10 before
// Station9.
func orderedStations(props map[string]any) []stationBlob {
	type numbered struct {
		n   int
		raw string
	}
	var keys []numbered
	for k, v := range props {
		m := stationKeyPattern.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		keys = append(keys, numbered{n: n, raw: raw})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].n < keys[j].n })

	blobs := make([]stationBlob, 0, len(keys))
	for _, k := range keys {
		var b stationBlob
		if err := json.Unmarshal([]byte(k.raw), &b); err != nil {
			continue
		}
		blobs = append(blobs, b)
	}
	return blobs
}

func (a *Adapter) mapStop(b stationBlob) (model.Stop, error) {
	if b.Code == "" {
		return model.Stop{}, fmt.Errorf("%w: station without code", feed.ErrPartialRecord)
	}
	loc, err := timeparse.Location(b.Tz)
	if err != nil {
		return model.Stop{}, fmt.Errorf("station %s: %w", b.Code, err)
	}

	stop := model.Stop{
		Code:     b.Code,
		Name:     b.Code,
		Timezone: loc.String(),
	}
	if a.stations != nil {
		if s, ok := a.stations.Get(b.Code); ok {
			stop.Name = s.Name
			if s.Timezone != "" {
				stop.Timezone = s.Timezone
			}
		}
	}

	// The feed omits schArr when dwell time is zero; the scheduled
	// departure stands in for it. Observed upstream quirk, kept as-is
	// and not generalized to other missing fields.
	schArr := b.SchArr
	if schArr == "" {
		schArr = b.SchDep
	}

	arr, err := a.mapEvent(schArr, b.EstArr, b.PostArr, b.Tz)
	if err != nil {
		return model.Stop{}, fmt.Errorf("station %s arrival: %w", b.Code, err)
	}
	dep, err := a.mapEvent(b.SchDep, b.EstDep, b.PostDep, b.Tz)
	if err != nil {
		return model.Stop{}, fmt.Errorf("station %s departure: %w", b.Code, err)
	}
	stop.Arrival = arr
	stop.Departure = dep
	return stop, nil
}

// mapEvent builds the Pending/Actual union for one arrival or
// departure. A posted time means the event happened.
func (a *Adapter) mapEvent(sch, est, post, tz string) (model.StopEvent, error) {
	scheduled, err := parseOptional(sch, tz)
	if err != nil {
		return model.StopEvent{}, err
	}
	if post != "" {
		observed, err := timeparse.Parse(post, tz, false)
		if err != nil {
			return model.StopEvent{}, err
		}
		return model.ActualEvent(observed, scheduled), nil
	}
	estimated, err := parseOptional(est, tz)
	if err != nil {
		return model.StopEvent{}, err
	}
	return model.PendingEvent(scheduled, estimated), nil
}

func parseOptional(value, tz string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := timeparse.Parse(value, tz, false)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func feedStatus(state string) (model.FeedStatus, error) {
	switch model.FeedStatus(state) {
	case model.StatusPredeparture, model.StatusActive, model.StatusCompleted:
		return model.FeedStatus(state), nil
	}
	return "", fmt.Errorf("%w: train state %q", feed.ErrPartialRecord, state)
}

func propString(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

// propFloat reads a numeric property that the feed serializes sometimes
// as a number and sometimes as a string.
func propFloat(props map[string]any, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
