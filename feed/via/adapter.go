// Package via ingests the Via Rail live feed: a flat JSON object keyed
// by train number, no encryption. The interesting part is the
// asymmetric promotion of estimated times to actuals, which is how the
// unified model expresses "this already happened".
package via

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"trainwatch/feed"
	"trainwatch/geo"
	"trainwatch/model"
	"trainwatch/stations"
	"trainwatch/timeparse"
)

// defaultZone covers stops whose code is missing from the reference
// table; the whole corridor sits in Eastern time.
const defaultZone = "America/Toronto"

// Adapter fetches and normalizes the Via Rail feed.
type Adapter struct {
	fetcher  feed.Fetcher
	url      string
	stations *stations.Table
	logger   *slog.Logger
	now      func() time.Time
}

// New creates the Via adapter.
func New(fetcher feed.Fetcher, url string, table *stations.Table, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{fetcher: fetcher, url: url, stations: table, logger: logger, now: time.Now}
}

// Agency implements feed.Adapter.
func (a *Adapter) Agency() model.Agency { return model.AgencyVia }

// Poll implements feed.Adapter.
func (a *Adapter) Poll(ctx context.Context) ([]model.Train, error) {
	raw, err := a.fetcher.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}
	return a.decode(raw)
}

// arrivedSentinel is the literal marker the feed puts in the eta field
// once a train has arrived at a stop. It is not a timestamp.
const arrivedSentinel = "ARR"

type viaTrain struct {
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	Speed     *float64   `json:"speed"`
	Direction *float64   `json:"direction"`
	Poll      string     `json:"poll"`
	Departed  bool       `json:"departed"`
	Arrived   bool       `json:"arrived"`
	Times     []viaStop  `json:"times"`
	Alerts    []viaAlert `json:"alerts"`
}

type viaStop struct {
	Station   string       `json:"station"`
	Code      string       `json:"code"`
	Scheduled string       `json:"scheduled"`
	Estimated string       `json:"estimated"`
	ETA       string       `json:"eta"`
	DiffMin   *int         `json:"diffMin"`
	Departure *viaStopSide `json:"departure"`
}

type viaStopSide struct {
	Scheduled string `json:"scheduled"`
	Estimated string `json:"estimated"`
}

// viaAlert carries one advisory in several locales; only the English
// fields are retained.
type viaAlert struct {
	En viaAlertText `json:"en"`
	Fr viaAlertText `json:"fr"`
}

type viaAlertText struct {
	Header      string `json:"header"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

func (a *Adapter) decode(raw []byte) ([]model.Train, error) {
	var byNumber map[string]viaTrain
	if err := json.Unmarshal(raw, &byNumber); err != nil {
		return nil, fmt.Errorf("%w: via: %v", feed.ErrDecode, err)
	}

	now := a.now()
	trains := make([]model.Train, 0, len(byNumber))
	for number, vt := range byNumber {
		t, err := a.mapTrain(number, vt, now)
		if err != nil {
			a.logger.Warn("dropping via train", "train", number, "error", err)
			continue
		}
		trains = append(trains, t)
	}
	// Map iteration order is random; keep batches deterministic.
	sort.Slice(trains, func(i, j int) bool { return trains[i].ID < trains[j].ID })
	return trains, nil
}

func (a *Adapter) mapTrain(number string, vt viaTrain, now time.Time) (model.Train, error) {
	if len(vt.Times) == 0 {
		return model.Train{}, fmt.Errorf("%w: no stops", feed.ErrPartialRecord)
	}

	t := model.Train{
		ID:     model.TrainID(model.AgencyVia, number),
		Agency: model.AgencyVia,
		Name:   routeName(number),
		Number: number,
		Status: viaStatus(vt),
		Alerts: []string{},
	}

	if vt.Lat != nil && vt.Lng != nil {
		t.Coordinates = &model.Coordinates{*vt.Lng, *vt.Lat}
	}
	t.Speed = vt.Speed
	if vt.Direction != nil {
		h := geo.NormalizeHeading(*vt.Direction)
		t.Heading = &h
	}

	if vt.Poll != "" {
		loc, err := timeparse.LoadIANA(defaultZone)
		if err == nil {
			if updated, err := timeparse.ParseISO(vt.Poll, loc); err != nil {
				a.logger.Warn("via poll timestamp unparseable", "train", number, "value", vt.Poll)
			} else {
				t.Updated = &updated
			}
		}
	}

	for _, alert := range vt.Alerts {
		if text := joinAlert(alert.En); text != "" {
			t.Alerts = append(t.Alerts, text)
		}
	}

	for _, vs := range vt.Times {
		stop, err := a.mapStop(vs, now)
		if err != nil {
			a.logger.Warn("dropping via stop", "train", number, "station", vs.Code, "error", err)
			continue
		}
		t.Stops = append(t.Stops, stop)
	}
	if len(t.Stops) == 0 {
		return model.Train{}, fmt.Errorf("%w: no usable stops", feed.ErrPartialRecord)
	}
	return t, nil
}

func (a *Adapter) mapStop(vs viaStop, now time.Time) (model.Stop, error) {
	zone := defaultZone
	stop := model.Stop{Code: vs.Code, Name: vs.Station}
	if a.stations != nil {
		if s, ok := a.stations.Get(vs.Code); ok {
			if s.Timezone != "" {
				zone = s.Timezone
			}
			if stop.Name == "" {
				stop.Name = s.Name
			}
		}
	}
	stop.Timezone = zone
	loc, err := timeparse.LoadIANA(zone)
	if err != nil {
		return model.Stop{}, err
	}

	scheduled, err := parseOptionalISO(vs.Scheduled, loc)
	if err != nil {
		return model.Stop{}, err
	}
	estimated, err := parseOptionalISO(vs.Estimated, loc)
	if err != nil {
		return model.Stop{}, err
	}

	// Arrived: the eta sentinel promotes the estimate to an actual and
	// clears the forward-looking fields.
	if vs.ETA == arrivedSentinel && estimated != nil {
		stop.Arrival = model.ActualEvent(*estimated, scheduled)
	} else {
		stop.Arrival = model.PendingEvent(scheduled, estimated)
	}
	if vs.DiffMin != nil {
		stop.Arrival.Delay = vs.DiffMin
	}

	var depScheduled, depEstimated *time.Time
	if vs.Departure != nil {
		if depScheduled, err = parseOptionalISO(vs.Departure.Scheduled, loc); err != nil {
			return model.Stop{}, err
		}
		if depEstimated, err = parseOptionalISO(vs.Departure.Estimated, loc); err != nil {
			return model.Stop{}, err
		}
	}

	// Departed: an estimated departure at or before now already
	// happened; promote it. The asymmetry with arrivals is deliberate,
	// it mirrors what the feed actually reports.
	if depEstimated != nil && !depEstimated.After(now) {
		stop.Departure = model.ActualEvent(*depEstimated, depScheduled)
	} else {
		stop.Departure = model.PendingEvent(depScheduled, depEstimated)
	}
	return stop, nil
}

func viaStatus(vt viaTrain) model.FeedStatus {
	switch {
	case vt.Arrived:
		return model.StatusCompleted
	case vt.Departed:
		return model.StatusActive
	default:
		return model.StatusPredeparture
	}
}

func joinAlert(text viaAlertText) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{text.Header, text.Description, text.URL} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

func parseOptionalISO(value string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := timeparse.ParseISO(value, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// numericPrefix parses the leading digits of a train number key;
// section suffixes like "622-2" only matter for identity, not routing.
// ok is false when the key has no leading digits at all.
func numericPrefix(number string) (int, bool) {
	i := 0
	for i < len(number) && number[i] >= '0' && number[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(number[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
