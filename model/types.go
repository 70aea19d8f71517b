package model

import (
	"fmt"
	"time"
)

// Agency identifies which upstream feed a train was reported by.
type Agency string

const (
	AgencyAmtrak     Agency = "amtrak"
	AgencyVia        Agency = "via"
	AgencyBrightline Agency = "brightline"
)

// FeedStatus is the raw status reported (or inferred) from the upstream
// feed, as opposed to the derived TimeStatus computed by the status engine.
type FeedStatus string

const (
	StatusPredeparture FeedStatus = "Predeparture"
	StatusActive       FeedStatus = "Active"
	StatusCompleted    FeedStatus = "Completed"
)

// TimeStatus is the derived operational status of a train.
type TimeStatus string

const (
	TimePredeparture TimeStatus = "Predeparture"
	TimeOnTime       TimeStatus = "OnTime"
	TimeDelayed      TimeStatus = "Delayed"
	TimeComplete     TimeStatus = "Complete"
	TimeUnknown      TimeStatus = "Unknown"
)

// Coordinates is a [longitude, latitude] pair, GeoJSON axis order.
type Coordinates [2]float64

func (c Coordinates) Lon() float64 { return c[0] }
func (c Coordinates) Lat() float64 { return c[1] }

// Train is one physical train currently reported by any feed. Train
// values are immutable snapshots; nothing mutates a Train after its
// adapter produced it.
type Train struct {
	ID          string       `json:"id"`
	Agency      Agency       `json:"agency"`
	Name        string       `json:"name"`
	Number      string       `json:"number"`
	Status      FeedStatus   `json:"status"`
	Updated     *time.Time   `json:"updated,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Speed       *float64     `json:"speed,omitempty"`
	Heading     *float64     `json:"heading,omitempty"`
	Alerts      []string     `json:"alerts"`
	Stops       []Stop       `json:"stops"`
}

// TrainID builds the agency-scoped identifier, e.g. "amtrak/1234".
func TrainID(agency Agency, number string) string {
	return fmt.Sprintf("%s/%s", agency, number)
}

// Stop is a single scheduled/observed station visit within one train's
// itinerary. Stops are ordered by itinerary sequence, which upstream
// data defects may not keep strictly monotonic in time.
type Stop struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	Arrival   StopEvent `json:"arrival"`
	Departure StopEvent `json:"departure"`
}

// TrainMeta is the derived per-train status, recomputed fresh on every
// evaluation. Prev/Cur/Next point into the evaluated train's Stops.
type TrainMeta struct {
	Code TrainStatusCode `json:"code"`
	Prev *Stop           `json:"prevStop,omitempty"`
	Cur  *Stop           `json:"curStop,omitempty"`
	Next *Stop           `json:"nextStop,omitempty"`

	// Delay is signed minutes at the relevant stop; positive = late.
	Delay int `json:"delay"`

	// Progress is the fraction of the current segment already
	// traversed, in [0, 1]. Zero while at a station.
	Progress float64 `json:"progress"`

	// MinutesToDeparture counts down dwell time while the train is
	// physically at a station; nil en route.
	MinutesToDeparture *int `json:"minutesToDeparture,omitempty"`

	// Stale flags trains whose feed data has not refreshed recently.
	// Display hint only.
	Stale bool `json:"stale,omitempty"`
}

// TrainStatusCode aliases TimeStatus for the meta payload.
type TrainStatusCode = TimeStatus
