// Package status derives a train's operational status from its stop
// itinerary and the current wall clock. Evaluate is a pure function of
// (Train, now): no I/O, no caching, safe to call inline from any
// goroutine. Results depend on "now" and must be recomputed per tick.
package status

import (
	"time"

	"trainwatch/model"
)

const (
	// Delay thresholds scale with total scheduled trip duration: a long
	// distance train is not "delayed" over the same few minutes that
	// matter on a corridor run.
	shortTripThreshold = 5  // minutes
	longTripThreshold  = 10 // minutes
	longTripCutoff     = 12 * time.Hour

	// staleAfter is how long without a feed refresh before the display
	// should warn about stale data. Display semantics only.
	staleAfter = 10 * time.Minute
)

// Evaluate computes the derived status for one train.
func Evaluate(t model.Train, now time.Time) model.TrainMeta {
	meta := model.TrainMeta{Code: model.TimeUnknown}

	prevIdx, curIdx, nextIdx := locate(t.Stops, now)
	if prevIdx >= 0 {
		meta.Prev = &t.Stops[prevIdx]
	}
	if curIdx >= 0 {
		meta.Cur = &t.Stops[curIdx]
	}
	if nextIdx >= 0 {
		meta.Next = &t.Stops[nextIdx]
	}

	switch {
	case nextIdx < 0:
		meta.Code = model.TimeComplete

	case prevIdx < 0 && nextIdx == 0:
		meta.Code = model.TimePredeparture
		meta.Delay = delayAt(t.Stops[nextIdx])

	default:
		delayStop := meta.Next
		if meta.Cur != nil {
			delayStop = meta.Cur
		}
		if delayStop.Arrival.Time() == nil {
			// No known arrival to measure against; stays Unknown and
			// gets re-evaluated next tick.
			break
		}
		// A known arrival with no deviation data reads as on time.
		meta.Delay = delayAt(*delayStop)
		if meta.Delay > delayThreshold(t.Stops) {
			meta.Code = model.TimeDelayed
		} else {
			meta.Code = model.TimeOnTime
		}
	}

	meta.Progress, meta.MinutesToDeparture = progress(meta, now)
	meta.Stale = isStale(t, meta.Code, now)
	return meta
}

// locate finds the previous, current and next stop indices by itinerary
// order. Source feeds can emit non-monotonic times; indices are taken
// from position in the itinerary, never by sorting times.
func locate(stops []model.Stop, now time.Time) (prev, cur, next int) {
	prev, cur, next = -1, -1, -1
	for i := range stops {
		if dt := stops[i].Departure.Time(); dt != nil && dt.Before(now) {
			prev = i
		}
		at := stops[i].Arrival.Time()
		if cur < 0 && at != nil && at.Before(now) {
			if dt := stops[i].Departure.Time(); dt != nil && dt.After(now) {
				cur = i
			}
		}
		if next < 0 && at != nil && at.After(now) {
			next = i
		}
	}
	return prev, cur, next
}

// delayAt reads the delay at a stop, preferring the arrival side.
// Zero when neither event carries delay information.
func delayAt(s model.Stop) int {
	if s.Arrival.Delay != nil {
		return *s.Arrival.Delay
	}
	return s.Departure.DelayMinutes()
}

// delayThreshold picks the tolerance based on scheduled end-to-end
// duration. Unknown boundary times fall back to the stricter threshold.
func delayThreshold(stops []model.Stop) int {
	first := stops[0].Departure.Scheduled
	if first == nil {
		first = stops[0].Arrival.Scheduled
	}
	last := stops[len(stops)-1].Arrival.Scheduled
	if last == nil {
		last = stops[len(stops)-1].Departure.Scheduled
	}
	if first == nil || last == nil {
		return shortTripThreshold
	}
	if last.Sub(*first) > longTripCutoff {
		return longTripThreshold
	}
	return shortTripThreshold
}

// progress reports how far along the current segment the train is.
// At a station it is 0 with a dwell countdown; en route it is the
// elapsed-time fraction between the previous stop's arrival and the
// next stop's arrival, clamped to [0, 1]. Unknown boundaries yield 0
// with no countdown.
func progress(meta model.TrainMeta, now time.Time) (float64, *int) {
	if meta.Cur != nil {
		if dt := meta.Cur.Departure.Time(); dt != nil {
			min := int(dt.Sub(now).Round(time.Minute) / time.Minute)
			if min < 0 {
				min = 0
			}
			return 0, &min
		}
		return 0, nil
	}
	if meta.Prev == nil || meta.Next == nil {
		return 0, nil
	}
	from := meta.Prev.Arrival.Time()
	to := meta.Next.Arrival.Time()
	if from == nil || to == nil || !to.After(*from) {
		return 0, nil
	}
	frac := now.Sub(*from).Seconds() / to.Sub(*from).Seconds()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac, nil
}

// isStale flags trains whose feed data stopped refreshing. Predeparture
// and completed trains are exempt: their data legitimately stops moving.
func isStale(t model.Train, code model.TimeStatus, now time.Time) bool {
	if code == model.TimePredeparture || code == model.TimeComplete {
		return false
	}
	if t.Updated == nil {
		return false
	}
	return now.Sub(*t.Updated) > staleAfter
}
