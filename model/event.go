package model

import "time"

// EventState distinguishes a stop event that is still forecast from one
// that has been observed. The upstream feeds collapse this into "which
// fields happen to be null"; modelling it as an explicit two-case union
// makes the estimated-to-actual promotion rules testable.
type EventState string

const (
	EventPending EventState = "pending"
	EventActual  EventState = "actual"
)

// StopEvent is one arrival or departure at a stop.
//
// Pending events carry the schedule and the live estimate. Actual
// events carry only the observed instant; promotion clears the
// forward-looking fields so consumers never render an estimate for
// something that already happened.
type StopEvent struct {
	State     EventState `json:"state"`
	Scheduled *time.Time `json:"scheduled,omitempty"`
	Estimated *time.Time `json:"estimated,omitempty"`
	Actual    *time.Time `json:"actual,omitempty"`

	// Delay is signed minutes relative to schedule; positive = late.
	Delay *int `json:"delay,omitempty"`
}

// PendingEvent builds a forecast event from schedule and estimate,
// either of which may be nil.
func PendingEvent(scheduled, estimated *time.Time) StopEvent {
	e := StopEvent{State: EventPending, Scheduled: scheduled, Estimated: estimated}
	if scheduled != nil && estimated != nil {
		d := int(estimated.Sub(*scheduled).Round(time.Minute) / time.Minute)
		e.Delay = &d
	}
	return e
}

// ActualEvent builds an observed event. The scheduled instant, when
// known, is kept only long enough to compute the delay.
func ActualEvent(observed time.Time, scheduled *time.Time) StopEvent {
	e := StopEvent{State: EventActual, Actual: &observed}
	if scheduled != nil {
		d := int(observed.Sub(*scheduled).Round(time.Minute) / time.Minute)
		e.Delay = &d
	}
	return e
}

// Time returns the best-known instant for the event:
// actual > estimated > scheduled. Nil when nothing is known.
func (e StopEvent) Time() *time.Time {
	switch {
	case e.Actual != nil:
		return e.Actual
	case e.Estimated != nil:
		return e.Estimated
	default:
		return e.Scheduled
	}
}

// DelayMinutes returns the event delay, zero when unknown.
func (e StopEvent) DelayMinutes() int {
	if e.Delay == nil {
		return 0
	}
	return *e.Delay
}
