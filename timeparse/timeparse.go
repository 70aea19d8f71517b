// Package timeparse turns the ad-hoc date strings emitted by the
// upstream rail feeds into absolute instants. The feeds identify
// timezones with their own short region codes rather than IANA names,
// so parsing always goes through the static code table below.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
)

var (
	// ErrUnknownTimezone reports a feed timezone code missing from the
	// static lookup table.
	ErrUnknownTimezone = errors.New("unknown timezone code")

	// ErrDateParse reports a date string that matches no supported layout.
	ErrDateParse = errors.New("unparseable date")
)

const (
	// layout24 matches e.g. "02/19/2024 08:05:00".
	layout24 = "01/02/2006 15:04:05"
	// layout12 matches e.g. "2/19/2024 9:04:51 AM" (zone abbreviation,
	// when present, is stripped and mapped before parsing).
	layout12 = "1/2/2006 3:04:05 PM"
	// layoutISO matches e.g. "2024-02-19T09:04:51" (zoneless local time).
	layoutISO = "2006-01-02T15:04:05"
)

// zoneForCode maps feed-local timezone codes to IANA identifiers. The
// single-letter codes are Amtrak's; the abbreviations appear embedded
// in 12-hour timestamps.
var zoneForCode = map[string]string{
	"E": "America/New_York",
	"C": "America/Chicago",
	"M": "America/Denver",
	"P": "America/Los_Angeles",
	"A": "America/Halifax",

	"EDT": "America/New_York",
	"EST": "America/New_York",
	"CDT": "America/Chicago",
	"CST": "America/Chicago",
	"MDT": "America/Denver",
	"MST": "America/Denver",
	"PDT": "America/Los_Angeles",
	"PST": "America/Los_Angeles",
	"ADT": "America/Halifax",
	"AST": "America/Halifax",
}

var (
	locMu    sync.Mutex
	locCache = map[string]*time.Location{}
)

// LoadIANA loads an IANA location, caching the result. Adapters call
// this once per stop, so repeated LoadLocation syscalls add up.
func LoadIANA(name string) (*time.Location, error) {
	locMu.Lock()
	defer locMu.Unlock()
	if loc, ok := locCache[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	locCache[name] = loc
	return loc, nil
}

// Location resolves a feed timezone code to its IANA location.
func Location(code string) (*time.Location, error) {
	name, ok := zoneForCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, code)
	}
	return LoadIANA(name)
}

// Parse interprets value in the zone named by tzCode. hour12 selects
// the meridiem layout; 12-hour values may carry a trailing zone
// abbreviation which overrides tzCode.
func Parse(value, tzCode string, hour12 bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrDateParse)
	}

	layout := layout24
	if hour12 {
		value, tzCode = splitZoneSuffix(value, tzCode)
		layout = layout12
	}

	loc, err := Location(tzCode)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, value)
	}
	return t, nil
}

// ParseISO interprets a zoneless ISO-8601 local timestamp in loc.
func ParseISO(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.ParseInLocation(layoutISO, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, value)
	}
	return t, nil
}

// splitZoneSuffix strips a trailing zone abbreviation ("... AM EST")
// and returns it as the code to use. AM/PM markers are not zones.
func splitZoneSuffix(value, fallback string) (string, string) {
	i := strings.LastIndexByte(value, ' ')
	if i < 0 {
		return value, fallback
	}
	tail := value[i+1:]
	if tail == "AM" || tail == "PM" || tail == "" {
		return value, fallback
	}
	for _, r := range tail {
		if !unicode.IsLetter(r) {
			return value, fallback
		}
	}
	return strings.TrimSpace(value[:i]), tail
}
