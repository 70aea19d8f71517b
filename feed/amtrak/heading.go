package amtrak

import (
	"fmt"

	"trainwatch/feed"
)

// The feed reports heading as an 8-point compass name.
var headingDegrees = map[string]float64{
	"N":  0,
	"NE": 45,
	"E":  90,
	"SE": 135,
	"S":  180,
	"SW": 225,
	"W":  270,
	"NW": 315,
}

// headingFromCompass maps a compass-point name to degrees clockwise
// from north. Unmapped values degrade to an absent heading upstream.
func headingFromCompass(name string) (float64, error) {
	deg, ok := headingDegrees[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", feed.ErrUnknownHeading, name)
	}
	return deg, nil
}
