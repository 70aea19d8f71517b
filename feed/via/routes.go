package via

import "fmt"

// The Via feed identifies trains only by number; route names come from
// the number ranges in the published timetable. Ranges below cover the
// current timetable; anything unmatched gets the generic label.
type routeRange struct {
	lo, hi int
	name   string
}

var routeRanges = []routeRange{
	{1, 4, "The Canadian"},
	{5, 6, "Jasper - Prince Rupert"},
	{14, 15, "The Ocean"},
	{20, 29, "Ottawa - Québec City"},
	{30, 39, "Ottawa - Montréal"},
	{40, 49, "Toronto - Ottawa"},
	{50, 59, "Toronto - Ottawa"},
	{60, 69, "Toronto - Montréal"},
	{70, 79, "Toronto - Windsor"},
	{80, 89, "Toronto - Sarnia"},
	{90, 99, "Toronto - Niagara Falls"},
	{185, 186, "Sudbury - White River"},
	{600, 603, "Montréal - Jonquière"},
	{604, 607, "Montréal - Senneterre"},
	{690, 693, "Winnipeg - Churchill"},
}

// routeName resolves a train number key to its named route. Unmatched
// numbers and keys with no numeric prefix fall back to a generic label
// built from the raw key, never an error.
func routeName(number string) string {
	if n, ok := numericPrefix(number); ok {
		for _, r := range routeRanges {
			if n >= r.lo && n <= r.hi {
				return r.name
			}
		}
	}
	return fmt.Sprintf("VIA Rail %s", number)
}
