// Package stations loads the static station reference table: code to
// name, IANA timezone and coordinate. The table is an external asset;
// this core only reads it.
package stations

import (
	"encoding/json"
	"fmt"
	"os"
)

// Station is one reference entry.
type Station struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Timezone string  `json:"timezone"`
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
}

// Table is a read-only station lookup, safe for concurrent use once built.
type Table struct {
	byCode map[string]Station
}

// NewTable indexes a station list by code. Later duplicates win.
func NewTable(list []Station) *Table {
	t := &Table{byCode: make(map[string]Station, len(list))}
	for _, s := range list {
		t.byCode[s.Code] = s
	}
	return t
}

// Load reads a JSON array of stations from disk.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations %s: %w", path, err)
	}
	var list []Station
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse stations %s: %w", path, err)
	}
	return NewTable(list), nil
}

// Get looks a station up by code.
func (t *Table) Get(code string) (Station, bool) {
	s, ok := t.byCode[code]
	return s, ok
}

// Len reports how many stations are indexed.
func (t *Table) Len() int { return len(t.byCode) }
