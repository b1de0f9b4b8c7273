// Package models defines core data structures for locations, candidate dates, match results, and history.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is a geocoded place returned by the location search.
type Location struct {
	Loc         string  `json:"loc"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// DisplayName returns "<name>, <state>, <country>", the form used for the
// glocation field and for the search box after a selection.
func (l Location) DisplayName() string {
	return fmt.Sprintf("%s, %s, %s", l.Name, l.State, l.Country)
}

// ParseLocationRecord parses one pipe-delimited record:
// loc|name|state|country|country_code|timezone|latitude|longitude.
// Missing trailing fields are left empty; unparsable coordinates become 0.
func ParseLocationRecord(record string) Location {
	parts := strings.Split(record, "|")
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	lat, _ := strconv.ParseFloat(strings.TrimSpace(field(6)), 64)
	lng, _ := strconv.ParseFloat(strings.TrimSpace(field(7)), 64)
	return Location{
		Loc:         field(0),
		Name:        field(1),
		State:       field(2),
		Country:     field(3),
		CountryCode: field(4),
		Timezone:    field(5),
		Latitude:    lat,
		Longitude:   lng,
	}
}
