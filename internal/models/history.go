package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Inputs is the subject's input combination: the fields whose manual change
// resets the ignore set and the current result.
type Inputs struct {
	Name     string    `json:"name" validate:"required"`
	Location *Location `json:"location" validate:"required"`
	Date     string    `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string    `json:"time" validate:"required,datetime=15:04"`
	AmPm     string    `json:"ampm" validate:"omitempty,oneof=am pm"`
}

// Same reports whether two input combinations are identical.
// Locations compare by their loc id only.
func (in Inputs) Same(other Inputs) bool {
	return in.Name == other.Name &&
		locID(in.Location) == locID(other.Location) &&
		in.Date == other.Date &&
		in.Time == other.Time &&
		in.AmPm == other.AmPm
}

// Empty reports whether no field is set.
func (in Inputs) Empty() bool {
	return in.Name == "" && in.Location == nil && in.Date == "" && in.Time == "" && in.AmPm == ""
}

func locID(l *Location) string {
	if l == nil {
		return ""
	}
	return l.Loc
}

// SearchHistoryEntry is a saved snapshot of a completed search.
type SearchHistoryEntry struct {
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name"`
	Location     Location      `json:"location"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	AmPm         string        `json:"ampm"`
	Result       *MatchResult  `json:"result,omitempty"`
	Timestamp    int64         `json:"timestamp"`
	IgnoredDates []IgnoredDate `json:"ignoredDates,omitempty"`
}

// Inputs returns the input combination stored in the entry.
func (e SearchHistoryEntry) Inputs() Inputs {
	loc := e.Location
	return Inputs{
		Name:     e.Name,
		Location: &loc,
		Date:     e.Date,
		Time:     e.Time,
		AmPm:     e.AmPm,
	}
}

// MatchesQuery reports whether the entry matches a case-insensitive history filter.
// An empty query matches everything.
func (e SearchHistoryEntry) MatchesQuery(query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Name), q) ||
		strings.Contains(strings.ToLower(e.Location.Name), q) ||
		strings.Contains(strings.ToLower(e.Location.State), q) ||
		strings.Contains(e.Date, q) {
		return true
	}
	if e.Result == nil {
		return false
	}
	return strings.Contains(strings.ToLower(e.Result.Nakshatra), q) ||
		strings.Contains(strings.ToLower(e.Result.Rasi), q)
}

// NormalizeTime turns free-form digits into "HH:MM". Non-digits are dropped;
// fewer than two digits are returned as-is and more than four is an error.
func NormalizeTime(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 4 {
		return "", fmt.Errorf("time %q has more than 4 digits", raw)
	}
	if len(digits) < 2 {
		return digits, nil
	}
	return digits[:2] + ":" + digits[2:], nil
}
