package models

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownLabel is used when a nakshatra or rasi label cannot be extracted.
const UnknownLabel = "Unknown"

// CandidateDate is a hypothesized day/month pair for the counterpart. The year is fixed.
type CandidateDate struct {
	Day   int `json:"day"`
	Month int `json:"month"`
}

// Format renders the candidate as "D/M/Y" for the given year.
func (c CandidateDate) Format(year int) string {
	return fmt.Sprintf("%d/%d/%d", c.Day, c.Month, year)
}

// ParseCandidateDate parses a "D/M/Y" (or "D/M") string back into a candidate.
func ParseCandidateDate(s string) (CandidateDate, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return CandidateDate{}, fmt.Errorf("invalid date %q: want D/M/Y", s)
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return CandidateDate{}, fmt.Errorf("invalid day in %q: %w", s, err)
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return CandidateDate{}, fmt.Errorf("invalid month in %q: %w", s, err)
	}
	return CandidateDate{Day: day, Month: month}, nil
}

// Labels are the two descriptive astrological labels for a birth date.
type Labels struct {
	Nakshatra string `json:"nakshatra"`
	Rasi      string `json:"rasi"`
}

// Score is the outcome of one remote scoring call.
type Score struct {
	Candidate CandidateDate `json:"candidate"`
	Points    float64       `json:"points"`
	HTML      string        `json:"-"`
}

// MatchResult is an accepted, scored compatibility outcome.
type MatchResult struct {
	Date      string  `json:"date"`
	Nakshatra string  `json:"nakshatra"`
	Rasi      string  `json:"rasi"`
	Points    float64 `json:"points"`
	MatchHTML string  `json:"matchHtml,omitempty"`
}

// IgnoredDate is a rejected candidate excluded from later rounds.
// Timestamp is milliseconds since the Unix epoch.
type IgnoredDate struct {
	Day       int   `json:"day"`
	Month     int   `json:"month"`
	Timestamp int64 `json:"timestamp"`
}

// Candidate returns the day/month pair of the ignored date.
func (d IgnoredDate) Candidate() CandidateDate {
	return CandidateDate{Day: d.Day, Month: d.Month}
}
