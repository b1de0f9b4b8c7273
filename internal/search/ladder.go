package search

import (
	"fmt"
	"strconv"

	"github.com/hyperjump/horomatch/internal/candidate"
)

// NextMatchPrefix is prepended to status messages while finding another match.
const NextMatchPrefix = "Finding next match: "

// Step is one rung of the search ladder.
type Step struct {
	Strategy candidate.Strategy
	Target   float64
}

// Message returns the status text shown while the step runs.
func (s Step) Message() string {
	target := strconv.FormatFloat(s.Target, 'f', -1, 64)
	switch s.Strategy {
	case candidate.FixedMonthRandomDay:
		return fmt.Sprintf("Checking July dates for matches ≥ %s points...", target)
	case candidate.FixedDayRotatingMonth:
		return fmt.Sprintf("Checking date 23 across months for matches ≥ %s points...", target)
	default:
		return fmt.Sprintf("Searching random dates for matches ≥ %s points...", target)
	}
}

// Ladder is the fixed order of (strategy, threshold) pairs tried by FindMatch.
// Thresholds descend within each strategy group.
var Ladder = []Step{
	{candidate.FixedMonthRandomDay, 9.5},
	{candidate.FixedMonthRandomDay, 9},
	{candidate.FixedMonthRandomDay, 8.5},
	{candidate.FixedMonthRandomDay, 8},

	{candidate.FixedDayRotatingMonth, 9.5},
	{candidate.FixedDayRotatingMonth, 9},
	{candidate.FixedDayRotatingMonth, 8.5},
	{candidate.FixedDayRotatingMonth, 8},

	{candidate.FullyRandom, 9.5},
	{candidate.FullyRandom, 9},
	{candidate.FullyRandom, 8.5},
	{candidate.FullyRandom, 8},
	{candidate.FullyRandom, 7.5},
	{candidate.FullyRandom, 7},
}
