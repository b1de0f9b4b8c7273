package candidate

import "github.com/hyperjump/horomatch/internal/models"

// IgnoreSet is a lookup over ignored day/month pairs.
type IgnoreSet map[models.CandidateDate]struct{}

// NewIgnoreSet builds a set from ignored dates.
func NewIgnoreSet(ignored []models.IgnoredDate) IgnoreSet {
	set := make(IgnoreSet, len(ignored))
	for _, d := range ignored {
		set[d.Candidate()] = struct{}{}
	}
	return set
}

// Contains reports whether c is ignored.
func (s IgnoreSet) Contains(c models.CandidateDate) bool {
	_, ok := s[c]
	return ok
}

// Filter returns the candidates not in the set, preserving generation order.
func (s IgnoreSet) Filter(candidates []models.CandidateDate) []models.CandidateDate {
	out := make([]models.CandidateDate, 0, len(candidates))
	for _, c := range candidates {
		if !s.Contains(c) {
			out = append(out, c)
		}
	}
	return out
}
