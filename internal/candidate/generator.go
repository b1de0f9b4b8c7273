// Package candidate generates the day/month pairs tried in each search round.
package candidate

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hyperjump/horomatch/internal/models"
)

// Strategy selects how a batch of candidates is drawn.
type Strategy string

const (
	// FixedMonthRandomDay fixes the month and draws days uniformly from 1..31
	// without calendar validation.
	FixedMonthRandomDay Strategy = "july"
	// FixedDayRotatingMonth fixes the day and walks a random permutation of the months.
	FixedDayRotatingMonth Strategy = "date23"
	// FullyRandom draws calendar-valid pairs for the fixed year.
	FullyRandom Strategy = "random"
)

const (
	// FixedMonth is the month used by FixedMonthRandomDay.
	FixedMonth = 7
	// FixedDay is the day used by FixedDayRotatingMonth.
	FixedDay = 23
	// DefaultYear is the fixed counterpart birth year.
	DefaultYear = 1996
)

// Generator draws candidate batches from a random source. Safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	year int
}

// NewGenerator creates a generator. A nil rnd uses a randomly seeded source;
// a non-positive year uses DefaultYear.
func NewGenerator(rnd *rand.Rand, year int) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if year <= 0 {
		year = DefaultYear
	}
	return &Generator{rnd: rnd, year: year}
}

// Year returns the fixed year candidates are validated against.
func (g *Generator) Year() int {
	return g.year
}

// Generate returns a batch for the strategy. FixedDayRotatingMonth returns
// min(count, 12) pairs; the other strategies return exactly count pairs.
// Unknown strategies and non-positive counts return nil.
func (g *Generator) Generate(strategy Strategy, count int) []models.CandidateDate {
	if count <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch strategy {
	case FixedMonthRandomDay:
		out := make([]models.CandidateDate, 0, count)
		for i := 0; i < count; i++ {
			out = append(out, models.CandidateDate{Day: g.rnd.IntN(31) + 1, Month: FixedMonth})
		}
		return out
	case FixedDayRotatingMonth:
		months := g.rnd.Perm(12)
		n := min(count, 12)
		out := make([]models.CandidateDate, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, models.CandidateDate{Day: FixedDay, Month: months[i] + 1})
		}
		return out
	case FullyRandom:
		out := make([]models.CandidateDate, 0, count)
		for len(out) < count {
			month := g.rnd.IntN(12) + 1
			day := g.rnd.IntN(DaysIn(g.year, month)) + 1
			out = append(out, models.CandidateDate{Day: day, Month: month})
		}
		return out
	}
	return nil
}

// DaysIn returns the number of days in month for year.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
