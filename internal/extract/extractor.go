// Package extract pulls scores, labels, and location records out of the
// third-party astrology pages returned by the relay.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/horomatch/internal/models"
)

// Default patterns for the upstream pages. Each must have exactly one capture group.
const (
	DefaultScorePattern     = `<h2>Total Porutham Points</h2></td><td class="tc"><h2>(\d+(?:\.\d+)?) / 10`
	DefaultNakshatraPattern = `<td class="t-large b">Nakshatra</td>\s*<td>\s*<span class="t-large b">\s*(.*?)(?:,|<)`
	DefaultRasiPattern      = `Chandra Rasi <em>\(Janma Rasi \)</em>\s*</td>\s*<td>(.*?)<`
)

// Extractor reads values out of upstream HTML. The bool results report whether
// the pattern matched; on a miss the value is the compatibility default
// (0 points, or models.UnknownLabel).
type Extractor interface {
	Score(html string) (float64, bool)
	Labels(html string) (models.Labels, LabelHits)
}

// LabelHits reports which labels were found.
type LabelHits struct {
	Nakshatra bool
	Rasi      bool
}

// All reports whether both labels were found.
func (h LabelHits) All() bool {
	return h.Nakshatra && h.Rasi
}

// Patterns holds the regular expressions used by PatternExtractor.
// Empty fields fall back to the defaults.
type Patterns struct {
	Score     string
	Nakshatra string
	Rasi      string
}

// PatternExtractor implements Extractor with fixed regular expressions.
type PatternExtractor struct {
	score     *regexp.Regexp
	nakshatra *regexp.Regexp
	rasi      *regexp.Regexp
}

// NewPatternExtractor compiles p. Returns an error naming the bad pattern.
func NewPatternExtractor(p Patterns) (*PatternExtractor, error) {
	score, err := compile("score", p.Score, DefaultScorePattern)
	if err != nil {
		return nil, err
	}
	nakshatra, err := compile("nakshatra", p.Nakshatra, DefaultNakshatraPattern)
	if err != nil {
		return nil, err
	}
	rasi, err := compile("rasi", p.Rasi, DefaultRasiPattern)
	if err != nil {
		return nil, err
	}
	return &PatternExtractor{score: score, nakshatra: nakshatra, rasi: rasi}, nil
}

// NewDefaultExtractor returns an extractor using the default patterns.
func NewDefaultExtractor() *PatternExtractor {
	e, err := NewPatternExtractor(Patterns{})
	if err != nil {
		panic(err)
	}
	return e
}

func compile(name, pattern, fallback string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = fallback
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("invalid %s pattern: needs a capture group", name)
	}
	return re, nil
}

// Score extracts the total points. Returns (0, false) when absent or unparsable.
func (e *PatternExtractor) Score(html string) (float64, bool) {
	m := e.score.FindStringSubmatch(html)
	if m == nil {
		return 0, false
	}
	points, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return points, true
}

// Labels extracts nakshatra and rasi independently.
func (e *PatternExtractor) Labels(html string) (models.Labels, LabelHits) {
	var hits LabelHits
	labels := models.Labels{Nakshatra: models.UnknownLabel, Rasi: models.UnknownLabel}
	if m := e.nakshatra.FindStringSubmatch(html); m != nil {
		labels.Nakshatra = strings.TrimSpace(m[1])
		hits.Nakshatra = true
	}
	if m := e.rasi.FindStringSubmatch(html); m != nil {
		labels.Rasi = strings.TrimSpace(m[1])
		hits.Rasi = true
	}
	return labels, hits
}
