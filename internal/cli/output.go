// Package cli provides output writers for the horomatch command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hyperjump/horomatch/internal/models"
	"github.com/hyperjump/horomatch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a -json flag to a format.
func ParseOutputFormat(asJSON bool) OutputFormat {
	if asJSON {
		return OutputJSON
	}
	return OutputText
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes a match result.
func WriteResult(w io.Writer, result *models.MatchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	if result == nil {
		fmt.Fprintln(w, "No match.")
		return nil
	}
	fmt.Fprintf(w, "\nMatch found: %s\n", result.Date)
	fmt.Fprintf(w, "Points:    %s / 10\n", formatPoints(result.Points))
	fmt.Fprintf(w, "Nakshatra: %s\n", result.Nakshatra)
	fmt.Fprintf(w, "Rasi:      %s\n\n", result.Rasi)
	return nil
}

// WriteHistory writes history entries, newest first.
func WriteHistory(w io.Writer, entries []models.SearchHistoryEntry, format OutputFormat) error {
	if format == OutputJSON {
		if entries == nil {
			entries = []models.SearchHistoryEntry{}
		}
		return writeJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No search history.")
		return nil
	}
	fmt.Fprintf(w, "\n%d searches\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "ID: %s | %s\n", e.ID, time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "%s, born %s %s %s in %s\n", e.Name, e.Date, e.Time, e.AmPm, utils.Truncate(e.Location.DisplayName(), 60))
		if e.Result != nil {
			fmt.Fprintf(w, "Match: %s (%s points, %s / %s)\n",
				e.Result.Date, formatPoints(e.Result.Points), e.Result.Nakshatra, e.Result.Rasi)
		}
		if len(e.IgnoredDates) > 0 {
			fmt.Fprintf(w, "Ignored: %s\n", utils.TruncateWords(joinIgnored(e.IgnoredDates), 12))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteLocations writes location search results.
func WriteLocations(w io.Writer, locations []models.Location, format OutputFormat) error {
	if format == OutputJSON {
		if locations == nil {
			locations = []models.Location{}
		}
		return writeJSON(w, locations)
	}
	if len(locations) == 0 {
		fmt.Fprintln(w, "No locations found.")
		return nil
	}
	for _, l := range locations {
		fmt.Fprintf(w, "%-10s %s (%s)\n", l.Loc, l.DisplayName(), l.Timezone)
	}
	return nil
}

// WriteIgnored writes the ignore list.
func WriteIgnored(w io.Writer, ignored []models.IgnoredDate, format OutputFormat) error {
	if format == OutputJSON {
		if ignored == nil {
			ignored = []models.IgnoredDate{}
		}
		return writeJSON(w, ignored)
	}
	if len(ignored) == 0 {
		fmt.Fprintln(w, "No ignored dates.")
		return nil
	}
	for _, d := range ignored {
		fmt.Fprintf(w, "%d/%d\tignored %s\n", d.Day, d.Month, time.UnixMilli(d.Timestamp).Format("2006-01-02 15:04"))
	}
	return nil
}

// WriteDetails renders the scoring page of a match as Markdown.
func WriteDetails(w io.Writer, html string) error {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	md, err := conv.ConvertString(html)
	if err != nil {
		return fmt.Errorf("failed to convert match details: %w", err)
	}
	_, err = fmt.Fprintln(w, strings.TrimSpace(md))
	return err
}

func joinIgnored(ignored []models.IgnoredDate) string {
	parts := make([]string, len(ignored))
	for i, d := range ignored {
		parts[i] = fmt.Sprintf("%d/%d", d.Day, d.Month)
	}
	return strings.Join(parts, " ")
}

func formatPoints(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
