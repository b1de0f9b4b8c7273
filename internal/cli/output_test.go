package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/horomatch/internal/models"
)

func sampleEntry() models.SearchHistoryEntry {
	return models.SearchHistoryEntry{
		ID:        "entry-1",
		Name:      "Priya",
		Location:  models.Location{Loc: "123", Name: "Chennai", State: "Tamil Nadu", Country: "India"},
		Date:      "1998-05-10",
		Time:      "14:30",
		AmPm:      "pm",
		Result:    &models.MatchResult{Date: "14/7/1996", Nakshatra: "Rohini", Rasi: "Rishabam", Points: 9.5},
		Timestamp: 1735787045000,
		IgnoredDates: []models.IgnoredDate{
			{Day: 3, Month: 7, Timestamp: 1735787000000},
		},
	}
}

func TestWriteResult_Text(t *testing.T) {
	var buf bytes.Buffer
	result := &models.MatchResult{Date: "14/7/1996", Nakshatra: "Rohini", Rasi: "Rishabam", Points: 8.5}
	if err := WriteResult(&buf, result, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Match found: 14/7/1996", "8.5 / 10", "Rohini", "Rishabam"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteResult(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No match") {
		t.Errorf("nil result: got %q", buf.String())
	}
}

func TestWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	result := &models.MatchResult{Date: "14/7/1996", Nakshatra: "Rohini", Rasi: "Rishabam", Points: 9, MatchHTML: "<h2>x</h2>"}
	if err := WriteResult(&buf, result, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.MatchResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded != *result {
		t.Errorf("decoded %+v, want %+v", decoded, *result)
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, []models.SearchHistoryEntry{sampleEntry()}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"1 searches", "ID: entry-1", "Chennai, Tamil Nadu, India", "14/7/1996 (9.5 points, Rohini / Rishabam)", "Ignored: 3/7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteHistory(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty JSON history: got %s", got)
	}

	buf.Reset()
	if err := WriteHistory(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No search history") {
		t.Errorf("empty text history: got %q", buf.String())
	}
}

func TestWriteLocations(t *testing.T) {
	var buf bytes.Buffer
	locations := []models.Location{{Loc: "1264527", Name: "Chennai", State: "Tamil Nadu", Country: "India", Timezone: "Asia/Kolkata"}}
	if err := WriteLocations(&buf, locations, OutputText); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "1264527") || !strings.Contains(out, "Chennai, Tamil Nadu, India (Asia/Kolkata)") {
		t.Errorf("unexpected output: %s", out)
	}

	buf.Reset()
	if err := WriteLocations(&buf, locations, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []models.Location
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 1 || decoded[0] != locations[0] {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestWriteIgnored(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteIgnored(&buf, []models.IgnoredDate{{Day: 23, Month: 4}, {Day: 9, Month: 7}}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "23/4\t") || !strings.Contains(out, "9/7\t") {
		t.Errorf("unexpected output: %s", out)
	}

	buf.Reset()
	if err := WriteIgnored(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No ignored dates") {
		t.Errorf("empty list: got %q", buf.String())
	}
}

func TestWriteDetails(t *testing.T) {
	html := `<h2>Total Porutham Points</h2><p>Match is <b>good</b></p>`
	var buf bytes.Buffer
	if err := WriteDetails(&buf, html); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "## Total Porutham Points") {
		t.Errorf("heading not converted:\n%s", out)
	}
	if !strings.Contains(out, "**good**") {
		t.Errorf("bold not converted:\n%s", out)
	}
	if strings.Contains(out, "<h2>") {
		t.Errorf("html left in output:\n%s", out)
	}
}

func TestParseOutputFormat(t *testing.T) {
	if ParseOutputFormat(true) != OutputJSON || ParseOutputFormat(false) != OutputText {
		t.Error("unexpected format mapping")
	}
}
