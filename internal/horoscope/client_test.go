package horoscope

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/horomatch/internal/extract"
	"github.com/hyperjump/horomatch/internal/models"
)

func writeRelayBody(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func testSubject(t *testing.T) Subject {
	t.Helper()
	s, err := NewSubject(models.Inputs{
		Name:     "Priya",
		Location: &models.Location{Loc: "123", Name: "Chennai", State: "Tamil Nadu", Country: "India"},
		Date:     "1998-05-10",
		Time:     "14:30",
		AmPm:     "pm",
	}, "")
	if err != nil {
		t.Fatalf("NewSubject() error: %v", err)
	}
	return s
}

func TestSearchLocations(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/fn/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer anon" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Query().Get("q") {
		case "Chennai":
			writeRelayBody(w, `["1264527|Chennai|Tamil Nadu|India|IN|Asia/Kolkata|13.08784|80.27847"]`)
		default:
			writeRelayBody(w, `<html>oops</html>`)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/fn/", AuthToken: "anon", CacheSize: 4})
	ctx := context.Background()

	locs, err := c.SearchLocations(ctx, "Ch")
	if err != nil || len(locs) != 0 {
		t.Fatalf("short query = %v, %v", locs, err)
	}
	if calls.Load() != 0 {
		t.Fatalf("short query made %d calls", calls.Load())
	}

	locs, err = c.SearchLocations(ctx, "Chennai")
	if err != nil {
		t.Fatalf("SearchLocations() error: %v", err)
	}
	if len(locs) != 1 || locs[0].Loc != "1264527" || locs[0].Timezone != "Asia/Kolkata" {
		t.Errorf("unexpected locations: %+v", locs)
	}
	if _, err := c.SearchLocations(ctx, "Chennai"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("cached query made %d calls, want 1", calls.Load())
	}

	locs, err = c.SearchLocations(ctx, "garbage")
	if err != nil || len(locs) != 0 {
		t.Errorf("unparsable payload = %v, %v; want empty list", locs, err)
	}
}

func TestScore(t *testing.T) {
	var mu sync.Mutex
	var fields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/match" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		mu.Lock()
		fields = make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		mu.Unlock()
		if r.FormValue("bday") == "14" {
			writeRelayBody(w, `<h2>Total Porutham Points</h2></td><td class="tc"><h2>8.5 / 10</h2>`)
			return
		}
		writeRelayBody(w, `<p>no score</p>`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	ctx := context.Background()

	score, err := c.Score(ctx, models.CandidateDate{Day: 14, Month: 3}, testSubject(t))
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if score.Points != 8.5 || score.Candidate.Day != 14 || score.HTML == "" {
		t.Errorf("unexpected score: %+v", score)
	}

	want := map[string]string{
		"compatibility_system": "Tamil Porutham",
		"gname":                "Priya",
		"glocation":            "Chennai, Tamil Nadu, India",
		"gloc":                 "123",
		"gyear":                "1998",
		"gmonth":               "05",
		"gday":                 "10",
		"ghour":                "14",
		"gmin":                 "30",
		"gapm":                 "pm",
		"ggender":              "female",
		"bname":                "Ranjithkumar R",
		"blocation":            "Vellore, Tamil Nadu, India",
		"bloc":                 "1253286",
		"byear":                "1996",
		"bhour":                "9",
		"bmin":                 "45",
		"bapm":                 "am",
		"bgender":              "male",
		"p":                    "1",
		"bmonth":               "3",
		"bday":                 "14",
	}
	mu.Lock()
	defer mu.Unlock()
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("sent %d fields, want %d", len(fields), len(want))
	}

}

func TestScore_PatternMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRelayBody(w, `<p>no score</p>`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	score, err := c.Score(context.Background(), models.CandidateDate{Day: 1, Month: 7}, testSubject(t))
	if err != nil {
		t.Fatalf("Score() miss error: %v", err)
	}
	if score.Points != 0 {
		t.Errorf("pattern miss points = %v, want 0", score.Points)
	}
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nakshatra" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if r.FormValue("utm_source") != "Nakshatra_Finder" || r.FormValue("loc") != "1253286" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		if r.FormValue("day") == "23" && r.FormValue("month") == "7" {
			writeRelayBody(w, `<td class="t-large b">Nakshatra</td><td><span class="t-large b">Makam, Pada 1</span>`+
				`Chandra Rasi <em>(Janma Rasi )</em></td><td>Simham</td>`)
			return
		}
		writeRelayBody(w, `nothing`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	labels, err := c.Lookup(context.Background(), models.CandidateDate{Day: 23, Month: 7})
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if labels.Nakshatra != "Makam" || labels.Rasi != "Simham" {
		t.Errorf("labels = %+v", labels)
	}

	labels, err = c.Lookup(context.Background(), models.CandidateDate{Day: 1, Month: 1})
	if err != nil {
		t.Fatal(err)
	}
	if labels.Nakshatra != models.UnknownLabel || labels.Rasi != models.UnknownLabel {
		t.Errorf("miss labels = %+v", labels)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"upstream down"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	_, err := c.Score(context.Background(), models.CandidateDate{Day: 1, Month: 1}, testSubject(t))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != 500 || se.Route != RouteMatch {
		t.Errorf("unexpected status error: %+v", se)
	}

	if _, err := c.SearchLocations(context.Background(), "Chennai"); !errors.As(err, &se) || se.Route != RouteSearch {
		t.Errorf("SearchLocations error = %v", err)
	}
}

func TestPerCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Lookup(context.Background(), models.CandidateDate{Day: 1, Month: 1})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not applied")
	}
}

func TestSetExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRelayBody(w, `points: 9`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	score, _ := c.Score(context.Background(), models.CandidateDate{Day: 1, Month: 1}, testSubject(t))
	if score.Points != 0 {
		t.Fatalf("default extractor points = %v", score.Points)
	}
	e, err := extract.NewPatternExtractor(extract.Patterns{Score: `points: (\d+)`})
	if err != nil {
		t.Fatal(err)
	}
	c.SetExtractor(e)
	score, _ = c.Score(context.Background(), models.CandidateDate{Day: 1, Month: 1}, testSubject(t))
	if score.Points != 9 {
		t.Errorf("custom extractor points = %v, want 9", score.Points)
	}
}

func TestNewSubject(t *testing.T) {
	if _, err := NewSubject(models.Inputs{Date: "1998-05-10", Time: "14:30"}, ""); err == nil {
		t.Error("expected error without location")
	}
	loc := &models.Location{Loc: "1"}
	if _, err := NewSubject(models.Inputs{Location: loc, Date: "10/05/1998", Time: "14:30"}, ""); err == nil {
		t.Error("expected error for bad date")
	}
	s, err := NewSubject(models.Inputs{Location: loc, Date: "1998-05-10", Time: "9:05"}, "male")
	if err != nil {
		t.Fatal(err)
	}
	if s.Hour != "9" || s.Minute != "05" || s.Gender != "male" {
		t.Errorf("unexpected subject: %+v", s)
	}
}

func TestLocationCache(t *testing.T) {
	c := NewLocationCache(2)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss")
	}
	c.Set("a", []models.Location{{Loc: "1"}})
	c.Set("b", []models.Location{{Loc: "2"}})
	c.Get("a")
	c.Set("c", []models.Location{{Loc: "3"}}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v[0].Loc != "1" {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d", c.Len())
	}

	off := NewLocationCache(0)
	off.Set("a", nil)
	if off.Len() != 0 {
		t.Error("zero capacity should not cache")
	}
}
