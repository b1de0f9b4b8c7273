package horoscope

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/hyperjump/horomatch/internal/models"
)

// CompatibilitySystem is the scoring system selected on the match form.
const CompatibilitySystem = "Tamil Porutham"

// Counterpart is the fixed identity matched against the subject. Only its
// birth day and month vary between candidates.
type Counterpart struct {
	Name     string
	Gender   string
	Year     int
	Hour     int
	Minute   int
	AmPm     string
	Location string
	Loc      string
}

// DefaultCounterpart returns the built-in counterpart identity.
func DefaultCounterpart() Counterpart {
	return Counterpart{
		Name:     "Ranjithkumar R",
		Gender:   "male",
		Year:     1996,
		Hour:     9,
		Minute:   45,
		AmPm:     "am",
		Location: "Vellore, Tamil Nadu, India",
		Loc:      "1253286",
	}
}

// Subject holds the subject's birth attributes as submitted on the match form.
type Subject struct {
	Name     string
	Location models.Location
	Year     string
	Month    string
	Day      string
	Hour     string
	Minute   string
	AmPm     string
	Gender   string
}

// DefaultSubjectGender is the gender sent for the subject.
const DefaultSubjectGender = "female"

// NewSubject splits validated inputs into form values. Date is "YYYY-MM-DD"
// and time is "HH:MM"; components are sent as typed, leading zeros included.
func NewSubject(in models.Inputs, gender string) (Subject, error) {
	if in.Location == nil {
		return Subject{}, fmt.Errorf("location is required")
	}
	date := strings.Split(in.Date, "-")
	if len(date) != 3 {
		return Subject{}, fmt.Errorf("invalid date %q", in.Date)
	}
	clock := strings.Split(in.Time, ":")
	if len(clock) != 2 {
		return Subject{}, fmt.Errorf("invalid time %q", in.Time)
	}
	if gender == "" {
		gender = DefaultSubjectGender
	}
	return Subject{
		Name:     in.Name,
		Location: *in.Location,
		Year:     date[0],
		Month:    date[1],
		Day:      date[2],
		Hour:     clock[0],
		Minute:   clock[1],
		AmPm:     in.AmPm,
		Gender:   gender,
	}, nil
}

type field struct {
	name  string
	value string
}

func matchFields(s Subject, cp Counterpart, c models.CandidateDate) []field {
	return []field{
		{"compatibility_system", CompatibilitySystem},
		{"gname", s.Name},
		{"glocation", s.Location.DisplayName()},
		{"gloc", s.Location.Loc},
		{"gyear", s.Year},
		{"gmonth", s.Month},
		{"gday", s.Day},
		{"ghour", s.Hour},
		{"gmin", s.Minute},
		{"gapm", s.AmPm},
		{"ggender", s.Gender},
		{"bname", cp.Name},
		{"blocation", cp.Location},
		{"bloc", cp.Loc},
		{"byear", strconv.Itoa(cp.Year)},
		{"bhour", strconv.Itoa(cp.Hour)},
		{"bmin", strconv.Itoa(cp.Minute)},
		{"bapm", cp.AmPm},
		{"bgender", cp.Gender},
		{"p", "1"},
		{"bmonth", strconv.Itoa(c.Month)},
		{"bday", strconv.Itoa(c.Day)},
	}
}

func nakshatraFields(cp Counterpart, c models.CandidateDate) []field {
	return []field{
		{"name", cp.Name},
		{"gender", cp.Gender},
		{"year", strconv.Itoa(cp.Year)},
		{"month", strconv.Itoa(c.Month)},
		{"day", strconv.Itoa(c.Day)},
		{"hour", strconv.Itoa(cp.Hour)},
		{"min", strconv.Itoa(cp.Minute)},
		{"apm", cp.AmPm},
		{"location", cp.Location},
		{"loc", cp.Loc},
		{"utm_source", "Nakshatra_Finder"},
		{"utm_medium", ""},
		{"utm_campaign", ""},
		{"p", "1"},
	}
}

// encodeMultipart writes fields in order and returns the body and its content type.
func encodeMultipart(fields []field) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
