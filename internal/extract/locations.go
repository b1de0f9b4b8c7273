package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/horomatch/internal/models"
)

// DecodeRelayBody unwraps a relay response. The relay returns the upstream
// body JSON-encoded as a string; anything that is not a JSON string is
// returned as-is. Invalid UTF-8 is replaced so downstream regexes see text.
func DecodeRelayBody(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		s = string(body)
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	return s
}

// ParseLocations parses the decoded location search payload: a JSON array of
// pipe-delimited records. One extra layer of string encoding is tolerated.
func ParseLocations(payload string) ([]models.Location, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("empty location payload")
	}

	var records []string
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		var inner string
		if errInner := json.Unmarshal([]byte(payload), &inner); errInner != nil {
			return nil, fmt.Errorf("failed to parse location payload: %w", err)
		}
		if err := json.Unmarshal([]byte(inner), &records); err != nil {
			return nil, fmt.Errorf("failed to parse location payload: %w", err)
		}
	}

	locations := make([]models.Location, 0, len(records))
	for _, r := range records {
		locations = append(locations, models.ParseLocationRecord(r))
	}
	return locations, nil
}
