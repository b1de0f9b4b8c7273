package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is long", 4, "this..."},
		{"no limit", 0, "no limit"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("1/7 2/7 3/7", 2); got != "1/7 2/7..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateWords("1/7 2/7", 5); got != "1/7 2/7" {
		t.Errorf("got %q", got)
	}
}
