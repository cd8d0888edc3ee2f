package services

import (
	"strings"
	"testing"
)

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json", `{"score": 80}`, `{"score": 80}`},
		{"json fence", "```json\n{\"score\": 80}\n```", `{"score": 80}`},
		{"bare fence", "```\n{\"score\": 80}\n```", `{"score": 80}`},
		{"surrounding whitespace", "  \n{\"score\": 80}\n  ", `{"score": 80}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripJSONFences(tc.input); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"negative", -10, 0},
		{"zero", 0, 0},
		{"mid range", 55, 55},
		{"max", 100, 100},
		{"above max", 130, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := clampScore(tc.input); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 9000)
	if got := truncate(long, 8000); len(got) != 8000 {
		t.Errorf("Expected 8000 chars, got %d", len(got))
	}
	if got := truncate("short", 8000); got != "short" {
		t.Errorf("Expected untouched string, got %q", got)
	}
}
