package cmd

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRenderMeterWidth(t *testing.T) {
	for _, level := range []float64{-160, -60, -30, -3, 0, 12} {
		got := renderMeter(level)
		if n := utf8.RuneCountInString(got); n != meterWidth+2 {
			t.Errorf("renderMeter(%v) has %d runes, expected %d", level, n, meterWidth+2)
		}
	}
}

func TestRenderMeterClamps(t *testing.T) {
	if got := renderMeter(-160); strings.TrimSpace(strings.Trim(got, "[]")) != "" {
		t.Errorf("Expected empty meter for silence, got %q", got)
	}
	if got := renderMeter(6); strings.Contains(got, " ") {
		t.Errorf("Expected full meter above 0 dB, got %q", got)
	}
}

func TestRenderTimeline(t *testing.T) {
	tests := []struct {
		position, duration int64
		filled             int
	}{
		{0, 10000, 0},
		{5000, 10000, 5},
		{10000, 10000, 10},
		{20000, 10000, 10},
		{500, 0, 0},
	}
	for _, tt := range tests {
		got := renderTimeline(tt.position, tt.duration, 10)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("renderTimeline(%d, %d) filled %d cells, expected %d", tt.position, tt.duration, n, tt.filled)
		}
		if n := utf8.RuneCountInString(got); n != 12 {
			t.Errorf("renderTimeline(%d, %d) has %d runes, expected 12", tt.position, tt.duration, n)
		}
	}
}

func TestIsNumericPort(t *testing.T) {
	valid := []string{"80", "8080", "0"}
	invalid := []string{"", "80a", ":8080", "-1"}
	for _, p := range valid {
		if !isNumericPort(p) {
			t.Errorf("Expected %q to be a valid port", p)
		}
	}
	for _, p := range invalid {
		if isNumericPort(p) {
			t.Errorf("Expected %q to be rejected", p)
		}
	}
}
