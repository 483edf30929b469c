package duration

import (
	"testing"
	"time"
)

func TestFormatUnderOneDay(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	then := now.Add(-(1*time.Hour + 2*time.Minute + 3*time.Second))
	got := Format(now, then)
	if got != "01:02:03" {
		t.Errorf("got %q, want %q", got, "01:02:03")
	}
}

func TestFormatOverOneDay(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	then := now.Add(-(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second))
	got := Format(now, then)
	if got != "2d 03:04:05" {
		t.Errorf("got %q, want %q", got, "2d 03:04:05")
	}
}

func TestFormatOverThirtyDays(t *testing.T) {
	then := time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC)
	now := then.Add(45 * 24 * time.Hour)
	got := Format(now, then)
	if got != "2025-01-02 15:04" {
		t.Errorf("got %q, want %q", got, "2025-01-02 15:04")
	}
}

func TestFormatExactlyZero(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	got := Format(now, now)
	if got != "00:00:00" {
		t.Errorf("got %q, want %q", got, "00:00:00")
	}
}
