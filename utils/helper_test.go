package utils

import (
	"errors"
	"testing"
	"time"
)

func TestLocalDay(t *testing.T) {
	// 2026-03-10 02:30 UTC is still 2026-03-09 in New York.
	instant := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)

	utcDay := LocalDay(instant, "UTC")
	if !utcDay.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("UTC day: got %s", utcDay)
	}

	nyDay := LocalDay(instant, "America/New_York")
	if !nyDay.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("New York day: got %s", nyDay)
	}

	// Unknown zone falls back to UTC, never errors.
	fallback := LocalDay(instant, "No/Such_Zone")
	if !fallback.Equal(utcDay) {
		t.Fatalf("fallback day: got %s", fallback)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" a , b ,, c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v", got)
		}
	}
	if SplitAndTrim("  ") != nil {
		t.Fatalf("blank input must return nil")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"x", "y", "x", "z", "y"})
	if len(got) != 3 || got[0] != "x" || got[1] != "y" || got[2] != "z" {
		t.Fatalf("got %v", got)
	}
}

func TestJoinNonNil(t *testing.T) {
	joined := JoinNonNil([]error{errors.New("one"), nil, errors.New("two")})
	if joined != "one; two" {
		t.Fatalf("got %q", joined)
	}
}
