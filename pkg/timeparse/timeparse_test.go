package timeparse

import (
	"testing"
	"time"
)

func TestParseAbsolute(t *testing.T) {
	now := time.Date(2019, 2, 14, 12, 0, 0, 0, time.UTC)
	got, err := Parse("2019-01-20", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2019, 1, 20, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Parse = %v, want %v", got, want)
	}
}

func TestParseRFC3339(t *testing.T) {
	now := time.Now()
	got, err := Parse("2019-01-20T10:30:00Z", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2019, 1, 20, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Parse = %v, want %v", got, want)
	}
}

func TestParseRelativePast(t *testing.T) {
	now := time.Date(2019, 2, 14, 12, 0, 0, 0, time.UTC)
	got, err := Parse("1 week ago", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Before(now) {
		t.Fatalf("Parse(%q) = %v, not before %v", "1 week ago", got, now)
	}
	if diff := now.Sub(got); diff != 7*24*time.Hour {
		t.Fatalf("Parse(%q) is %v before now, want %v", "1 week ago", diff, 7*24*time.Hour)
	}
}

func TestParseNow(t *testing.T) {
	now := time.Date(2019, 2, 14, 12, 0, 0, 0, time.UTC)
	got, err := Parse("now", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("Parse(now) = %v, want %v", got, now)
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := Parse("", time.Now()); err == nil {
		t.Fatalf("expected error for empty string")
	}
	if _, err := Parse("certainly not a time qq", time.Now()); err == nil {
		t.Fatalf("expected error for unparsable string")
	}
}
