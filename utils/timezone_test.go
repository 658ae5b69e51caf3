package utils

import (
	"testing"
	"time"
)

func TestDateOfUsesConfiguredTimezone(t *testing.T) {
	old := GlobalLocation
	defer func() { GlobalLocation = old }()

	GlobalLocation = time.FixedZone("UTC+3", 3*60*60)

	// 22:30 UTC 在 UTC+3 已是次日
	ts := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)
	got := DateOf(ts)

	if got.Year() != 2024 || got.Month() != time.March || got.Day() != 11 {
		t.Errorf("DateOf = %v, want 2024-03-11", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Errorf("DateOf should truncate to midnight, got %v", got)
	}
}

func TestSetLocationInvalid(t *testing.T) {
	old := GlobalLocation
	defer func() { GlobalLocation = old }()

	if err := SetLocation("Not/AZone"); err == nil {
		t.Error("expected error for unknown timezone")
	}
	if GlobalLocation != old {
		t.Error("unknown timezone must keep the previous location")
	}
}

func TestToConfiguredTimezoneZero(t *testing.T) {
	if !ToConfiguredTimezone(time.Time{}).IsZero() {
		t.Error("zero time must stay zero")
	}
}
