package globaltime

import (
	"testing"
	"time"
)

func TestMockTimeAndWindow(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("CST", -6*3600))
	SetMockTime(fixed)
	t.Cleanup(ResetTime)

	if got := UTC(); !got.Equal(fixed) || got.Location() != time.UTC {
		t.Fatalf("UTC() = %v, want %v in UTC", got, fixed)
	}

	start, end := Window(24 * time.Hour)
	if !end.Equal(fixed) || end.Sub(start) != 24*time.Hour {
		t.Fatalf("Window = [%v, %v]", start, end)
	}

	start, end = Window(0)
	if !start.Equal(end) {
		t.Fatalf("zero window should be empty, got [%v, %v]", start, end)
	}
}
