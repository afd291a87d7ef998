package ledger

import (
	"testing"
	"time"

	"stockledger/internal/core/id"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestWindowIsCurrent(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		graceDays int
		date      time.Time
		want      bool
	}{
		{"today", 1, now, true},
		{"start of yesterday", 1, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), true},
		{"end of day before yesterday", 1, time.Date(2026, 8, 28, 23, 59, 59, 0, time.UTC), false},
		{"future date", 1, now.AddDate(0, 0, 3), true},
		{"yesterday with zero grace", 0, time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC), false},
		{"today with zero grace", 0, now.Add(-time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{GraceDays: tt.graceDays, Location: time.UTC, Now: fixedClock(now)}
			if got := w.IsCurrent(tt.date); got != tt.want {
				t.Errorf("IsCurrent(%v) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestWindowThreshold(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	w := Window{GraceDays: 1, Location: time.UTC, Now: fixedClock(now)}

	want := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if got := w.Threshold(); !got.Equal(want) {
		t.Errorf("Threshold() = %v, want %v", got, want)
	}
}

func TestLatestCurrentStock(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	w := Window{GraceDays: 1, Location: time.UTC, Now: fixedClock(now)}

	if got := w.LatestCurrentStock(nil); got != 0 {
		t.Errorf("empty ledger = %d, want 0", got)
	}

	// Mixed ledger: the latest entry is current, so its snapshot wins.
	mixed := []Entry{
		{ID: id.New(), EffectiveDate: now.AddDate(0, 0, -10), QuantityDelta: 5, StockAfter: 5},
		{ID: id.New(), EffectiveDate: now, QuantityDelta: 10, StockAfter: 15},
	}
	if got := w.LatestCurrentStock(mixed); got != 15 {
		t.Errorf("mixed ledger = %d, want 15", got)
	}

	// Only historical entries: fall back to the latest overall.
	historical := []Entry{
		{ID: id.New(), EffectiveDate: now.AddDate(0, 0, -10), QuantityDelta: 5, StockAfter: 5},
		{ID: id.New(), EffectiveDate: now.AddDate(0, 0, -5), QuantityDelta: 8, StockAfter: 13},
	}
	if got := w.LatestCurrentStock(historical); got != 13 {
		t.Errorf("historical ledger = %d, want 13", got)
	}
}
