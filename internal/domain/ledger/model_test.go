package ledger

import (
	"testing"
	"time"

	"stockledger/internal/core/id"
)

func day(offset int) time.Time {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestEntryBefore(t *testing.T) {
	a := Entry{ID: id.New(), EffectiveDate: day(-2), CreatedAt: day(0)}
	b := Entry{ID: id.New(), EffectiveDate: day(-1), CreatedAt: day(-5)}

	// Effective date wins even when created later.
	if !a.Before(&b) {
		t.Error("earlier effective date must sort first regardless of created_at")
	}

	// Same effective date: created_at breaks the tie.
	c := Entry{ID: id.New(), EffectiveDate: day(-1), CreatedAt: day(0)}
	if !b.Before(&c) {
		t.Error("same effective date must fall back to created_at")
	}

	// Full collision: entry id stabilizes the order.
	d := Entry{ID: id.MustParse("018f0000-0000-7000-8000-000000000001"), EffectiveDate: day(-1), CreatedAt: day(0)}
	e := Entry{ID: id.MustParse("018f0000-0000-7000-8000-000000000002"), EffectiveDate: day(-1), CreatedAt: day(0)}
	if !d.Before(&e) || e.Before(&d) {
		t.Error("colliding timestamps must order deterministically by id")
	}
}

func TestInsertChronological(t *testing.T) {
	entries := []Entry{
		{ID: id.New(), EffectiveDate: day(-10)},
		{ID: id.New(), EffectiveDate: day(-5)},
	}

	tests := []struct {
		name    string
		date    time.Time
		wantPos int
	}{
		{"before all", day(-20), 0},
		{"between", day(-7), 1},
		{"after all", day(0), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, pos := InsertChronological(entries, Entry{ID: id.New(), EffectiveDate: tt.date})
			if pos != tt.wantPos {
				t.Errorf("position = %d, want %d", pos, tt.wantPos)
			}
			if len(out) != 3 {
				t.Fatalf("length = %d, want 3", len(out))
			}
			if !out[tt.wantPos].EffectiveDate.Equal(tt.date) {
				t.Errorf("entry not at expected position")
			}
			// Input slice must be untouched.
			if len(entries) != 2 {
				t.Error("input slice mutated")
			}
		})
	}
}

func TestSortChronological(t *testing.T) {
	entries := []Entry{
		{ID: id.New(), EffectiveDate: day(0), CreatedAt: day(0)},
		{ID: id.New(), EffectiveDate: day(-10), CreatedAt: day(-1)},
		{ID: id.New(), EffectiveDate: day(-10), CreatedAt: day(-9)},
	}
	SortChronological(entries)

	if !entries[0].CreatedAt.Equal(day(-9)) {
		t.Error("expected oldest created_at first among equal effective dates")
	}
	if !entries[2].EffectiveDate.Equal(day(0)) {
		t.Error("expected latest effective date last")
	}
}
