package ledger

import (
	"time"
)

// Window classifies an entry's effective date as current or historical.
//
// An entry is current when its effective date falls on or after the
// start of the business day GraceDays before today, in Location. With
// the default GraceDays of 1 an entry dated today or yesterday is
// current; anything older is a historical correction.
//
// This replaces the approximate day-count heuristic the intake tooling
// used with an explicit, testable rule.
type Window struct {
	// GraceDays is how many full days before today still count as
	// current. Zero means only entries dated today are current.
	GraceDays int

	// Location anchors the day boundary. Defaults to UTC.
	Location *time.Location

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// DefaultWindow returns the standard current-window policy: entries
// dated on or after the start of yesterday (UTC) are current.
func DefaultWindow() Window {
	return Window{
		GraceDays: 1,
		Location:  time.UTC,
		Now:       time.Now,
	}
}

func (w Window) location() *time.Location {
	if w.Location != nil {
		return w.Location
	}
	return time.UTC
}

func (w Window) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Threshold returns the earliest instant still classified as current.
func (w Window) Threshold() time.Time {
	loc := w.location()
	now := w.now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return dayStart.AddDate(0, 0, -w.GraceDays)
}

// IsCurrent reports whether an effective date falls inside the current
// window.
func (w Window) IsCurrent(effectiveDate time.Time) bool {
	return !effectiveDate.In(w.location()).Before(w.Threshold())
}

// LatestCurrentStock derives the authoritative current stock from a
// chronologically sorted ledger: the stock_after of the latest
// current-window entry, falling back to the latest entry overall when
// the window is empty, and zero for an empty ledger.
//
// Because current-window membership is a lower bound on the effective
// date, the latest current-window entry is always the last entry in
// chronological order whenever one exists; the fallback covers ledgers
// holding only historical entries.
func (w Window) LatestCurrentStock(entries []Entry) int64 {
	if len(entries) == 0 {
		return 0
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if w.IsCurrent(entries[i].EffectiveDate) {
			return entries[i].StockAfter
		}
	}
	return entries[len(entries)-1].StockAfter
}
