package models

import (
	"sort"
	"time"
)

// Cursor is a keyset position in (created_at, id) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) IsZero() bool { return c.CreatedAt.IsZero() && c.ID == "" }

// CursorOf positions a cursor on s.
func CursorOf(s Signal) Cursor { return Cursor{CreatedAt: s.CreatedAt, ID: s.ID} }

// precedes reports whether s sorts strictly after the cursor.
func (c Cursor) precedes(s Signal) bool {
	if !s.CreatedAt.Equal(c.CreatedAt) {
		return s.CreatedAt.After(c.CreatedAt)
	}
	return s.ID > c.ID
}

// SignalFilter narrows a signal query. Zero values mean "any". Results are
// newest first unless OldestFirst is set, in which case they are ordered by
// (created_at, id) and After resumes a previous page.
type SignalFilter struct {
	Symbol      string
	Status      SignalStatus
	Outcome     Outcome
	Direction   Direction
	From        time.Time
	To          time.Time
	Limit       int
	OldestFirst bool
	After       Cursor
}

// Matches applies the filter in memory; storage backends translate it to their own query.
func (f SignalFilter) Matches(s Signal) bool {
	if f.Symbol != "" && s.Symbol != f.Symbol {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Outcome != "" && s.Outcome != f.Outcome {
		return false
	}
	if f.Direction != "" && s.Direction != f.Direction {
		return false
	}
	if !f.From.IsZero() && s.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.CreatedAt.Before(f.To) {
		return false
	}
	if f.OldestFirst && !f.After.IsZero() && !f.After.precedes(s) {
		return false
	}
	return true
}

// Sort orders signals the way the filter asks for.
func (f SignalFilter) Sort(signals []Signal) {
	if f.OldestFirst {
		sort.SliceStable(signals, func(i, j int) bool {
			a, b := signals[i], signals[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		return
	}
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].CreatedAt.After(signals[j].CreatedAt) })
}
