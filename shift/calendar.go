/*
Package shift maps wall-clock instants onto bar operating shifts.

PURPOSE:
  A shift is the accounting period for the inventory ledger. It opens at
  16:00 local time and closes at 03:00 the next morning, so a single shift
  spans two calendar dates. Every movement is stamped with the shift it
  belongs to; reconciliation and alerts are scoped by that stamp.

RULE:
  hour < 16  -> shift dated the previous calendar day
  hour >= 16 -> shift dated the current calendar day

  2025-03-10 22:00 -> 2025-03-10
  2025-03-11 01:30 -> 2025-03-10
  2025-03-11 09:00 -> 2025-03-10 (outside the window, see Window.Contains)
  2025-03-11 16:00 -> 2025-03-11

SEE ALSO:
  - inventory/alerts.go: OutsideOperatingWindow uses Window.Contains
*/
package shift

import (
	"fmt"
	"time"
)

const idLayout = "2006-01-02"

// =============================================================================
// ID - Calendar date naming a shift
// =============================================================================

// ID identifies a shift by the calendar date it opens on (YYYY-MM-DD).
type ID string

// ParseID validates a shift identifier received from outside the process.
func ParseID(s string) (ID, error) {
	if _, err := time.Parse(idLayout, s); err != nil {
		return "", fmt.Errorf("invalid shift id %q (use YYYY-MM-DD)", s)
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }

// Date returns midnight UTC of the shift date. Zero time if malformed.
func (id ID) Date() time.Time {
	t, err := time.Parse(idLayout, string(id))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (id ID) Prev() ID { return ID(id.Date().AddDate(0, 0, -1).Format(idLayout)) }
func (id ID) Next() ID { return ID(id.Date().AddDate(0, 0, 1).Format(idLayout)) }

// =============================================================================
// WINDOW
// =============================================================================

// Window is the half-open operating interval [Start, End) of a shift.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar holds the local time zone and opening/closing hours.
// The zero value is not usable; build one with NewCalendar.
type Calendar struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

const (
	DefaultOpenHour  = 16
	DefaultCloseHour = 3
)

// NewCalendar returns the standard 16:00-03:00 calendar for loc.
// A nil loc means time.Local.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{Location: loc, OpenHour: DefaultOpenHour, CloseHour: DefaultCloseHour}
}

// IDFor returns the shift an instant belongs to.
func (c Calendar) IDFor(t time.Time) ID {
	local := t.In(c.location())
	if local.Hour() < c.OpenHour {
		local = local.AddDate(0, 0, -1)
	}
	return ID(local.Format(idLayout))
}

// Window returns the operating window for id. A malformed id yields the zero Window.
func (c Calendar) Window(id ID) Window {
	d, err := time.Parse(idLayout, string(id))
	if err != nil {
		return Window{}
	}
	loc := c.location()
	start := time.Date(d.Year(), d.Month(), d.Day(), c.OpenHour, 0, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, c.CloseHour, 0, 0, 0, loc)
	return Window{Start: start, End: end}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
