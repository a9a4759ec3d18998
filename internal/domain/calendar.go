package domain

import "time"

// Calendar is a chainable predicate that excludes instants from a trigger's
// fire-time stream. The effective predicate of a calendar with a base
// calendar set is the conjunction of both.
type Calendar interface {
	// IsTimeIncluded reports whether t is NOT excluded by this calendar
	// (and, transitively, by its base calendar).
	IsTimeIncluded(t time.Time) bool
	// GetBaseCalendar returns the chained base calendar, or nil.
	GetBaseCalendar() Calendar
	// SetBaseCalendar chains base beneath this calendar.
	SetBaseCalendar(base Calendar)
	Description() string
}
