// Package cronexpr implements the seven-field Quartz-style cron grammar
// (seconds through year) used by the Cron trigger, including the "L", "W",
// "#" and "?" extensions no retrieved third-party cron library supports
// (see DESIGN.md). Field parsing is grounded on the simple range/step/list
// grammar nandlabs-golly/chrono/cron.go implements for its own 5-field
// evaluator; this package extends that grammar to the full Quartz field
// set and adds month/day name aliases and the day-field special forms.
package cronexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpression is wrapped by every parse failure.
var ErrInvalidExpression = errors.New("cronexpr: invalid expression")

// dayKind and daySpec model the special day-field forms.
// Quartz requires exactly one of the two fields to be "?"; the resolved
// one decides which day-of-month set applies in a given month.
type dayKind int

const (
	dayAny dayKind = iota
	dayNone
	dayValues
	dayLast        // "L" on day-of-month: last day of month
	dayLastOffset  // "L-n" on day-of-month
	dayNearestWeekday // "nW" on day-of-month
	dayLastWeekday    // "wL" on day-of-week: last occurrence of weekday w in month
	dayNthWeekday     // "w#n" on day-of-week: nth occurrence of weekday w in month
)

type daySpec struct {
	kind   dayKind
	values []int // for dayValues / dayLastWeekday(weekday) / dayNthWeekday(weekday)
	offset int   // for dayLastOffset / dayNearestWeekday(day) / dayNthWeekday(n)
}

// Expression is a parsed, evaluable cron schedule.
type Expression struct {
	seconds []int
	minutes []int
	hours   []int
	months  []int
	years   []int // nil means unconstrained
	dom     daySpec
	dow     daySpec

	raw string
}

// Parse parses a 7-field Quartz-style cron expression
// ("sec min hour dom month dow [year]"); the year field is optional and
// defaults to unconstrained.
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) < 6 || len(fields) > 7 {
		return nil, fmt.Errorf("%w: expected 6 or 7 fields, got %d", ErrInvalidExpression, len(fields))
	}

	e := &Expression{raw: expr}
	var err error

	if e.seconds, err = parseSimpleField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("%w: second field: %v", ErrInvalidExpression, err)
	}
	if e.minutes, err = parseSimpleField(fields[1], 0, 59); err != nil {
		return nil, fmt.Errorf("%w: minute field: %v", ErrInvalidExpression, err)
	}
	if e.hours, err = parseSimpleField(fields[2], 0, 23); err != nil {
		return nil, fmt.Errorf("%w: hour field: %v", ErrInvalidExpression, err)
	}

	e.dom, err = parseDayOfMonth(fields[3])
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-month field: %v", ErrInvalidExpression, err)
	}

	monthField := resolveAliases(fields[4], monthAliases)
	if e.months, err = parseSimpleField(monthField, 1, 12); err != nil {
		return nil, fmt.Errorf("%w: month field: %v", ErrInvalidExpression, err)
	}

	dowField := resolveAliases(fields[5], dayAliases)
	e.dow, err = parseDayOfWeek(dowField)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-week field: %v", ErrInvalidExpression, err)
	}

	if e.dom.kind != dayNone && e.dow.kind != dayNone {
		return nil, fmt.Errorf("%w: day-of-month and day-of-week cannot both be specified; one must be \"?\"", ErrInvalidExpression)
	}
	if e.dom.kind == dayNone && e.dow.kind == dayNone {
		return nil, fmt.Errorf("%w: exactly one of day-of-month or day-of-week must be \"?\"", ErrInvalidExpression)
	}

	if len(fields) == 7 {
		yearField := fields[6]
		if yearField != "*" {
			if e.years, err = parseSimpleField(yearField, 1970, 2499); err != nil {
				return nil, fmt.Errorf("%w: year field: %v", ErrInvalidExpression, err)
			}
		}
	}

	return e, nil
}

func parseDayOfMonth(field string) (daySpec, error) {
	if field == "?" {
		return daySpec{kind: dayNone}, nil
	}
	if field == "*" {
		return daySpec{kind: dayAny}, nil
	}
	upper := strings.ToUpper(field)
	if upper == "L" {
		return daySpec{kind: dayLast}, nil
	}
	if strings.HasPrefix(upper, "L-") {
		n, err := strconv.Atoi(upper[2:])
		if err != nil || n < 0 {
			return daySpec{}, fmt.Errorf("invalid L-n offset %q", field)
		}
		return daySpec{kind: dayLastOffset, offset: n}, nil
	}
	if strings.HasSuffix(upper, "W") {
		n, err := strconv.Atoi(strings.TrimSuffix(upper, "W"))
		if err != nil || n < 1 || n > 31 {
			return daySpec{}, fmt.Errorf("invalid nW form %q", field)
		}
		return daySpec{kind: dayNearestWeekday, offset: n}, nil
	}
	values, err := parseSimpleField(field, 1, 31)
	if err != nil {
		return daySpec{}, err
	}
	return daySpec{kind: dayValues, values: values}, nil
}

func parseDayOfWeek(field string) (daySpec, error) {
	if field == "?" {
		return daySpec{kind: dayNone}, nil
	}
	if field == "*" {
		return daySpec{kind: dayAny}, nil
	}
	upper := strings.ToUpper(field)
	if strings.HasSuffix(upper, "L") {
		w, err := strconv.Atoi(strings.TrimSuffix(upper, "L"))
		if err != nil || w < 0 || w > 6 {
			return daySpec{}, fmt.Errorf("invalid wL form %q", field)
		}
		return daySpec{kind: dayLastWeekday, values: []int{w}}, nil
	}
	if idx := strings.Index(upper, "#"); idx >= 0 {
		w, err1 := strconv.Atoi(upper[:idx])
		n, err2 := strconv.Atoi(upper[idx+1:])
		if err1 != nil || err2 != nil || w < 0 || w > 6 || n < 1 || n > 5 {
			return daySpec{}, fmt.Errorf("invalid w#n form %q", field)
		}
		return daySpec{kind: dayNthWeekday, values: []int{w}, offset: n}, nil
	}
	values, err := parseSimpleField(field, 0, 6)
	if err != nil {
		return daySpec{}, err
	}
	return daySpec{kind: dayValues, values: values}, nil
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// resolveDays returns the sorted set of day-of-month values that satisfy
// whichever of dom/dow is active, for the given year/month, in loc.
func (e *Expression) resolveDays(year int, month time.Month, loc *time.Location) []int {
	if e.dom.kind != dayNone {
		return resolveDayOfMonth(e.dom, year, month, loc)
	}
	return resolveDayOfWeek(e.dow, year, month, loc)
}

func resolveDayOfMonth(spec daySpec, year int, month time.Month, loc *time.Location) []int {
	dim := daysInMonth(year, month)
	switch spec.kind {
	case dayAny:
		return makeRange(1, dim, 1)
	case dayValues:
		out := make([]int, 0, len(spec.values))
		for _, v := range spec.values {
			if v <= dim {
				out = append(out, v)
			}
		}
		return out
	case dayLast:
		return []int{dim}
	case dayLastOffset:
		d := dim - spec.offset
		if d < 1 {
			return nil
		}
		return []int{d}
	case dayNearestWeekday:
		day := spec.offset
		if day > dim {
			day = dim
		}
		t := time.Date(year, month, day, 0, 0, 0, 0, loc)
		switch t.Weekday() {
		case time.Saturday:
			if day > 1 {
				day--
			} else {
				day += 2
			}
		case time.Sunday:
			if day < dim {
				day++
			} else {
				day -= 2
			}
		}
		return []int{day}
	default:
		return nil
	}
}

func resolveDayOfWeek(spec daySpec, year int, month time.Month, loc *time.Location) []int {
	dim := daysInMonth(year, month)
	switch spec.kind {
	case dayAny:
		return makeRange(1, dim, 1)
	case dayValues:
		var out []int
		for d := 1; d <= dim; d++ {
			wd := int(time.Date(year, month, d, 0, 0, 0, 0, loc).Weekday())
			for _, v := range spec.values {
				if wd == v {
					out = append(out, d)
				}
			}
		}
		return out
	case dayLastWeekday:
		target := spec.values[0]
		for d := dim; d >= 1; d-- {
			if int(time.Date(year, month, d, 0, 0, 0, 0, loc).Weekday()) == target {
				return []int{d}
			}
		}
		return nil
	case dayNthWeekday:
		target := spec.values[0]
		n := spec.offset
		count := 0
		for d := 1; d <= dim; d++ {
			if int(time.Date(year, month, d, 0, 0, 0, 0, loc).Weekday()) == target {
				count++
				if count == n {
					return []int{d}
				}
			}
		}
		return nil
	default:
		return nil
	}
}

// yearOK reports whether y satisfies the (possibly unconstrained) year field.
func (e *Expression) yearOK(y int) bool {
	if e.years == nil {
		return true
	}
	return containsSorted(e.years, y)
}

// maxSearchYear bounds how far into the future Next will look before
// giving up, per spec.md §9's far-future guard.
const maxSearchYear = 2299

// Next returns the first instant strictly after `after`, in loc, that
// satisfies the expression, or the zero time if none exists before the
// far-future guard year.
//
// Seconds/minutes/hours are each pre-sorted ascending, so iterating them
// in nested order visits every (h, mi, s) combination for a day in
// strictly increasing time order — the first one at or after candidate is
// necessarily the minimum for that day.
func (e *Expression) Next(after time.Time, loc *time.Location) time.Time {
	candidate := after.In(loc).Truncate(time.Second).Add(time.Second)

	for year := candidate.Year(); year <= maxSearchYear; year++ {
		if !e.yearOK(year) {
			continue
		}
		startMonth := time.January
		if year == candidate.Year() {
			startMonth = candidate.Month()
		}
		for m := int(startMonth); m <= 12; m++ {
			month := time.Month(m)
			if !containsSorted(e.months, m) {
				continue
			}
			days := e.resolveDays(year, month, loc)
			for _, day := range days {
				dayEnd := time.Date(year, month, day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
				if dayEnd.Before(candidate) || dayEnd.Equal(candidate) {
					continue // this day's instants are all < candidate
				}
				for _, h := range e.hours {
					for _, mi := range e.minutes {
						for _, s := range e.seconds {
							t := time.Date(year, month, day, h, mi, s, 0, loc)
							if !t.Before(candidate) {
								return t
							}
						}
					}
				}
			}
		}
	}
	return time.Time{}
}

// String returns the original expression text.
func (e *Expression) String() string { return e.raw }
