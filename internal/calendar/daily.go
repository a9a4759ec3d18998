package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Daily excludes a fixed clock-time window, identical every day (e.g. a
// nightly maintenance window from 02:00 to 02:30). The window can wrap
// past midnight.
type Daily struct {
	Base
	startHour, startMin, startSec, startMs int
	endHour, endMin, endSec, endMs         int
	startStr, endStr                       string
}

// NewDaily builds a window from "HH:MM:SS" (or "HH:MM:SS,mmm") strings.
func NewDaily(description, start, end string) (*Daily, error) {
	sh, sm, ss, sms, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid start time %q: %w", start, err)
	}
	eh, em, es, ems, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid end time %q: %w", end, err)
	}
	return &Daily{
		Base:      NewBase(description),
		startHour: sh, startMin: sm, startSec: ss, startMs: sms,
		endHour: eh, endMin: em, endSec: es, endMs: ems,
		startStr: start, endStr: end,
	}, nil
}

// StartTime and EndTime return the original "HH:MM:SS" strings, for
// serialization.
func (d *Daily) StartTime() string { return d.startStr }
func (d *Daily) EndTime() string   { return d.endStr }

func parseClock(s string) (hour, min, sec, ms int, err error) {
	_, err = fmt.Sscanf(s, "%d:%d:%d", &hour, &min, &sec)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		if ms, err = strconv.Atoi(s[i+1:]); err != nil {
			return 0, 0, 0, 0, err
		}
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 || ms < 0 || ms > 999 {
		return 0, 0, 0, 0, fmt.Errorf("out of range")
	}
	return hour, min, sec, ms, nil
}

func (d *Daily) msOfDay(t time.Time) int {
	return ((t.Hour()*60+t.Minute())*60+t.Second())*1000 + t.Nanosecond()/1e6
}

func (d *Daily) startMs_() int {
	return ((d.startHour*60+d.startMin)*60+d.startSec)*1000 + d.startMs
}

func (d *Daily) endMs_() int {
	return ((d.endHour*60+d.endMin)*60+d.endSec)*1000 + d.endMs
}

func (d *Daily) IsTimeIncluded(t time.Time) bool {
	ms := d.msOfDay(t)
	start, end := d.startMs_(), d.endMs_()

	var excluded bool
	if start <= end {
		excluded = ms >= start && ms <= end
	} else {
		// window wraps midnight
		excluded = ms >= start || ms <= end
	}
	if excluded {
		return false
	}
	return d.baseIncludes(t)
}
