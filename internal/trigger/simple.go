package trigger

import (
	"fmt"
	"time"

	"github.com/coriolis-sched/coriolis/internal/domain"
)

// Simple fires at startTime, then every repeatInterval, repeatCount more
// times (or indefinitely if repeatCount is domain.RepeatIndefinitely).
type Simple struct {
	Base
	RepeatCount    int
	RepeatInterval time.Duration
	timesTriggered int
}

func NewSimple(key domain.TriggerKey, jobKey domain.JobKey, start time.Time, repeatCount int, repeatInterval time.Duration) *Simple {
	s := &Simple{Base: NewBase(key, jobKey), RepeatCount: repeatCount, RepeatInterval: repeatInterval}
	s.SetStartTime(start)
	return s
}

func (s *Simple) Validate() error {
	if s.RepeatCount < 0 && s.RepeatCount != domain.RepeatIndefinitely {
		return fmt.Errorf("trigger: simple trigger repeat count must be >= 0 or RepeatIndefinitely")
	}
	if s.RepeatCount != 0 && s.RepeatInterval <= 0 {
		return fmt.Errorf("trigger: simple trigger repeat interval must be positive when repeat count is nonzero")
	}
	return nil
}

func (s *Simple) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	t := s.GetStartTime()
	first := &t
	first = skipExcluded(cal, first, s.nextCandidate)
	s.setNextFireTime(first)
	return first
}

// nextCandidate returns the schedule's next candidate strictly after
// `after`, ignoring remaining repeat count (used only for calendar skips on
// the already-computed candidate stream, not for advancing repeatCount).
func (s *Simple) nextCandidate(after time.Time) *time.Time {
	t := after.Add(s.RepeatInterval)
	if s.afterEndTime(t) {
		return nil
	}
	return &t
}

func (s *Simple) Triggered(cal domain.Calendar) {
	s.timesTriggered++
	s.SetPreviousFireTime(s.GetNextFireTime())

	if s.RepeatCount != domain.RepeatIndefinitely && s.timesTriggered > s.RepeatCount {
		s.setNextFireTime(nil)
		return
	}

	next := s.GetNextFireTime()
	if next == nil {
		return
	}
	t := next.Add(s.RepeatInterval)
	var candidate *time.Time
	if !s.afterEndTime(t) {
		candidate = &t
	}
	candidate = skipExcluded(cal, candidate, s.nextCandidate)
	s.setNextFireTime(candidate)
}

// GetFireTimeAfter is pure: a nil argument means "now", per the shared
// trigger contract, not "since the schedule began".
func (s *Simple) GetFireTimeAfter(after *time.Time) *time.Time {
	ref := time.Now()
	if after != nil {
		ref = *after
	}

	if s.RepeatCount == 0 {
		if !ref.Before(s.GetStartTime()) {
			return nil
		}
		t := s.GetStartTime()
		if s.afterEndTime(t) {
			return nil
		}
		return &t
	}

	if s.RepeatInterval <= 0 {
		return nil
	}

	from := s.GetStartTime()
	if ref.After(from) {
		from = ref
	}

	numSkipped := 0
	if from.After(s.GetStartTime()) {
		numSkipped = int(from.Sub(s.GetStartTime())/s.RepeatInterval) + 1
	}

	if s.RepeatCount != domain.RepeatIndefinitely && numSkipped > s.RepeatCount {
		return nil
	}

	t := s.GetStartTime().Add(time.Duration(numSkipped) * s.RepeatInterval)
	if s.afterEndTime(t) {
		return nil
	}
	return &t
}

func (s *Simple) GetFinalFireTime() *time.Time {
	if s.RepeatCount == domain.RepeatIndefinitely {
		return nil
	}
	t := s.GetStartTime().Add(time.Duration(s.RepeatCount) * s.RepeatInterval)
	if s.GetEndTime() != nil && t.After(*s.GetEndTime()) {
		// walk backwards to the last repeat inside the window
		for n := s.RepeatCount; n >= 0; n-- {
			cand := s.GetStartTime().Add(time.Duration(n) * s.RepeatInterval)
			if !cand.After(*s.GetEndTime()) {
				return &cand
			}
		}
		return nil
	}
	return &t
}

func (s *Simple) UpdateAfterMisfire(cal domain.Calendar) {
	instr := s.GetMisfireInstruction()
	if instr == domain.MisfireInstructionIgnore {
		return
	}
	if instr == domain.MisfireInstructionSmartPolicy {
		if s.RepeatCount == 0 {
			instr = domain.MisfireSimpleFireNow
		} else if s.RepeatCount == domain.RepeatIndefinitely {
			instr = domain.MisfireSimpleRescheduleNowWithRemainingRepeatCount
		} else {
			instr = domain.MisfireSimpleRescheduleNowWithExistingRepeatCount
		}
	}

	now := time.Now()
	switch instr {
	case domain.MisfireSimpleFireNow:
		s.setNextFireTime(&now)
	case domain.MisfireSimpleRescheduleNowWithExistingRepeatCount, domain.MisfireSimpleRescheduleNowWithRemainingRepeatCount:
		t := now
		s.setNextFireTime(&t)
	case domain.MisfireSimpleRescheduleNextWithRemainingCount, domain.MisfireSimpleRescheduleNextWithExistingCount:
		if s.RepeatCount == 0 {
			s.setNextFireTime(nil)
			return
		}
		next := s.GetFireTimeAfter(&now)
		s.setNextFireTime(next)
	default:
		s.setNextFireTime(&now)
	}
}

func (s *Simple) UpdateWithNewCalendar(cal domain.Calendar, misfireThreshold time.Duration) {
	next := s.GetFireTimeAfter(s.GetPreviousFireTime())
	for next != nil && cal != nil && !cal.IsTimeIncluded(*next) {
		next = s.GetFireTimeAfter(next)
		if next != nil && next.Year() > domain.FarFutureYear {
			next = nil
			break
		}
	}
	if next != nil && s.GetPreviousFireTime() != nil {
		misfireTime := time.Now().Add(-misfireThreshold)
		if next.Before(misfireTime) {
			s.UpdateAfterMisfire(cal)
			return
		}
	}
	s.setNextFireTime(next)
}

// TimesTriggered and SetTimesTriggered expose the fire counter for store
// rehydration; schedule math never needs to read it back through these.
func (s *Simple) TimesTriggered() int        { return s.timesTriggered }
func (s *Simple) SetTimesTriggered(n int)    { s.timesTriggered = n }

func (s *Simple) MayFireAgain() bool {
	return s.GetNextFireTime() != nil
}

func (s *Simple) GetScheduleBuilder() domain.ScheduleBuilder {
	return &SimpleScheduleBuilder{repeatCount: s.RepeatCount, repeatInterval: s.RepeatInterval, key: s.Key_, jobKey: s.JobKey_, start: s.GetStartTime()}
}

// SimpleScheduleBuilder reproduces a Simple trigger's schedule parameters.
type SimpleScheduleBuilder struct {
	repeatCount    int
	repeatInterval time.Duration
	key            domain.TriggerKey
	jobKey         domain.JobKey
	start          time.Time
}

func (b *SimpleScheduleBuilder) WithRepeatCount(n int) *SimpleScheduleBuilder {
	b.repeatCount = n
	return b
}

func (b *SimpleScheduleBuilder) WithInterval(d time.Duration) *SimpleScheduleBuilder {
	b.repeatInterval = d
	return b
}

func (b *SimpleScheduleBuilder) RepeatForever() *SimpleScheduleBuilder {
	b.repeatCount = domain.RepeatIndefinitely
	return b
}

func (b *SimpleScheduleBuilder) Build() domain.Trigger {
	return NewSimple(b.key, b.jobKey, b.start, b.repeatCount, b.repeatInterval)
}
