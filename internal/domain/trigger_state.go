package domain

// RecoveringJobsGroup is the trigger group used for the one-shot triggers
// a cluster recovery schedules for jobs that requested recovery (spec.md
// §4.3 "Cluster recovery"). A trigger in this group is never user-created.
const RecoveringJobsGroup = "RECOVERING_JOBS"

// FireNowGroup holds the one-shot triggers created by the admin HTTP
// surface's "fire now" operation. A trigger in this group is never
// user-scheduled.
const FireNowGroup = "FIRE_NOW"

// TriggerKey identifies a Trigger by (group, name).
type TriggerKey struct {
	Name  string
	Group string
}

// NewTriggerKey returns a TriggerKey, defaulting an empty group to DefaultGroup.
func NewTriggerKey(name, group string) TriggerKey {
	if group == "" {
		group = DefaultGroup
	}
	return TriggerKey{Name: name, Group: group}
}

func (k TriggerKey) String() string {
	return k.Group + "." + k.Name
}

// TriggerState is the store-owned lifecycle state of a trigger. Only the
// store mutates it, always under a lock.
type TriggerState string

const (
	TriggerStateWaiting      TriggerState = "WAITING"
	TriggerStateAcquired     TriggerState = "ACQUIRED"
	TriggerStateExecuting    TriggerState = "EXECUTING"
	TriggerStateComplete     TriggerState = "COMPLETE"
	TriggerStatePaused       TriggerState = "PAUSED"
	TriggerStateBlocked      TriggerState = "BLOCKED"
	TriggerStatePausedBlocked TriggerState = "PAUSED_BLOCKED"
	TriggerStateError        TriggerState = "ERROR"
	// TriggerStateNone is returned by the store for a key that does not exist.
	TriggerStateNone TriggerState = "NONE"
)

// MisfireInstruction selects how a trigger recovers after being detected as
// misfired (now - nextFireTime > misfireThreshold). The concrete meaning of
// each non-negative value is trigger-type specific; 0 is always "use the
// scheduler's smart default" and -1 is always "ignore misfire policy".
type MisfireInstruction int

const (
	MisfireInstructionSmartPolicy MisfireInstruction = 0
	MisfireInstructionIgnore      MisfireInstruction = -1
)

// Simple-trigger misfire instructions.
const (
	MisfireSimpleFireNow MisfireInstruction = iota + 1
	MisfireSimpleRescheduleNowWithExistingRepeatCount
	MisfireSimpleRescheduleNowWithRemainingRepeatCount
	MisfireSimpleRescheduleNextWithRemainingCount
	MisfireSimpleRescheduleNextWithExistingCount
)

// Cron/CalendarInterval/DailyTimeInterval/CustomCalendar misfire instructions.
const (
	MisfireFireOnceNow MisfireInstruction = iota + 1
	MisfireDoNothing
)

// CompletionInstruction is what the engine tells the store to do with a
// trigger once a firing finishes executing.
type CompletionInstruction int

const (
	CompletionNoInstruction CompletionInstruction = iota
	CompletionDeleteTrigger
	CompletionSetTriggerComplete
	CompletionSetTriggerError
	CompletionSetAllJobTriggersError
	CompletionSetAllJobTriggersComplete
)

// IntervalUnit is shared by CalendarInterval and DailyTimeInterval triggers.
type IntervalUnit string

const (
	IntervalSecond IntervalUnit = "Second"
	IntervalMinute IntervalUnit = "Minute"
	IntervalHour   IntervalUnit = "Hour"
	IntervalDay    IntervalUnit = "Day"
	IntervalWeek   IntervalUnit = "Week"
	IntervalMonth  IntervalUnit = "Month"
	IntervalYear   IntervalUnit = "Year"
)

// RepeatIndefinitely is the sentinel repeat count meaning "never stop".
const RepeatIndefinitely = -1
