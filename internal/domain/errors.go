package domain

import "errors"

// Error kinds per the scheduler's error taxonomy. Store-layer transient
// errors are wrapped in these so callers can branch with errors.Is/As
// instead of string matching.
var (
	// ErrJobNotFound is returned when a JobKey has no matching JobDetail.
	ErrJobNotFound = errors.New("coriolis: job not found")
	// ErrTriggerNotFound is returned when a TriggerKey has no matching Trigger.
	ErrTriggerNotFound = errors.New("coriolis: trigger not found")
	// ErrCalendarNotFound is returned when a named Calendar does not exist.
	ErrCalendarNotFound = errors.New("coriolis: calendar not found")
	// ErrObjectAlreadyExists is returned when a store insert violates
	// uniqueness and the caller asked for replaceExisting=false.
	ErrObjectAlreadyExists = errors.New("coriolis: object already exists")
	// ErrCalendarInUse is returned when removing a calendar still
	// referenced by a trigger.
	ErrCalendarInUse = errors.New("coriolis: calendar is referenced by existing triggers")
	// ErrJobReferenced is returned when removing a job that is still
	// durable-required or has non-durable triggers attached.
	ErrJobReferenced = errors.New("coriolis: job is referenced by one or more triggers")
)

// JobPersistenceError wraps a failure from the store's underlying driver.
type JobPersistenceError struct {
	Op  string
	Err error
}

func (e *JobPersistenceError) Error() string {
	return "coriolis: job persistence error during " + e.Op + ": " + e.Err.Error()
}

func (e *JobPersistenceError) Unwrap() error { return e.Err }

// SchedulerConfigError indicates an invalid configuration at startup.
type SchedulerConfigError struct {
	Reason string
}

func (e *SchedulerConfigError) Error() string {
	return "coriolis: scheduler config error: " + e.Reason
}

// LockTimeoutError indicates acquiring a named row lock exceeded the
// configured timeout. Retryable by the caller.
type LockTimeoutError struct {
	LockName string
}

func (e *LockTimeoutError) Error() string {
	return "coriolis: timed out acquiring lock " + e.LockName
}

// JobExecutionError is raised by user job code. RefireImmediately and the
// unschedule flags steer how the engine completes the firing trigger.
type JobExecutionError struct {
	Err                  error
	RefireImmediately    bool
	UnscheduleFiring     bool
	UnscheduleAllTrigger bool
}

func (e *JobExecutionError) Error() string {
	if e.Err == nil {
		return "coriolis: job execution error"
	}
	return "coriolis: job execution error: " + e.Err.Error()
}

func (e *JobExecutionError) Unwrap() error { return e.Err }
