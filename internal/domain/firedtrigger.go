package domain

import (
	"fmt"
	"strings"
	"time"
)

// FiredTriggerState tracks a FiredTrigger record's own small lifecycle,
// distinct from the owning Trigger's TriggerState.
type FiredTriggerState string

const (
	FiredStateAcquired  FiredTriggerState = "ACQUIRED"
	FiredStateExecuting FiredTriggerState = "EXECUTING"
)

// FiredTrigger is inserted when a trigger is acquired and removed when its
// firing completes. It survives a crash so recovery can rebuild in-flight
// state (spec.md §3, §4.3 "Cluster recovery").
type FiredTrigger struct {
	EntryID      string
	TriggerKey   TriggerKey
	JobKey       JobKey
	InstanceName string

	FiredTime     time.Time
	ScheduledTime time.Time
	Priority      int

	State FiredTriggerState

	// ConcurrentExecutionDisallowed mirrors the owning JobDetail flag at
	// the moment of firing, so completion doesn't need to re-read it.
	ConcurrentExecutionDisallowed bool
	RequestsRecovery              bool
}

// TriggerFiredBundle is the successful result of triggersFired for one
// trigger: everything the engine needs to build a JobExecutionContext.
type TriggerFiredBundle struct {
	Trigger       Trigger
	Job           *JobDetail
	Calendar      Calendar
	FireTime      time.Time
	ScheduledTime time.Time
	PrevFireTime  *time.Time
	NextFireTime  *time.Time
	Recovering    bool
	RecoveringKey TriggerKey
}

// TriggerFiredSkipReason explains why triggersFired declined to fire a
// trigger it was asked about (another instance got there first, the
// trigger was paused/deleted/blocked in the interim, etc).
type TriggerFiredSkipReason string

const (
	SkipNoLongerAvailable TriggerFiredSkipReason = "no_longer_available"
	SkipJobConcurrentBlocked TriggerFiredSkipReason = "job_concurrent_blocked"
	SkipCalendarExcluded  TriggerFiredSkipReason = "calendar_excluded"
)

// TriggerFiredResult is the per-trigger outcome of triggersFired.
type TriggerFiredResult struct {
	Bundle     *TriggerFiredBundle
	SkipReason TriggerFiredSkipReason
}

// RecoveringFireTimeKey is the JobDataMap key a recovered job's original
// scheduled fire time is stored under, so job code can tell when it was
// meant to run versus when recovery actually re-fired it.
const RecoveringFireTimeKey = "coriolis:recovering-fire-time"

const recoveryKeySeparator = "::"

// RecoveryTriggerName encodes the key of the trigger whose firing is being
// recovered into the name of the one-shot trigger cluster recovery creates
// for it, so TriggersFired can recover the original identity without a
// dedicated column. entryID disambiguates multiple recoveries of the same
// original trigger across crashes.
func RecoveryTriggerName(original TriggerKey, entryID string) string {
	return fmt.Sprintf("recover%s%s%s%s%s%s", recoveryKeySeparator, original.Group, recoveryKeySeparator, original.Name, recoveryKeySeparator, entryID)
}

// ParseRecoveryTriggerName reverses RecoveryTriggerName; ok is false if name
// was not produced by it.
func ParseRecoveryTriggerName(name string) (original TriggerKey, ok bool) {
	parts := strings.Split(name, recoveryKeySeparator)
	if len(parts) != 4 || parts[0] != "recover" {
		return TriggerKey{}, false
	}
	return TriggerKey{Group: parts[1], Name: parts[2]}, true
}

// SchedulerState is the per-instance heartbeat row driving cluster failover.
type SchedulerState struct {
	SchedName       string
	InstanceName    string
	LastCheckinTime time.Time
	CheckinInterval time.Duration
}
