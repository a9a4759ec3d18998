package domain

// JobKey identifies a JobDetail by the (group, name) pair used throughout
// the store. Triggers reference jobs only by key, never by live pointer.
type JobKey struct {
	Name  string
	Group string
}

// DefaultGroup is used whenever a caller does not specify a group.
const DefaultGroup = "DEFAULT"

// NewJobKey returns a JobKey, defaulting an empty group to DefaultGroup.
func NewJobKey(name, group string) JobKey {
	if group == "" {
		group = DefaultGroup
	}
	return JobKey{Name: name, Group: group}
}

func (k JobKey) String() string {
	return k.Group + "." + k.Name
}

// JobDataMap is the mutable payload a job carries. It is handed to a job as
// a snapshot unless the owning JobDetail disallows concurrent execution, in
// which case the executing job receives the live, store-owned map.
type JobDataMap map[string]any

// Clone returns a shallow copy safe for handing to a caller outside the
// store — the store always retains the canonical map.
func (m JobDataMap) Clone() JobDataMap {
	if m == nil {
		return nil
	}
	out := make(JobDataMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// JobDetail is the metadata describing a runnable job type and its initial
// data. JobDetail rows are created by the user and mutated only through
// store APIs.
type JobDetail struct {
	Key JobKey

	// JobType is the registered name the JobFactory uses to instantiate
	// the job implementation (see internal/jobfactory).
	JobType string

	Description string
	JobData     JobDataMap

	// Durable jobs survive even when no trigger references them.
	Durable bool
	// ConcurrentExecutionDisallowed means at most one of this job's
	// triggers may be executing at any instant across the cluster.
	ConcurrentExecutionDisallowed bool
	// PersistJobDataAfterExecution controls whether mutations a job makes
	// to its JobDataMap during execution are written back atomically.
	PersistJobDataAfterExecution bool
	// RequestsRecovery marks the job for recovery scheduling if the
	// firing instance crashes mid-execution (see internal/cluster).
	RequestsRecovery bool
}

// Clone returns a deep-enough copy for handing outside the store.
func (j *JobDetail) Clone() *JobDetail {
	if j == nil {
		return nil
	}
	cp := *j
	cp.JobData = j.JobData.Clone()
	return &cp
}
