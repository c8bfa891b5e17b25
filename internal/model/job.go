package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// JobType selects which pipeline a job runs.
type JobType string

const (
	JobEnrichRecord JobType = "enrich_record"
	JobVerifyRecord JobType = "verify_record"
)

// ParseJobType validates s.
func ParseJobType(s string) (JobType, error) {
	switch JobType(s) {
	case JobEnrichRecord, JobVerifyRecord:
		return JobType(s), nil
	}
	return "", eris.Errorf("model: invalid job type %q", s)
}

// JobStatus is a job's position in the queue state machine.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobRunning     JobStatus = "running"
	JobSucceeded   JobStatus = "succeeded"
	JobFailed      JobStatus = "failed"
	JobRateLimited JobStatus = "rate_limited"
	JobCancelled   JobStatus = "cancelled"
)

// ActiveJobStatuses are the non-terminal states.
var ActiveJobStatuses = []JobStatus{JobQueued, JobRunning, JobRateLimited}

// CancellableJobStatuses may be passed to a bulk cancel.
var CancellableJobStatuses = []JobStatus{JobQueued, JobRateLimited, JobRunning}

// DefaultCancelStatuses is used when a cancel names no statuses.
var DefaultCancelStatuses = []JobStatus{JobQueued, JobRateLimited}

var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:      {JobRunning, JobCancelled},
	JobRateLimited: {JobRunning, JobCancelled},
	JobRunning:     {JobSucceeded, JobFailed, JobRateLimited, JobCancelled},
}

// ParseJobStatus validates s.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobQueued, JobRunning, JobSucceeded, JobFailed, JobRateLimited, JobCancelled:
		return JobStatus(s), nil
	}
	return "", eris.Errorf("model: invalid job status %q", s)
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Claimable reports whether the claim query may select a job in this state.
func (s JobStatus) Claimable() bool {
	return s == JobQueued || s == JobRateLimited
}

// CanTransition reports whether s -> next is a legal state change.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job is one unit of enrichment or verification work bound to a record.
type Job struct {
	ID        string     `json:"id"`
	RecordID  string     `json:"recordId"`
	JobType   JobType    `json:"jobType"`
	Status    JobStatus  `json:"status"`
	RunAfter  *time.Time `json:"runAfter,omitempty"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"lastError,omitempty"`
	InputHash string     `json:"inputHash,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// JobStatusView is the latest job state for one record.
type JobStatusView struct {
	Status    JobStatus `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}
