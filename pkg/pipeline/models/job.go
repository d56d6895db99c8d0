package models

import (
	"time"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// JobState is the closed state machine spec.md §4.9 defines for a Job.
type JobState string

// Recognized job states. Pending/Running are non-terminal; the rest are
// sinks.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether s is one of the three sink states.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// JobProgress tracks coarse-grained completion for batch jobs.
type JobProgress struct {
	Done  int
	Total int
}

// JobKind distinguishes a single-transcript job from a batch job, since
// Result() returns a different payload shape for each.
type JobKind string

// Recognized job kinds.
const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)

// Job is the externally visible handle to one asynchronous processing
// request (spec.md §3).
type Job struct {
	ID          string
	Kind        JobKind
	OwnerToken  string
	State       JobState
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Progress    JobProgress
	Result      *ProcessingResult // set when Kind == JobKindSingle and terminal == Succeeded
	BatchResult *BatchResult      // set when Kind == JobKindBatch and terminal == Succeeded
	Error       *pipelineerr.ErrorRecord
}
