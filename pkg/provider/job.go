package provider

import "context"

// JobState is the lifecycle state of an asynchronous write.
type JobState string

const (
	JobPending  JobState = "pending"
	JobRunning  JobState = "running"
	JobComplete JobState = "complete"
	JobError    JobState = "error"
)

// Terminal reports whether the job will not change state again.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobError
}

// Job is the handle returned by providers that complete writes asynchronously.
type Job struct {
	ID      string
	State   JobState
	Message string
}

// JobTracker is implemented by providers whose writes return jobs.
type JobTracker interface {
	// JobStatus returns the current state of job id.
	JobStatus(ctx context.Context, id string) (Job, error)
}
