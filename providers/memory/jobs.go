package memory

import (
	"fmt"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

type jobEntry struct {
	job       provider.Job
	remaining int
}

// jobTable simulates an asynchronous backend. Guarded by Provider.mu.
type jobTable struct {
	async    bool
	polls    int
	failNext string
	jobs     map[string]*jobEntry
}

// issue applies a write. In synchronous mode it runs apply and returns nil.
// In asynchronous mode the write is applied immediately but reported as
// running until the configured number of polls have been answered.
func (t *jobTable) issue(apply func()) *provider.Job {
	if !t.async {
		apply()
		return nil
	}

	entry := &jobEntry{
		job:       provider.Job{ID: uuid.NewString(), State: provider.JobPending},
		remaining: t.polls,
	}
	if t.failNext != "" {
		entry.job.State = provider.JobRunning
		entry.job.Message = t.failNext
		entry.remaining = -1
		t.failNext = ""
	} else {
		apply()
	}
	t.jobs[entry.job.ID] = entry
	job := entry.job
	return &job
}

func (t *jobTable) status(id string) (provider.Job, error) {
	entry, ok := t.jobs[id]
	if !ok {
		return provider.Job{}, fmt.Errorf("job %s: %w", id, provider.ErrNotFound)
	}
	switch {
	case entry.job.State.Terminal():
	case entry.remaining < 0:
		entry.job.State = provider.JobError
	case entry.remaining == 0:
		entry.job.State = provider.JobComplete
	default:
		entry.remaining--
		entry.job.State = provider.JobRunning
	}
	return entry.job, nil
}
