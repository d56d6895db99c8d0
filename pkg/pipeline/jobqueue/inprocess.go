package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// InProcess is the single-node Backend: an in-memory map guarded by a
// RWMutex plus a FIFO slice of pending ids, the same shape as
// WorkerPool.activeSessions in pkg/queue/pool.go scaled down to one
// process instead of one pod fleet.
type InProcess struct {
	mu      sync.RWMutex
	jobs    map[string]models.Job
	reqs    map[string]Request
	pending []string
	cancel  map[string]bool
}

// NewInProcess builds an empty InProcess backend.
func NewInProcess() *InProcess {
	return &InProcess{
		jobs:   make(map[string]models.Job),
		reqs:   make(map[string]Request),
		cancel: make(map[string]bool),
	}
}

func (b *InProcess) Enqueue(_ context.Context, job models.Job, req Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[job.ID] = job
	b.reqs[job.ID] = req
	b.pending = append(b.pending, job.ID)
	return nil
}

func (b *InProcess) Claim(_ context.Context) (models.Job, Request, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.pending) > 0 {
		id := b.pending[0]
		b.pending = b.pending[1:]

		job, ok := b.jobs[id]
		if !ok || job.State != models.JobPending {
			// Cancelled or otherwise removed while still queued.
			continue
		}
		now := time.Now()
		job.State = models.JobRunning
		job.StartedAt = &now
		b.jobs[id] = job
		return job, b.reqs[id], true, nil
	}
	return models.Job{}, Request{}, false, nil
}

func (b *InProcess) MarkTerminal(_ context.Context, id string, state models.JobState, finishedAt time.Time, result *models.ProcessingResult, batchResult *models.BatchResult, errRec *pipelineerr.ErrorRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return nil
	}
	job.State = state
	job.FinishedAt = &finishedAt
	job.Result = result
	job.BatchResult = batchResult
	job.Error = errRec
	if result != nil {
		job.Progress = models.JobProgress{Done: 1, Total: 1}
	} else if batchResult != nil {
		job.Progress = models.JobProgress{Done: len(batchResult.PerTranscript), Total: len(batchResult.PerTranscript)}
	}
	b.jobs[id] = job
	delete(b.cancel, id)
	return nil
}

func (b *InProcess) CancelPending(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok || job.State != models.JobPending {
		return false, nil
	}
	now := time.Now()
	job.State = models.JobCancelled
	job.FinishedAt = &now
	b.jobs[id] = job
	return true, nil
}

func (b *InProcess) RequestCancel(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok || job.State != models.JobRunning {
		return false, nil
	}
	b.cancel[id] = true
	return true, nil
}

func (b *InProcess) IsCancelRequested(_ context.Context, id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cancel[id], nil
}

func (b *InProcess) Get(_ context.Context, id string) (models.Job, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	job, ok := b.jobs[id]
	return job, ok, nil
}

func (b *InProcess) List(_ context.Context, filter ListFilter) ([]models.Job, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Job, 0, len(b.jobs))
	for _, job := range b.jobs {
		if job.OwnerToken != filter.OwnerToken {
			continue
		}
		if filter.State != nil && job.State != *filter.State {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (b *InProcess) Purge(_ context.Context, olderThan time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	purged := 0
	for id, job := range b.jobs {
		if !job.State.Terminal() || job.FinishedAt == nil {
			continue
		}
		if job.FinishedAt.Before(olderThan) {
			delete(b.jobs, id)
			delete(b.reqs, id)
			delete(b.cancel, id)
			purged++
		}
	}
	return purged, nil
}
