// Package jobqueue implements pipeline.JobQueue (spec.md §4.9): async
// submission, status lookup, cancellation, and result retrieval for
// single-transcript and batch processing requests. The worker loop is
// backend-agnostic — it polls Backend.Claim exactly like Worker.run's
// poll-or-sleep loop in pkg/queue/worker.go — so InProcess and
// PostgresShared differ only in how jobs are stored and claimed, not in
// how they are executed.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/processor"
)

// ErrNoJobsAvailable is returned by pollAndProcess when Backend.Claim
// reports no pending job; the worker loop treats it as a signal to sleep
// rather than an error worth logging.
var ErrNoJobsAvailable = errors.New("jobqueue: no jobs available")

const (
	defaultPollInterval   = 250 * time.Millisecond
	defaultCancelPollTick = 500 * time.Millisecond
	defaultWorkers        = 2
)

// Request is the submission payload for one job. Exactly one of
// Transcript/Transcripts is populated, matching Kind.
type Request struct {
	Kind        models.JobKind
	OwnerToken  string
	Transcript  models.Transcript
	Transcripts []models.Transcript
	Options     processor.Options
	Concurrency int
}

// ListFilter scopes List to one owner and, optionally, one state.
type ListFilter struct {
	OwnerToken string
	State      *models.JobState
}

// Backend is the pluggable storage/scheduling half of a JobQueue (spec.md
// §4.9: "in-process queue (single-node) or shared queue (multi-node)").
// Claim must be atomic with respect to concurrent callers — two workers,
// in this process or another, must never claim the same job.
type Backend interface {
	Enqueue(ctx context.Context, job models.Job, req Request) error
	Claim(ctx context.Context) (models.Job, Request, bool, error)
	MarkTerminal(ctx context.Context, id string, state models.JobState, finishedAt time.Time, result *models.ProcessingResult, batchResult *models.BatchResult, errRec *pipelineerr.ErrorRecord) error
	CancelPending(ctx context.Context, id string) (bool, error)
	RequestCancel(ctx context.Context, id string) (bool, error)
	IsCancelRequested(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (models.Job, bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Job, error)
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// SingleExecutor runs one transcript through the processing pipeline.
type SingleExecutor interface {
	Process(ctx context.Context, t models.Transcript, opts processor.Options) (*models.ProcessingResult, error)
}

// BatchExecutor runs a batch of transcripts through the processing
// pipeline.
type BatchExecutor interface {
	RunBatch(ctx context.Context, ts []models.Transcript, opts processor.Options, concurrency int) *models.BatchResult
}

// Queue is the pipeline.JobQueue implementation shared by every backend.
type Queue struct {
	backend Backend
	single  SingleExecutor
	batch   BatchExecutor
	workers int
	log     *slog.Logger

	pollInterval       time.Duration
	cancelPollInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Queue over backend, executing single-transcript jobs via
// single and batch jobs via batch, running workers concurrent pollers.
func New(backend Backend, single SingleExecutor, batch BatchExecutor, workers int, log *slog.Logger) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		backend:            backend,
		single:             single,
		batch:              batch,
		workers:            workers,
		log:                log,
		pollInterval:       defaultPollInterval,
		cancelPollInterval: defaultCancelPollTick,
		stopCh:             make(chan struct{}),
	}
}

// SetPollIntervals overrides the claim-retry and cancel-check polling
// intervals. Intended for tests that need faster turnaround than the
// production defaults; must be called before Start.
func (q *Queue) SetPollIntervals(poll, cancelCheck time.Duration) {
	if poll > 0 {
		q.pollInterval = poll
	}
	if cancelCheck > 0 {
		q.cancelPollInterval = cancelCheck
	}
}

// Start launches the worker pool in the background.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop signals every worker to exit and waits for them to finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

// Submit enqueues req and returns the new job's id.
func (q *Queue) Submit(ctx context.Context, req Request) (string, error) {
	job := models.Job{
		ID:         uuid.NewString(),
		Kind:       req.Kind,
		OwnerToken: req.OwnerToken,
		State:      models.JobPending,
		CreatedAt:  time.Now(),
	}
	if req.Kind == models.JobKindBatch {
		job.Progress = models.JobProgress{Total: len(req.Transcripts)}
	} else {
		job.Progress = models.JobProgress{Total: 1}
	}
	if err := q.backend.Enqueue(ctx, job, req); err != nil {
		return "", pipelineerr.Internal("enqueueing job", err)
	}
	return job.ID, nil
}

// Status returns the current Job record for id, scoped to ownerToken.
// A job owned by a different token is reported as NotFound (spec.md
// §4.9) rather than Authorization, since job ids are otherwise
// enumerable.
func (q *Queue) Status(ctx context.Context, ownerToken, id string) (models.Job, error) {
	return q.ownedJob(ctx, ownerToken, id)
}

// Cancel requests cancellation of id. A pending job is cancelled
// immediately. A running job is cooperatively signalled and may still
// complete successfully if cancellation is observed too late (spec.md
// §5: cancellation is checked only at suspension points). A terminal
// job cannot be cancelled and Cancel returns false.
func (q *Queue) Cancel(ctx context.Context, ownerToken, id string) (bool, error) {
	job, err := q.ownedJob(ctx, ownerToken, id)
	if err != nil {
		return false, err
	}
	switch job.State {
	case models.JobPending:
		ok, err := q.backend.CancelPending(ctx, id)
		if err != nil {
			return false, pipelineerr.Internal("cancelling pending job", err)
		}
		return ok, nil
	case models.JobRunning:
		ok, err := q.backend.RequestCancel(ctx, id)
		if err != nil {
			return false, pipelineerr.Internal("requesting job cancellation", err)
		}
		return ok, nil
	default:
		return false, nil
	}
}

// Result returns the terminal outcome of id: exactly one of the two
// return values is non-nil on success. Result on a non-terminal job
// returns a Validation error.
func (q *Queue) Result(ctx context.Context, ownerToken, id string) (*models.ProcessingResult, *models.BatchResult, error) {
	job, err := q.ownedJob(ctx, ownerToken, id)
	if err != nil {
		return nil, nil, err
	}
	if !job.State.Terminal() {
		return nil, nil, pipelineerr.Validation(fmt.Sprintf("job %s has not reached a terminal state", id), nil)
	}
	return job.Result, job.BatchResult, nil
}

// List returns every job owned by ownerToken matching filter. Callers
// may not list across owners: ownerToken always wins over
// filter.OwnerToken.
func (q *Queue) List(ctx context.Context, ownerToken string, filter ListFilter) ([]models.Job, error) {
	filter.OwnerToken = ownerToken
	jobs, err := q.backend.List(ctx, filter)
	if err != nil {
		return nil, pipelineerr.Internal("listing jobs", err)
	}
	return jobs, nil
}

func (q *Queue) ownedJob(ctx context.Context, ownerToken, id string) (models.Job, error) {
	job, ok, err := q.backend.Get(ctx, id)
	if err != nil {
		return models.Job{}, pipelineerr.Internal("fetching job", err)
	}
	if !ok || job.OwnerToken != ownerToken {
		return models.Job{}, pipelineerr.NotFound(fmt.Sprintf("job %s not found", id))
	}
	return job, nil
}

func (q *Queue) run(ctx context.Context, workerID string) {
	defer q.wg.Done()
	log := q.log.With("worker_id", workerID)
	log.Info("job queue worker started")

	for {
		select {
		case <-q.stopCh:
			log.Info("job queue worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
			if err := q.pollAndProcess(ctx, workerID); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					q.sleep(q.pollInterval)
					continue
				}
				log.Error("job processing error", "error", err)
				q.sleep(time.Second)
			}
		}
	}
}

func (q *Queue) sleep(d time.Duration) {
	select {
	case <-q.stopCh:
	case <-time.After(d):
	}
}

func (q *Queue) pollAndProcess(ctx context.Context, workerID string) error {
	job, req, ok, err := q.backend.Claim(ctx)
	if err != nil {
		return fmt.Errorf("claiming job: %w", err)
	}
	if !ok {
		return ErrNoJobsAvailable
	}

	log := q.log.With("worker_id", workerID, "job_id", job.ID)
	log.Info("job claimed")

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchCtx, stopWatch := context.WithCancel(ctx)
	go q.watchCancelRequest(watchCtx, job.ID, cancel)
	defer stopWatch()

	var (
		result      *models.ProcessingResult
		batchResult *models.BatchResult
		errRec      *pipelineerr.ErrorRecord
		state       models.JobState
	)

	switch req.Kind {
	case models.JobKindBatch:
		batchResult = q.batch.RunBatch(jobCtx, req.Transcripts, req.Options, req.Concurrency)
		state = models.JobSucceeded
	default:
		pr, procErr := q.single.Process(jobCtx, req.Transcript, req.Options)
		if procErr != nil {
			rec := asError(procErr).ToRecord()
			errRec = &rec
			state = terminalStateForError(procErr)
		} else {
			result = pr
			state = models.JobSucceeded
		}
	}

	if jobCtx.Err() != nil && state != models.JobCancelled {
		rec := pipelineerr.Cancelled().ToRecord()
		errRec = &rec
		state = models.JobCancelled
	}

	if err := q.backend.MarkTerminal(ctx, job.ID, state, time.Now(), result, batchResult, errRec); err != nil {
		log.Error("failed to record terminal job state", "error", err)
		return err
	}
	log.Info("job finished", "state", state)
	return nil
}

func (q *Queue) watchCancelRequest(ctx context.Context, id string, cancel context.CancelFunc) {
	ticker := time.NewTicker(q.cancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := q.backend.IsCancelRequested(ctx, id)
			if err != nil {
				q.log.Warn("checking cancel request failed", "job_id", id, "error", err)
				continue
			}
			if requested {
				cancel()
				return
			}
		}
	}
}

func terminalStateForError(err error) models.JobState {
	if errors.Is(err, pipelineerr.Cancelled()) {
		return models.JobCancelled
	}
	return models.JobFailed
}

func asError(err error) *pipelineerr.Error {
	var perr *pipelineerr.Error
	if errors.As(err, &perr) {
		return perr
	}
	return pipelineerr.Internal(err.Error(), err)
}
