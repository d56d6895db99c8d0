package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/processor"
)

type fakeSingle struct {
	fn func(ctx context.Context, t models.Transcript) (*models.ProcessingResult, error)
}

func (f *fakeSingle) Process(ctx context.Context, t models.Transcript, _ processor.Options) (*models.ProcessingResult, error) {
	return f.fn(ctx, t)
}

type fakeBatch struct {
	fn func(ts []models.Transcript) *models.BatchResult
}

func (f *fakeBatch) RunBatch(_ context.Context, ts []models.Transcript, _ processor.Options, _ int) *models.BatchResult {
	return f.fn(ts)
}

func newTestQueue(t *testing.T, single SingleExecutor, batch BatchExecutor) *Queue {
	t.Helper()
	q := New(NewInProcess(), single, batch, 2, nil)
	q.SetPollIntervals(5*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Stop()
	})
	return q
}

func waitForTerminal(t *testing.T, q *Queue, owner, id string) models.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Status(context.Background(), owner, id)
		require.NoError(t, err)
		if job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return models.Job{}
}

func TestSubmitAndResultRoundTrip(t *testing.T) {
	single := &fakeSingle{fn: func(_ context.Context, tr models.Transcript) (*models.ProcessingResult, error) {
		return &models.ProcessingResult{Created: []models.PageRef{{EntityName: tr.ID}}}, nil
	}}
	q := newTestQueue(t, single, &fakeBatch{})

	id, err := q.Submit(context.Background(), Request{
		Kind:       models.JobKindSingle,
		OwnerToken: "alice",
		Transcript: models.Transcript{ID: "t1"},
	})
	require.NoError(t, err)

	job := waitForTerminal(t, q, "alice", id)
	assert.Equal(t, models.JobSucceeded, job.State)

	result, batchResult, err := q.Result(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.Nil(t, batchResult)
	require.NotNil(t, result)
	assert.Len(t, result.Created, 1)
}

func TestStatusFromWrongOwnerIsNotFound(t *testing.T) {
	single := &fakeSingle{fn: func(_ context.Context, _ models.Transcript) (*models.ProcessingResult, error) {
		return &models.ProcessingResult{}, nil
	}}
	q := newTestQueue(t, single, &fakeBatch{})

	id, err := q.Submit(context.Background(), Request{
		Kind:       models.JobKindSingle,
		OwnerToken: "alice",
		Transcript: models.Transcript{ID: "t1"},
	})
	require.NoError(t, err)

	_, err = q.Status(context.Background(), "mallory", id)
	require.Error(t, err)
	var perr *pipelineerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pipelineerr.KindNotFound, perr.Kind)
}

func TestCancelPendingJobIsImmediate(t *testing.T) {
	blocked := make(chan struct{})
	single := &fakeSingle{fn: func(ctx context.Context, _ models.Transcript) (*models.ProcessingResult, error) {
		<-blocked
		return &models.ProcessingResult{}, nil
	}}
	// Only one worker so the second submitted job stays Pending while the
	// first occupies the sole worker.
	backend := NewInProcess()
	q := New(backend, single, &fakeBatch{}, 1, nil)
	q.SetPollIntervals(5*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	defer func() { cancel(); close(blocked); q.Stop() }()

	_, err := q.Submit(context.Background(), Request{Kind: models.JobKindSingle, OwnerToken: "alice", Transcript: models.Transcript{ID: "t1"}})
	require.NoError(t, err)
	pendingID, err := q.Submit(context.Background(), Request{Kind: models.JobKindSingle, OwnerToken: "alice", Transcript: models.Transcript{ID: "t2"}})
	require.NoError(t, err)

	// Give the first job a moment to be claimed so t2 is still Pending.
	time.Sleep(30 * time.Millisecond)

	ok, err := q.Cancel(context.Background(), "alice", pendingID)
	require.NoError(t, err)
	assert.True(t, ok)

	job, err := q.Status(context.Background(), "alice", pendingID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.State)
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	single := &fakeSingle{fn: func(_ context.Context, _ models.Transcript) (*models.ProcessingResult, error) {
		return &models.ProcessingResult{}, nil
	}}
	q := newTestQueue(t, single, &fakeBatch{})

	id, err := q.Submit(context.Background(), Request{Kind: models.JobKindSingle, OwnerToken: "alice", Transcript: models.Transcript{ID: "t1"}})
	require.NoError(t, err)
	waitForTerminal(t, q, "alice", id)

	ok, err := q.Cancel(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelRunningJobStopsExecution(t *testing.T) {
	started := make(chan struct{})
	single := &fakeSingle{fn: func(ctx context.Context, _ models.Transcript) (*models.ProcessingResult, error) {
		close(started)
		<-ctx.Done()
		return nil, pipelineerr.Cancelled()
	}}
	q := newTestQueue(t, single, &fakeBatch{})

	id, err := q.Submit(context.Background(), Request{Kind: models.JobKindSingle, OwnerToken: "alice", Transcript: models.Transcript{ID: "t1"}})
	require.NoError(t, err)

	<-started
	ok, err := q.Cancel(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.True(t, ok)

	job := waitForTerminal(t, q, "alice", id)
	assert.Equal(t, models.JobCancelled, job.State)
}

func TestListScopesToOwner(t *testing.T) {
	single := &fakeSingle{fn: func(_ context.Context, _ models.Transcript) (*models.ProcessingResult, error) {
		return &models.ProcessingResult{}, nil
	}}
	q := newTestQueue(t, single, &fakeBatch{})

	_, err := q.Submit(context.Background(), Request{Kind: models.JobKindSingle, OwnerToken: "alice", Transcript: models.Transcript{ID: "t1"}})
	require.NoError(t, err)
	_, err = q.Submit(context.Background(), Request{Kind: models.JobKindSingle, OwnerToken: "bob", Transcript: models.Transcript{ID: "t2"}})
	require.NoError(t, err)

	jobs, err := q.List(context.Background(), "alice", ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].OwnerToken)
}

func TestBatchJobPopulatesBatchResult(t *testing.T) {
	batch := &fakeBatch{fn: func(ts []models.Transcript) *models.BatchResult {
		return &models.BatchResult{PerTranscript: make([]*models.ProcessingResult, len(ts))}
	}}
	q := newTestQueue(t, &fakeSingle{}, batch)

	id, err := q.Submit(context.Background(), Request{
		Kind:        models.JobKindBatch,
		OwnerToken:  "alice",
		Transcripts: []models.Transcript{{ID: "t1"}, {ID: "t2"}},
		Concurrency: 2,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, q, "alice", id)
	assert.Equal(t, models.JobSucceeded, job.State)

	result, batchResult, err := q.Result(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotNil(t, batchResult)
	assert.Len(t, batchResult.PerTranscript, 2)
}
