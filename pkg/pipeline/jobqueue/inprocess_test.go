package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
)

func TestInProcessClaimSkipsCancelledWhileQueued(t *testing.T) {
	b := NewInProcess()
	ctx := context.Background()

	job := models.Job{ID: "j1", State: models.JobPending, CreatedAt: time.Now()}
	require.NoError(t, b.Enqueue(ctx, job, Request{}))

	ok, err := b.CancelPending(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, claimed, err := b.Claim(ctx)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestInProcessPurgeRemovesOldTerminalJobsOnly(t *testing.T) {
	b := NewInProcess()
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	require.NoError(t, b.Enqueue(ctx, models.Job{ID: "old", State: models.JobSucceeded, FinishedAt: &old}, Request{}))
	require.NoError(t, b.Enqueue(ctx, models.Job{ID: "recent", State: models.JobSucceeded, FinishedAt: &recent}, Request{}))
	require.NoError(t, b.Enqueue(ctx, models.Job{ID: "pending", State: models.JobPending}, Request{}))

	purged, err := b.Purge(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, ok, err := b.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.Get(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = b.Get(ctx, "pending")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInProcessRequestCancelOnlyAffectsRunningJobs(t *testing.T) {
	b := NewInProcess()
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, models.Job{ID: "pending", State: models.JobPending}, Request{}))
	ok, err := b.RequestCancel(ctx, "pending")
	require.NoError(t, err)
	assert.False(t, ok, "RequestCancel should not flag a job that is still pending")

	job, _, claimed, err := b.Claim(ctx)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, models.JobRunning, job.State)

	ok, err = b.RequestCancel(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	requested, err := b.IsCancelRequested(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, requested)
}
