package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobService_CreateJob(t *testing.T) {
	t.Parallel()

	t.Run("starts the job running", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		svc := sqlite.NewJobService(db)

		job := &sigmatch.Job{JobType: sigmatch.JobDiscovery, Status: sigmatch.JobCompleted}
		require.NoError(t, svc.CreateJob(context.Background(), job))

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, sigmatch.JobRunning, job.Status)
		assert.False(t, job.StartedAt.IsZero())
	})

	t.Run("requires a job type", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		err := sqlite.NewJobService(db).CreateJob(context.Background(), &sigmatch.Job{})

		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})
}

func TestJobService_FinishJob(t *testing.T) {
	t.Parallel()

	t.Run("stores counts, error and metadata", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		svc := sqlite.NewJobService(db)

		started := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		job := &sigmatch.Job{JobType: sigmatch.JobEmbedding, StartedAt: started}
		require.NoError(t, svc.CreateJob(ctx, job))

		require.NoError(t, svc.FinishJob(ctx, job.ID, sigmatch.JobUpdate{
			Status:         sigmatch.JobFailed,
			ItemsTotal:     20,
			ItemsProcessed: 15,
			ItemsFailed:    5,
			CompletedAt:    started.Add(3 * time.Second),
			Error:          "provider quota exhausted",
			Metadata:       map[string]any{"batches": 2},
		}))

		jobs, err := svc.FindJobs(ctx, sigmatch.JobFilter{})
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		got := jobs[0]
		assert.Equal(t, sigmatch.JobFailed, got.Status)
		assert.Equal(t, 15, got.ItemsProcessed)
		assert.Equal(t, 5, got.ItemsFailed)
		assert.Equal(t, "provider quota exhausted", got.Error)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, 3*time.Second, got.CompletedAt.Sub(got.StartedAt))
		assert.InDelta(t, 2, got.Metadata["batches"], 0)
	})

	t.Run("rejects a running final status", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		svc := sqlite.NewJobService(db)

		job := &sigmatch.Job{JobType: sigmatch.JobScrape}
		require.NoError(t, svc.CreateJob(ctx, job))

		err := svc.FinishJob(ctx, job.ID, sigmatch.JobUpdate{Status: sigmatch.JobRunning})

		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})

	t.Run("reports an unknown job", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		err := sqlite.NewJobService(db).FinishJob(context.Background(), "missing", sigmatch.JobUpdate{Status: sigmatch.JobCompleted})

		assert.Equal(t, sigmatch.ENOTFOUND, sigmatch.ErrorCode(err))
	})
}

func TestJobService_FindJobs(t *testing.T) {
	t.Parallel()

	t.Run("filters by type newest first", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		svc := sqlite.NewJobService(db)

		base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		for i, jobType := range []sigmatch.JobType{sigmatch.JobMatching, sigmatch.JobDecay, sigmatch.JobMatching} {
			require.NoError(t, svc.CreateJob(ctx, &sigmatch.Job{JobType: jobType, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
		}

		matching := sigmatch.JobMatching
		jobs, err := svc.FindJobs(ctx, sigmatch.JobFilter{JobType: &matching})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, base.Add(2*time.Hour), jobs[0].StartedAt)
		assert.Equal(t, base, jobs[1].StartedAt)

		limited, err := svc.FindJobs(ctx, sigmatch.JobFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}
