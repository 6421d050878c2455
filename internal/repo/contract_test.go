package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

// jobStore — общий контракт JobRepo и MemoryJobRepo.
type jobStore interface {
	domain.JobReporter
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
	ActivateJobs(ctx context.Context, req domain.ActivateJobsRequest) ([]*domain.Job, error)
}

// seedJobs создаёт n jobs уникального типа с возрастающим CreatedAt.
func seedJobs(t *testing.T, store jobStore, n int) (string, []*domain.Job) {
	t.Helper()

	taskType := "test-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)

	jobs := make([]*domain.Job, 0, n)
	for i := range n {
		job := domain.NewJob(taskType, map[string]any{
			"index": float64(i),
			"name":  "job",
			"extra": true,
		})
		job.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, store.Create(context.Background(), job))
		jobs = append(jobs, job)
	}
	return taskType, jobs
}

func activate(t *testing.T, store jobStore, taskType string, limit int, vars ...string) []*domain.Job {
	t.Helper()

	jobs, err := store.ActivateJobs(context.Background(), domain.ActivateJobsRequest{
		TaskType:          taskType,
		Worker:            "worker-1",
		Timeout:           time.Minute,
		MaxJobsToActivate: limit,
		VariablesToFetch:  vars,
	})
	require.NoError(t, err)
	return jobs
}

func runContract(t *testing.T, store jobStore) {
	ctx := context.Background()

	t.Run("ActivateInCreationOrder", func(t *testing.T) {
		taskType, seeded := seedJobs(t, store, 5)

		jobs := activate(t, store, taskType, 3)
		require.Len(t, jobs, 3)
		for i, job := range jobs {
			assert.Equal(t, seeded[i].ID, job.ID)
			assert.Equal(t, domain.JobStatusActivated, job.Status)
			assert.Equal(t, "worker-1", job.Worker)
			require.NotNil(t, job.Deadline)
			assert.True(t, job.Deadline.After(time.Now()))
		}

		rest := activate(t, store, taskType, 10)
		require.Len(t, rest, 2)
		assert.Equal(t, seeded[3].ID, rest[0].ID)

		assert.Empty(t, activate(t, store, taskType, 10))
	})

	t.Run("ActivateOtherTypeEmpty", func(t *testing.T) {
		_, _ = seedJobs(t, store, 1)
		assert.Empty(t, activate(t, store, "missing-"+uuid.NewString(), 10))
	})

	t.Run("VariablesToFetch", func(t *testing.T) {
		taskType, _ := seedJobs(t, store, 2)

		filtered := activate(t, store, taskType, 1, "index", "absent")
		require.Len(t, filtered, 1)
		assert.Equal(t, map[string]any{"index": float64(0)}, filtered[0].Variables)

		all := activate(t, store, taskType, 1)
		require.Len(t, all, 1)
		assert.Len(t, all[0].Variables, 3)
	})

	t.Run("CompleteMergesVariables", func(t *testing.T) {
		taskType, _ := seedJobs(t, store, 1)
		job := activate(t, store, taskType, 1, "index")[0]

		job.Variables = map[string]any{"result": "ok"}
		require.NoError(t, job.Complete(ctx))

		stored, err := store.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, stored.Status)
		assert.Equal(t, "ok", stored.Variables["result"])
		assert.Equal(t, "job", stored.Variables["name"])
		assert.Nil(t, stored.Deadline)
	})

	t.Run("FailWithRetriesReactivates", func(t *testing.T) {
		taskType, _ := seedJobs(t, store, 1)
		job := activate(t, store, taskType, 1)[0]

		require.NoError(t, job.Fail(ctx, "boom"))

		stored, err := store.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusActivatable, stored.Status)
		assert.Equal(t, domain.DefaultRetries-1, stored.Retries)
		assert.Equal(t, "boom", stored.ErrorMessage)

		again := activate(t, store, taskType, 1)
		require.Len(t, again, 1)
		assert.Equal(t, job.ID, again[0].ID)
	})

	t.Run("FailWithoutRetries", func(t *testing.T) {
		taskType, _ := seedJobs(t, store, 1)
		job := activate(t, store, taskType, 1)[0]

		require.NoError(t, store.FailJob(ctx, job.ID, job.Worker, 0, "fatal"))

		stored, err := store.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
		assert.Empty(t, activate(t, store, taskType, 1))
	})

	t.Run("ThrowError", func(t *testing.T) {
		taskType, _ := seedJobs(t, store, 1)
		job := activate(t, store, taskType, 1)[0]

		require.NoError(t, job.ThrowError(ctx, "DECLINED", "card declined"))

		stored, err := store.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusErrorThrown, stored.Status)
		assert.Equal(t, "DECLINED", stored.ErrorCode)
	})

	t.Run("ExpiredDeadlineReactivates", func(t *testing.T) {
		taskType, seeded := seedJobs(t, store, 1)

		jobs, err := store.ActivateJobs(ctx, domain.ActivateJobsRequest{
			TaskType:          taskType,
			Worker:            "worker-1",
			Timeout:           -time.Second,
			MaxJobsToActivate: 1,
		})
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		again := activate(t, store, taskType, 1)
		require.Len(t, again, 1)
		assert.Equal(t, seeded[0].ID, again[0].ID)
	})

	t.Run("ReportInvalidState", func(t *testing.T) {
		_, seeded := seedJobs(t, store, 1)

		err := store.CompleteJob(ctx, seeded[0].ID, "worker-1", nil)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.ErrorIs(t, err, domain.ErrLockLost)

		err = store.ThrowError(ctx, uuid.New(), "worker-1", "X", "y")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ReportRequiresLockOwner", func(t *testing.T) {
		taskType, seeded := seedJobs(t, store, 1)

		stale, err := store.ActivateJobs(ctx, domain.ActivateJobsRequest{
			TaskType:          taskType,
			Worker:            "worker-a",
			Timeout:           -time.Second,
			MaxJobsToActivate: 1,
		})
		require.NoError(t, err)
		require.Len(t, stale, 1)

		owned, err := store.ActivateJobs(ctx, domain.ActivateJobsRequest{
			TaskType:          taskType,
			Worker:            "worker-b",
			Timeout:           time.Minute,
			MaxJobsToActivate: 1,
		})
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, seeded[0].ID, owned[0].ID)

		stale[0].Variables = map[string]any{"by": "a"}
		err = stale[0].Complete(ctx)
		assert.ErrorIs(t, err, domain.ErrLockLost)
		assert.ErrorIs(t, stale[0].Fail(ctx, "late"), domain.ErrLockLost)
		assert.ErrorIs(t, stale[0].ThrowError(ctx, "LATE", "late"), domain.ErrLockLost)

		owned[0].Variables = map[string]any{"by": "b"}
		require.NoError(t, owned[0].Complete(ctx))

		stored, err := store.GetByID(ctx, seeded[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, stored.Status)
		assert.Equal(t, "b", stored.Variables["by"])
		assert.Equal(t, "worker-b", stored.Worker)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		_, seeded := seedJobs(t, store, 1)
		assert.ErrorIs(t, store.Create(ctx, seeded[0]), ErrAlreadyExists)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		taskType, seeded := seedJobs(t, store, 3)
		activate(t, store, taskType, 1)

		all, err := store.List(ctx, JobFilter{Type: taskType})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, seeded[2].ID, all[0].ID)

		activated, err := store.List(ctx, JobFilter{Type: taskType, Status: domain.JobStatusActivated})
		require.NoError(t, err)
		require.Len(t, activated, 1)
		assert.Equal(t, seeded[0].ID, activated[0].ID)

		limited, err := store.List(ctx, JobFilter{Type: taskType, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}
