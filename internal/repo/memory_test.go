package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestMemoryJobRepo_Contract(t *testing.T) {
	runContract(t, NewMemoryJobRepo())
}

func TestMemoryJobRepo_ReturnsCopies(t *testing.T) {
	r := NewMemoryJobRepo()
	ctx := context.Background()

	job := domain.NewJob("copy", map[string]any{"a": "1"})
	require.NoError(t, r.Create(ctx, job))

	job.Variables["a"] = "changed"

	stored, err := r.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", stored.Variables["a"])

	stored.Variables["a"] = "changed again"
	again, err := r.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", again.Variables["a"])
}

func TestMemoryJobRepo_ActivateCancelledContext(t *testing.T) {
	r := NewMemoryJobRepo()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ActivateJobs(ctx, domain.ActivateJobsRequest{TaskType: "t", MaxJobsToActivate: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterVariables(t *testing.T) {
	vars := map[string]any{"a": 1, "b": 2}

	assert.Equal(t, map[string]any{"a": 1}, filterVariables(vars, []string{"a", "c"}))
	assert.Equal(t, vars, filterVariables(vars, nil))
	assert.NotNil(t, filterVariables(nil, nil))
}

func TestMergeVariables(t *testing.T) {
	merged := mergeVariables(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3, "c": 4})
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)

	assert.Equal(t, map[string]any{"c": 4}, mergeVariables(nil, map[string]any{"c": 4}))
}
