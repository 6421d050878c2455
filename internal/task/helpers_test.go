package task

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// recordingReporter запоминает вызовы отчёта о результате.
type recordingReporter struct {
	mu        sync.Mutex
	completed []map[string]any
	failed    []string
	thrown    []string
	err       error
}

func (r *recordingReporter) CompleteJob(_ context.Context, _ uuid.UUID, _ string, variables map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.completed = append(r.completed, variables)
	return nil
}

func (r *recordingReporter) FailJob(_ context.Context, _ uuid.UUID, _ string, _ int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.failed = append(r.failed, message)
	return nil
}

func (r *recordingReporter) ThrowError(_ context.Context, _ uuid.UUID, _, code, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.thrown = append(r.thrown, code)
	return nil
}

func newJob(rep domain.JobReporter, variables map[string]any) *domain.Job {
	job := &domain.Job{
		ID:        uuid.New(),
		Type:      "test",
		Status:    domain.JobStatusActivated,
		Variables: variables,
		Retries:   3,
	}
	job.AttachReporter(rep)
	return job
}

func noop(_ context.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}
