package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// stubAdapter отдаёт заранее заданные пачки jobs и запоминает запросы.
type stubAdapter struct {
	mu       sync.Mutex
	requests []domain.ActivateJobsRequest
	batches  [][]*domain.Job
	err      error
	calls    chan struct{}
}

func (a *stubAdapter) ActivateJobs(_ context.Context, req domain.ActivateJobsRequest) ([]*domain.Job, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	var jobs []*domain.Job
	if len(a.batches) > 0 {
		jobs = a.batches[0]
		a.batches = a.batches[1:]
	}
	err := a.err
	a.mu.Unlock()

	if a.calls != nil {
		select {
		case a.calls <- struct{}{}:
		default:
		}
	}
	return jobs, err
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// stubReporter принимает любой отчёт о job.
type stubReporter struct {
	err error
}

func (r *stubReporter) CompleteJob(context.Context, uuid.UUID, string, map[string]any) error { return r.err }

func (r *stubReporter) FailJob(context.Context, uuid.UUID, string, int, string) error { return r.err }

func (r *stubReporter) ThrowError(context.Context, uuid.UUID, string, string, string) error { return r.err }

func newTestWorker(t *testing.T, adapter Adapter, opts ...func(*Config)) *Worker {
	t.Helper()

	cfg := Config{
		Adapter:        adapter,
		Name:           "test-worker",
		PollInterval:   10 * time.Millisecond,
		WatchFrequency: time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := New(cfg)
	t.Cleanup(w.Stop)
	return w
}

func newJobs(n int, taskType string, rep domain.JobReporter) []*domain.Job {
	jobs := make([]*domain.Job, 0, n)
	for range n {
		job := &domain.Job{
			ID:        uuid.New(),
			Type:      taskType,
			Status:    domain.JobStatusActivated,
			Variables: map[string]any{},
			Retries:   3,
		}
		job.AttachReporter(rep)
		jobs = append(jobs, job)
	}
	return jobs
}

func noop(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}
