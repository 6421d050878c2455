package repo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MemoryJobRepo — адаптер без БД с тем же контрактом, что у JobRepo.
//
// Используется при ADAPTER=memory и в тестах. Состояние живёт только
// в памяти процесса.
type MemoryJobRepo struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*domain.Job
	order []uuid.UUID
	now   func() time.Time
}

// NewMemoryJobRepo создаёт пустой MemoryJobRepo.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{
		jobs: make(map[uuid.UUID]*domain.Job),
		now:  time.Now,
	}
}

// Create сохраняет копию job.
func (r *MemoryJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("%w: job %s", ErrAlreadyExists, job.ID)
	}

	stored := copyJob(job)
	stored.Variables = nonNilVariables(stored.Variables)
	stored.CustomHeaders = nonNilHeaders(stored.CustomHeaders)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}

	r.jobs[job.ID] = stored
	r.order = append(r.order, job.ID)
	return nil
}

// GetByID возвращает копию job.
func (r *MemoryJobRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

// List возвращает jobs по фильтру, новые первыми.
func (r *MemoryJobRepo) List(_ context.Context, filter JobFilter) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*domain.Job
	for _, id := range slices.Backward(r.order) {
		job := r.jobs[id]
		if !filter.match(job) {
			continue
		}
		jobs = append(jobs, copyJob(job))
		if len(jobs) == filter.limit() {
			break
		}
	}
	return jobs, nil
}

// ActivateJobs захватывает jobs типа TaskType в порядке создания.
func (r *MemoryJobRepo) ActivateJobs(ctx context.Context, req domain.ActivateJobsRequest) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	deadline := now.Add(req.Timeout)

	var jobs []*domain.Job
	for _, id := range r.order {
		if len(jobs) >= req.MaxJobsToActivate {
			break
		}

		job := r.jobs[id]
		if job.Type != req.TaskType || !activatable(job, now) {
			continue
		}

		job.Status = domain.JobStatusActivated
		job.Worker = req.Worker
		job.Deadline = &deadline

		activated := copyJob(job)
		activated.Variables = filterVariables(job.Variables, req.VariablesToFetch)
		activated.AttachReporter(r)
		jobs = append(jobs, activated)
	}
	return jobs, nil
}

// CompleteJob завершает активированную job, дописывая variables.
func (r *MemoryJobRepo) CompleteJob(_ context.Context, id uuid.UUID, worker string, variables map[string]any) error {
	return r.transition(id, worker, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Variables = mergeVariables(job.Variables, variables)
		job.Deadline = nil
	})
}

// FailJob фиксирует неудачу. При retries > 0 job снова доступна для активации.
func (r *MemoryJobRepo) FailJob(_ context.Context, id uuid.UUID, worker string, retries int, message string) error {
	return r.transition(id, worker, func(job *domain.Job) {
		job.Retries = max(retries, 0)
		job.ErrorMessage = message
		job.Worker = ""
		job.Deadline = nil
		if job.Retries > 0 {
			job.Status = domain.JobStatusActivatable
		} else {
			job.Status = domain.JobStatusFailed
		}
	})
}

// ThrowError фиксирует бизнес-ошибку с кодом.
func (r *MemoryJobRepo) ThrowError(_ context.Context, id uuid.UUID, worker, code, message string) error {
	return r.transition(id, worker, func(job *domain.Job) {
		job.Status = domain.JobStatusErrorThrown
		job.ErrorCode = code
		job.ErrorMessage = message
		job.Deadline = nil
	})
}

// transition применяет переход, если job активирована воркером worker.
func (r *MemoryJobRepo) transition(id uuid.UUID, worker string, apply func(job *domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if job.Status != domain.JobStatusActivated || job.Worker != worker {
		return lockLost(id, job.Status, job.Worker)
	}

	apply(job)
	return nil
}

func activatable(job *domain.Job, now time.Time) bool {
	switch job.Status {
	case domain.JobStatusActivatable:
		return true
	case domain.JobStatusActivated:
		return job.Deadline != nil && job.Deadline.Before(now)
	default:
		return false
	}
}

// copyJob копирует job без reporter'а.
func copyJob(job *domain.Job) *domain.Job {
	out := &domain.Job{
		ID:            job.ID,
		Type:          job.Type,
		Worker:        job.Worker,
		Status:        job.Status,
		Variables:     maps.Clone(job.Variables),
		CustomHeaders: maps.Clone(job.CustomHeaders),
		Retries:       job.Retries,
		ErrorCode:     job.ErrorCode,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
	}
	if job.Deadline != nil {
		deadline := *job.Deadline
		out.Deadline = &deadline
	}
	return out
}
