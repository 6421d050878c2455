package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobReporter — сторона, которой job сообщает о своём завершении.
//
// Реализуется адаптером сервиса распределения работы (repo.JobRepo,
// repo.MemoryJobRepo). Job держит ссылку на reporter'а, который её активировал.
//
// worker — имя воркера, активировавшего job. Отчёт принимается, только пока
// блокировка принадлежит этому воркеру; иначе ошибка соответствует ErrLockLost.
type JobReporter interface {
	CompleteJob(ctx context.Context, id uuid.UUID, worker string, variables map[string]any) error
	FailJob(ctx context.Context, id uuid.UUID, worker string, retries int, message string) error
	ThrowError(ctx context.Context, id uuid.UUID, worker, code, message string) error
}

// Job — одна захваченная единица работы зарегистрированного типа.
//
// Job создаётся адаптером при активации и передаётся ровно в один вызов
// обработчика. Dispatch loop не хранит ссылку на job после возврата обработчика.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Type — тип task, к которому относится job.
	Type string `json:"type"`

	// Worker — имя воркера, активировавшего job.
	Worker string `json:"worker,omitempty"`

	// Status — текущий статус job.
	Status JobStatus `json:"status"`

	// Variables — переменные job.
	// При активации содержит только запрошенные переменные (VariablesToFetch).
	// После успешного выполнения обработчика — его результат.
	Variables map[string]any `json:"variables"`

	// CustomHeaders — статические заголовки, заданные при создании job.
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// Retries — оставшееся количество попыток.
	Retries int `json:"retries"`

	// Deadline — момент истечения блокировки job за воркером.
	Deadline *time.Time `json:"deadline,omitempty"`

	// ErrorCode — код бизнес-ошибки (для ThrowError).
	ErrorCode string `json:"error_code,omitempty"`

	// ErrorMessage — текст последней ошибки.
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`

	reporter JobReporter
}

// DefaultRetries — количество попыток новой job по умолчанию.
const DefaultRetries = 3

// NewJob создаёт job типа taskType, готовую к активации.
func NewJob(taskType string, variables map[string]any) *Job {
	if variables == nil {
		variables = map[string]any{}
	}
	return &Job{
		ID:            uuid.New(),
		Type:          taskType,
		Status:        JobStatusActivatable,
		Variables:     variables,
		CustomHeaders: map[string]string{},
		Retries:       DefaultRetries,
		CreatedAt:     time.Now().UTC(),
	}
}

// AttachReporter связывает job с адаптером, который её активировал.
func (j *Job) AttachReporter(r JobReporter) {
	j.reporter = r
}

// IsFinished возвращает true, если job завершена.
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// Complete сообщает об успешном выполнении job с текущими Variables.
func (j *Job) Complete(ctx context.Context) error {
	if j.reporter == nil {
		return fmt.Errorf("%w: job %s", ErrNoReporter, j.ID)
	}
	if err := j.reporter.CompleteJob(ctx, j.ID, j.Worker, j.Variables); err != nil {
		return fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	j.Status = JobStatusCompleted
	return nil
}

// Fail сообщает о неудаче, уменьшая Retries на единицу.
func (j *Job) Fail(ctx context.Context, message string) error {
	if j.reporter == nil {
		return fmt.Errorf("%w: job %s", ErrNoReporter, j.ID)
	}
	retries := max(j.Retries-1, 0)
	if err := j.reporter.FailJob(ctx, j.ID, j.Worker, retries, message); err != nil {
		return fmt.Errorf("fail job %s: %w", j.ID, err)
	}
	j.Retries = retries
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	return nil
}

// ThrowError сообщает о бизнес-ошибке с кодом. Retries не расходуются.
func (j *Job) ThrowError(ctx context.Context, code, message string) error {
	if j.reporter == nil {
		return fmt.Errorf("%w: job %s", ErrNoReporter, j.ID)
	}
	if err := j.reporter.ThrowError(ctx, j.ID, j.Worker, code, message); err != nil {
		return fmt.Errorf("throw error for job %s: %w", j.ID, err)
	}
	j.Status = JobStatusErrorThrown
	j.ErrorCode = code
	j.ErrorMessage = message
	return nil
}

// ActivateJobsRequest — параметры одного poll'а адаптера.
type ActivateJobsRequest struct {
	// TaskType — тип task, для которого активируются jobs.
	TaskType string

	// Worker — имя воркера, за которым блокируются jobs.
	Worker string

	// Timeout — длительность блокировки job за воркером.
	Timeout time.Duration

	// MaxJobsToActivate — максимальное количество jobs за один poll.
	MaxJobsToActivate int

	// VariablesToFetch — какие переменные вернуть. Пустой список — все.
	VariablesToFetch []string

	// RequestTimeout — ограничение на длительность самого запроса (0 — без ограничения).
	RequestTimeout time.Duration
}
