package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

const jobColumns = `id, type, worker, status, variables, custom_headers, retries,
	deadline, error_code, error_message, created_at`

// JobRepo — Postgres-адаптер сервиса распределения работы.
//
// Реализует worker.Adapter (ActivateJobs) и domain.JobReporter
// (CompleteJob, FailJob, ThrowError).
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create сохраняет новую job.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	variablesJSON, err := json.Marshal(nonNilVariables(job.Variables))
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	headersJSON, err := json.Marshal(nonNilHeaders(job.CustomHeaders))
	if err != nil {
		return fmt.Errorf("marshal custom headers: %w", err)
	}

	query := `
		INSERT INTO jobs (id, type, status, variables, custom_headers, retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Type,
		job.Status,
		variablesJSON,
		headersJSON,
		job.Retries,
		job.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: job %s", ErrAlreadyExists, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// List возвращает jobs по фильтру, новые первыми.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// ActivateJobs захватывает до MaxJobsToActivate jobs типа TaskType.
//
// Доступны jobs в статусе ACTIVATABLE и ACTIVATED с истёкшим deadline.
// Параллельные воркеры не получают одну и ту же job (FOR UPDATE SKIP LOCKED).
// Jobs возвращаются в порядке создания.
func (r *JobRepo) ActivateJobs(ctx context.Context, req domain.ActivateJobsRequest) ([]*domain.Job, error) {
	if req.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.RequestTimeout)
		defer cancel()
	}

	query := `
		WITH claimed AS (
			SELECT id FROM jobs
			WHERE type = $1
			  AND (status = 'ACTIVATABLE' OR (status = 'ACTIVATED' AND deadline < now()))
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET status = 'ACTIVATED',
		    worker = $3,
		    deadline = now() + make_interval(secs => $4),
		    updated_at = now()
		FROM claimed
		WHERE j.id = claimed.id
		RETURNING j.id, j.type, j.worker, j.status, j.variables, j.custom_headers, j.retries,
		          j.deadline, j.error_code, j.error_message, j.created_at
	`
	rows, err := r.pool.Query(ctx, query,
		req.TaskType,
		req.MaxJobsToActivate,
		req.Worker,
		req.Timeout.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("activate jobs: %w", err)
	}

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(jobs, compareCreated)
	for _, job := range jobs {
		job.Variables = filterVariables(job.Variables, req.VariablesToFetch)
		job.AttachReporter(r)
	}
	return jobs, nil
}

// CompleteJob завершает активированную job, дописывая variables к переменным.
func (r *JobRepo) CompleteJob(ctx context.Context, id uuid.UUID, worker string, variables map[string]any) error {
	variablesJSON, err := json.Marshal(nonNilVariables(variables))
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = 'COMPLETED', variables = variables || $2::jsonb,
		    deadline = NULL, updated_at = now()
		WHERE id = $1 AND status = 'ACTIVATED' AND worker = $3
	`
	return r.report(ctx, id, query, id, variablesJSON, worker)
}

// FailJob фиксирует неудачу. При retries > 0 job снова доступна для активации.
func (r *JobRepo) FailJob(ctx context.Context, id uuid.UUID, worker string, retries int, message string) error {
	query := `
		UPDATE jobs
		SET status = CASE WHEN $2::int > 0 THEN 'ACTIVATABLE' ELSE 'FAILED' END,
		    retries = $2::int, error_message = $3,
		    worker = NULL, deadline = NULL, updated_at = now()
		WHERE id = $1 AND status = 'ACTIVATED' AND worker = $4
	`
	return r.report(ctx, id, query, id, max(retries, 0), message, worker)
}

// ThrowError фиксирует бизнес-ошибку с кодом.
func (r *JobRepo) ThrowError(ctx context.Context, id uuid.UUID, worker, code, message string) error {
	query := `
		UPDATE jobs
		SET status = 'ERROR_THROWN', error_code = $2, error_message = $3,
		    deadline = NULL, updated_at = now()
		WHERE id = $1 AND status = 'ACTIVATED' AND worker = $4
	`
	return r.report(ctx, id, query, id, code, message, worker)
}

// report выполняет переход статуса и различает «нет такой job» и
// «блокировка не у этого воркера».
func (r *JobRepo) report(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var (
		status domain.JobStatus
		worker *string
	)
	err = r.pool.QueryRow(ctx, `SELECT status, worker FROM jobs WHERE id = $1`, id).Scan(&status, &worker)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	var owner string
	if worker != nil {
		owner = *worker
	}
	return lockLost(id, status, owner)
}

// --- Helpers ---

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                       domain.Job
		variablesJSON, headersRaw []byte
		worker, code, message     *string
	)

	err := row.Scan(
		&job.ID,
		&job.Type,
		&worker,
		&job.Status,
		&variablesJSON,
		&headersRaw,
		&job.Retries,
		&job.Deadline,
		&code,
		&message,
		&job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &job.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	if err := json.Unmarshal(headersRaw, &job.CustomHeaders); err != nil {
		return nil, fmt.Errorf("unmarshal custom headers: %w", err)
	}
	job.Variables = nonNilVariables(job.Variables)

	if worker != nil {
		job.Worker = *worker
	}
	if code != nil {
		job.ErrorCode = *code
	}
	if message != nil {
		job.ErrorMessage = *message
	}

	return &job, nil
}

func compareCreated(a, b *domain.Job) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

func nonNilVariables(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

func nonNilHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}
