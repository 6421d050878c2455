package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// handleTask — dispatch loop одной task: Idle → Polling → Dispatching → Idle.
//
// Возвращает nil при остановке воркера. Ошибка активации или отчёта о job
// завершает loop; дальше решает supervisor.
func (w *Worker) handleTask(ctx context.Context, t *task.Task) error {
	logger := telemetry.WithTaskType(w.logger, t.Type())
	logger.Debug("task loop started")

	for {
		if ctx.Err() != nil {
			logger.Debug("task loop stopped")
			return nil
		}

		handled, err := w.handleJobs(ctx, logger, t)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("task loop failed", "error", err)
			return err
		}

		// Полная или частичная пачка — сразу следующий poll.
		if handled > 0 {
			continue
		}

		w.wait(ctx, t.Type())
	}
}

// handleJobs активирует пачку jobs и последовательно пропускает их через pipeline.
func (w *Worker) handleJobs(ctx context.Context, logger *slog.Logger, t *task.Task) (int, error) {
	jobs, err := w.getJobs(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("activate jobs %s: %w", t.Type(), err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	telemetry.JobsActivatedTotal.WithLabelValues(t.Type()).Add(float64(len(jobs)))
	logger.Debug("jobs activated", "count", len(jobs))

	// Job, начатая до Stop, доводится до конца и отчитывается.
	jobCtx := telemetry.WithLogger(context.WithoutCancel(ctx), logger)

	for i, job := range jobs {
		if err := t.Handle(jobCtx, job); err != nil {
			return i, fmt.Errorf("handle job %s: %w", job.ID, err)
		}
	}
	return len(jobs), nil
}

// getJobs запрашивает jobs у адаптера ровно с параметрами task.
func (w *Worker) getJobs(ctx context.Context, t *task.Task) ([]*domain.Job, error) {
	cfg := t.Config()
	return w.adapter.ActivateJobs(ctx, domain.ActivateJobsRequest{
		TaskType:          t.Type(),
		Worker:            w.name,
		Timeout:           cfg.Timeout,
		MaxJobsToActivate: cfg.MaxJobsToActivate,
		VariablesToFetch:  cfg.VariablesToFetch,
		RequestTimeout:    w.requestTimeout,
	})
}

// wait ждёт PollInterval, Notify для taskType или остановки.
func (w *Worker) wait(ctx context.Context, taskType string) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-w.nudge(taskType):
	}
}
