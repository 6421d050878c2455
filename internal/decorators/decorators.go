// Package decorators — готовые before/after декораторы для tasks.
package decorators

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// LogStarted — before-декоратор: логирует начало обработки job.
func LogStarted() task.Decorator {
	return func(ctx context.Context, job *domain.Job) error {
		telemetry.FromContext(ctx).Info("job started",
			"job_id", job.ID,
			"type", job.Type,
			"retries", job.Retries,
		)
		return nil
	}
}

// LogFinished — after-декоратор: логирует итог обработчика.
func LogFinished() task.Decorator {
	return func(ctx context.Context, job *domain.Job) error {
		logger := telemetry.FromContext(ctx)
		if handlerErr := task.HandlerError(ctx); handlerErr != nil {
			logger.Info("job finished with error",
				"job_id", job.ID,
				"status", job.Status,
				"error", handlerErr,
			)
			return nil
		}
		logger.Info("job finished", "job_id", job.ID)
		return nil
	}
}

// EventPublisher публикует события результата job.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, payload mq.JobEventPayload) error
}

// Events — after-декоратор: публикует результат обработчика.
//
// After-декораторы выполняются до отчёта о завершении. Job, оставшаяся
// в ACTIVATED, публикуется по исходу обработчика (task.HandlerError):
// COMPLETED при успехе, FAILED, если ExceptionHandler не отчитался об ошибке.
func Events(pub EventPublisher) task.Decorator {
	return func(ctx context.Context, job *domain.Job) error {
		payload := mq.EventFromJob(job)
		if payload.Status == domain.JobStatusActivated {
			if handlerErr := task.HandlerError(ctx); handlerErr != nil {
				payload.Status = domain.JobStatusFailed
				if payload.ErrorMessage == "" {
					payload.ErrorMessage = handlerErr.Error()
				}
			} else {
				payload.Status = domain.JobStatusCompleted
			}
		}
		if err := pub.PublishJobEvent(ctx, payload); err != nil {
			return fmt.Errorf("publish job event: %w", err)
		}
		return nil
	}
}
