package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Decorator вызывается с job до или после обработчика.
// Может менять job (например, добавлять переменные).
type Decorator func(ctx context.Context, job *domain.Job) error

// ExceptionHandler решает, что делать с job, обработчик которой вернул ошибку.
// Возвращённая ошибка означает, что результат не удалось отправить.
type ExceptionHandler func(ctx context.Context, err error, job *domain.Job) error

// DefaultExceptionHandler логирует ошибку и помечает job как failed.
func DefaultExceptionHandler(ctx context.Context, err error, job *domain.Job) error {
	telemetry.FromContext(ctx).Warn("failed job",
		"job_id", job.ID,
		"type", job.Type,
		"error", err,
	)
	return job.Fail(ctx, fmt.Sprintf("Failed job. Error: %v", err))
}

// buildJobHandler собирает pipeline. cfg уже содержит копии списков декораторов.
func buildJobHandler(cfg Config, h Handler) JobHandler {
	return func(ctx context.Context, job *domain.Job) error {
		start := time.Now()
		defer func() {
			telemetry.JobDurationSeconds.WithLabelValues(cfg.Type).Observe(time.Since(start).Seconds())
		}()

		logger := telemetry.FromContext(ctx)

		runDecorators(ctx, logger, cfg.Type, telemetry.StageBefore, cfg.Before, job)

		variables, handlerErr := runHandler(ctx, cfg, h, job)
		if handlerErr != nil {
			telemetry.JobsHandledTotal.WithLabelValues(cfg.Type, telemetry.OutcomeFailed).Inc()
			if err := cfg.ExceptionHandler(ctx, handlerErr, job); err != nil {
				return dropLostLock(logger, cfg.Type, job, err)
			}
		} else {
			job.Variables = variables
		}

		afterCtx := context.WithValue(ctx, handlerErrKey{}, handlerResult{err: handlerErr})
		runDecorators(afterCtx, logger, cfg.Type, telemetry.StageAfter, cfg.After, job)

		if handlerErr != nil {
			return nil
		}

		if err := job.Complete(ctx); err != nil {
			return dropLostLock(logger, cfg.Type, job, err)
		}
		telemetry.JobsHandledTotal.WithLabelValues(cfg.Type, telemetry.OutcomeCompleted).Inc()

		logger.Debug("job completed", "job_id", job.ID)
		return nil
	}
}

type handlerErrKey struct{}

type handlerResult struct {
	err error
}

// HandlerError возвращает ошибку обработчика job для after-декораторов.
// nil — обработчик отработал успешно (или ctx не из pipeline).
func HandlerError(ctx context.Context) error {
	res, _ := ctx.Value(handlerErrKey{}).(handlerResult)
	return res.err
}

// dropLostLock гасит отказ в отчёте из-за потерянной блокировки:
// job уже обрабатывает другой воркер, и это не повод останавливать loop.
func dropLostLock(logger *slog.Logger, taskType string, job *domain.Job, err error) error {
	if !errors.Is(err, domain.ErrLockLost) {
		return err
	}
	telemetry.JobsHandledTotal.WithLabelValues(taskType, telemetry.OutcomeLockLost).Inc()
	logger.Warn("job lock lost, result dropped",
		"job_id", job.ID,
		"error", err,
	)
	return nil
}

// runDecorators вызывает каждый декоратор; ошибки не прерывают цепочку.
func runDecorators(ctx context.Context, logger *slog.Logger, taskType, stage string, decorators []Decorator, job *domain.Job) {
	for i, d := range decorators {
		if err := callDecorator(ctx, d, job); err != nil {
			telemetry.DecoratorFailuresTotal.WithLabelValues(taskType, stage).Inc()
			logger.Warn("decorator failed",
				"stage", stage,
				"index", i,
				"job_id", job.ID,
				"error", err,
			)
		}
	}
}

func callDecorator(ctx context.Context, d Decorator, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return d(ctx, job)
}

// runHandler вызывает пользовательский обработчик и приводит результат к переменным.
func runHandler(ctx context.Context, cfg Config, h Handler, job *domain.Job) (variables map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	result, err := h.Handle(ctx, job.Variables)
	if err != nil {
		return nil, err
	}

	return toVariables(cfg, result)
}

// toVariables превращает результат обработчика в переменные job.
func toVariables(cfg Config, result any) (map[string]any, error) {
	if cfg.SingleValue {
		return map[string]any{cfg.VariableName: result}, nil
	}

	switch v := result.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		if v == nil {
			return map[string]any{}, nil
		}
		return v, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	var variables map[string]any
	if err := json.Unmarshal(data, &variables); err != nil {
		return nil, fmt.Errorf("%w: %T", ErrInvalidResult, result)
	}
	if variables == nil {
		variables = map[string]any{}
	}

	return variables, nil
}
