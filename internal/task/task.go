package task

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// JobHandler — полностью собранный pipeline одной task.
//
// Возвращает ошибку только если не удалось сообщить о результате job;
// такая ошибка завершает dispatch loop.
type JobHandler func(ctx context.Context, job *domain.Job) error

// Task — зарегистрированный тип работы.
type Task struct {
	config     Config
	handler    Handler
	jobHandler JobHandler
}

// New собирает Task из конфигурации и пользовательского обработчика.
//
// Списки декораторов из cfg копируются: последующие изменения
// исходных слайсов на task не влияют.
func New(cfg Config, h Handler) (*Task, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilHandler, cfg.Type)
	}

	cfg = cfg.withDefaults(h)

	return &Task{
		config:     cfg,
		handler:    h,
		jobHandler: buildJobHandler(cfg, h),
	}, nil
}

// FromJobHandler создаёт Task вокруг уже собранного JobHandler.
// Декораторы из cfg не применяются.
func FromJobHandler(cfg Config, jh JobHandler) (*Task, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if jh == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilHandler, cfg.Type)
	}

	return &Task{
		config:     cfg.withDefaults(nil),
		jobHandler: jh,
	}, nil
}

// Type возвращает тип task.
func (t *Task) Type() string {
	return t.config.Type
}

// Config возвращает копию конфигурации task.
func (t *Task) Config() Config {
	return t.config.clone()
}

// Handle пропускает job через pipeline task.
func (t *Task) Handle(ctx context.Context, job *domain.Job) error {
	return t.jobHandler(ctx, job)
}

// WithDecorators возвращает новую Task, у которой before/after декораторы
// стоят перед собственными декораторами task. Исходная Task не меняется.
func (t *Task) WithDecorators(before, after []Decorator) (*Task, error) {
	if t.handler == nil {
		return nil, fmt.Errorf("%w: task %s was built from a job handler", ErrNilHandler, t.Type())
	}

	cfg := t.Config()
	cfg.Before = append(append([]Decorator{}, before...), cfg.Before...)
	cfg.After = append(append([]Decorator{}, after...), cfg.After...)

	return New(cfg, t.handler)
}
