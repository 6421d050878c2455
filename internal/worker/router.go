package worker

import (
	"slices"

	"github.com/shaiso/Conveyor/internal/task"
)

// Router — набор tasks и декораторов, независимый от Worker.
//
// Подключается к воркеру через Worker.IncludeRouter. Декораторы роутера
// захватываются в момент регистрации task: добавленные позже на уже
// зарегистрированные tasks не влияют.
type Router struct {
	before   []task.Decorator
	after    []task.Decorator
	registry *Registry
}

// NewRouter создаёт Router с начальными декораторами.
func NewRouter(before, after []task.Decorator) *Router {
	return &Router{
		before:   slices.Clone(before),
		after:    slices.Clone(after),
		registry: NewRegistry(),
	}
}

// Before добавляет before-декораторы роутера.
func (r *Router) Before(d ...task.Decorator) {
	r.before = append(r.before, d...)
}

// After добавляет after-декораторы роутера.
func (r *Router) After(d ...task.Decorator) {
	r.after = append(r.after, d...)
}

// Task регистрирует обработчик для типа taskType.
func (r *Router) Task(taskType string, h task.Handler, opts ...task.Option) error {
	return r.TaskWithConfig(task.NewConfig(taskType, opts...), h)
}

// TaskWithConfig регистрирует обработчик с готовой конфигурацией.
func (r *Router) TaskWithConfig(cfg task.Config, h task.Handler) error {
	t, err := buildTask(cfg, h, r.before, r.after)
	if err != nil {
		return err
	}
	return r.registry.Add(t)
}

// GetTask возвращает task роутера по типу.
func (r *Router) GetTask(taskType string) (*task.Task, error) {
	return r.registry.Get(taskType)
}

// Tasks возвращает tasks роутера в порядке регистрации.
func (r *Router) Tasks() []*task.Task {
	return r.registry.Tasks()
}

// buildTask собирает task: декораторы владельца стоят перед декораторами task.
func buildTask(cfg task.Config, h task.Handler, before, after []task.Decorator) (*task.Task, error) {
	cfg.Before = append(slices.Clone(before), cfg.Before...)
	cfg.After = append(slices.Clone(after), cfg.After...)
	return task.New(cfg, h)
}
