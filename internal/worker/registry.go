package worker

import (
	"fmt"
	"sync"

	"github.com/shaiso/Conveyor/internal/task"
)

// Registry — реестр tasks по типу.
//
// Сохраняет порядок регистрации. Регистрация ожидается до Work,
// но чтение безопасно из любых горутин.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
	order []string
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*task.Task)}
}

// Add регистрирует task. Повторный тип — *DuplicateTaskTypeError.
func (r *Registry) Add(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.Type()]; ok {
		return &DuplicateTaskTypeError{TaskType: t.Type()}
	}

	r.tasks[t.Type()] = t
	r.order = append(r.order, t.Type())
	return nil
}

// Get возвращает task по типу.
func (r *Registry) Get(taskType string) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskType)
	}
	return t, nil
}

// Tasks возвращает tasks в порядке регистрации.
func (r *Registry) Tasks() []*task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*task.Task, 0, len(r.order))
	for _, taskType := range r.order {
		tasks = append(tasks, r.tasks[taskType])
	}
	return tasks
}

// Len возвращает количество зарегистрированных tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
