package worker

import (
	"errors"
	"fmt"
)

// Ошибки воркера.
var (
	// ErrTaskNotFound — task с таким типом не зарегистрирована.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTaskType — task с таким типом уже зарегистрирована.
	ErrDuplicateTaskType = errors.New("duplicate task type")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrAlreadyWorking — Work уже был вызван.
	ErrAlreadyWorking = errors.New("worker is already working")

	// ErrNoAdapter — не задан адаптер сервиса распределения работы.
	ErrNoAdapter = errors.New("worker adapter is nil")

	// ErrMaxConsecutiveTaskThread — исчерпан бюджет перезапусков task threads.
	ErrMaxConsecutiveTaskThread = errors.New("max consecutive task thread errors exceeded")

	// ErrTaskThreadPanic — panic в dispatch loop.
	ErrTaskThreadPanic = errors.New("task thread panicked")
)

// DuplicateTaskTypeError — попытка повторно зарегистрировать тип task.
type DuplicateTaskTypeError struct {
	TaskType string
}

func (e *DuplicateTaskTypeError) Error() string {
	return fmt.Sprintf("task %s already registered", e.TaskType)
}

// Is позволяет сравнивать через errors.Is(err, ErrDuplicateTaskType).
func (e *DuplicateTaskTypeError) Is(target error) bool {
	return target == ErrDuplicateTaskType
}

// MaxConsecutiveTaskThreadError — supervisor исчерпал бюджет ошибок.
type MaxConsecutiveTaskThreadError struct {
	Errors    int
	MaxErrors int
}

func (e *MaxConsecutiveTaskThreadError) Error() string {
	return fmt.Sprintf("number of consecutive errors (%d) exceeded max allowed number of errors (%d)",
		e.Errors, e.MaxErrors)
}

// Is позволяет сравнивать через errors.Is(err, ErrMaxConsecutiveTaskThread).
func (e *MaxConsecutiveTaskThreadError) Is(target error) bool {
	return target == ErrMaxConsecutiveTaskThread
}
