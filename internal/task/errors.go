package task

import "errors"

// Ошибки сборки и выполнения task.
var (
	// ErrEmptyTaskType — не задан тип task.
	ErrEmptyTaskType = errors.New("task type is empty")

	// ErrNilHandler — не задан обработчик task.
	ErrNilHandler = errors.New("task handler is nil")

	// ErrNoVariableName — SingleValue без VariableName.
	ErrNoVariableName = errors.New("single value task requires a variable name")

	// ErrInvalidResult — результат обработчика нельзя превратить в переменные job.
	ErrInvalidResult = errors.New("handler result is not an object")

	// ErrPanic — panic, перехваченный в pipeline.
	ErrPanic = errors.New("recovered panic")
)
