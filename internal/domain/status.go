package domain

// JobStatus — статус job.
//
// Жизненный цикл:
//
//	ACTIVATABLE → ACTIVATED → COMPLETED
//	                        ↘ FAILED (retries > 0 → обратно в ACTIVATABLE)
//	                        ↘ ERROR_THROWN
type JobStatus string

const (
	// JobStatusActivatable — job ожидает активации воркером.
	JobStatusActivatable JobStatus = "ACTIVATABLE"

	// JobStatusActivated — job захвачена воркером до Deadline.
	JobStatusActivated JobStatus = "ACTIVATED"

	// JobStatusCompleted — job успешно выполнена.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed — job завершилась с ошибкой.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusErrorThrown — обработчик сообщил о бизнес-ошибке.
	JobStatusErrorThrown JobStatus = "ERROR_THROWN"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusErrorThrown:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus парсит строку в JobStatus.
// Неизвестное значение возвращается как есть — проверку делает вызывающий.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "ACTIVATABLE":
		return JobStatusActivatable
	case "ACTIVATED":
		return JobStatusActivated
	case "COMPLETED":
		return JobStatusCompleted
	case "FAILED":
		return JobStatusFailed
	case "ERROR_THROWN":
		return JobStatusErrorThrown
	default:
		return JobStatus(s)
	}
}
