package repo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — job не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — job с таким ID уже существует.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция невозможна в текущем статусе job
	// (например, отчёт о job, которая не активирована).
	ErrInvalidState = errors.New("invalid state")
)

// lockLost — отказ в отчёте: job не активирована или активирована другим воркером.
// Соответствует и ErrInvalidState, и domain.ErrLockLost.
func lockLost(id uuid.UUID, status domain.JobStatus, owner string) error {
	if status == domain.JobStatusActivated {
		return fmt.Errorf("%w: %w: job %s is held by %q", ErrInvalidState, domain.ErrLockLost, id, owner)
	}
	return fmt.Errorf("%w: %w: job %s is %s", ErrInvalidState, domain.ErrLockLost, id, status)
}
