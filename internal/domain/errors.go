package domain

import "errors"

// ErrNoReporter — job не связана с адаптером и не может сообщить о результате.
var ErrNoReporter = errors.New("job has no reporter")

// ErrLockLost — блокировка job истекла и job уже у другого воркера
// (или завершена). Результат такого отчёта отбрасывается.
var ErrLockLost = errors.New("job lock lost")
