// Package repo — адаптеры сервиса распределения работы.
//
// JobRepo хранит jobs в Postgres (pgx/v5) и выдаёт их воркерам через
// ActivateJobs с FOR UPDATE SKIP LOCKED. MemoryJobRepo реализует тот же
// контракт в памяти процесса. Оба реализуют worker.Adapter и
// domain.JobReporter.
//
// Переходы статусов:
//
//	ACTIVATABLE → ACTIVATED (ActivateJobs, до deadline)
//	ACTIVATED   → COMPLETED | ERROR_THROWN
//	ACTIVATED   → ACTIVATABLE (FailJob, retries > 0) | FAILED (retries = 0)
//	ACTIVATED с истёкшим deadline снова доступна для активации.
//
// Схема БД — пакет migrations, применяется через MigrateUp.
package repo
