// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики dispatch loop'ов и супервизора
//
// Воркер экспортирует метрики на /metrics endpoint.
package telemetry
