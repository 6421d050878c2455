// Package handlers содержит встроенные обработчики tasks Conveyor.
//
// NewRouter возвращает worker.Router с тремя типами:
//   - http — HTTP-запрос (url, method, headers, body, timeout_sec)
//   - delay — ожидание duration_sec секунд
//   - transform — переменные job плюс результаты Go templates из mappings
//
// Ответ HTTP >= 400 считается ошибкой обработчика: job помечается failed
// через обработчик ошибок task.
package handlers
