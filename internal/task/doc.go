// Package task описывает типы работы, которые воркер умеет выполнять.
//
// # Обзор
//
// Task — неизменяемый дескриптор типа работы: имя типа, параметры активации
// (Config) и собранный JobHandler. Task создаётся при регистрации
// (worker.Worker.Task, worker.Router.Task) и после этого не меняется.
//
// # Handler
//
// Пользовательский обработчик реализует интерфейс Handler:
//
//	type Handler interface {
//	    Params() []string
//	    Handle(ctx context.Context, variables map[string]any) (any, error)
//	}
//
// Готовые адаптеры:
//   - Func — нетипизированная функция, получает все переменные job
//   - WithParams — Func с явно объявленными именами параметров
//   - Typed — типизированная функция; параметры берутся из JSON-полей структуры
//
// Если Config.VariablesToFetch не задан, он выводится из Params():
//
//	type Input struct {
//	    X int `json:"x"`
//	    Y int `json:"y"`
//	}
//	h := task.Typed(func(ctx context.Context, in Input) (map[string]any, error) { ... })
//	// VariablesToFetch == ["x", "y"]
//
// # Pipeline
//
// JobHandler, собранный New, выполняет для каждой job:
//
//  1. Before-декораторы по порядку
//  2. Пользовательский обработчик
//  3. After-декораторы по порядку
//  4. Complete, если обработчик завершился успешно
//
// Ошибки и panic'и декораторов логируются и подавляются — они не мешают
// следующим декораторам и обработчику. Ошибка обработчика передаётся в
// ExceptionHandler (по умолчанию: warn-лог и Fail). Из JobHandler наружу
// выходит только ошибка отчёта о результате (Complete/Fail не дошли до
// сервиса распределения работы) — она завершает dispatch loop.
//
// Списки декораторов копируются в момент сборки task: декораторы,
// добавленные позже, на уже собранные tasks не влияют.
package task
