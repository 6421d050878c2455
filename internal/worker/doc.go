// Package worker запускает зарегистрированные tasks и следит за их dispatch loops.
//
// # Обзор
//
// Worker — долгоживущий компонент Conveyor, который:
//
//   - Хранит реестр tasks (уникальных по типу)
//   - Подключает роутеры (Router) с их tasks и декораторами
//   - Запускает по одному dispatch loop на каждую task
//   - Перезапускает упавшие loops в пределах бюджета ошибок (supervisor)
//
// # Регистрация
//
//	w := worker.New(worker.Config{Adapter: jobRepo, Logger: logger})
//	w.Before(decorators.LogStarted())
//
//	err := w.Task("charge", task.Typed(charge), task.WithTimeout(30*time.Second))
//
// Декораторы воркера и роутера захватываются при сборке task:
// добавленные позже на уже зарегистрированные tasks не влияют.
// Порядок: декораторы воркера, затем роутера, затем самой task.
//
// # Dispatch loop
//
// Каждая task крутится в своей горутине: ActivateJobs с параметрами task,
// затем последовательная обработка jobs в порядке активации. Пустой poll —
// ожидание PollInterval или Notify. Ошибка активации или отчёта о job
// завершает loop.
//
// # Supervisor
//
// Раз в WatchFrequency проверяет все loops. Упавший loop увеличивает общий
// счётчик ошибок и перезапускается. Когда счётчик достигает
// len(tasks) * WatcherMaxErrorsFactor, supervisor останавливает воркер,
// публикует *MaxConsecutiveTaskThreadError в Fatal() и возвращает её из Work.
//
// # Остановка
//
// Stop (или отмена контекста Work) выставляет сигнал, который никогда не
// сбрасывается. Job, уже переданная обработчику, доводится до конца.
// Изнутри обработчика или декоратора воркер останавливают через Cancel:
// Stop ждёт в том числе горутину, из которой вызван.
package worker
