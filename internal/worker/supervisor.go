package worker

import (
	"fmt"
	"slices"
	"time"

	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// taskThread — горутина dispatch loop одной task.
// done закрывается при выходе; err заполняется до закрытия done.
type taskThread struct {
	done chan struct{}
	err  error
}

func (th *taskThread) alive() bool {
	select {
	case <-th.done:
		return false
	default:
		return true
	}
}

// startTaskThread запускает dispatch loop task в отдельной горутине.
func (w *Worker) startTaskThread(t *task.Task) *taskThread {
	th := &taskThread{done: make(chan struct{})}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(th.done)
		defer func() {
			if r := recover(); r != nil {
				th.err = fmt.Errorf("%w: %v", ErrTaskThreadPanic, r)
			}
		}()

		th.err = w.runTask(w.stopCtx, t)
	}()

	return th
}

// watchTaskThreads — supervisor: каждые frequency проверяет task threads
// и перезапускает мёртвые.
//
// Счётчик ошибок общий для воркера и не сбрасывается. При достижении
// len(tasks)*factor останавливает воркер и возвращает
// *MaxConsecutiveTaskThreadError. При остановке воркера возвращает nil.
func (w *Worker) watchTaskThreads(frequency time.Duration) error {
	types := make([]string, 0, len(w.threads))
	for taskType := range w.threads {
		types = append(types, taskType)
	}
	slices.Sort(types)

	maxErrors := len(types) * w.maxErrorsFactor

	w.logger.Debug("watching task threads",
		"frequency", frequency,
		"max_errors", maxErrors,
	)

	for !w.IsStopped() {
		for _, taskType := range types {
			if w.IsStopped() {
				return nil
			}

			th := w.threads[taskType]
			if th.alive() {
				continue
			}
			// Loop мог выйти из-за только что выставленного сигнала остановки.
			if w.IsStopped() {
				return nil
			}

			if err := w.handleDeadThread(taskType, th, maxErrors); err != nil {
				w.logger.Error("task thread supervisor gave up", "error", err)
				w.signalStop()
				select {
				case w.fatal <- err:
				default:
				}
				return err
			}
		}

		if !w.sleep(frequency) {
			return nil
		}
	}
	return nil
}

// handleDeadThread учитывает смерть thread и перезапускает его,
// если бюджет ещё не исчерпан.
func (w *Worker) handleDeadThread(taskType string, th *taskThread, maxErrors int) error {
	w.consecutiveErrors++
	telemetry.WatcherConsecutiveErrors.Set(float64(w.consecutiveErrors))

	if w.consecutiveErrors >= maxErrors {
		return &MaxConsecutiveTaskThreadError{
			Errors:    w.consecutiveErrors,
			MaxErrors: maxErrors,
		}
	}

	t, err := w.registry.Get(taskType)
	if err != nil {
		return err
	}

	w.logger.Warn("restarting dead task thread",
		"task_type", taskType,
		"consecutive_errors", w.consecutiveErrors,
		"error", th.err,
	)
	telemetry.TaskThreadRestartsTotal.WithLabelValues(taskType).Inc()
	w.threads[taskType] = w.startTaskThread(t)
	return nil
}

// sleep ждёт d или остановки. Возвращает false, если воркер остановлен.
func (w *Worker) sleep(d time.Duration) bool {
	if d <= 0 {
		return !w.IsStopped()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCtx.Done():
		return false
	case <-timer.C:
		return true
	}
}
