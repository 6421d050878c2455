package worker

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval           = 5 * time.Second
	defaultWatchFrequency         = 10 * time.Second
	defaultWatcherMaxErrorsFactor = 3
)

// Adapter — сторона сервиса распределения работы, из которой воркер берёт jobs.
//
// ActivateJobs должен возвращать пустой список (а не ошибку), когда работы нет.
type Adapter interface {
	ActivateJobs(ctx context.Context, req domain.ActivateJobsRequest) ([]*domain.Job, error)
}

// Worker — верхнеуровневый компонент: реестр tasks, декораторы по умолчанию,
// dispatch loops и supervisor.
//
// Жизненный цикл:
//   - Регистрация tasks (Task, TaskWithConfig, IncludeRouter)
//   - Work — по одной горутине на task и (опционально) supervisor
//   - Stop — сигнал остановки; остановленный Worker повторно не запускается
type Worker struct {
	adapter Adapter
	name    string

	requestTimeout  time.Duration
	pollInterval    time.Duration
	watchFrequency  time.Duration
	maxErrorsFactor int

	registry *Registry
	before   []task.Decorator
	after    []task.Decorator

	// Stop signal: создаётся в New, отменяется в Stop и никогда не сбрасывается.
	stopCtx    context.Context
	stopCancel context.CancelFunc

	mu      sync.Mutex
	working bool
	nudges  map[string]chan struct{}

	// threads и consecutiveErrors после Work меняет только supervisor.
	threads           map[string]*taskThread
	consecutiveErrors int

	wg    sync.WaitGroup
	fatal chan error

	// runTask — тело task thread; подменяется в тестах.
	runTask func(ctx context.Context, t *task.Task) error

	logger *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	// Adapter — источник jobs (обязательно).
	Adapter Adapter

	// Name — идентификатор воркера при активации jobs (default: hostname).
	Name string

	// RequestTimeout — верхняя граница одного вызова ActivateJobs (0 — решает адаптер).
	RequestTimeout time.Duration

	// PollInterval — пауза после пустого poll (default: 5s).
	PollInterval time.Duration

	// WatchFrequency — период проверки task threads (default: 10s).
	WatchFrequency time.Duration

	// WatcherMaxErrorsFactor — бюджет ошибок на одну task (default: 3).
	WatcherMaxErrorsFactor int

	// Before/After — декораторы для всех tasks воркера.
	Before []task.Decorator
	After  []task.Decorator

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	name := cfg.Name
	if name == "" {
		name = defaultName()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	watchFrequency := cfg.WatchFrequency
	if watchFrequency <= 0 {
		watchFrequency = defaultWatchFrequency
	}

	factor := cfg.WatcherMaxErrorsFactor
	if factor <= 0 {
		factor = defaultWatcherMaxErrorsFactor
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stopCtx, stopCancel := context.WithCancel(context.Background())

	w := &Worker{
		adapter:         cfg.Adapter,
		name:            name,
		requestTimeout:  cfg.RequestTimeout,
		pollInterval:    pollInterval,
		watchFrequency:  watchFrequency,
		maxErrorsFactor: factor,
		registry:        NewRegistry(),
		before:          slices.Clone(cfg.Before),
		after:           slices.Clone(cfg.After),
		stopCtx:         stopCtx,
		stopCancel:      stopCancel,
		nudges:          make(map[string]chan struct{}),
		threads:         make(map[string]*taskThread),
		fatal:           make(chan error, 1),
		logger:          telemetry.WithWorker(logger, name),
	}
	w.runTask = w.handleTask

	return w
}

func defaultName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

// Name возвращает идентификатор воркера.
func (w *Worker) Name() string {
	return w.name
}

// Before добавляет before-декораторы воркера.
// Применяются к tasks, зарегистрированным после вызова.
func (w *Worker) Before(d ...task.Decorator) {
	w.before = append(w.before, d...)
}

// After добавляет after-декораторы воркера.
// Применяются к tasks, зарегистрированным после вызова.
func (w *Worker) After(d ...task.Decorator) {
	w.after = append(w.after, d...)
}

// Task регистрирует обработчик для типа taskType.
func (w *Worker) Task(taskType string, h task.Handler, opts ...task.Option) error {
	return w.TaskWithConfig(task.NewConfig(taskType, opts...), h)
}

// TaskWithConfig регистрирует обработчик с готовой конфигурацией.
func (w *Worker) TaskWithConfig(cfg task.Config, h task.Handler) error {
	t, err := buildTask(cfg, h, w.before, w.after)
	if err != nil {
		return err
	}
	return w.registry.Add(t)
}

// IncludeRouter переносит tasks роутеров в реестр воркера.
//
// Каждая task пересобирается с декораторами воркера впереди декораторов роутера.
// Повторный тип — *DuplicateTaskTypeError; tasks, добавленные до конфликта, остаются.
func (w *Worker) IncludeRouter(routers ...*Router) error {
	for _, r := range routers {
		for _, rt := range r.Tasks() {
			t, err := rt.WithDecorators(w.before, w.after)
			if err != nil {
				return err
			}
			if err := w.registry.Add(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetTask возвращает task по типу.
func (w *Worker) GetTask(taskType string) (*task.Task, error) {
	return w.registry.Get(taskType)
}

// Tasks возвращает зарегистрированные tasks в порядке регистрации.
func (w *Worker) Tasks() []*task.Task {
	return w.registry.Tasks()
}

// Work запускает по одному dispatch loop на каждую task и, если watch,
// supervisor в текущей горутине.
//
// Блокируется до остановки воркера (Stop, отмена ctx или исчерпание бюджета
// supervisor'а) и завершения всех loops. Возвращает ошибку supervisor'а,
// если он остановил воркер.
func (w *Worker) Work(ctx context.Context, watch bool) error {
	// Supervisor учитывается в wg до запуска threads: Stop ждёт и его.
	if watch {
		w.wg.Add(1)
	}
	if err := w.start(); err != nil {
		if watch {
			w.wg.Done()
		}
		return err
	}

	// Отмена внешнего контекста равносильна Stop.
	stopAfter := context.AfterFunc(ctx, w.signalStop)
	defer stopAfter()

	w.logger.Info("worker started",
		"tasks", w.registry.Len(),
		"watch", watch,
		"poll_interval", w.pollInterval,
	)

	var watchErr error
	if watch {
		watchErr = w.watchTaskThreads(w.watchFrequency)
		w.wg.Done()
	}

	<-w.stopCtx.Done()
	w.wg.Wait()

	w.logger.Info("worker stopped")
	return watchErr
}

// start запускает task threads. Повторный запуск запрещён.
func (w *Worker) start() error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}
	if w.adapter == nil {
		return ErrNoAdapter
	}

	w.mu.Lock()
	if w.working {
		w.mu.Unlock()
		return ErrAlreadyWorking
	}
	w.working = true
	for _, t := range w.registry.Tasks() {
		w.nudges[t.Type()] = make(chan struct{}, 1)
	}
	w.mu.Unlock()

	for _, t := range w.registry.Tasks() {
		w.threads[t.Type()] = w.startTaskThread(t)
	}
	return nil
}

// Stop посылает сигнал остановки и ждёт завершения всех loops и supervisor'а.
// Идемпотентен; безопасен, если Work не вызывался.
//
// Из обработчика или декоратора Stop не вызывается: их горутина сама
// входит в число ожидаемых. Там используется Cancel.
func (w *Worker) Stop() {
	w.Cancel()
	w.wg.Wait()
}

// Cancel посылает сигнал остановки и сразу возвращается.
// Безопасен из обработчика и декоратора; Work вернётся, когда loops завершатся.
func (w *Worker) Cancel() {
	if !w.IsStopped() {
		w.logger.Info("stopping worker...")
	}
	w.signalStop()
}

// signalStop только выставляет сигнал, без ожидания горутин.
func (w *Worker) signalStop() {
	w.stopCancel()
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	return w.stopCtx.Err() != nil
}

// Fatal возвращает канал, в который supervisor публикует ошибку
// исчерпания бюджета. Канал получает не более одного значения.
func (w *Worker) Fatal() <-chan error {
	return w.fatal
}

// Notify будит простаивающий dispatch loop taskType раньше PollInterval.
// Неизвестный тип игнорируется.
func (w *Worker) Notify(taskType string) {
	w.mu.Lock()
	ch, ok := w.nudges[taskType]
	w.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- struct{}{}:
	default:
	}
}

func (w *Worker) nudge(taskType string) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nudges[taskType]
}
