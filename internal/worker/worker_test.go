package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/task"
)

// --- Registration ---

func TestTask_Register(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	require.NoError(t, w.Task("charge", task.Func(noop)))

	got, err := w.GetTask("charge")
	require.NoError(t, err)
	assert.Equal(t, "charge", got.Type())
	assert.Len(t, w.Tasks(), 1)
}

func TestTask_Duplicate(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	require.NoError(t, w.Task("charge", task.Func(noop)))
	err := w.Task("charge", task.Func(noop))

	require.ErrorIs(t, err, ErrDuplicateTaskType)
	var dup *DuplicateTaskTypeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "charge", dup.TaskType)
	assert.Len(t, w.Tasks(), 1)
}

func TestTask_InvalidConfig(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	assert.ErrorIs(t, w.Task("", task.Func(noop)), task.ErrEmptyTaskType)
	assert.Empty(t, w.Tasks())
}

func TestGetTask_NotFound(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	_, err := w.GetTask("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTask_VariablesToFetchFromParams(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	require.NoError(t, w.Task("sum", task.WithParams(noop, "x")))

	got, err := w.GetTask("sum")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Config().VariablesToFetch)
}

func TestTasks_RegistrationOrder(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	for _, taskType := range []string{"c", "a", "b"} {
		require.NoError(t, w.Task(taskType, task.Func(noop)))
	}

	var types []string
	for _, tk := range w.Tasks() {
		types = append(types, tk.Type())
	}
	assert.Equal(t, []string{"c", "a", "b"}, types)
}

// --- Decorators ---

func TestDecorator_FailedIsIsolated(t *testing.T) {
	var calls int
	failing := func(context.Context, *domain.Job) error {
		calls++
		return errors.New("decorator failure")
	}

	w := newTestWorker(t, &stubAdapter{})
	w.Before(failing)
	w.After(failing)
	require.NoError(t, w.Task("t", task.Func(noop)))

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	job := newJobs(1, "t", &stubReporter{})[0]
	require.NoError(t, tk.Handle(context.Background(), job))
	assert.Equal(t, 2, calls)
}

func TestDecorator_ConstructorDecorators(t *testing.T) {
	var calls int
	counting := func(context.Context, *domain.Job) error { calls++; return nil }

	w := newTestWorker(t, &stubAdapter{}, func(c *Config) {
		c.Before = []task.Decorator{counting}
		c.After = []task.Decorator{counting}
	})
	require.NoError(t, w.Task("t", task.Func(noop)))

	tk, err := w.GetTask("t")
	require.NoError(t, err)
	require.NoError(t, tk.Handle(context.Background(), newJobs(1, "t", &stubReporter{})[0]))
	assert.Equal(t, 2, calls)
}

func TestDecorator_CapturedAtRegistration(t *testing.T) {
	var calls int
	counting := func(context.Context, *domain.Job) error { calls++; return nil }

	w := newTestWorker(t, &stubAdapter{})
	require.NoError(t, w.Task("t", task.Func(noop)))
	w.Before(counting)

	tk, err := w.GetTask("t")
	require.NoError(t, err)
	require.NoError(t, tk.Handle(context.Background(), newJobs(1, "t", &stubReporter{})[0]))
	assert.Zero(t, calls)
}

// --- Routers ---

func TestIncludeRouter_AddsTask(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})
	r := NewRouter(nil, nil)
	require.NoError(t, r.Task("ship", task.Func(noop)))

	require.NoError(t, w.IncludeRouter(r))

	got, err := w.GetTask("ship")
	require.NoError(t, err)
	assert.Equal(t, "ship", got.Type())
}

func TestIncludeRouter_Multiple(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	first := NewRouter(nil, nil)
	require.NoError(t, first.Task("a", task.Func(noop)))
	second := NewRouter(nil, nil)
	require.NoError(t, second.Task("b", task.Func(noop)))

	require.NoError(t, w.IncludeRouter(first, second))
	assert.Len(t, w.Tasks(), 2)
}

func TestIncludeRouter_Duplicate(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})
	require.NoError(t, w.Task("a", task.Func(noop)))

	r := NewRouter(nil, nil)
	require.NoError(t, r.Task("a", task.Func(noop)))

	assert.ErrorIs(t, w.IncludeRouter(r), ErrDuplicateTaskType)
}

func TestRouter_Duplicate(t *testing.T) {
	r := NewRouter(nil, nil)
	require.NoError(t, r.Task("a", task.Func(noop)))
	assert.ErrorIs(t, r.Task("a", task.Func(noop)), ErrDuplicateTaskType)
}

func TestIncludeRouter_RouterDecoratorsCalledOnce(t *testing.T) {
	tests := []struct {
		name string
		add  func(r *Router, d task.Decorator)
	}{
		{"before", func(r *Router, d task.Decorator) { r.Before(d) }},
		{"after", func(r *Router, d task.Decorator) { r.After(d) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			w := newTestWorker(t, &stubAdapter{})
			r := NewRouter(nil, nil)
			tt.add(r, func(context.Context, *domain.Job) error { calls++; return nil })
			require.NoError(t, r.Task("t", task.Func(noop)))
			require.NoError(t, w.IncludeRouter(r))

			tk, err := w.GetTask("t")
			require.NoError(t, err)
			require.NoError(t, tk.Handle(context.Background(), newJobs(1, "t", &stubReporter{})[0]))

			assert.Equal(t, 1, calls)
		})
	}
}

func TestIncludeRouter_DecoratorOrder(t *testing.T) {
	var order []string
	mark := func(name string) task.Decorator {
		return func(context.Context, *domain.Job) error {
			order = append(order, name)
			return nil
		}
	}

	w := newTestWorker(t, &stubAdapter{})
	w.Before(mark("worker"))

	r := NewRouter([]task.Decorator{mark("router")}, nil)
	require.NoError(t, r.Task("t", task.Func(noop), task.WithBefore(mark("task"))))
	require.NoError(t, w.IncludeRouter(r))

	tk, err := w.GetTask("t")
	require.NoError(t, err)
	require.NoError(t, tk.Handle(context.Background(), newJobs(1, "t", &stubReporter{})[0]))

	assert.Equal(t, []string{"worker", "router", "task"}, order)
}

// --- Dispatch ---

func TestHandleJobs(t *testing.T) {
	for _, n := range []int{0, 1, 10} {
		t.Run(fmt.Sprintf("%d jobs", n), func(t *testing.T) {
			var seen []string
			adapter := &stubAdapter{}
			w := newTestWorker(t, adapter)
			require.NoError(t, w.Task("t", task.Func(func(_ context.Context, vars map[string]any) (map[string]any, error) {
				seen = append(seen, vars["n"].(string))
				return nil, nil
			})))

			jobs := newJobs(n, "t", &stubReporter{})
			var want []string
			for i, job := range jobs {
				job.Variables["n"] = string(rune('a' + i))
				want = append(want, job.Variables["n"].(string))
			}
			adapter.batches = [][]*domain.Job{jobs}

			tk, err := w.GetTask("t")
			require.NoError(t, err)

			handled, err := w.handleJobs(context.Background(), w.logger, tk)
			require.NoError(t, err)
			assert.Equal(t, n, handled)
			assert.Equal(t, want, seen)
		})
	}
}

func TestGetJobs_ActivateRequest(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter, func(c *Config) { c.RequestTimeout = 7 * time.Second })
	require.NoError(t, w.Task("t", task.WithParams(noop, "x", "y"),
		task.WithTimeout(time.Minute),
		task.WithMaxJobsToActivate(4),
	))

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	_, err = w.getJobs(context.Background(), tk)
	require.NoError(t, err)

	require.Len(t, adapter.requests, 1)
	assert.Equal(t, domain.ActivateJobsRequest{
		TaskType:          "t",
		Worker:            "test-worker",
		Timeout:           time.Minute,
		MaxJobsToActivate: 4,
		VariablesToFetch:  []string{"x", "y"},
		RequestTimeout:    7 * time.Second,
	}, adapter.requests[0])
}

func TestHandleJobs_ReportingErrorEscapes(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("t", task.Func(noop)))

	reportErr := errors.New("connection refused")
	adapter.batches = [][]*domain.Job{newJobs(2, "t", &stubReporter{err: reportErr})}

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	handled, err := w.handleJobs(context.Background(), w.logger, tk)
	assert.ErrorIs(t, err, reportErr)
	assert.Zero(t, handled)
}

func TestHandleJobs_HandlerContextSurvivesStop(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)

	var ctxErr error
	require.NoError(t, w.Task("t", task.Func(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		ctxErr = ctx.Err()
		return nil, nil
	})))
	adapter.batches = [][]*domain.Job{newJobs(1, "t", &stubReporter{})}

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.handleJobs(ctx, w.logger, tk)
	require.NoError(t, err)
	assert.NoError(t, ctxErr)
}

func TestHandleTask_ActivationErrorEndsLoop(t *testing.T) {
	adapter := &stubAdapter{err: errors.New("database is down")}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("t", task.Func(noop)))

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	err = w.handleTask(context.Background(), tk)
	assert.ErrorIs(t, err, adapter.err)
}

func TestHandleTask_ReturnsNilWhenStopped(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})
	require.NoError(t, w.Task("t", task.Func(noop)))

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.handleTask(ctx, tk))
}

// --- Lifecycle ---

func TestStop_WithoutWork(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})

	w.Stop()
	w.Stop()

	assert.True(t, w.IsStopped())
}

func TestWork_AfterStop(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{})
	w.Stop()

	assert.ErrorIs(t, w.Work(context.Background(), false), ErrWorkerStopped)
}

func TestWork_NoAdapter(t *testing.T) {
	w := newTestWorker(t, nil)

	assert.ErrorIs(t, w.Work(context.Background(), false), ErrNoAdapter)
}

func TestWork_Stop(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("a", task.Func(noop)))
	require.NoError(t, w.Task("b", task.Func(noop)))

	done := make(chan error, 1)
	go func() { done <- w.Work(context.Background(), true) }()

	require.Eventually(t, func() bool { return adapter.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, w.start(), ErrAlreadyWorking)

	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Work did not return after Stop")
	}
}

func TestWork_ContextCancelStops(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("t", task.Func(noop)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Work(ctx, false) }()

	require.Eventually(t, func() bool { return adapter.callCount() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Work did not return after context cancel")
	}
	assert.True(t, w.IsStopped())
}

func TestNotify_WakesIdleLoop(t *testing.T) {
	adapter := &stubAdapter{calls: make(chan struct{}, 1)}
	w := newTestWorker(t, adapter, func(c *Config) { c.PollInterval = time.Hour })
	require.NoError(t, w.Task("t", task.Func(noop)))

	go func() { _ = w.Work(context.Background(), false) }()

	select {
	case <-adapter.calls:
	case <-time.After(time.Second):
		t.Fatal("first poll did not happen")
	}

	w.Notify("t")
	w.Notify("unknown")

	select {
	case <-adapter.calls:
	case <-time.After(time.Second):
		t.Fatal("Notify did not wake the loop")
	}
}

// --- Supervisor ---

func TestWatchTaskThreads_DoesNotRestartRunningThreads(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{}, func(c *Config) { c.WatcherMaxErrorsFactor = 2 })
	require.NoError(t, w.Task("t", task.Func(noop)))

	var runs atomic.Int32
	release := make(chan struct{})
	w.runTask = func(context.Context, *task.Task) error {
		runs.Add(1)
		<-release
		return nil
	}
	require.NoError(t, w.start())

	done := make(chan error, 1)
	go func() { done <- w.watchTaskThreads(time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	w.signalStop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit after stop")
	}
	close(release)

	assert.EqualValues(t, 1, runs.Load())
	assert.Zero(t, w.consecutiveErrors)
}

func TestWatchTaskThreads_DeadThreadsRestartedThenFail(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{}, func(c *Config) { c.WatcherMaxErrorsFactor = 2 })
	require.NoError(t, w.Task("t", task.Func(noop)))

	var runs atomic.Int32
	w.runTask = func(context.Context, *task.Task) error {
		runs.Add(1)
		return nil
	}
	require.NoError(t, w.start())

	err := w.watchTaskThreads(time.Millisecond)

	require.ErrorIs(t, err, ErrMaxConsecutiveTaskThread)
	var maxErr *MaxConsecutiveTaskThreadError
	require.ErrorAs(t, err, &maxErr)
	assert.Contains(t, err.Error(), "consecutive errors (2)")
	assert.Equal(t, 2, maxErr.MaxErrors)

	// Первый запуск и ровно один перезапуск.
	assert.EqualValues(t, 2, runs.Load())
	assert.True(t, w.IsStopped())

	select {
	case fatal := <-w.Fatal():
		assert.Equal(t, err, fatal)
	default:
		t.Fatal("fatal error was not published")
	}
}

func TestWatchTaskThreads_PanicCountsAsDeath(t *testing.T) {
	w := newTestWorker(t, &stubAdapter{}, func(c *Config) { c.WatcherMaxErrorsFactor = 1 })
	require.NoError(t, w.Task("t", task.Func(noop)))

	w.runTask = func(context.Context, *task.Task) error { panic("broken loop") }
	require.NoError(t, w.start())

	err := w.watchTaskThreads(time.Millisecond)
	assert.ErrorIs(t, err, ErrMaxConsecutiveTaskThread)
	assert.ErrorIs(t, w.threads["t"].err, ErrTaskThreadPanic)
}

func TestWork_WatchFailureReturned(t *testing.T) {
	adapter := &stubAdapter{err: errors.New("database is down")}
	w := newTestWorker(t, adapter, func(c *Config) { c.WatcherMaxErrorsFactor = 1 })
	require.NoError(t, w.Task("t", task.Func(noop)))

	done := make(chan error, 1)
	go func() { done <- w.Work(context.Background(), true) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrMaxConsecutiveTaskThread)
		assert.Contains(t, err.Error(), "consecutive errors (1)")
	case <-time.After(time.Second):
		t.Fatal("Work did not return after budget exhaustion")
	}
	assert.True(t, w.IsStopped())
}

// --- Lock ownership ---

func TestHandleJobs_LostLockKeepsLoopAlive(t *testing.T) {
	store := repo.NewMemoryJobRepo()
	ctx := context.Background()
	job := domain.NewJob("t", nil)
	require.NoError(t, store.Create(ctx, job))

	w := newTestWorker(t, store, func(c *Config) { c.Name = "worker-b" })
	require.NoError(t, w.Task("t", task.Func(func(context.Context, map[string]any) (map[string]any, error) {
		// Блокировка истекает, пока обработчик работает, и job забирает другой воркер.
		time.Sleep(5 * time.Millisecond)
		stolen, err := store.ActivateJobs(ctx, domain.ActivateJobsRequest{
			TaskType:          "t",
			Worker:            "worker-a",
			Timeout:           time.Minute,
			MaxJobsToActivate: 1,
		})
		require.NoError(t, err)
		require.Len(t, stolen, 1)
		return map[string]any{"by": "b"}, nil
	}), task.WithTimeout(time.Millisecond)))

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	handled, err := w.handleJobs(ctx, w.logger, tk)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	stored, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActivated, stored.Status)
	assert.Equal(t, "worker-a", stored.Worker)
	assert.NotContains(t, stored.Variables, "by")
}

func TestHandleJobs_LostLockFromReporter(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("t", task.Func(noop)))

	lost := fmt.Errorf("invalid state: %w", domain.ErrLockLost)
	adapter.batches = [][]*domain.Job{newJobs(3, "t", &stubReporter{err: lost})}

	tk, err := w.GetTask("t")
	require.NoError(t, err)

	handled, err := w.handleJobs(context.Background(), w.logger, tk)
	require.NoError(t, err)
	assert.Equal(t, 3, handled)
}

// --- Stop from inside a job ---

func TestCancel_FromHandlerDoesNotDeadlock(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("t", task.Func(func(context.Context, map[string]any) (map[string]any, error) {
		w.Cancel()
		return nil, nil
	})))
	adapter.batches = [][]*domain.Job{newJobs(1, "t", &stubReporter{})}

	done := make(chan error, 1)
	go func() { done <- w.Work(context.Background(), true) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Work did not return after Cancel from a handler")
	}
	assert.True(t, w.IsStopped())
}

// trackingCtx считает регистрации и снятия AfterFunc на контексте.
// Value скрывает внутренний cancelCtx, чтобы context шёл через AfterFunc.
type trackingCtx struct {
	context.Context
	registered atomic.Int32
	released   atomic.Int32
}

func (c *trackingCtx) Value(any) any { return nil }

func (c *trackingCtx) AfterFunc(f func()) func() bool {
	c.registered.Add(1)
	stop := context.AfterFunc(c.Context, f)
	return func() bool {
		c.released.Add(1)
		return stop()
	}
}

func TestWork_ReleasesContextCallback(t *testing.T) {
	adapter := &stubAdapter{}
	w := newTestWorker(t, adapter)
	require.NoError(t, w.Task("t", task.Func(noop)))

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx := &trackingCtx{Context: parent}
	done := make(chan error, 1)
	go func() { done <- w.Work(ctx, false) }()

	require.Eventually(t, func() bool { return adapter.callCount() > 0 }, time.Second, 5*time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Work did not return after Stop")
	}

	assert.EqualValues(t, 1, ctx.registered.Load())
	assert.EqualValues(t, 1, ctx.released.Load())
}
