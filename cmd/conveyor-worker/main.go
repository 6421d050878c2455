// Conveyor Worker — выполняет jobs зарегистрированных типов.
//
// Worker:
//   - Активирует jobs в PostgreSQL (или в памяти, ADAPTER=memory)
//   - Выполняет встроенные tasks (http, delay, transform)
//   - Публикует события о результате в RabbitMQ
//   - Просыпается по job.created без ожидания poll interval
//
// Workers масштабируются горизонтально: захват jobs идёт через
// SELECT ... FOR UPDATE SKIP LOCKED.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/decorators"
	"github.com/shaiso/Conveyor/internal/handlers"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting conveyor-worker", "adapter", cfg.Adapter)

	if err := run(cfg, logger); err != nil {
		logger.Error("conveyor-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("conveyor-worker stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	adapter, closeAdapter, err := openAdapter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	// RabbitMQ
	var mqConn *mq.Connection
	var publisher *mq.Publisher
	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.Dial(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			logger.Debug("topology", "info", mq.TopologyInfo())
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	// Создаём worker
	w := worker.New(worker.Config{
		Adapter:                adapter,
		Name:                   cfg.WorkerName,
		RequestTimeout:         cfg.RequestTimeout,
		PollInterval:           cfg.PollInterval,
		WatchFrequency:         cfg.WatchFrequency,
		WatcherMaxErrorsFactor: cfg.WatcherMaxErrorsFactor,
		Before:                 []task.Decorator{decorators.LogStarted()},
		After:                  []task.Decorator{decorators.LogFinished()},
		Logger:                 logger,
	})

	var after []task.Decorator
	if publisher != nil {
		after = append(after, decorators.Events(publisher))
	}
	router, err := handlers.NewRouter(&http.Client{}, nil, after)
	if err != nil {
		return err
	}
	if err := w.IncludeRouter(router); err != nil {
		return err
	}

	if mqConn != nil {
		go consumeWakeups(ctx, mqConn, w, logger)
	}

	// HTTP mux: /healthz + /metrics
	srv := newHTTPServer(cfg.WorkerPort, w)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	done := make(chan error, 1)
	go func() {
		done <- w.Work(ctx, cfg.WatchTaskThreads)
	}()

	select {
	case err := <-done:
		// supervisor исчерпал бюджет или worker не смог стартовать
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	select {
	case err := <-done:
		return err
	case <-time.After(cfg.ShutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout)
	}
}

// openAdapter создаёт источник jobs по cfg.Adapter.
func openAdapter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (worker.Adapter, func(), error) {
	if cfg.UseMemoryAdapter() {
		logger.Warn("using in-memory adapter, jobs are not persisted")
		return repo.NewMemoryJobRepo(), func() {}, nil
	}

	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connected")
	return repo.NewJobRepo(pool), pool.Close, nil
}

// consumeWakeups будит dispatch loops по событиям job.created.
func consumeWakeups(ctx context.Context, conn *mq.Connection, w *worker.Worker, logger *slog.Logger) {
	types := make([]string, 0, len(w.Tasks()))
	for _, t := range w.Tasks() {
		types = append(types, t.Type())
	}

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Setup:   mq.WakeQueueSetup(w.Name(), types),
		Handler: mq.WakeHandler(w.Notify),
	})
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("wake-up consumer stopped, falling back to polling", "error", err)
	}
}

func newHTTPServer(port int, w *worker.Worker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte("stopped"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
