// cronqueue-worker — выполняет work items.
//
// Worker:
//   - Получает work items из RabbitMQ
//   - Ведёт execution record: RUNNING → SUCCESS/FAILED
//   - Выполняет задачу по виду (API_CALL)
//   - Неудачные items возвращаются через retry-очереди с exponential backoff
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/cronqueue/internal/config"
	"github.com/shaiso/cronqueue/internal/mq"
	"github.com/shaiso/cronqueue/internal/repo"
	"github.com/shaiso/cronqueue/internal/telemetry"
	"github.com/shaiso/cronqueue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting cronqueue-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	mqConn, err := mq.Dial(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	queueCfg := mq.QueueConfig{
		Name:          cfg.QueueName,
		MaxAttempts:   cfg.QueueMaxAttempts,
		Backoff:       cfg.QueueBackoff(),
		KeepCompleted: cfg.QueueKeepCompleted,
		KeepFailed:    cfg.QueueKeepFailed,
	}
	if err := mq.SetupQueue(ctx, mqConn, queueCfg); err != nil {
		logger.Error("failed to setup queue topology", "error", err)
		os.Exit(1)
	}

	w := worker.New(worker.Config{
		Ledger:      repo.NewExecutionRepo(pool),
		Conn:        mqConn,
		Queue:       queueCfg,
		Concurrency: cfg.WorkerConcurrency,
		RateLimit:   cfg.WorkerRateLimit,
		TaskTimeout: cfg.TaskTimeout(),
		Logger:      logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP: /healthz + /metrics
	mux := telemetry.NewOpsMux(map[string]telemetry.HealthCheck{
		"postgres": pool.Ping,
		"rabbitmq": func(context.Context) error {
			if !mqConn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
		"worker": w.Check,
	})
	go func() {
		if err := telemetry.Serve(ctx, ":"+cfg.WorkerPort, mux, logger); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	logger.Info("cronqueue-worker stopped")
}
