// cronqueue-scheduler — планировщик.
//
// Запускается в нескольких экземплярах; цикл выполняет только тот,
// кому достался advisory lock. Цикл находит срабатывания active jobs
// в окне догоняния, создаёт QUEUED-записи и ставит work items в очередь.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/cronqueue/internal/config"
	"github.com/shaiso/cronqueue/internal/leader"
	"github.com/shaiso/cronqueue/internal/mq"
	"github.com/shaiso/cronqueue/internal/repo"
	"github.com/shaiso/cronqueue/internal/scheduler"
	"github.com/shaiso/cronqueue/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting cronqueue-scheduler")

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
	logger.Info("queue topology ready", "topology", mq.TopologyInfo(queueCfg))

	// Лок лидера живёт на отдельном соединении, не из пула
	lock := leader.NewAdvisoryLock(cfg.DBURL, cfg.LeaderLockKey, logger)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = lock.Close(closeCtx)
	}()

	sched := scheduler.New(scheduler.Config{
		Jobs:          repo.NewJobRepo(pool),
		Ledger:        repo.NewExecutionRepo(pool),
		Queue:         mq.NewQueue(mqConn, queueCfg, logger),
		Lock:          lock,
		Logger:        logger,
		Interval:      cfg.SchedulerInterval(),
		CatchUpWindow: cfg.CatchUpWindow(),
		StaleAfter:    cfg.StaleQueuedAfter(),
	})

	// HTTP: /healthz + /metrics
	mux := telemetry.NewOpsMux(map[string]telemetry.HealthCheck{
		"postgres": pool.Ping,
		"rabbitmq": func(context.Context) error {
			if !mqConn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	})
	go func() {
		if err := telemetry.Serve(ctx, ":"+cfg.SchedulerPort, mux, logger); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("cronqueue-scheduler stopped")
}
