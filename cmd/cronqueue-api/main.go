// cronqueue-api — HTTP API управления jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/cronqueue/internal/api"
	"github.com/shaiso/cronqueue/internal/config"
	"github.com/shaiso/cronqueue/internal/repo"
	"github.com/shaiso/cronqueue/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting cronqueue-api")

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	handler := api.NewHandler(api.Config{
		Jobs:       repo.NewJobRepo(pool),
		Executions: repo.NewExecutionRepo(pool),
		QueueName:  cfg.QueueName,
		Logger:     logger,
	})

	// Health и metrics
	mux := telemetry.NewOpsMux(map[string]telemetry.HealthCheck{
		"postgres": pool.Ping,
	})

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	if err := telemetry.Serve(ctx, ":"+cfg.APIPort, mux, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}
