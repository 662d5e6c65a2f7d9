package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/cronqueue/internal/domain"
)

// JobStore — хранилище job definitions (repo.JobRepo).
type JobStore interface {
	Create(ctx context.Context, job *domain.JobDefinition) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobDefinition, error)
	List(ctx context.Context) ([]domain.JobDefinition, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// ExecutionStore — чтение журнала executions (repo.ExecutionRepo).
type ExecutionStore interface {
	ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.ExecutionRecord, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs       JobStore
	executions ExecutionStore
	queueName  string
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs       JobStore
	Executions ExecutionStore
	QueueName  string // для информационного ответа на GET /
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:       cfg.Jobs,
		executions: cfg.Executions,
		queueName:  cfg.QueueName,
		logger:     logger,
	}
}
