package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shaiso/cronqueue/internal/domain"
	"github.com/shaiso/cronqueue/internal/mq"
	"github.com/shaiso/cronqueue/internal/render"
)

// Default configuration values.
const (
	defaultConcurrency = 5
	defaultTaskTimeout = 30 * time.Second
)

// Ledger — переходы execution record, выполняемые worker'ом.
//
// MarkRunning возвращает repo.ErrInvalidState для уже успешной записи
// и repo.ErrNotFound, если запись удалена вместе с job.
type Ledger interface {
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time, entry domain.LogEntry) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, at time.Time, entry domain.LogEntry) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, entry domain.LogEntry) error
}

// Worker выполняет work items из очереди.
//
// Worker — stateless компонент системы, который:
//   - Получает work items из RabbitMQ с заданной конкурентностью
//   - Переводит execution record в RUNNING до начала выполнения
//   - Выполняет задачу executor'ом по виду задачи
//   - Фиксирует SUCCESS/FAILED и сообщает очереди, повторять ли item
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	ledger   Ledger
	conn     *mq.Connection
	queue    mq.QueueConfig
	registry *Registry
	limiter  *rate.Limiter

	concurrency int
	env         map[string]string
	now         func() time.Time

	// Consumer
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Ledger — журнал executions.
	Ledger Ledger

	// MQ
	Conn  *mq.Connection
	Queue mq.QueueConfig

	// Executor registry (опционально; если nil — NewRegistry(TaskTimeout))
	Registry *Registry

	// Concurrency — число одновременно выполняемых items (default: 5).
	Concurrency int

	// RateLimit — не больше RateLimit задач в секунду на процесс (0 — без ограничения).
	RateLimit float64

	// TaskTimeout — таймаут задачи по умолчанию (default: 30s).
	TaskTimeout time.Duration

	// Env — переменные для шаблонов payload ({{ .Env.NAME }}).
	// Если nil — render.EnvFromOS().
	Env map[string]string

	// Logger
	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(taskTimeout)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := max(int(cfg.RateLimit), 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	env := cfg.Env
	if env == nil {
		env = render.EnvFromOS()
	}

	return &Worker{
		ledger:      cfg.Ledger,
		conn:        cfg.Conn,
		queue:       cfg.Queue.WithDefaults(),
		registry:    registry,
		limiter:     limiter,
		concurrency: concurrency,
		env:         env,
		now:         now,
		logger:      logger,
	}
}

// Start запускает потребление рабочей очереди.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queue", w.queue.Name,
		"concurrency", w.concurrency,
		"max_attempts", w.queue.MaxAttempts,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:       w.queue,
		Handler:     w.HandleItem,
		Concurrency: w.concurrency,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("work item consumer error", "error", err)
			w.markStopped()
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker. Начатые items доводятся до конца,
// остальные вернутся в очередь.
func (w *Worker) Stop() {
	w.markStopped()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

func (w *Worker) markStopped() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// Check — health check для /healthz: ErrStopped, если worker
// больше не потребляет очередь.
func (w *Worker) Check(context.Context) error {
	if w.IsStopped() {
		return ErrStopped
	}
	return nil
}
