package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/cronqueue/internal/domain"
	"github.com/shaiso/cronqueue/internal/leader"
	"github.com/shaiso/cronqueue/internal/repo"
	"github.com/shaiso/cronqueue/internal/telemetry"
)

// JobSource — источник активных job definitions.
type JobSource interface {
	ListActive(ctx context.Context) ([]domain.JobDefinition, error)
}

// Ledger — операции журнала executions, нужные scheduler'у.
type Ledger interface {
	// CreateQueued возвращает repo.ErrAlreadyExists, если (job, scheduled) уже занят.
	CreateQueued(ctx context.Context, job *domain.JobDefinition, scheduled time.Time) (*domain.ExecutionRecord, error)
	CountStaleQueued(ctx context.Context, before time.Time) (int, error)
}

// Enqueuer ставит work item в очередь и возвращает его ID.
type Enqueuer interface {
	Enqueue(ctx context.Context, item domain.WorkItem) (string, error)
}

// Locker — лок лидера. Nil-handle без ошибки означает "лок занят".
type Locker interface {
	TryAcquire(ctx context.Context) (*leader.Handle, error)
}

// Значения по умолчанию.
const (
	DefaultInterval       = 5 * time.Second
	DefaultCatchUpWindow  = 10 * time.Second
	DefaultStaleAfter     = 5 * time.Minute
	DefaultCycleTimeout   = 30 * time.Second
	DefaultReleaseTimeout = 5 * time.Second
)

// Config — конфигурация Scheduler.
type Config struct {
	Jobs   JobSource
	Ledger Ledger
	Queue  Enqueuer
	Lock   Locker
	Logger *slog.Logger

	Interval       time.Duration // период таймера (default: 5s)
	CatchUpWindow  time.Duration // окно догоняния W (default: 10s)
	StaleAfter     time.Duration // порог "зависших" QUEUED-записей (default: 5m, <0 — не проверять)
	CycleTimeout   time.Duration // предел длительности одного цикла (default: 30s)
	ReleaseTimeout time.Duration // предел на снятие лока (default: 5s)

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

// CycleResult — итог одного цикла.
type CycleResult struct {
	Acquired   bool // лок получен, цикл выполнен
	Jobs       int  // активных jobs
	Queued     int  // созданных и поставленных в очередь executions
	Duplicates int  // срабатываний, уже занятых ранее
	Skipped    int  // jobs с невалидным выражением
	Errors     int  // прочих ошибок по отдельным jobs
}

// Scheduler — планировщик: по таймеру берёт лок, находит due jobs,
// создаёт QUEUED-записи и ставит work items в очередь.
type Scheduler struct {
	jobs   JobSource
	ledger Ledger
	queue  Enqueuer
	lock   Locker
	logger *slog.Logger

	interval       time.Duration
	catchUp        time.Duration
	staleAfter     time.Duration
	cycleTimeout   time.Duration
	releaseTimeout time.Duration
	now            func() time.Time

	// held — handle лока текущего цикла; nil между циклами.
	mu   sync.Mutex
	held *leader.Handle
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		jobs:           cfg.Jobs,
		ledger:         cfg.Ledger,
		queue:          cfg.Queue,
		lock:           cfg.Lock,
		logger:         cfg.Logger,
		interval:       cfg.Interval,
		catchUp:        cfg.CatchUpWindow,
		staleAfter:     cfg.StaleAfter,
		cycleTimeout:   cfg.CycleTimeout,
		releaseTimeout: cfg.ReleaseTimeout,
		now:            cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.catchUp <= 0 {
		s.catchUp = DefaultCatchUpWindow
	}
	if s.staleAfter == 0 {
		s.staleAfter = DefaultStaleAfter
	}
	if s.cycleTimeout <= 0 {
		s.cycleTimeout = DefaultCycleTimeout
	}
	if s.releaseTimeout <= 0 {
		s.releaseTimeout = DefaultReleaseTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run запускает цикл сразу и затем на каждый тик таймера.
//
// Таймер не зависит от длительности цикла: каждый цикл идёт в своей
// горутине, а перекрытие отсекает проверка held. Начатый цикл не
// прерывается остановкой, Run дожидается его и возвращает nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.interval,
		"catchup_window", s.catchUp,
	)

	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
			defer cancel()
			if _, err := s.RunCycle(cctx); err != nil {
				s.logger.Error("scheduler cycle aborted", "error", err)
			}
		}()
	}

	start()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start()
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// RunCycle выполняет один цикл планирования.
//
//  1. Берёт лок лидера; если занят — цикл пустой.
//  2. Читает активные jobs.
//  3. Для каждого job находит срабатывания в окне [now-W, now].
//  4. Для каждого срабатывания создаёт QUEUED-запись; конфликт
//     уникальности (job_id, scheduled_time) — штатный дубль, пропускаем.
//  5. Ставит work item в очередь. Ошибка оставляет запись QUEUED.
//  6. Освобождает лок при любом исходе.
//
// Ошибки одного job не блокируют остальные. Ошибка возвращается только
// для инфраструктурных сбоев, прервавших цикл.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	handle, err := s.acquire(ctx)
	if err != nil {
		telemetry.SchedulerCycles.WithLabelValues(telemetry.CycleResultAborted).Inc()
		return res, fmt.Errorf("acquire leader lock: %w", err)
	}
	if handle == nil {
		telemetry.SchedulerCycles.WithLabelValues(telemetry.CycleResultSkipped).Inc()
		s.logger.Debug("leader lock not acquired, skipping cycle")
		return res, nil
	}
	defer s.release(ctx)

	res.Acquired = true
	now := s.now().UTC()

	jobs, err := s.jobs.ListActive(ctx)
	if err != nil {
		telemetry.SchedulerCycles.WithLabelValues(telemetry.CycleResultAborted).Inc()
		return res, fmt.Errorf("list active jobs: %w", err)
	}
	res.Jobs = len(jobs)

	windowStart := now.Add(-s.catchUp)
	for i := range jobs {
		s.processJob(ctx, &jobs[i], windowStart, now, &res)
	}

	s.checkStale(ctx, now)

	telemetry.SchedulerCycles.WithLabelValues(telemetry.CycleResultCompleted).Inc()
	if res.Queued > 0 || res.Errors > 0 || res.Skipped > 0 {
		s.logger.Info("scheduler cycle completed",
			"jobs", res.Jobs,
			"queued", res.Queued,
			"duplicates", res.Duplicates,
			"skipped", res.Skipped,
			"errors", res.Errors,
		)
	} else {
		s.logger.Debug("scheduler cycle completed", "jobs", res.Jobs, "duplicates", res.Duplicates)
	}
	return res, nil
}

// processJob обрабатывает срабатывания одного job в окне [from, to].
func (s *Scheduler) processJob(ctx context.Context, job *domain.JobDefinition, from, to time.Time, res *CycleResult) {
	logger := telemetry.WithJobID(s.logger, job.ID.String()).With("job_name", job.Name)

	occurrences, err := OccurrencesInWindow(job.CronExpression, from, to)
	if err != nil {
		res.Skipped++
		logger.Warn("skipping job with invalid cron expression",
			"cron_expression", job.CronExpression,
			"error", err,
		)
		return
	}

	for _, scheduled := range occurrences {
		exec, err := s.ledger.CreateQueued(ctx, job, scheduled)
		if err != nil {
			if errors.Is(err, repo.ErrAlreadyExists) {
				res.Duplicates++
				telemetry.SchedulerDuplicates.Inc()
				continue
			}
			res.Errors++
			logger.Error("failed to create execution record",
				"scheduled_time", scheduled,
				"error", err,
			)
			continue
		}

		itemID, err := s.queue.Enqueue(ctx, job.NewWorkItem(exec))
		if err != nil {
			// запись остаётся QUEUED без элемента в очереди
			res.Errors++
			telemetry.SchedulerEnqueueFailures.Inc()
			telemetry.WithExecutionID(logger, exec.ID.String()).Error("failed to enqueue work item, execution left QUEUED",
				"scheduled_time", scheduled,
				"error", err,
			)
			continue
		}

		res.Queued++
		telemetry.SchedulerExecutionsQueued.Inc()
		telemetry.WithExecutionID(logger, exec.ID.String()).Info("execution queued",
			"scheduled_time", scheduled,
			"item_id", itemID,
		)
	}
}

// checkStale публикует число QUEUED-записей старше порога.
// Автоматически такие записи не исправляются.
func (s *Scheduler) checkStale(ctx context.Context, now time.Time) {
	if s.staleAfter < 0 {
		return
	}
	n, err := s.ledger.CountStaleQueued(ctx, now.Add(-s.staleAfter))
	if err != nil {
		s.logger.Warn("failed to count stale queued executions", "error", err)
		return
	}
	telemetry.SchedulerStaleQueued.Set(float64(n))
	if n > 0 {
		s.logger.Warn("stale QUEUED executions found, manual reconciliation required",
			"count", n,
			"older_than", s.staleAfter,
		)
	}
}

// acquire берёт лок, если в этом процессе он ещё не взят.
func (s *Scheduler) acquire(ctx context.Context) (*leader.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held != nil {
		s.logger.Debug("previous cycle still holds the leader lock")
		return nil, nil
	}

	handle, err := s.lock.TryAcquire(ctx)
	if err != nil || handle == nil {
		return nil, err
	}
	s.held = handle
	return handle, nil
}

// release освобождает лок текущего цикла. Снятие не наследует отмену
// цикла, но ограничено releaseTimeout: s.mu держится всё это время.
func (s *Scheduler) release(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	if err := s.held.Release(rctx); err != nil {
		s.logger.Error("failed to release leader lock", "error", err)
	}
	s.held = nil
}
