package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/cronqueue/internal/domain"
)

// ExecutionRepo — журнал executions (таблица job_executions).
//
// Переходы статусов:
//
//	QUEUED → RUNNING → SUCCESS
//	                 → FAILED → RUNNING (повторная попытка) → ...
//
// SUCCESS конечен: повторная доставка уже выполненного item
// получает ErrInvalidState на MarkRunning.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `id, job_id, scheduled_time, status, start_time, end_time, log_details, created_at`

// DefaultExecutionsLimit — лимит ListByJob по умолчанию.
const DefaultExecutionsLimit = 50

// CreateQueued создаёт execution record в статусе QUEUED.
//
// Возвращает ErrAlreadyExists, если запись для (job_id, scheduled_time)
// уже создана: это штатная дедупликация между циклами scheduler'а.
func (r *ExecutionRepo) CreateQueued(ctx context.Context, job *domain.JobDefinition, scheduled time.Time) (*domain.ExecutionRecord, error) {
	now := time.Now().UTC()
	exec := &domain.ExecutionRecord{
		ID:            uuid.New(),
		JobID:         job.ID,
		ScheduledTime: scheduled.UTC(),
		Status:        domain.ExecutionStatusQueued,
		LogDetails:    []domain.LogEntry{domain.QueuedEntry(now, job.TaskPayload)},
		CreatedAt:     now,
	}

	logJSON, err := json.Marshal(exec.LogDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal log details: %w", err)
	}

	query := `
		INSERT INTO job_executions (id, job_id, scheduled_time, status, log_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.JobID,
		exec.ScheduledTime,
		exec.Status,
		logJSON,
		exec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintJobScheduledTime) {
			return nil, ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return exec, nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM job_executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// MarkRunning переводит execution в RUNNING: start_time = at, end_time сбрасывается.
// Запись entry добавляется в конец log_details.
func (r *ExecutionRepo) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time, entry domain.LogEntry) error {
	query := `
		UPDATE job_executions
		SET status = $2, start_time = $3, end_time = NULL,
		    log_details = log_details || $4::jsonb
		WHERE id = $1 AND status <> 'SUCCESS'
	`
	return r.transition(ctx, query, id, domain.ExecutionStatusRunning, at, entry)
}

// MarkSucceeded переводит execution в SUCCESS.
func (r *ExecutionRepo) MarkSucceeded(ctx context.Context, id uuid.UUID, at time.Time, entry domain.LogEntry) error {
	return r.finish(ctx, id, domain.ExecutionStatusSuccess, at, entry)
}

// MarkFailed переводит execution в FAILED.
func (r *ExecutionRepo) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, entry domain.LogEntry) error {
	return r.finish(ctx, id, domain.ExecutionStatusFailed, at, entry)
}

func (r *ExecutionRepo) finish(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, at time.Time, entry domain.LogEntry) error {
	query := `
		UPDATE job_executions
		SET status = $2, end_time = $3,
		    log_details = log_details || $4::jsonb
		WHERE id = $1 AND status = 'RUNNING'
	`
	return r.transition(ctx, query, id, status, at, entry)
}

// transition выполняет UPDATE перехода и различает "нет записи" и "не тот статус".
func (r *ExecutionRepo) transition(ctx context.Context, query string, id uuid.UUID, status domain.ExecutionStatus, at time.Time, entry domain.LogEntry) error {
	entryJSON, err := json.Marshal([]domain.LogEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	result, err := r.pool.Exec(ctx, query, id, status, at.UTC(), string(entryJSON))
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var current domain.ExecutionStatus
	err = r.pool.QueryRow(ctx, `SELECT status FROM job_executions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get execution status: %w", err)
	}
	return fmt.Errorf("%w: execution %s is %s, cannot move to %s", ErrInvalidState, id, current, status)
}

// ListByJob возвращает последние executions job, новые первыми.
func (r *ExecutionRepo) ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = DefaultExecutionsLimit
	}

	query := `
		SELECT ` + executionColumns + `
		FROM job_executions
		WHERE job_id = $1
		ORDER BY scheduled_time DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.ExecutionRecord
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// CountStaleQueued считает записи, оставшиеся в QUEUED дольше порога
// (созданы раньше before). Такие записи, скорее всего, не попали в очередь.
func (r *ExecutionRepo) CountStaleQueued(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM job_executions WHERE status = 'QUEUED' AND created_at < $1`,
		before.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale queued: %w", err)
	}
	return n, nil
}

// --- Helpers ---

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var exec domain.ExecutionRecord
	var logJSON []byte

	err := row.Scan(
		&exec.ID,
		&exec.JobID,
		&exec.ScheduledTime,
		&exec.Status,
		&exec.StartTime,
		&exec.EndTime,
		&logJSON,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if logJSON != nil {
		if err := json.Unmarshal(logJSON, &exec.LogDetails); err != nil {
			return nil, fmt.Errorf("unmarshal log details: %w", err)
		}
	}

	exec.ScheduledTime = exec.ScheduledTime.UTC()
	return &exec, nil
}
