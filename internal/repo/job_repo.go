package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/cronqueue/internal/domain"
)

// JobRepo — репозиторий для работы с job definitions.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, name, cron_expression, task_payload, is_active, created_at`

// Create создаёт новый job.
// Возвращает ErrAlreadyExists, если job с таким именем уже есть.
func (r *JobRepo) Create(ctx context.Context, job *domain.JobDefinition) error {
	payloadJSON, err := json.Marshal(job.TaskPayload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	query := `
		INSERT INTO jobs (id, name, cron_expression, task_payload, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Name,
		job.CronExpression,
		payloadJSON,
		job.IsActive,
		job.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintJobName) {
			return fmt.Errorf("%w: job %q", ErrAlreadyExists, job.Name)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobDefinition, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все jobs, упорядоченные по времени создания.
func (r *JobRepo) List(ctx context.Context) ([]domain.JobDefinition, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query)
}

// ListActive возвращает jobs с is_active = true.
func (r *JobRepo) ListActive(ctx context.Context) ([]domain.JobDefinition, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE is_active = TRUE ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query)
}

// Delete удаляет job. Executions удаляются каскадно (ON DELETE CASCADE).
func (r *JobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive включает/выключает job.
func (r *JobRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE jobs SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *JobRepo) query(ctx context.Context, query string, args ...any) ([]domain.JobDefinition, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobDefinition
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.JobDefinition, error) {
	var job domain.JobDefinition
	var payloadJSON []byte

	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.CronExpression,
		&payloadJSON,
		&job.IsActive,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &job.TaskPayload); err != nil {
			return nil, fmt.Errorf("unmarshal task payload: %w", err)
		}
	}

	return &job, nil
}
