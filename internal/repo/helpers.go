package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Имена ограничений, на которые опирается логика (см. migrations/0001_init.sql).
const (
	constraintJobName           = "uq_jobs_name"
	constraintJobScheduledTime  = "uq_job_scheduled_time"
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// isUniqueViolation проверяет, что err — нарушение unique constraint.
// Если constraint не пуст, имя ограничения тоже должно совпасть.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != sqlStateUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// isForeignKeyViolation проверяет, что err — нарушение внешнего ключа.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateForeignKeyViolation
}

