package api

import (
	"encoding/json"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/shaiso/cronqueue/internal/domain"
	"github.com/shaiso/cronqueue/internal/scheduler"
)

// Job DTOs

// CreateJobRequest — запрос на создание job.
type CreateJobRequest struct {
	Name           string          `json:"name"`
	CronExpression string          `json:"cron_expression"`
	TaskPayload    json.RawMessage `json:"task_payload"`
	IsActive       *bool           `json:"is_active,omitempty"`
}

// Validate проверяет обязательные поля, cron-выражение и схему payload.
func (r *CreateJobRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.CronExpression, validation.Required, validation.By(validCron)),
		validation.Field(&r.TaskPayload, validation.Required, validation.By(validPayload)),
	)
}

func validCron(value any) error {
	expr, _ := value.(string)
	if err := scheduler.ValidateExpression(expr); err != nil {
		return validation.NewError("validation_cron_expression", err.Error())
	}
	return nil
}

func validPayload(value any) error {
	raw, _ := value.(json.RawMessage)
	if err := domain.ValidateTaskPayload(raw); err != nil {
		return validation.NewError("validation_task_payload", err.Error())
	}
	return nil
}

// ToDomain собирает JobDefinition из провалидированного запроса.
func (r *CreateJobRequest) ToDomain(now time.Time) (*domain.JobDefinition, error) {
	var payload domain.TaskPayload
	if err := json.Unmarshal(r.TaskPayload, &payload); err != nil {
		return nil, err
	}

	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &domain.JobDefinition{
		ID:             uuid.New(),
		Name:           r.Name,
		CronExpression: r.CronExpression,
		TaskPayload:    payload,
		IsActive:       active,
		CreatedAt:      now.UTC(),
	}, nil
}

// SetActiveRequest — запрос на включение/выключение job.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// Validate проверяет, что is_active передан явно.
func (r *SetActiveRequest) Validate() error {
	if r.IsActive == nil {
		return validation.Errors{"is_active": errors.New("is required")}
	}
	return nil
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID             uuid.UUID          `json:"id"`
	Name           string             `json:"name"`
	CronExpression string             `json:"cron_expression"`
	TaskPayload    domain.TaskPayload `json:"task_payload"`
	IsActive       bool               `json:"is_active"`
	CreatedAt      time.Time          `json:"created_at"`
}

// JobFromDomain конвертирует domain.JobDefinition в JobResponse.
func JobFromDomain(j domain.JobDefinition) JobResponse {
	return JobResponse{
		ID:             j.ID,
		Name:           j.Name,
		CronExpression: j.CronExpression,
		TaskPayload:    j.TaskPayload,
		IsActive:       j.IsActive,
		CreatedAt:      j.CreatedAt,
	}
}

// Execution DTOs

// ExecutionResponse — ответ с execution record.
type ExecutionResponse struct {
	ID            uuid.UUID         `json:"id"`
	JobID         uuid.UUID         `json:"job_id"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	Status        string            `json:"status"`
	StartTime     *time.Time        `json:"start_time,omitempty"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
	DurationMs    int64             `json:"duration_ms,omitempty"`
	LogDetails    []domain.LogEntry `json:"log_details,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ExecutionFromDomain конвертирует domain.ExecutionRecord в ExecutionResponse.
func ExecutionFromDomain(e domain.ExecutionRecord) ExecutionResponse {
	return ExecutionResponse{
		ID:            e.ID,
		JobID:         e.JobID,
		ScheduledTime: e.ScheduledTime,
		Status:        e.Status.String(),
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		DurationMs:    e.Duration().Milliseconds(),
		LogDetails:    e.LogDetails,
		CreatedAt:     e.CreatedAt,
	}
}

// InfoResponse — ответ GET /.
type InfoResponse struct {
	Service string `json:"service"`
	Queue   string `json:"queue"`
}
