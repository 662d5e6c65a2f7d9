package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord — одно конкретное срабатывание job.
//
// Для пары (JobID, ScheduledTime) существует не более одной записи:
// это гарантирует unique constraint uq_job_scheduled_time, на нём держится
// защита от дублей между циклами scheduler'а.
type ExecutionRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// JobID — ссылка на JobDefinition.
	JobID uuid.UUID `json:"job_id"`

	// ScheduledTime — момент срабатывания, который представляет запись (UTC).
	ScheduledTime time.Time `json:"scheduled_time"`

	// Status — статус последней попытки.
	Status ExecutionStatus `json:"status"`

	// StartTime — начало последней попытки.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime — окончание последней попытки. Nil, пока попытка идёт.
	EndTime *time.Time `json:"end_time,omitempty"`

	// LogDetails — append-only журнал переходов, по записи на событие.
	LogDetails []LogEntry `json:"log_details,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность последней попытки.
func (e *ExecutionRecord) Duration() time.Duration {
	if e.StartTime == nil || e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(*e.StartTime)
}

// LogEntryType — тип записи журнала execution.
type LogEntryType string

const (
	LogEntryQueued  LogEntryType = "queued"
	LogEntryStart   LogEntryType = "start"
	LogEntrySuccess LogEntryType = "success"
	LogEntryFailure LogEntryType = "failure"
)

// LogEntry — одна запись в log_details.
type LogEntry struct {
	Type    LogEntryType `json:"type"`
	Message string       `json:"message"`

	// Attempt — номер попытки доставки (с 1). 0 для queued.
	Attempt int `json:"attempt,omitempty"`

	At time.Time `json:"at"`

	// Data — произвольные структурированные данные (например, копия payload).
	Data any `json:"data,omitempty"`
}

// QueuedEntry — запись о постановке в очередь.
func QueuedEntry(at time.Time, payload TaskPayload) LogEntry {
	return LogEntry{
		Type:    LogEntryQueued,
		Message: "Execution queued by scheduler.",
		At:      at,
		Data:    map[string]any{"cron_payload": payload},
	}
}

// StartEntry — запись о начале попытки.
func StartEntry(at time.Time, attempt int) LogEntry {
	return LogEntry{
		Type:    LogEntryStart,
		Message: "Job started by worker.",
		Attempt: attempt,
		At:      at,
	}
}

// SuccessEntry — запись об успешном завершении попытки.
func SuccessEntry(at time.Time, attempt int, summary string) LogEntry {
	return LogEntry{
		Type:    LogEntrySuccess,
		Message: summary,
		Attempt: attempt,
		At:      at,
	}
}

// FailureEntry — запись о неудачной попытке.
func FailureEntry(at time.Time, attempt int, errMsg string) LogEntry {
	return LogEntry{
		Type:    LogEntryFailure,
		Message: errMsg,
		Attempt: attempt,
		At:      at,
	}
}
