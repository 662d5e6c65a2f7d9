package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkItem — сообщение в очереди задач.
//
// Создаётся scheduler'ом после успешной вставки execution record.
// Несёт копию payload, поэтому worker может начать выполнение
// без обращения к таблице jobs. Временем жизни item управляет очередь.
type WorkItem struct {
	// ExecutionID — execution record, к которому относится item.
	ExecutionID uuid.UUID `json:"execution_id"`

	// JobID — job, породивший срабатывание.
	JobID uuid.UUID `json:"job_id"`

	// JobName — имя job (для логов).
	JobName string `json:"job_name"`

	// ScheduledTime — момент срабатывания.
	ScheduledTime time.Time `json:"scheduled_time"`

	// TaskPayload — копия payload job на момент постановки в очередь.
	TaskPayload TaskPayload `json:"task_payload"`
}
