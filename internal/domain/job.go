package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobDefinition — именованная периодическая задача.
//
// Создаётся через API, для scheduler'а доступна только на чтение.
// Удаление job каскадно удаляет всю историю executions.
type JobDefinition struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Name — уникальное человекочитаемое имя ("nightly-report").
	Name string `json:"name"`

	// CronExpression — cron-выражение, интерпретируется в UTC.
	// Примеры:
	//   "0 2 * * *"     — каждый день в 02:00
	//   "*/5 * * * *"   — каждые 5 минут
	//   "30 * * * * *"  — шесть полей, первое: секунды
	CronExpression string `json:"cron_expression"`

	// TaskPayload — описание задачи, которую выполняет worker.
	TaskPayload TaskPayload `json:"task_payload"`

	// IsActive — если false, scheduler игнорирует job.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`
}

// NewWorkItem формирует work item для execution record этого job.
// Payload копируется, чтобы worker не читал job из БД.
func (j *JobDefinition) NewWorkItem(exec *ExecutionRecord) WorkItem {
	return WorkItem{
		ExecutionID:   exec.ID,
		JobID:         j.ID,
		JobName:       j.Name,
		ScheduledTime: exec.ScheduledTime,
		TaskPayload:   j.TaskPayload.Clone(),
	}
}
