package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/cronqueue/internal/domain"
)

// Executor выполняет задачу одного вида.
//
// cfg — TaskPayload.Config. Ошибка означает неудачную попытку;
// ошибки, оборачивающие ErrInvalidTaskConfig, не повторяются.
type Executor interface {
	Execute(ctx context.Context, cfg json.RawMessage) (*ExecutionResult, error)
}

// ExecutionResult — результат успешного выполнения.
type ExecutionResult struct {
	// Summary — короткое описание для log_details.
	Summary string

	// Outputs — структурированные данные (попадают в Data записи журнала).
	Outputs map[string]any
}

// Registry — реестр executor'ов по виду задачи.
type Registry struct {
	executors map[domain.TaskType]Executor
}

// NewRegistry создаёт реестр с executor'ами по умолчанию.
//
// Регистрирует: API_CALL (HTTPExecutor с таймаутом timeout).
func NewRegistry(timeout time.Duration) *Registry {
	r := &Registry{executors: make(map[domain.TaskType]Executor)}
	r.Register(domain.TaskTypeAPICall, &HTTPExecutor{DefaultTimeout: timeout})
	return r
}

// Register добавляет executor для вида задачи.
func (r *Registry) Register(taskType domain.TaskType, executor Executor) {
	r.executors[taskType] = executor
}

// Get возвращает executor для вида задачи.
func (r *Registry) Get(taskType domain.TaskType) (Executor, error) {
	executor, ok := r.executors[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	return executor, nil
}
