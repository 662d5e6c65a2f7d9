package domain

// ExecutionStatus — статус выполнения execution record.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCESS
//	                 ↘ FAILED (при retry → снова RUNNING)
type ExecutionStatus string

const (
	// ExecutionStatusQueued — запись создана scheduler'ом, work item в очереди.
	ExecutionStatusQueued ExecutionStatus = "QUEUED"

	// ExecutionStatusRunning — worker начал выполнение.
	ExecutionStatusRunning ExecutionStatus = "RUNNING"

	// ExecutionStatusSuccess — последняя попытка завершилась успешно.
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"

	// ExecutionStatusFailed — последняя попытка завершилась ошибкой.
	ExecutionStatusFailed ExecutionStatus = "FAILED"
)

// IsTerminal возвращает true для SUCCESS и FAILED.
//
// FAILED терминален только с точки зрения одной попытки:
// очередь может доставить item повторно, и запись вернётся в RUNNING.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление ExecutionStatus.
func (s ExecutionStatus) String() string {
	return string(s)
}

// ParseExecutionStatus парсит строку в ExecutionStatus.
// Второй результат false, если статус неизвестен.
func ParseExecutionStatus(s string) (ExecutionStatus, bool) {
	switch s {
	case "QUEUED":
		return ExecutionStatusQueued, true
	case "RUNNING":
		return ExecutionStatusRunning, true
	case "SUCCESS":
		return ExecutionStatusSuccess, true
	case "FAILED":
		return ExecutionStatusFailed, true
	default:
		return "", false
	}
}
