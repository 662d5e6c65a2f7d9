package worker

import (
	"errors"
	"fmt"
)

// Ошибки воркера.
var (
	// ErrUnknownTaskType — нет executor'а для данного вида задачи.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidTaskConfig — конфигурация задачи не разбирается или неполна.
	ErrInvalidTaskConfig = errors.New("invalid task config")

	// ErrExecutionTimeout — выполнение задачи превысило таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrStopped — worker остановлен или его consumer завершился с ошибкой.
	ErrStopped = errors.New("worker stopped")
)

// StatusError — ответ с кодом вне [200, 300).
type StatusError struct {
	StatusCode int
	Body       string // начало тела ответа
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API call failed. Status: %d, Data: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrHTTPRequest }

// isPermanent сообщает, что повтор не изменит результат.
func isPermanent(err error) bool {
	return errors.Is(err, ErrUnknownTaskType) || errors.Is(err, ErrInvalidTaskConfig)
}
