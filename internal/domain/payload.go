package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TaskType — вид задачи. Закрытое множество: каждому виду соответствует
// свой executor в worker.Registry.
type TaskType string

const (
	// TaskTypeAPICall — исходящий HTTP-запрос.
	TaskTypeAPICall TaskType = "API_CALL"
)

// TaskPayload — описание задачи, хранимое в jobs.task_payload (JSONB).
//
//	{"type": "API_CALL", "config": {"url": "https://x/y", "method": "GET"}}
type TaskPayload struct {
	// Type — вид задачи.
	Type TaskType `json:"type"`

	// Config — конфигурация, интерпретируемая executor'ом данного вида.
	Config json.RawMessage `json:"config,omitempty"`
}

// Clone возвращает глубокую копию payload.
func (p TaskPayload) Clone() TaskPayload {
	out := TaskPayload{Type: p.Type}
	if p.Config != nil {
		out.Config = append(json.RawMessage(nil), p.Config...)
	}
	return out
}

// APICallConfig — конфигурация задачи API_CALL.
type APICallConfig struct {
	// URL — адрес запроса (обязательно).
	URL string `json:"url"`

	// Method — HTTP-метод (обязательно).
	Method string `json:"method"`

	// Headers — HTTP-заголовки.
	Headers map[string]string `json:"headers,omitempty"`

	// Params — query-параметры.
	Params map[string]any `json:"params,omitempty"`

	// Data — тело запроса, сериализуется в JSON.
	Data any `json:"data,omitempty"`

	// Body — синоним Data; используется, если Data не задан.
	Body any `json:"body,omitempty"`

	// TimeoutSec — таймаут запроса в секундах. 0 — таймаут worker'а по умолчанию.
	TimeoutSec float64 `json:"timeout_sec,omitempty"`
}

// RequestBody возвращает тело запроса (Data, иначе Body).
func (c *APICallConfig) RequestBody() any {
	if c.Data != nil {
		return c.Data
	}
	return c.Body
}

// ErrInvalidPayload — task_payload не соответствует схеме.
var ErrInvalidPayload = errors.New("invalid task payload")

//go:embed schema/task_payload.json
var taskPayloadSchemaJSON []byte

var (
	taskPayloadSchema     *jsonschema.Schema
	taskPayloadSchemaErr  error
	taskPayloadSchemaOnce sync.Once
)

func compiledTaskPayloadSchema() (*jsonschema.Schema, error) {
	taskPayloadSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("task_payload.json", bytes.NewReader(taskPayloadSchemaJSON)); err != nil {
			taskPayloadSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		taskPayloadSchema, taskPayloadSchemaErr = compiler.Compile("task_payload.json")
	})
	return taskPayloadSchema, taskPayloadSchemaErr
}

// ValidateTaskPayload проверяет сырой JSON payload по встроенной схеме.
//
// Ошибка валидации оборачивает ErrInvalidPayload и перечисляет
// нарушения в виде "location: message".
func ValidateTaskPayload(raw []byte) error {
	schema, err := compiledTaskPayloadSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(collectIssues(verr), "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// collectIssues разворачивает дерево ошибок схемы в плоский список листьев.
func collectIssues(err *jsonschema.ValidationError) []string {
	var issues []string
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if node == nil {
			return
		}
		if len(node.Causes) == 0 {
			location := node.InstanceLocation
			if location == "" {
				location = "/"
			}
			issues = append(issues, location+": "+node.Message)
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)
	return issues
}
