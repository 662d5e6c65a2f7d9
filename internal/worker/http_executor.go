package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shaiso/cronqueue/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// bodyExcerptLen — сколько символов тела ответа попадает в ошибку.
	bodyExcerptLen = 100

	// maxResponseBody — предел чтения тела ответа.
	maxResponseBody = 1 << 20
)

// HTTPExecutor — executor для задач API_CALL.
//
// Config (domain.APICallConfig):
//   - url (string): адрес запроса (обязательно)
//   - method (string): HTTP-метод (обязательно)
//   - headers (map[string]string): HTTP-заголовки
//   - params (map[string]any): query-параметры
//   - data / body (any): тело запроса, сериализуется в JSON
//   - timeout_sec (number): таймаут запроса. Default: DefaultTimeout
//
// Ответ с кодом вне [200, 300) — ошибка *StatusError.
type HTTPExecutor struct {
	// DefaultTimeout — таймаут, если в config нет timeout_sec (default: 30s).
	DefaultTimeout time.Duration

	// Client — HTTP-клиент (default: новый http.Client).
	Client *http.Client
}

// Execute выполняет HTTP-запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, raw json.RawMessage) (*ExecutionResult, error) {
	var cfg domain.APICallConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTaskConfig, err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidTaskConfig)
	}
	if cfg.Method == "" {
		return nil, fmt.Errorf("%w: method is required", ErrInvalidTaskConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout(cfg))
	defer cancel()

	reqURL, err := buildURL(cfg.URL, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTaskConfig, err)
	}

	// Подготавливаем body
	var bodyReader io.Reader
	if body := cfg.RequestBody(); body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrInvalidTaskConfig, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cfg.Method), reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInvalidTaskConfig, err)
	}

	for key, val := range cfg.Headers {
		req.Header.Set(key, val)
	}
	// Content-Type по умолчанию для запросов с body
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: %v", ErrHTTPRequest, ErrExecutionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), bodyExcerptLen),
		}
	}

	return &ExecutionResult{
		Summary: fmt.Sprintf("API call succeeded. Status: %d", resp.StatusCode),
		Outputs: map[string]any{
			"status_code": resp.StatusCode,
			"body":        truncate(string(respBody), bodyExcerptLen),
		},
	}, nil
}

func (e *HTTPExecutor) timeout(cfg domain.APICallConfig) time.Duration {
	if cfg.TimeoutSec > 0 {
		return time.Duration(cfg.TimeoutSec * float64(time.Second))
	}
	if e.DefaultTimeout > 0 {
		return e.DefaultTimeout
	}
	return defaultHTTPTimeout
}

func (e *HTTPExecutor) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return &http.Client{}
}

// buildURL добавляет params к query-строке URL.
func buildURL(rawURL string, params map[string]any) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", rawURL)
	}
	if len(params) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	for key, val := range params {
		q.Set(key, fmt.Sprint(val))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// truncate обрезает строку до maxLen байт, не разрезая UTF-8 символ.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
