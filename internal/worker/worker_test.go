package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shaiso/cronqueue/internal/domain"
)

func apiCall(t *testing.T, cfg map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return raw
}

// --- HTTPExecutor Tests ---

func TestHTTPExecutor_GET_Success(t *testing.T) {
	var receivedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("X-Custom") != "test-value" {
			t.Errorf("expected X-Custom header, got %q", r.Header.Get("X-Custom"))
		}
		receivedQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	result, err := executor.Execute(context.Background(), apiCall(t, map[string]any{
		"method":  "GET",
		"url":     server.URL,
		"headers": map[string]string{"X-Custom": "test-value"},
		"params":  map[string]any{"page": 2, "verbose": true},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Summary != "API call succeeded. Status: 200" {
		t.Errorf("unexpected summary %q", result.Summary)
	}
	if result.Outputs["status_code"] != http.StatusOK {
		t.Errorf("expected status 200, got %v", result.Outputs["status_code"])
	}
	if receivedQuery != "page=2&verbose=true" {
		t.Errorf("expected query page=2&verbose=true, got %q", receivedQuery)
	}
}

func TestHTTPExecutor_POST_WithData(t *testing.T) {
	var receivedBody map[string]any
	var receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		receivedContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	result, err := executor.Execute(context.Background(), apiCall(t, map[string]any{
		"method": "post",
		"url":    server.URL,
		"data":   map[string]any{"name": "test"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Проверяем что body получен сервером
	if receivedBody["name"] != "test" {
		t.Errorf("server should receive body, got %v", receivedBody)
	}
	if receivedContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", receivedContentType)
	}
	if result.Outputs["status_code"] != http.StatusCreated {
		t.Errorf("expected status 201, got %v", result.Outputs["status_code"])
	}
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	long := strings.Repeat("x", 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	_, err := executor.Execute(context.Background(), apiCall(t, map[string]any{
		"method": "GET",
		"url":    server.URL,
	}))
	if err == nil {
		t.Fatal("expected error for 500")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", statusErr.StatusCode)
	}
	if len(statusErr.Body) != bodyExcerptLen+len("...") {
		t.Errorf("body excerpt should be truncated, got %d chars", len(statusErr.Body))
	}
	if !errors.Is(err, ErrHTTPRequest) {
		t.Error("status error should wrap ErrHTTPRequest")
	}
	if isPermanent(err) {
		t.Error("status error should be retriable")
	}
}

func TestHTTPExecutor_RedirectStatusIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	_, err := (&HTTPExecutor{}).Execute(context.Background(), apiCall(t, map[string]any{
		"method": "GET",
		"url":    server.URL,
	}))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotModified {
		t.Fatalf("expected StatusError 304, got %v", err)
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := &HTTPExecutor{}
	_, err := executor.Execute(context.Background(), apiCall(t, map[string]any{
		"method":      "GET",
		"url":         server.URL,
		"timeout_sec": 0.1, // 100ms — сервер не успеет ответить
	}))
	if err == nil {
		t.Fatal("expected error for timeout")
	}
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Errorf("expected ErrExecutionTimeout, got %v", err)
	}
}

func TestHTTPExecutor_DefaultTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := &HTTPExecutor{DefaultTimeout: 100 * time.Millisecond}
	_, err := executor.Execute(context.Background(), apiCall(t, map[string]any{
		"method": "GET",
		"url":    server.URL,
	}))
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Errorf("expected ErrExecutionTimeout, got %v", err)
	}
}

func TestHTTPExecutor_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  json.RawMessage
	}{
		{"missing url", json.RawMessage(`{"method":"GET"}`)},
		{"missing method", json.RawMessage(`{"url":"https://x/y"}`)},
		{"relative url", json.RawMessage(`{"method":"GET","url":"/y"}`)},
		{"not an object", json.RawMessage(`"GET"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&HTTPExecutor{}).Execute(context.Background(), tt.cfg)
			if !errors.Is(err, ErrInvalidTaskConfig) {
				t.Errorf("expected ErrInvalidTaskConfig, got %v", err)
			}
		})
	}
}

// --- Registry Tests ---

func TestNewRegistry_DefaultExecutors(t *testing.T) {
	r := NewRegistry(time.Second)

	executor, err := r.Get(domain.TaskTypeAPICall)
	if err != nil {
		t.Fatalf("expected executor for API_CALL, got error: %v", err)
	}
	httpExec, ok := executor.(*HTTPExecutor)
	if !ok {
		t.Fatalf("expected *HTTPExecutor, got %T", executor)
	}
	if httpExec.DefaultTimeout != time.Second {
		t.Errorf("expected default timeout 1s, got %v", httpExec.DefaultTimeout)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry(time.Second)

	_, err := r.Get("INTERNAL_SCRIPT")
	if !errors.Is(err, ErrUnknownTaskType) {
		t.Errorf("expected ErrUnknownTaskType, got %v", err)
	}
	if !isPermanent(err) {
		t.Error("unknown task type should be permanent")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("CUSTOM", &HTTPExecutor{})

	executor, err := r.Get("CUSTOM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executor == nil {
		t.Error("custom executor should be registered")
	}
}

// --- Worker Tests ---

func TestNew_DefaultConfig(t *testing.T) {
	w := New(Config{})

	if w.concurrency != defaultConcurrency {
		t.Errorf("expected default concurrency %d, got %d", defaultConcurrency, w.concurrency)
	}
	if w.registry == nil {
		t.Error("registry should be initialized")
	}
	if w.limiter != nil {
		t.Error("rate limiter should be disabled by default")
	}
	if w.queue.Name != "cron-tasks" || w.queue.MaxAttempts != 3 {
		t.Errorf("unexpected queue defaults: %+v", w.queue)
	}
}

func TestNew_CustomConfig(t *testing.T) {
	w := New(Config{
		Concurrency: 10,
		RateLimit:   2.5,
	})

	if w.concurrency != 10 {
		t.Errorf("expected concurrency 10, got %d", w.concurrency)
	}
	if w.limiter == nil {
		t.Fatal("rate limiter should be configured")
	}
	if w.limiter.Burst() != 2 {
		t.Errorf("expected burst 2, got %d", w.limiter.Burst())
	}
}

func TestWorker_IsStopped(t *testing.T) {
	w := New(Config{})

	if w.IsStopped() {
		t.Error("should not be stopped initially")
	}

	w.Stop()

	if !w.IsStopped() {
		t.Error("should be stopped")
	}
}

func TestWorker_Check(t *testing.T) {
	w := New(Config{})

	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("running worker should be healthy, got %v", err)
	}

	w.Stop()

	if err := w.Check(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"short", "ok", 10, "ok"},
		{"ascii", "abcdef", 3, "abc..."},
		{"cyrillic boundary", "привет", 4, "пр..."},
		{"cyrillic mid rune", "привет", 5, "пр..."},
		{"emoji", "a😀b", 3, "a..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
		})
	}
}
