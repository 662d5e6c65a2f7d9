package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithExecutionID(WithJobID(NewLogger(&buf, "INFO", "json"), "job-1"), "exec-1")

	logger.Debug("hidden")
	logger.Info("execution started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "execution started", line["msg"])
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "exec-1", line["execution_id"])
}

func TestFromContext(t *testing.T) {
	logger := DiscardLogger()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestOpsMux_Healthy(t *testing.T) {
	mux := NewOpsMux(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})

	code, body := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ok")

	code, _ = get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestOpsMux_Unhealthy(t *testing.T) {
	mux := NewOpsMux(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"rabbitmq": func(context.Context) error { return errors.New("not connected") },
	})

	code, body := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "rabbitmq: not connected")
	assert.NotContains(t, body, "postgres")
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), DiscardLogger())
	}()

	cancel()
	assert.NoError(t, <-done)
}
