package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/cronqueue/internal/domain"
	"github.com/shaiso/cronqueue/internal/repo"
	"github.com/shaiso/cronqueue/internal/telemetry"
)

type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.JobDefinition
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]domain.JobDefinition)}
}

func (m *memJobs) Create(_ context.Context, job *domain.JobDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("%w: job %q", repo.ErrAlreadyExists, job.Name)
		}
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*domain.JobDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &j, nil
}

func (m *memJobs) List(_ context.Context) ([]domain.JobDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.JobDefinition, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *memJobs) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *memJobs) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return repo.ErrNotFound
	}
	j.IsActive = active
	m.jobs[id] = j
	return nil
}

type memExecutions struct {
	records   []domain.ExecutionRecord
	lastLimit int
}

func (m *memExecutions) ListByJob(_ context.Context, jobID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	m.lastLimit = limit
	var out []domain.ExecutionRecord
	for _, r := range m.records {
		if r.JobID == jobID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memJobs, *memExecutions) {
	t.Helper()

	jobs := newMemJobs()
	execs := &memExecutions{}
	h := NewHandler(Config{
		Jobs:       jobs,
		Executions: execs,
		QueueName:  "cron-tasks",
		Logger:     telemetry.DiscardLogger(),
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, jobs, execs
}

const nightlyReport = `{
	"name": "nightly-report",
	"cron_expression": "0 2 * * *",
	"task_payload": {"type": "API_CALL", "config": {"url": "https://x/y", "method": "GET"}}
}`

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCreateJob(t *testing.T) {
	srv, jobs, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", nightlyReport)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "nightly-report", data["name"])
	assert.Equal(t, "0 2 * * *", data["cron_expression"])
	assert.Equal(t, true, data["is_active"])

	id, err := uuid.Parse(data["id"].(string))
	require.NoError(t, err)
	stored, err := jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeAPICall, stored.TaskPayload.Type)
	assert.JSONEq(t, `{"url":"https://x/y","method":"GET"}`, string(stored.TaskPayload.Config))
}

func TestCreateJob_Inactive(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := `{"name":"paused","cron_expression":"*/5 * * * *","is_active":false,
		"task_payload":{"type":"API_CALL","config":{"url":"https://x","method":"POST"}}}`
	resp, decoded := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, decoded["data"].(map[string]any)["is_active"])
}

func TestCreateJob_DuplicateName(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", nightlyReport)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", nightlyReport)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(ErrCodeConflict), errorCode(body))
}

func TestCreateJob_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "invalid cron",
			body:  `{"name":"a","cron_expression":"not-a-cron","task_payload":{"type":"API_CALL","config":{"url":"https://x","method":"GET"}}}`,
			field: "cron_expression",
		},
		{
			name:  "every descriptor",
			body:  `{"name":"a","cron_expression":"@every 5m","task_payload":{"type":"API_CALL","config":{"url":"https://x","method":"GET"}}}`,
			field: "cron_expression",
		},
		{
			name:  "missing name",
			body:  `{"cron_expression":"0 2 * * *","task_payload":{"type":"API_CALL","config":{"url":"https://x","method":"GET"}}}`,
			field: "name",
		},
		{
			name:  "missing payload",
			body:  `{"name":"a","cron_expression":"0 2 * * *"}`,
			field: "task_payload",
		},
		{
			name:  "payload without url",
			body:  `{"name":"a","cron_expression":"0 2 * * *","task_payload":{"type":"API_CALL","config":{"method":"GET"}}}`,
			field: "task_payload",
		},
		{
			name:  "unknown task type",
			body:  `{"name":"a","cron_expression":"0 2 * * *","task_payload":{"type":"SHELL","config":{}}}`,
			field: "task_payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t)

			resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, string(ErrCodeValidation), errorCode(body))

			fields := body["error"].(map[string]any)["fields"].(map[string]any)
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestCreateJob_MalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(ErrCodeBadRequest), errorCode(body))
}

func seedJob(t *testing.T, jobs *memJobs, name string) domain.JobDefinition {
	t.Helper()
	job := domain.JobDefinition{
		ID:             uuid.New(),
		Name:           name,
		CronExpression: "0 2 * * *",
		TaskPayload:    domain.TaskPayload{Type: domain.TaskTypeAPICall, Config: json.RawMessage(`{"url":"https://x","method":"GET"}`)},
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, jobs.Create(context.Background(), &job))
	return job
}

func TestListJobs(t *testing.T) {
	srv, jobs, _ := newTestServer(t)
	seedJob(t, jobs, "a")
	b := seedJob(t, jobs, "b")

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 2)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/jobs?job_id="+b.ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].(map[string]any)["name"])
}

func TestListJobs_FilterNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs?job_id="+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(ErrCodeNotFound), errorCode(body))

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/jobs?job_id=nope", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteJob(t *testing.T) {
	srv, jobs, _ := newTestServer(t)
	job := seedJob(t, jobs, "a")

	resp, _ := do(t, http.MethodDelete, srv.URL+"/api/v1/jobs/"+job.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/jobs/"+job.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetJobActive(t *testing.T) {
	srv, jobs, _ := newTestServer(t)
	job := seedJob(t, jobs, "a")

	resp, body := do(t, http.MethodPut, srv.URL+"/api/v1/jobs/"+job.ID.String()+"/active", `{"is_active":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["data"].(map[string]any)["is_active"])

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v1/jobs/"+job.ID.String()+"/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v1/jobs/"+uuid.NewString()+"/active", `{"is_active":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobExecutions(t *testing.T) {
	srv, jobs, execs := newTestServer(t)
	job := seedJob(t, jobs, "a")

	start := time.Date(2026, 1, 1, 2, 0, 1, 0, time.UTC)
	end := start.Add(250 * time.Millisecond)
	execs.records = []domain.ExecutionRecord{
		{ID: uuid.New(), JobID: job.ID, ScheduledTime: start, Status: domain.ExecutionStatusSuccess, StartTime: &start, EndTime: &end},
		{ID: uuid.New(), JobID: uuid.New(), Status: domain.ExecutionStatusQueued},
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID.String()+"/executions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, repo.DefaultExecutionsLimit, execs.lastLimit)

	list := body["data"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "SUCCESS", first["status"])
	assert.EqualValues(t, 250, first["duration_ms"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID.String()+"/executions?limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, execs.lastLimit)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID.String()+"/executions?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+uuid.NewString()+"/executions", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInfo(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cron-tasks", body["data"].(map[string]any)["queue"])
}
