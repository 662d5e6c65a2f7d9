package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// JobResponse — job из API.
type JobResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CronExpression string          `json:"cron_expression"`
	TaskPayload    json.RawMessage `json:"task_payload"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      string          `json:"created_at"`
}

// ExecutionResponse — execution record из API.
type ExecutionResponse struct {
	ID            string           `json:"id"`
	JobID         string           `json:"job_id"`
	ScheduledTime string           `json:"scheduled_time"`
	Status        string           `json:"status"`
	StartTime     string           `json:"start_time,omitempty"`
	EndTime       string           `json:"end_time,omitempty"`
	DurationMs    int64            `json:"duration_ms,omitempty"`
	LogDetails    []map[string]any `json:"log_details,omitempty"`
	CreatedAt     string           `json:"created_at"`
}

// --- Request types ---

// CreateJobRequest — создание job.
type CreateJobRequest struct {
	Name           string          `json:"name"`
	CronExpression string          `json:"cron_expression"`
	TaskPayload    json.RawMessage `json:"task_payload"`
	IsActive       *bool           `json:"is_active,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// APIError — ошибочный ответ API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для management API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Jobs ---

// ListJobs возвращает все jobs.
func (c *Client) ListJobs(ctx context.Context) ([]JobResponse, error) {
	var jobs []JobResponse
	err := c.list(ctx, "/api/v1/jobs", nil, &jobs)
	return jobs, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(ctx context.Context, id string) (*JobResponse, error) {
	var jobs []JobResponse
	if err := c.list(ctx, "/api/v1/jobs", url.Values{"job_id": {id}}, &jobs); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "job not found"}
	}
	return &jobs[0], nil
}

// CreateJob создаёт job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.post(ctx, "/api/v1/jobs", req, &job)
	return &job, err
}

// DeleteJob удаляет job вместе с историей executions.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/jobs/"+id)
}

// SetJobActive включает или выключает job.
func (c *Client) SetJobActive(ctx context.Context, id string, active bool) (*JobResponse, error) {
	var job JobResponse
	body := map[string]bool{"is_active": active}
	err := c.put(ctx, "/api/v1/jobs/"+id+"/active", body, &job)
	return &job, err
}

// ListExecutions возвращает последние executions job. limit <= 0 — лимит сервера.
func (c *Client) ListExecutions(ctx context.Context, jobID string, limit int) ([]ExecutionResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var execs []ExecutionResponse
	err := c.list(ctx, "/api/v1/jobs/"+jobID+"/executions", params, &execs)
	return execs, err
}

// --- HTTP helpers ---

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return apiErr
	}

	apiErr.Code = er.Error.Code
	apiErr.Message = er.Error.Message
	return apiErr
}
