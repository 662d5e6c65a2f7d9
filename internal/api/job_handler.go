package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/cronqueue/internal/repo"
)

// Info возвращает название сервиса и имя очереди.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	Success(w, InfoResponse{
		Service: "cronqueue",
		Queue:   h.queueName,
	})
}

// ListJobs возвращает все jobs или один job при заданном ?job_id=.
// GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid job id")
			return
		}

		job, err := h.jobs.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, err, "job not found") {
			return
		}

		List(w, []JobResponse{JobFromDomain(*job)}, 1)
		return
	}

	jobs, err := h.jobs.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = JobFromDomain(j)
	}

	List(w, result, len(result))
}

// CreateJob создаёт новый job.
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		ValidationFailed(w, err)
		return
	}

	job, err := req.ToDomain(time.Now())
	if err != nil {
		BadRequest(w, "invalid task_payload")
		return
	}

	if err := h.jobs.Create(r.Context(), job); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("job created",
		"job_id", job.ID,
		"name", job.Name,
		"cron", job.CronExpression,
	)

	Created(w, JobFromDomain(*job))
}

// DeleteJob удаляет job вместе с историей executions.
// DELETE /api/v1/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	if err := h.jobs.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	h.logger.Info("job deleted", "job_id", id)
	NoContent(w)
}

// SetJobActive включает или выключает job.
// PUT /api/v1/jobs/{id}/active
func (h *Handler) SetJobActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		ValidationFailed(w, err)
		return
	}

	if err := h.jobs.SetActive(r.Context(), id, *req.IsActive); HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	h.logger.Info("job toggled", "job_id", id, "is_active", job.IsActive)
	Success(w, JobFromDomain(*job))
}

// ListJobExecutions возвращает последние execution records job.
// GET /api/v1/jobs/{id}/executions?limit=
func (h *Handler) ListJobExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	limit := repo.DefaultExecutionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if _, err := h.jobs.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	execs, err := h.executions.ListByJob(r.Context(), id, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(execs))
	for i, e := range execs {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}
