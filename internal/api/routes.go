package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	mux.Handle("GET /{$}", chain(http.HandlerFunc(h.Info)))

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("POST /api/v1/jobs", chain(http.HandlerFunc(h.CreateJob)))
	mux.Handle("DELETE /api/v1/jobs/{id}", chain(http.HandlerFunc(h.DeleteJob)))
	mux.Handle("PUT /api/v1/jobs/{id}/active", chain(http.HandlerFunc(h.SetJobActive)))

	// Executions
	mux.Handle("GET /api/v1/jobs/{id}/executions", chain(http.HandlerFunc(h.ListJobExecutions)))
}
