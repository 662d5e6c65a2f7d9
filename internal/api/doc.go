// Package api содержит HTTP API управления jobs.
//
// Структура:
//   - handler.go     — Handler с DI (хранилища jobs и executions, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, metrics, recovery)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects и валидация запросов
//   - job_handler.go — обработчики для /jobs и /jobs/{id}/executions
//
// Cron-выражение и task_payload проверяются при создании job,
// поэтому scheduler и worker получают только корректные определения.
package api
