package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/cronqueue/internal/domain"
	"github.com/shaiso/cronqueue/internal/mq"
	"github.com/shaiso/cronqueue/internal/render"
	"github.com/shaiso/cronqueue/internal/repo"
	"github.com/shaiso/cronqueue/internal/telemetry"
)

// HandleItem — обработчик сообщений рабочей очереди.
func (w *Worker) HandleItem(ctx context.Context, d *mq.Delivery) mq.Outcome {
	item, err := mq.ParsePayload[domain.WorkItem](&d.Message)
	if err != nil {
		w.logger.Error("failed to parse work item", "message_id", d.Message.ID, "error", err)
		return w.count(mq.Drop(fmt.Errorf("parse work item: %w", err)))
	}
	return w.count(w.Process(ctx, item, d.Attempt))
}

// Process выполняет одну попытку work item.
//
//  1. RUNNING + запись start. Если запись не удалась, задача не выполняется.
//  2. Выполнение executor'ом по виду задачи.
//  3. SUCCESS + запись success или FAILED + запись failure.
//  4. Решение для очереди: Ack, Retry или Drop (неизвестный вид задачи,
//     невалидная конфигурация).
func (w *Worker) Process(ctx context.Context, item domain.WorkItem, attempt int) mq.Outcome {
	logger := telemetry.WithExecutionID(telemetry.WithJobID(w.logger, item.JobID.String()), item.ExecutionID.String()).
		With("job_name", item.JobName, "attempt", attempt)

	start := w.now().UTC()
	if err := w.ledger.MarkRunning(ctx, item.ExecutionID, start, domain.StartEntry(start, attempt)); err != nil {
		switch {
		case errors.Is(err, repo.ErrInvalidState):
			// повторная доставка уже выполненного item
			logger.Info("execution already succeeded, skipping", "reason", err)
			return mq.Ack("already succeeded")
		case errors.Is(err, repo.ErrNotFound):
			logger.Warn("execution record not found, dropping item")
			return mq.Drop(fmt.Errorf("execution %s: %w", item.ExecutionID, err))
		default:
			logger.Error("failed to mark execution running", "error", err)
			return mq.Retry(fmt.Errorf("mark running: %w", err))
		}
	}

	logger.Info("execution started", "task_type", item.TaskPayload.Type)

	result, execErr := w.execute(ctx, item, attempt)
	end := w.now().UTC()

	if execErr == nil {
		return w.succeed(ctx, logger, item, attempt, start, end, result)
	}
	return w.fail(ctx, logger, item, attempt, start, end, execErr)
}

// execute находит executor, подставляет данные срабатывания в config
// и выполняет задачу с учётом rate limit.
func (w *Worker) execute(ctx context.Context, item domain.WorkItem, attempt int) (*ExecutionResult, error) {
	payload := item.TaskPayload
	executor, err := w.registry.Get(payload.Type)
	if err != nil {
		return nil, err
	}

	cfg, err := render.Config(payload.Config, &render.Vars{
		JobID:         item.JobID.String(),
		JobName:       item.JobName,
		ExecutionID:   item.ExecutionID.String(),
		ScheduledTime: item.ScheduledTime.UTC(),
		Attempt:       attempt,
		Env:           w.env,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTaskConfig, err)
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	started := time.Now()
	result, err := executor.Execute(ctx, cfg)
	telemetry.WorkerTaskDuration.WithLabelValues(string(payload.Type)).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &ExecutionResult{Summary: "Task completed."}
	}
	return result, nil
}

func (w *Worker) succeed(ctx context.Context, logger *slog.Logger, item domain.WorkItem, attempt int, start, end time.Time, result *ExecutionResult) mq.Outcome {
	entry := domain.SuccessEntry(end, attempt, result.Summary)
	if len(result.Outputs) > 0 {
		entry.Data = result.Outputs
	}

	if err := w.ledger.MarkSucceeded(ctx, item.ExecutionID, end, entry); err != nil {
		logger.Error("failed to mark execution succeeded", "error", err)
		return mq.Retry(fmt.Errorf("mark succeeded: %w", err))
	}

	logger.Info("execution succeeded",
		"duration", end.Sub(start),
		"summary", result.Summary,
	)
	return mq.Ack(result.Summary)
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, item domain.WorkItem, attempt int, start, end time.Time, execErr error) mq.Outcome {
	entry := domain.FailureEntry(end, attempt, execErr.Error())
	if err := w.ledger.MarkFailed(ctx, item.ExecutionID, end, entry); err != nil {
		logger.Error("failed to mark execution failed", "error", err, "task_error", execErr)
		return mq.Retry(fmt.Errorf("mark failed: %w (task error: %v)", err, execErr))
	}

	if isPermanent(execErr) {
		logger.Error("execution failed permanently",
			"duration", end.Sub(start),
			"error", execErr,
		)
		return mq.Drop(execErr)
	}

	logger.Warn("execution failed",
		"duration", end.Sub(start),
		"error", execErr,
	)
	return mq.Retry(execErr)
}

// count учитывает исход в метриках.
func (w *Worker) count(out mq.Outcome) mq.Outcome {
	switch out.Kind {
	case mq.OutcomeAck:
		telemetry.WorkerItems.WithLabelValues(telemetry.OutcomeSuccess).Inc()
	case mq.OutcomeRetry:
		telemetry.WorkerItems.WithLabelValues(telemetry.OutcomeRetry).Inc()
	case mq.OutcomeDrop:
		telemetry.WorkerItems.WithLabelValues(telemetry.OutcomeDropped).Inc()
	}
	return out
}
