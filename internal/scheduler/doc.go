// Package scheduler реализует цикл планирования.
//
// Scheduler по таймеру берёт лок лидера, находит срабатывания активных jobs
// в окне догоняния [now-W, now], создаёт для каждого QUEUED execution record
// и ставит work item в очередь. Дубли между циклами отсекает unique
// constraint (job_id, scheduled_time) в журнале.
//
// Структура:
//   - scheduler.go — Scheduler (Run, RunCycle)
//   - cron.go      — разбор cron-выражений (UTC) и вычисление срабатываний
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Jobs:   jobRepo,
//	    Ledger: executionRepo,
//	    Queue:  queue,
//	    Lock:   leader.NewAdvisoryLock(dsn, 12345, logger),
//	    Logger: logger,
//	})
//
//	// блокируется до отмены ctx
//	sched.Run(ctx)
package scheduler
