// Package worker выполняет work items из рабочей очереди.
//
// # Обзор
//
// Worker — stateless компонент, который получает work items из RabbitMQ,
// выполняет описанную в них задачу и фиксирует результат в журнале
// executions. Workers масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди, внутри процесса items обрабатываются
// параллельно (Concurrency).
//
//	w := worker.New(worker.Config{
//	    Ledger:      executionRepo,
//	    Conn:        mqConn,
//	    Queue:       mq.QueueConfig{Name: "cron-tasks"},
//	    Concurrency: 5,
//	    Logger:      logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка item
//
//  1. RUNNING + запись start в log_details (до начала выполнения)
//  2. Выполнение executor'ом по виду задачи
//  3. SUCCESS + success (summary) или FAILED + failure (текст ошибки)
//  4. mq.Outcome: Ack, Retry или Drop
//
// При повторе запись снова проходит RUNNING → SUCCESS/FAILED: статус и
// время отражают последнюю попытку, log_details хранит все.
//
// # Executor
//
//	type Executor interface {
//	    Execute(ctx context.Context, cfg json.RawMessage) (*ExecutionResult, error)
//	}
//
// Реализации:
//   - HTTPExecutor — API_CALL (method, url, headers, params, body, timeout)
//
// # Ошибки
//
// ErrUnknownTaskType и ErrInvalidTaskConfig не повторяются (Drop):
// повторная попытка даст тот же результат. Остальные ошибки, включая
// *StatusError (код вне [200, 300)), повторяются по политике очереди.
package worker
