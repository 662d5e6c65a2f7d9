// Package render подставляет данные срабатывания в task_payload.
//
// Строковые значения config задачи могут содержать Go templates:
//
//	{"url": "https://x/report?day={{ date \"2006-01-02\" .ScheduledTime }}",
//	 "headers": {"Idempotency-Key": "{{ .ExecutionID }}"}}
//
// Рендеринг выполняется worker'ом перед каждой попыткой. Значения без
// "{{" не меняются.
package render
