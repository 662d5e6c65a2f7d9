// Package mq реализует рабочую очередь на RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, publisher confirms)
//   - topology.go   — exchange, рабочая очередь, retry-очереди с TTL, история
//   - retry.go      — политика повторов (экспоненциальная задержка)
//   - publisher.go  — публикация, Queue.Enqueue
//   - consumer.go   — потребление с конкурентностью, Outcome и маршрутизация
//
// Повторы сделаны без плагинов брокера: неудачное сообщение публикуется
// в очередь Q.retry.<n> с TTL, по истечении которого брокер возвращает
// его (dead-letter) в рабочую очередь. Номер попытки едет в заголовке x-attempt.
//
// Доставка at-least-once: оригинал подтверждается только после того,
// как сообщение переслано дальше.
package mq
