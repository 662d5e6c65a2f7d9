package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// OutcomeKind — решение обработчика о судьбе сообщения.
type OutcomeKind int

const (
	// OutcomeAck — обработано успешно.
	OutcomeAck OutcomeKind = iota
	// OutcomeRetry — попытка неудачна, повторить по политике.
	OutcomeRetry
	// OutcomeDrop — неудача, повтор бессмыслен.
	OutcomeDrop
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomeDrop:
		return "drop"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome — результат обработки сообщения.
type Outcome struct {
	Kind    OutcomeKind
	Summary string // для Ack
	Err     error  // для Retry и Drop
}

// Ack — успешный исход.
func Ack(summary string) Outcome { return Outcome{Kind: OutcomeAck, Summary: summary} }

// Retry — неудача, которую стоит повторить.
func Retry(err error) Outcome { return Outcome{Kind: OutcomeRetry, Err: err} }

// Drop — неудача без повтора.
func Drop(err error) Outcome { return Outcome{Kind: OutcomeDrop, Err: err} }

// Handler обрабатывает одно сообщение и возвращает решение о нём.
type Handler func(ctx context.Context, d *Delivery) Outcome

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Attempt — номер попытки доставки, с 1.
	Attempt int

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Hop — куда отправляется сообщение после обработки.
type Hop struct {
	RoutingKey string
	Attempt    int // значение x-attempt для пересылаемого сообщения
}

// Route решает, куда пересылается сообщение после попытки attempt.
//
//	Ack                   → completed
//	Retry, попытки есть   → retry.<attempt>, attempt+1
//	Retry, исчерпано      → failed
//	Drop                  → failed
func Route(policy RetryPolicy, out Outcome, attempt int) Hop {
	switch out.Kind {
	case OutcomeAck:
		return Hop{RoutingKey: RoutingKeyCompleted, Attempt: attempt}
	case OutcomeRetry:
		if policy.CanRetry(attempt) {
			return Hop{RoutingKey: retryRoutingKey(attempt), Attempt: attempt + 1}
		}
	}
	return Hop{RoutingKey: RoutingKeyFailed, Attempt: attempt}
}

// Consumer потребляет рабочую очередь с заданной конкурентностью.
//
// Сообщение подтверждается (ack) только после пересылки в retry или
// историю. Если пересылка не удалась, сообщение возвращается в очередь
// (nack с requeue): доставка at-least-once.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	cfg         QueueConfig
	policy      RetryPolicy
	handler     Handler
	concurrency int
	tag         string

	// forward пересылает тело сообщения в exchange очереди.
	forward func(ctx context.Context, routingKey string, pub amqp.Publishing) error

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — параметры очереди.
	Queue QueueConfig

	// Handler — обработчик сообщений.
	Handler Handler

	// Concurrency — число одновременно обрабатываемых сообщений (default: 5).
	Concurrency int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	qcfg := cfg.Queue.WithDefaults()

	c := &Consumer{
		conn:        conn,
		logger:      logger,
		cfg:         qcfg,
		policy:      qcfg.Policy(),
		handler:     cfg.Handler,
		concurrency: concurrency,
		tag:         "cronqueue-" + uuid.NewString()[:8],
	}
	pub := NewPublisher(conn, logger)
	c.forward = func(ctx context.Context, routingKey string, p amqp.Publishing) error {
		return pub.PublishRaw(ctx, qcfg.Exchange(), routingKey, p)
	}
	return c
}

// Start запускает потребление и блокируется до Stop или отмены ctx.
// Возвращает управление после завершения всех начатых обработок.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Берём до setupConsume, чтобы не пропустить переподключение
		reconnected := c.conn.Reconnected()

		// Получаем канал доставки
		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.cfg.Name, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				c.logger.Info("reconnected, restarting consumer", "queue", c.cfg.Name)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.cfg.Name, "concurrency", c.concurrency)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				c.cancelConsume()
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.cfg.Name)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	// prefetch = concurrency: брокер не отдаёт больше, чем мы обрабатываем
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.Name, // queue
		c.tag,      // consumer tag
		false,      // auto-ack (мы ack вручную)
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// cancelConsume просит брокер прекратить доставку. Неподтверждённые
// сообщения вернутся в очередь при закрытии канала.
func (c *Consumer) cancelConsume() {
	if ch := c.conn.Channel(); ch != nil {
		if err := ch.Cancel(c.tag, false); err != nil {
			c.logger.Debug("cancel consumer", "queue", c.cfg.Name, "error", err)
		}
	}
}

// processDeliveries раздаёт сообщения concurrency обработчикам.
//
// Обработчики получают контекст без отмены: начатая обработка
// доводится до конца даже при остановке consumer'а.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	handleCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(handleCtx, raw)
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("deliveries channel closed")
}

// handleDelivery обрабатывает одно сообщение и решает его судьбу.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	attempt := attemptFromHeaders(raw.Headers)

	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", c.cfg.Name,
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение — сразу в историю неудачных
		c.settle(ctx, raw, Drop(fmt.Errorf("malformed message: %w", err)), attempt)
		return
	}

	delivery := &Delivery{
		Message: msg,
		Attempt: attempt,
		Raw:     raw,
	}

	c.logger.Debug("received message",
		"queue", c.cfg.Name,
		"message_id", msg.ID,
		"type", msg.Type,
		"attempt", attempt,
	)

	out := c.handler(ctx, delivery)
	c.settle(ctx, raw, out, attempt)
}

// settle пересылает сообщение по Route и подтверждает оригинал.
func (c *Consumer) settle(ctx context.Context, raw amqp.Delivery, out Outcome, attempt int) {
	hop := Route(c.policy, out, attempt)

	headers := amqp.Table{
		HeaderAttempt: int32(hop.Attempt),
		HeaderOutcome: out.Kind.String(),
	}
	if out.Err != nil {
		headers[HeaderError] = out.Err.Error()
	}
	if out.Summary != "" {
		headers[HeaderSummary] = out.Summary
	}

	pub := amqp.Publishing{
		MessageId: raw.MessageId,
		Timestamp: raw.Timestamp,
		Type:      raw.Type,
		Headers:   headers,
		Body:      raw.Body,
	}

	if err := c.forward(ctx, hop.RoutingKey, pub); err != nil {
		c.logger.Error("failed to forward message, requeueing",
			"queue", c.cfg.Name,
			"message_id", raw.MessageId,
			"routing_key", hop.RoutingKey,
			"error", err,
		)
		if err := raw.Nack(false, true); err != nil {
			c.logger.Error("failed to nack message", "message_id", raw.MessageId, "error", err)
		}
		return
	}

	if err := raw.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "message_id", raw.MessageId, "error", err)
		return
	}

	switch {
	case out.Kind == OutcomeRetry && hop.RoutingKey != RoutingKeyFailed:
		c.logger.Warn("message scheduled for retry",
			"message_id", raw.MessageId,
			"attempt", attempt,
			"next_attempt", hop.Attempt,
			"delay", c.policy.Delay(attempt),
			"error", out.Err,
		)
	case hop.RoutingKey == RoutingKeyFailed:
		c.logger.Error("message failed permanently",
			"message_id", raw.MessageId,
			"attempt", attempt,
			"outcome", out.Kind.String(),
			"error", out.Err,
		)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload после json.Unmarshal в any — это map; перекодируем в T
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}

// attemptFromHeaders читает x-attempt; отсутствие заголовка — первая попытка.
func attemptFromHeaders(h amqp.Table) int {
	var n int64
	switch v := h[HeaderAttempt].(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case float64:
		n = int64(v)
	}
	if n < 1 {
		return 1
	}
	return int(n)
}
