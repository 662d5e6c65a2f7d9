package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/cronqueue/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeWorkItem MessageType = "work.item"
)

// Заголовки сообщений.
const (
	HeaderAttempt = "x-attempt" // номер попытки доставки, с 1
	HeaderOutcome = "x-outcome" // исход последней попытки (для истории)
	HeaderError   = "x-error"   // текст ошибки последней попытки
	HeaderSummary = "x-summary" // итог успешной попытки
)

// Message — сообщение в очереди.
type Message struct {
	// ID — уникальный идентификатор сообщения (ItemId).
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg *Message, headers amqp.Table) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.PublishRaw(ctx, exchange, routingKey, amqp.Publishing{
		MessageId: msg.ID,
		Timestamp: msg.Timestamp,
		Type:      string(msg.Type),
		Headers:   headers,
		Body:      body,
	})
	if err != nil {
		return err
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishRaw публикует готовое тело сообщения (используется consumer'ом
// для пересылки в retry и историю без повторной сериализации).
// Возвращает nil только после подтверждения брокером.
func (p *Publisher) PublishRaw(ctx context.Context, exchange, routingKey string, pub amqp.Publishing) error {
	pub.ContentType = "application/json"
	pub.DeliveryMode = amqp.Persistent // сообщение переживёт рестарт RabbitMQ

	return p.conn.Publish(ctx, exchange, routingKey, pub)
}

// Queue — сторона постановки в рабочую очередь.
type Queue struct {
	pub *Publisher
	cfg QueueConfig
}

// NewQueue создаёт Queue поверх соединения.
func NewQueue(conn *Connection, cfg QueueConfig, logger *slog.Logger) *Queue {
	return &Queue{
		pub: NewPublisher(conn, logger),
		cfg: cfg.WithDefaults(),
	}
}

// Enqueue ставит work item в очередь и возвращает ID сообщения.
func (q *Queue) Enqueue(ctx context.Context, item domain.WorkItem) (string, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeWorkItem,
		Payload:   item,
		Timestamp: time.Now().UTC(),
	}

	headers := amqp.Table{HeaderAttempt: int32(1)}
	if err := q.pub.Publish(ctx, q.cfg.Exchange(), RoutingKeyWork, msg, headers); err != nil {
		return "", err
	}
	return msg.ID, nil
}
