package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys внутри exchange очереди.
const (
	RoutingKeyWork      = "work"
	RoutingKeyCompleted = "completed"
	RoutingKeyFailed    = "failed"
	routingKeyRetry     = "retry"
)

// Значения по умолчанию.
const (
	DefaultQueueName     = "cron-tasks"
	DefaultMaxAttempts   = 3
	DefaultBackoff       = 5 * time.Second
	DefaultKeepCompleted = 1000
	DefaultKeepFailed    = 5000
)

// QueueConfig — параметры рабочей очереди.
//
// Топология для очереди с именем Q:
//
//	Q (direct exchange)
//	├── Q            [work]       рабочая очередь, читает worker
//	├── Q.retry.1    [retry.1]    TTL = backoff,     dead-letter → Q/work
//	├── Q.retry.2    [retry.2]    TTL = backoff * 2, dead-letter → Q/work
//	├── Q.completed  [completed]  последние KeepCompleted успешных
//	└── Q.failed     [failed]     последние KeepFailed неудачных
type QueueConfig struct {
	// Name — имя очереди (и exchange).
	Name string

	// MaxAttempts — всего попыток доставки, включая первую.
	MaxAttempts int

	// Backoff — задержка перед второй попыткой, далее удваивается.
	Backoff time.Duration

	// KeepCompleted / KeepFailed — сколько последних items хранить в истории.
	KeepCompleted int
	KeepFailed    int
}

// WithDefaults подставляет значения по умолчанию для незаданных полей.
func (c QueueConfig) WithDefaults() QueueConfig {
	if c.Name == "" {
		c.Name = DefaultQueueName
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.KeepCompleted <= 0 {
		c.KeepCompleted = DefaultKeepCompleted
	}
	if c.KeepFailed <= 0 {
		c.KeepFailed = DefaultKeepFailed
	}
	return c
}

// Policy возвращает политику повторов очереди.
func (c QueueConfig) Policy() RetryPolicy {
	return RetryPolicy{MaxAttempts: c.MaxAttempts, Backoff: c.Backoff}
}

// Exchange возвращает имя exchange очереди.
func (c QueueConfig) Exchange() string { return c.Name }

// CompletedQueue возвращает имя очереди истории успешных items.
func (c QueueConfig) CompletedQueue() string { return c.Name + "." + RoutingKeyCompleted }

// FailedQueue возвращает имя очереди истории неудачных items.
func (c QueueConfig) FailedQueue() string { return c.Name + "." + RoutingKeyFailed }

// RetryQueue возвращает имя очереди ожидания после неудачной попытки n.
func (c QueueConfig) RetryQueue(n int) string {
	return fmt.Sprintf("%s.%s.%d", c.Name, routingKeyRetry, n)
}

// retryRoutingKey возвращает routing key очереди ожидания после попытки n.
func retryRoutingKey(n int) string {
	return fmt.Sprintf("%s.%d", routingKeyRetry, n)
}

// QueueDecl — объявление одной очереди и её привязки.
type QueueDecl struct {
	Name       string
	RoutingKey string
	Args       amqp.Table
}

// Declarations возвращает все очереди топологии.
func (c QueueConfig) Declarations() []QueueDecl {
	c = c.WithDefaults()
	policy := c.Policy()

	decls := []QueueDecl{
		{Name: c.Name, RoutingKey: RoutingKeyWork},
	}

	for n := 1; n < c.MaxAttempts; n++ {
		decls = append(decls, QueueDecl{
			Name:       c.RetryQueue(n),
			RoutingKey: retryRoutingKey(n),
			Args: amqp.Table{
				"x-message-ttl":             policy.Delay(n).Milliseconds(),
				"x-dead-letter-exchange":    c.Exchange(),
				"x-dead-letter-routing-key": RoutingKeyWork,
			},
		})
	}

	decls = append(decls,
		QueueDecl{
			Name:       c.CompletedQueue(),
			RoutingKey: RoutingKeyCompleted,
			Args: amqp.Table{
				"x-max-length": int32(c.KeepCompleted),
				"x-overflow":   "drop-head",
			},
		},
		QueueDecl{
			Name:       c.FailedQueue(),
			RoutingKey: RoutingKeyFailed,
			Args: amqp.Table{
				"x-max-length": int32(c.KeepFailed),
				"x-overflow":   "drop-head",
			},
		},
	)
	return decls
}

// SetupQueue объявляет exchange, очереди и привязки и повторяет
// объявление после каждого переподключения. Идемпотентна.
func SetupQueue(ctx context.Context, conn *Connection, cfg QueueConfig) error {
	cfg = cfg.WithDefaults()

	declare := func(ch *amqp.Channel) error {
		return declareTopology(ch, cfg)
	}
	if err := conn.WithChannel(ctx, declare); err != nil {
		return err
	}
	conn.OnReconnect(declare)
	return nil
}

func declareTopology(ch *amqp.Channel, cfg QueueConfig) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange(), // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange(), err)
	}

	for _, q := range cfg.Declarations() {
		_, err := ch.QueueDeclare(
			q.Name, // name
			true,   // durable
			false,  // delete when unused
			false,  // exclusive
			false,  // no-wait
			q.Args, // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}

		if err := ch.QueueBind(q.Name, q.RoutingKey, cfg.Exchange(), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", q.Name, cfg.Exchange(), err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(cfg QueueConfig) string {
	cfg = cfg.WithDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "%s (direct)\n", cfg.Exchange())
	for _, q := range cfg.Declarations() {
		fmt.Fprintf(&b, "  %s [routing: %s]", q.Name, q.RoutingKey)
		if ttl, ok := q.Args["x-message-ttl"]; ok {
			fmt.Fprintf(&b, " ttl=%vms -> %s", ttl, RoutingKeyWork)
		}
		if keep, ok := q.Args["x-max-length"]; ok {
			fmt.Fprintf(&b, " keep=%v", keep)
		}
		b.WriteString("\n")
	}
	return b.String()
}
