package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected — соединение с брокером сейчас отсутствует.
var ErrNotConnected = errors.New("rabbitmq: not connected")

// ErrPublishNacked — брокер не подтвердил публикацию.
var ErrPublishNacked = errors.New("rabbitmq: publish not confirmed")

// Connection — AMQP соединение с автоматическим reconnect.
//
// Держит два канала: для потребления и объявлений (Channel, WithChannel)
// и для публикаций в confirm mode (Publish). Публикация считается
// выполненной только после подтверждения брокером, на этом держится
// пересылка в retry и историю до ack исходного сообщения.
//
// Разрыв соединения или закрытие любого из каналов приводит к полному
// переподключению; после него выполняются хуки OnReconnect и закрывается
// канал, выданный Reconnected.
type Connection struct {
	url    string
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	publishCh *amqp.Channel
	hooks     []func(ch *amqp.Channel) error
	reconnect chan struct{}

	// pubMu сериализует публикации: подтверждения приходят по порядку канала
	pubMu sync.Mutex

	closed   bool
	closedCh chan struct{}
}

// NewConnection создаёт новое соединение с RabbitMQ.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:       url,
		logger:    logger,
		closedCh:  make(chan struct{}),
		reconnect: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watchConnection()

	return c, nil
}

// Dial подключается к RabbitMQ, повторяя попытки с экспоненциальной
// задержкой, пока не истечёт ctx. Нужен при одновременном старте с брокером.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	delay := time.Second
	for {
		conn, err := NewConnection(url, logger)
		if err == nil {
			return conn, nil
		}

		logger.Warn("rabbitmq not available, retrying", "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}

// connect устанавливает соединение и открывает оба канала.
func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open publish channel: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.publishCh = pubCh
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watchConnection ждёт разрыва соединения или каналов и переподключается.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn, ch, pubCh := c.conn, c.channel, c.publishCh
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		pubClosed := pubCh.NotifyClose(make(chan *amqp.Error, 1))

		var cause *amqp.Error
		select {
		case <-c.closedCh:
			return
		case cause = <-connClosed:
		case cause = <-chClosed:
		case cause = <-pubClosed:
		}

		if cause != nil {
			c.logger.Warn("rabbitmq connection lost", "error", cause)
		}
		// канал мог закрыться при живом соединении
		if !conn.IsClosed() {
			_ = conn.Close()
		}

		if !c.reconnectLoop() {
			return
		}
	}
}

// reconnectLoop переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыто через Close.
func (c *Connection) reconnectLoop() bool {
	delay := time.Second

	for {
		c.logger.Info("attempting to reconnect", "delay", delay)
		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			delay = min(delay*2, 30*time.Second)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = c.conn.Close()
			return false
		}
		hooks := append([]func(*amqp.Channel) error(nil), c.hooks...)
		ch := c.channel
		c.mu.Unlock()

		for _, hook := range hooks {
			if err := hook(ch); err != nil {
				c.logger.Error("reconnect hook failed", "error", err)
			}
		}

		c.logger.Info("reconnected to RabbitMQ")

		c.mu.Lock()
		close(c.reconnect)
		c.reconnect = make(chan struct{})
		c.mu.Unlock()
		return true
	}
}

// OnReconnect регистрирует функцию, выполняемую после каждого переподключения
// (например, повторное объявление топологии).
func (c *Connection) OnReconnect(fn func(ch *amqp.Channel) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Reconnected возвращает канал, который закроется при следующем
// успешном переподключении. Получать его нужно до операции, неудачу
// которой предполагается переждать.
func (c *Connection) Reconnected() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnect
}

// Channel возвращает текущий канал потребления.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// WithChannel выполняет функцию с текущим каналом потребления.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	return fn(ch)
}

// Publish публикует сообщение и ждёт подтверждения брокера.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, pub amqp.Publishing) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.RLock()
	ch := c.publishCh
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, pub)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: wait confirm: %w", exchange, routingKey, err)
	}
	if !acked {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, ErrPublishNacked)
	}
	return nil
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.publishCh != nil && !c.publishCh.IsClosed() {
		if err := c.publishCh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publish channel: %w", err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}
