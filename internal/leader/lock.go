package leader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
)

// session — то, что AdvisoryLock использует от *pgx.Conn.
type session interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
	IsClosed() bool
}

// AdvisoryLock — неблокирующий лок на pg_try_advisory_lock.
//
// Advisory lock в PostgreSQL реентерабелен в пределах сессии, поэтому
// AdvisoryLock дополнительно помнит, выдан ли Handle: пока он не освобождён,
// TryAcquire возвращает nil, не обращаясь к БД.
type AdvisoryLock struct {
	key    int64
	dial   func(ctx context.Context) (session, error)
	logger *slog.Logger

	mu   sync.Mutex
	conn session
	held bool
}

// NewAdvisoryLock создаёт лок с ключом key. Соединение открывается лениво
// при первом TryAcquire и переоткрывается после потери сессии.
func NewAdvisoryLock(dsn string, key int64, logger *slog.Logger) *AdvisoryLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryLock{
		key: key,
		dial: func(ctx context.Context) (session, error) {
			return pgx.Connect(ctx, dsn)
		},
		logger: logger.With("lock_key", key),
	}
}

// TryAcquire пытается взять лок, не дожидаясь его освобождения.
//
// Возвращает nil-handle без ошибки, если лок держит другой процесс
// или предыдущий Handle этого процесса ещё не освобождён.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		l.logger.Debug("advisory lock already held by this process")
		return nil, nil
	}

	if l.conn == nil || l.conn.IsClosed() {
		conn, err := l.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect lock session: %w", err)
		}
		l.conn = conn
	}

	var ok bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		l.closeLocked(ctx)
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		return nil, nil
	}

	l.held = true
	return NewHandle(l.release), nil
}

// release снимает лок. Если unlock не прошёл, сессия закрывается:
// сервер освобождает лок вместе с ней.
func (l *AdvisoryLock) release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false

	if l.conn == nil || l.conn.IsClosed() {
		// сессия потеряна, лок уже снят сервером
		return nil
	}

	var ok bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&ok); err != nil {
		l.closeLocked(context.WithoutCancel(ctx))
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !ok {
		l.logger.Warn("advisory lock was not held by session on release")
	}
	return nil
}

// Close закрывает сессию. Если лок был взят, он освобождается сервером.
func (l *AdvisoryLock) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close(ctx)
	l.conn = nil
	return err
}

func (l *AdvisoryLock) closeLocked(ctx context.Context) {
	if l.conn == nil {
		return
	}
	if err := l.conn.Close(ctx); err != nil {
		l.logger.Warn("failed to close lock session", "error", err)
	}
	l.conn = nil
}
