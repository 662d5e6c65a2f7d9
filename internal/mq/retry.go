package mq

import "time"

// RetryPolicy — политика повторов: экспоненциальная задержка
// Backoff, Backoff*2, Backoff*4, ... не более MaxAttempts попыток.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Delay возвращает задержку перед попыткой attempt+1 после неудачной attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// CanRetry сообщает, осталась ли ещё попытка после неудачной attempt.
func (p RetryPolicy) CanRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
