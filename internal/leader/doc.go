// Package leader реализует лидерство scheduler'а через PostgreSQL advisory lock.
//
// Лок привязан к одной долгоживущей сессии (отдельное соединение, не из пула
// запросов). Если процесс умирает, сессия закрывается и лок освобождается
// сервером: мёртвый scheduler не может удерживать лидерство.
//
// Использование:
//
//	lock := leader.NewAdvisoryLock(dsn, 12345, logger)
//	defer lock.Close(ctx)
//
//	h, err := lock.TryAcquire(ctx)
//	if err != nil || h == nil {
//	    return // лидер — кто-то другой (или ошибка)
//	}
//	defer h.Release(ctx)
package leader
