package leader

import (
	"context"
	"sync"
)

// Handle — право владения локом на время одного цикла.
//
// Release можно вызывать многократно: освобождение выполняется один раз,
// последующие вызовы возвращают результат первого. Nil-handle допустим.
type Handle struct {
	once    sync.Once
	release func(ctx context.Context) error
	err     error
}

// NewHandle создаёт Handle с функцией освобождения.
func NewHandle(release func(ctx context.Context) error) *Handle {
	return &Handle{release: release}
}

// Release освобождает лок.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if h.release != nil {
			h.err = h.release(ctx)
		}
	})
	return h.err
}
