package common

import (
	"context"
	"time"
)

// Wait выполняет паузу с проверкой контекста на отмену,
// чтобы долгие задержки не блокировали завершение воркера.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		// Возвращаем ошибку контекста, чтобы вызвать обработку прерывания выше по стеку.
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
