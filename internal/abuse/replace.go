package abuse

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

// Replace перевешивает активную аренду потерянной сессии на здоровую.
// Повторный вызов для уже перевешенной сессии ничего не делает:
// активной аренды у старой сессии больше нет.
func (c *Controller) Replace(ctx context.Context, oldSessionID int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.store.ActiveSubscriptionBySession(oldSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[REPLACE] сессия %d без активной аренды, замена не нужна", oldSessionID)
		return nil
	}
	if err != nil {
		return err
	}

	// Кандидат: свободная здоровая сессия с достаточным окружением,
	// самое богатое окружение первым. Нехватка кандидатов — проблема
	// оператора, а не вызывающего кода: аренда ждёт следующего прохода.
	candidate, err := c.store.FindReplacementSession(c.cfg.MinGroups)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[REPLACE] нет кандидата на замену сессии %d (причина: %s)", oldSessionID, reason)
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.store.ReassignSubscription(sub.ID, oldSessionID, candidate.ID, sub.UserID); err != nil {
		return err
	}

	// Старое подключение выгружаем, новое прогреваем заранее.
	c.conns.Unload(oldSessionID)
	if _, err := c.conns.Acquire(ctx, candidate.ID); err != nil {
		log.Printf("[REPLACE] прогрев сессии %d: %v", candidate.ID, err)
	}

	log.Printf("[REPLACE] аренда %d перевешена: сессия %d -> %d (причина: %s, групп: %d)",
		sub.ID, oldSessionID, candidate.ID, reason, candidate.GroupsCount)
	return nil
}
