// Package abuse интерпретирует антиспам-сигналы сети и выводит
// пострадавшие сессии из оборота. Это единственный компонент,
// которому разрешено менять статус сессии по сигналу отправки.
package abuse

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tsr_go/internal/registry"
	"tsr_go/models"
)

// Store — операции контроллера над хранилищем. Реализуется storage.DB.
type Store interface {
	MarkSessionBlocked(sessionID int, reason string) error
	MarkSessionSpam(sessionID int, reason string) error
	ActiveSubscriptionBySession(sessionID int) (*models.Subscription, error)
	FindReplacementSession(minGroups int) (*models.Session, error)
	ReassignSubscription(subID, oldSessionID, newSessionID, userID int) error
}

// Conns — операции над пулом подключений. Реализуется registry.Registry.
type Conns interface {
	Acquire(ctx context.Context, sessionID int) (registry.Conn, error)
	Unload(sessionID int)
}

// Config — пороги политики замены.
type Config struct {
	LongFloodWait time.Duration // флуд-бан дольше порога сразу ведёт к замене
	MinGroups     int           // минимальное окружение кандидата на замену
}

// Controller обрабатывает сигналы и запускает замену сессий.
type Controller struct {
	store Store
	conns Conns
	cfg   Config

	// Замены сериализованы: одновременные сигналы одной сессии
	// не должны перевешивать аренду дважды.
	mu sync.Mutex
}

func NewController(store Store, conns Conns, cfg Config) *Controller {
	return &Controller{store: store, conns: conns, cfg: cfg}
}

// HandleFloodWait обрабатывает требование паузы: сессия блокируется с причиной.
// Короткие паузы лечатся переносом пачки; пауза дольше порога означает,
// что в разумный срок сессия не вернётся, и аренду пора перевесить.
func (c *Controller) HandleFloodWait(ctx context.Context, sessionID, seconds int) error {
	reason := fmt.Sprintf("Flood wait: %dс", seconds)
	log.Printf("[ABUSE] сессия %d: %s", sessionID, reason)
	if err := c.store.MarkSessionBlocked(sessionID, reason); err != nil {
		return err
	}
	if time.Duration(seconds)*time.Second > c.cfg.LongFloodWait {
		log.Printf("[ABUSE] сессия %d: флуд-бан дольше порога, запускаем замену", sessionID)
		return c.Replace(ctx, sessionID, "FLOOD_WAIT")
	}
	return nil
}

// HandleBan обрабатывает спам-блок или бан: для этой сессии состояние
// необратимо, аренда сразу перевешивается на здоровую сессию.
func (c *Controller) HandleBan(ctx context.Context, sessionID int, reason string) error {
	log.Printf("[ABUSE] сессия %d выведена из оборота: %s", sessionID, reason)
	if err := c.store.MarkSessionSpam(sessionID, reason); err != nil {
		return err
	}
	return c.Replace(ctx, sessionID, reason)
}
