package models

import "time"

// Статусы подписки.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription — аренда: привязка пользователя к одной сессии на срок.
// При замене сессии запись не пересоздаётся, меняется только session_id,
// чтобы сохранить историю аренды.
type Subscription struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	SessionID int       `json:"session_id"`
	PlanType  string    `json:"plan_type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
