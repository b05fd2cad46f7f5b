package models

import "time"

// Статусы сессии. Сессия со статусом rented всегда имеет ровно одну
// активную подписку, статусы blocked и spam означают is_healthy = false.
const (
	SessionStatusAvailable    = "available"
	SessionStatusRented       = "rented"
	SessionStatusBlocked      = "blocked"
	SessionStatusSpam         = "spam"
	SessionStatusDisconnected = "disconnected"
)

// Session — сдаваемый в аренду telegram-аккаунт.
// SessionData хранит авторизационный блоб gotd и никогда не логируется.
type Session struct {
	ID                int        `json:"id"`
	Phone             string     `json:"phone"`
	ApiID             int        `json:"api_id"`
	ApiHash           string     `json:"-"`
	PhoneCodeHash     string     `json:"-"`
	SessionData       []byte     `json:"-"`
	IsAuthorized      bool       `json:"is_authorized"`
	Status            string     `json:"status"`
	IsHealthy         bool       `json:"is_healthy"`
	GroupsCount       int        `json:"groups_count"`
	MessagesSentToday int        `json:"messages_sent_today"`
	LastMessageAt     *time.Time `json:"last_message_at"`
	LastHealthCheck   *time.Time `json:"last_health_check"`
	BanReason         *string    `json:"ban_reason"`
	CurrentUserID     *int       `json:"current_user_id"`
	ProxyID           *int       `json:"proxy_id"`
	Proxy             *Proxy     `json:"proxy,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
