package models

import "time"

// SessionGroup — группа из сетевого окружения сессии.
// Пара (session_id, group_id) уникальна. Рассылка читает is_active,
// но меняет только message_count и last_message_at.
type SessionGroup struct {
	ID            int        `json:"id"`
	SessionID     int        `json:"session_id"`
	GroupID       string     `json:"group_id"`
	AccessHash    int64      `json:"-"`
	IsChannel     bool       `json:"is_channel"`
	Title         string     `json:"title"`
	Username      *string    `json:"username"`
	IsActive      bool       `json:"is_active"`
	HasRestricted bool       `json:"has_restrictions"`
	HasDeleteBot  bool       `json:"has_delete_bot"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// GroupRef — минимальные данные для обращения к группе через MTProto.
type GroupRef struct {
	ID         int64
	AccessHash int64
	IsChannel  bool
}

// Ref возвращает ссылку на группу для отправки сообщений.
func (g *SessionGroup) Ref() (GroupRef, error) {
	id, err := ParseGroupID(g.GroupID)
	if err != nil {
		return GroupRef{}, err
	}
	return GroupRef{ID: id, AccessHash: g.AccessHash, IsChannel: g.IsChannel}, nil
}
