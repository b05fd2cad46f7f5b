package models

import "time"

// Статусы рассылки.
const (
	MessageStatusPending    = "pending"
	MessageStatusProcessing = "processing"
	MessageStatusCompleted  = "completed"
	MessageStatusFailed     = "failed"
)

// Message — одна рассылка по группам сессии.
// Счётчики только растут; после completed выполняется
// sent_count + failed_count + skipped_count == total_groups.
type Message struct {
	ID            int        `json:"id"`
	SessionID     int        `json:"session_id"`
	UserID        int        `json:"user_id"`
	Content       string     `json:"content"`
	ContactNumber string     `json:"contact_number"`
	Status        string     `json:"status"`
	TotalGroups   int        `json:"total_groups"`
	SentCount     int        `json:"sent_count"`
	FailedCount   int        `json:"failed_count"`
	SkippedCount  int        `json:"skipped_count"`
	ErrorMessage  *string    `json:"error_message"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// Processed возвращает число групп с зафиксированным исходом.
func (m *Message) Processed() int {
	return m.SentCount + m.FailedCount + m.SkippedCount
}
