package models

import "time"

// User — клиент, арендующий сессии.
type User struct {
	ID        int       `json:"id"`
	TgUserID  int64     `json:"tg_user_id"`
	Username  *string   `json:"username"`
	FirstName *string   `json:"first_name"`
	CreatedAt time.Time `json:"created_at"`
}
