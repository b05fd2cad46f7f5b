package models

// Proxy — SOCKS5-прокси, через который сессия ходит в Telegram.
type Proxy struct {
	ID       int    `json:"id"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Login    string `json:"login"`
	Password string `json:"password"`
	IsActive bool   `json:"is_active"`
}
