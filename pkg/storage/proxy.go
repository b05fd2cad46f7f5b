package storage

import (
	"tsr_go/models"
)

// CreateProxy сохраняет прокси, чтобы привязывать его к сессиям при онбординге.
func (db *DB) CreateProxy(p models.Proxy) (*models.Proxy, error) {
	query := `
               INSERT INTO proxy (ip, port, login, password, is_active)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id
       `
	err := db.Conn.QueryRow(query, p.IP, p.Port, p.Login, p.Password, p.IsActive).Scan(&p.ID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProxyByID возвращает прокси по идентификатору.
func (db *DB) GetProxyByID(id int) (*models.Proxy, error) {
	var p models.Proxy
	query := `
               SELECT id, ip, port, login, password, is_active
               FROM proxy
               WHERE id = $1
       `
	err := db.Conn.QueryRow(query, id).Scan(
		&p.ID,
		&p.IP,
		&p.Port,
		&p.Login,
		&p.Password,
		&p.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
