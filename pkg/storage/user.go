package storage

import (
	"database/sql"

	"tsr_go/models"
)

// CreateUser регистрирует клиента. Повторная регистрация по tg_user_id
// возвращает существующую запись.
func (db *DB) CreateUser(u models.User) (*models.User, error) {
	query := `
               INSERT INTO users (tg_user_id, username, first_name)
               VALUES ($1, $2, $3)
               ON CONFLICT (tg_user_id) DO UPDATE
               SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
               RETURNING id, created_at
       `
	err := db.Conn.QueryRow(query, u.TgUserID, u.Username, u.FirstName).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID возвращает клиента по идентификатору.
func (db *DB) GetUserByID(id int) (*models.User, error) {
	var u models.User
	var (
		username  sql.NullString
		firstName sql.NullString
	)
	query := `SELECT id, tg_user_id, username, first_name, created_at FROM users WHERE id = $1`
	err := db.Conn.QueryRow(query, id).Scan(&u.ID, &u.TgUserID, &username, &firstName, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if username.Valid {
		u.Username = &username.String
	}
	if firstName.Valid {
		u.FirstName = &firstName.String
	}
	return &u, nil
}
