package telegram

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/gotd/td/session"
)

// DBSessionStorage хранит авторизационный блоб gotd в строке таблицы sessions.
// Содержимое блоба никогда не пишется в журнал.
type DBSessionStorage struct {
	DB        *sql.DB
	SessionID int
}

// LoadSession загружает блоб сессии из БД.
func (s *DBSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.DB.QueryRowContext(ctx,
		"SELECT session_data FROM sessions WHERE id = $1", s.SessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		log.Printf("[DBSessionStorage] ошибка чтения сессии %d: %v", s.SessionID, err)
		return nil, err
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession сохраняет блоб сессии в БД.
func (s *DBSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	_, err := s.DB.ExecContext(ctx,
		"UPDATE sessions SET session_data = $1 WHERE id = $2", data, s.SessionID,
	)
	if err != nil {
		log.Printf("[DBSessionStorage] ошибка сохранения сессии %d: %v", s.SessionID, err)
	}
	return err
}
