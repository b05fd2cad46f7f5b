package storage

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// DB оборачивает подключение к Postgres и объединяет все хранилища.
type DB struct {
	Conn *sql.DB
}

func NewDB(conn *sql.DB) *DB {
	return &DB{Conn: conn}
}
