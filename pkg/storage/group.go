package storage

import (
	"database/sql"
	"log"

	"tsr_go/models"
)

const groupColumns = `
               g.id, g.session_id, g.group_id, g.access_hash, g.is_channel, g.title, g.username,
               g.is_active, g.has_restrictions, g.has_delete_bot, g.message_count, g.last_message_at`

func scanGroup(row rowScanner) (*models.SessionGroup, error) {
	var g models.SessionGroup
	var (
		username    sql.NullString
		lastMessage sql.NullTime
	)
	err := row.Scan(
		&g.ID,
		&g.SessionID,
		&g.GroupID,
		&g.AccessHash,
		&g.IsChannel,
		&g.Title,
		&username,
		&g.IsActive,
		&g.HasRestricted,
		&g.HasDeleteBot,
		&g.MessageCount,
		&lastMessage,
	)
	if err != nil {
		return nil, err
	}
	if username.Valid {
		g.Username = &username.String
	}
	if lastMessage.Valid {
		g.LastMessageAt = &lastMessage.Time
	}
	return &g, nil
}

// CreateSessionGroup сохраняет группу, найденную при каталогизации окружения.
// Повторная каталогизация обновляет флаги, не плодя дубликаты пары (session_id, group_id).
func (db *DB) CreateSessionGroup(g models.SessionGroup) (*models.SessionGroup, error) {
	query := `
               INSERT INTO session_groups
                       (session_id, group_id, access_hash, is_channel, title, username,
                        is_active, has_restrictions, has_delete_bot)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               ON CONFLICT (session_id, group_id) DO UPDATE
               SET access_hash = EXCLUDED.access_hash,
                   title = EXCLUDED.title,
                   username = EXCLUDED.username,
                   is_active = EXCLUDED.is_active,
                   has_restrictions = EXCLUDED.has_restrictions,
                   has_delete_bot = EXCLUDED.has_delete_bot
               RETURNING id
       `
	err := db.Conn.QueryRow(
		query,
		g.SessionID,
		g.GroupID,
		g.AccessHash,
		g.IsChannel,
		g.Title,
		g.Username,
		g.IsActive,
		g.HasRestricted,
		g.HasDeleteBot,
	).Scan(&g.ID)
	if err != nil {
		log.Printf("[DB ERROR] Сохранение группы %s: %v", g.GroupID, err)
		return nil, err
	}
	return &g, nil
}

// ActiveSessionGroups возвращает активные группы сессии в стабильном порядке.
// Порядок важен: разбиение рассылки на пачки должно быть детерминированным.
func (db *DB) ActiveSessionGroups(sessionID int) ([]models.SessionGroup, error) {
	query := `
               SELECT ` + groupColumns + `
               FROM session_groups g
               WHERE g.session_id = $1 AND g.is_active = true
               ORDER BY g.id
       `
	return db.queryGroups(query, sessionID)
}

// SessionGroups возвращает все группы сессии.
func (db *DB) SessionGroups(sessionID int) ([]models.SessionGroup, error) {
	query := `
               SELECT ` + groupColumns + `
               FROM session_groups g
               WHERE g.session_id = $1
               ORDER BY g.id
       `
	return db.queryGroups(query, sessionID)
}

func (db *DB) queryGroups(query string, args ...any) ([]models.SessionGroup, error) {
	rows, err := db.Conn.Query(query, args...)
	if err != nil {
		log.Printf("[DB ERROR] Выборка групп: %v", err)
		return nil, err
	}
	defer rows.Close()

	var groups []models.SessionGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			log.Printf("[DB WARN] Пропускаем группу: %v", err)
			continue
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// GroupBySessionAndRemoteID ищет группу по паре (session_id, group_id).
// Пачка перед каждой отправкой перепроверяет, что группа всё ещё активна.
func (db *DB) GroupBySessionAndRemoteID(sessionID int, groupID string) (*models.SessionGroup, error) {
	query := `
               SELECT ` + groupColumns + `
               FROM session_groups g
               WHERE g.session_id = $1 AND g.group_id = $2
       `
	return scanGroup(db.Conn.QueryRow(query, sessionID, groupID))
}

// TouchGroupSent фиксирует успешную отправку в группу.
func (db *DB) TouchGroupSent(groupRowID int) error {
	_, err := db.Conn.Exec(
		"UPDATE session_groups SET message_count = message_count + 1, last_message_at = NOW() WHERE id = $1",
		groupRowID,
	)
	return err
}

// CountActiveSessionGroups считает активные группы для groups_count сессии.
func (db *DB) CountActiveSessionGroups(sessionID int) (int, error) {
	var n int
	err := db.Conn.QueryRow(
		"SELECT COUNT(*) FROM session_groups WHERE session_id = $1 AND is_active = true",
		sessionID,
	).Scan(&n)
	return n, err
}
