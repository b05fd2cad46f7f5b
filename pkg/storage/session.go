package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"tsr_go/models"
)

// sessionColumns — единый список колонок, чтобы все выборки сессий сканировались одинаково.
const sessionColumns = `
               s.id, s.phone, s.api_id, s.api_hash, s.phone_code_hash, s.session_data,
               s.is_authorized, s.status, s.is_healthy, s.groups_count, s.messages_sent_today,
               s.last_message_at, s.last_health_check, s.ban_reason, s.current_user_id,
               s.proxy_id, s.created_at,
               p.id, p.ip, p.port, p.login, p.password, p.is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession читает сессию вместе с необязательной привязкой к прокси.
func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var (
		codeHash      sql.NullString
		sessionData   []byte
		lastMessage   sql.NullTime
		lastCheck     sql.NullTime
		banReason     sql.NullString
		currentUser   sql.NullInt64
		proxyID       sql.NullInt64
		proxyRowID    sql.NullInt64
		proxyIP       sql.NullString
		proxyPort     sql.NullInt64
		proxyLogin    sql.NullString
		proxyPassword sql.NullString
		proxyActive   sql.NullBool
	)
	err := row.Scan(
		&s.ID,
		&s.Phone,
		&s.ApiID,
		&s.ApiHash,
		&codeHash,
		&sessionData,
		&s.IsAuthorized,
		&s.Status,
		&s.IsHealthy,
		&s.GroupsCount,
		&s.MessagesSentToday,
		&lastMessage,
		&lastCheck,
		&banReason,
		&currentUser,
		&proxyID,
		&s.CreatedAt,
		&proxyRowID,
		&proxyIP,
		&proxyPort,
		&proxyLogin,
		&proxyPassword,
		&proxyActive,
	)
	if err != nil {
		return nil, err
	}
	s.PhoneCodeHash = codeHash.String
	s.SessionData = sessionData
	if lastMessage.Valid {
		s.LastMessageAt = &lastMessage.Time
	}
	if lastCheck.Valid {
		s.LastHealthCheck = &lastCheck.Time
	}
	if banReason.Valid {
		s.BanReason = &banReason.String
	}
	if currentUser.Valid {
		v := int(currentUser.Int64)
		s.CurrentUserID = &v
	}
	if proxyID.Valid {
		v := int(proxyID.Int64)
		s.ProxyID = &v
	}
	if proxyRowID.Valid {
		s.Proxy = &models.Proxy{
			ID:       int(proxyRowID.Int64),
			IP:       proxyIP.String,
			Port:     int(proxyPort.Int64),
			Login:    proxyLogin.String,
			Password: proxyPassword.String,
			IsActive: proxyActive.Bool,
		}
	}
	return &s, nil
}

// CreateSession записывает новую сессию до подтверждения кода.
func (db *DB) CreateSession(s models.Session) (*models.Session, error) {
	query := `
               INSERT INTO sessions (phone, api_id, api_hash, proxy_id)
               VALUES ($1, $2, $3, $4)
               RETURNING id, status, created_at
       `
	err := db.Conn.QueryRow(query, s.Phone, s.ApiID, s.ApiHash, s.ProxyID).
		Scan(&s.ID, &s.Status, &s.CreatedAt)
	if err != nil {
		log.Printf("[DB ERROR] Ошибка при создании сессии: %v", err)
		return nil, err
	}
	log.Printf("[DB INFO] Сессия создана с ID=%d", s.ID)
	return &s, nil
}

// GetSessionByID возвращает сессию вместе с привязкой к прокси.
func (db *DB) GetSessionByID(id int) (*models.Session, error) {
	query := `
               SELECT ` + sessionColumns + `
               FROM sessions s
               LEFT JOIN proxy p ON s.proxy_id = p.id
               WHERE s.id = $1
       `
	return scanSession(db.Conn.QueryRow(query, id))
}

// GetLastSession возвращает последнюю созданную сессию.
// Используется на шаге подтверждения кода.
func (db *DB) GetLastSession() (*models.Session, error) {
	query := `
               SELECT ` + sessionColumns + `
               FROM sessions s
               LEFT JOIN proxy p ON s.proxy_id = p.id
               ORDER BY s.id DESC
               LIMIT 1
       `
	return scanSession(db.Conn.QueryRow(query))
}

// ListSessions возвращает все сессии для панели оператора.
func (db *DB) ListSessions() ([]models.Session, error) {
	query := `
               SELECT ` + sessionColumns + `
               FROM sessions s
               LEFT JOIN proxy p ON s.proxy_id = p.id
               ORDER BY s.id
       `
	rows, err := db.Conn.Query(query)
	if err != nil {
		log.Printf("[DB ERROR] Выборка сессий: %v", err)
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			log.Printf("[DB WARN] Пропускаем сессию: %v", err)
			continue
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpdatePhoneCodeHash сохраняет хеш кода подтверждения для второй фазы авторизации.
func (db *DB) UpdatePhoneCodeHash(sessionID int, hash string) error {
	_, err := db.Conn.Exec("UPDATE sessions SET phone_code_hash = $1 WHERE id = $2", hash, sessionID)
	return err
}

// MarkSessionAuthorized помечает сессию авторизованной и готовой к аренде.
func (db *DB) MarkSessionAuthorized(sessionID int) error {
	_, err := db.Conn.Exec(
		"UPDATE sessions SET is_authorized = true, is_healthy = true, last_health_check = NOW() WHERE id = $1",
		sessionID,
	)
	return err
}

// MarkSessionBlocked фиксирует флуд-бан: статус blocked и причина.
// Статус blocked влечёт is_healthy = false, замену решает вызывающий код.
func (db *DB) MarkSessionBlocked(sessionID int, reason string) error {
	_, err := db.Conn.Exec(
		"UPDATE sessions SET status = $1, ban_reason = $2, is_healthy = false, last_health_check = NOW() WHERE id = $3",
		models.SessionStatusBlocked, reason, sessionID,
	)
	return err
}

// MarkSessionSpam фиксирует спам-блок или бан: сессия выводится из оборота.
func (db *DB) MarkSessionSpam(sessionID int, reason string) error {
	_, err := db.Conn.Exec(
		"UPDATE sessions SET status = $1, ban_reason = $2, is_healthy = false, last_health_check = NOW() WHERE id = $3",
		models.SessionStatusSpam, reason, sessionID,
	)
	return err
}

// MarkSessionHealthy обновляет отметку здоровья после успешного опроса.
// Опрашиваются только загруженные в пул сессии, то есть арендованные,
// поэтому отключённые и заблокированные коротким флуд-баном возвращаются
// в rented. Статус spam необратим и не восстанавливается.
func (db *DB) MarkSessionHealthy(sessionID int) error {
	query := `
               UPDATE sessions
               SET is_healthy = true,
                   last_health_check = NOW(),
                   status = CASE WHEN status IN ($1, $2) THEN $3 ELSE status END
               WHERE id = $4
       `
	_, err := db.Conn.Exec(
		query,
		models.SessionStatusDisconnected,
		models.SessionStatusBlocked,
		models.SessionStatusRented,
		sessionID,
	)
	return err
}

// MarkSessionDisconnected фиксирует неудачный опрос подключения.
func (db *DB) MarkSessionDisconnected(sessionID int) error {
	_, err := db.Conn.Exec(
		"UPDATE sessions SET is_healthy = false, status = $1, last_health_check = NOW() WHERE id = $2",
		models.SessionStatusDisconnected, sessionID,
	)
	return err
}

// UpdateSessionGroupsCount сохраняет число активных групп после каталогизации.
func (db *DB) UpdateSessionGroupsCount(sessionID, count int) error {
	_, err := db.Conn.Exec("UPDATE sessions SET groups_count = $1 WHERE id = $2", count, sessionID)
	return err
}

// IncrementSessionSent наращивает суточный счётчик отправок.
func (db *DB) IncrementSessionSent(sessionID, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := db.Conn.Exec(
		"UPDATE sessions SET messages_sent_today = messages_sent_today + $1, last_message_at = NOW() WHERE id = $2",
		n, sessionID,
	)
	return err
}

// ResetDailyCounters обнуляет суточные счётчики всех сессий.
func (db *DB) ResetDailyCounters() error {
	_, err := db.Conn.Exec("UPDATE sessions SET messages_sent_today = 0")
	return err
}

// FindReplacementSession выбирает лучшую свободную сессию:
// доступна, здорова, окружение не меньше minGroups, самое богатое окружение первым.
// При равенстве побеждает более ранняя сессия, чтобы выбор был детерминированным.
func (db *DB) FindReplacementSession(minGroups int) (*models.Session, error) {
	query := `
               SELECT ` + sessionColumns + `
               FROM sessions s
               LEFT JOIN proxy p ON s.proxy_id = p.id
               WHERE s.status = $1 AND s.is_healthy = true AND s.is_authorized = true AND s.groups_count >= $2
               ORDER BY s.groups_count DESC, s.id ASC
               LIMIT 1
       `
	return scanSession(db.Conn.QueryRow(query, models.SessionStatusAvailable, minGroups))
}

// StaleUnhealthyRented возвращает арендованные нездоровые сессии,
// которые не проверялись дольше порога давности.
func (db *DB) StaleUnhealthyRented(staleAfter time.Duration) ([]models.Session, error) {
	query := `
               SELECT ` + sessionColumns + `
               FROM sessions s
               LEFT JOIN proxy p ON s.proxy_id = p.id
               WHERE s.status = $1 AND s.is_healthy = false AND s.last_health_check < $2
               ORDER BY s.id
       `
	rows, err := db.Conn.Query(query, models.SessionStatusRented, time.Now().Add(-staleAfter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			log.Printf("[DB WARN] Пропускаем сессию: %v", err)
			continue
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ReleaseSession возвращает сессию в пул свободных после окончания аренды.
func (db *DB) ReleaseSession(sessionID int) error {
	_, err := db.Conn.Exec(
		"UPDATE sessions SET status = $1, current_user_id = NULL WHERE id = $2",
		models.SessionStatusAvailable, sessionID,
	)
	return err
}

// DeleteSession удаляет сессию. Арендованные сессии не удаляются.
func (db *DB) DeleteSession(sessionID int) error {
	res, err := db.Conn.Exec(
		"DELETE FROM sessions WHERE id = $1 AND status <> $2",
		sessionID, models.SessionStatusRented,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("сессия %d арендована или не существует", sessionID)
	}
	return nil
}

// SessionStatusCounts возвращает распределение сессий по статусам.
func (db *DB) SessionStatusCounts() (map[string]int, error) {
	rows, err := db.Conn.Query("SELECT status, COUNT(*) FROM sessions GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
