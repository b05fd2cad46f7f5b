package storage

import (
	"database/sql"
	"log"

	"tsr_go/models"
)

const messageColumns = `
               id, session_id, user_id, content, contact_number, status,
               total_groups, sent_count, failed_count, skipped_count,
               error_message, created_at, started_at, completed_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var (
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.SessionID,
		&m.UserID,
		&m.Content,
		&m.ContactNumber,
		&m.Status,
		&m.TotalGroups,
		&m.SentCount,
		&m.FailedCount,
		&m.SkippedCount,
		&errMsg,
		&m.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		m.ErrorMessage = &errMsg.String
	}
	if startedAt.Valid {
		m.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return &m, nil
}

// CreateMessage регистрирует рассылку в статусе pending.
func (db *DB) CreateMessage(m models.Message) (*models.Message, error) {
	query := `
               INSERT INTO messages (session_id, user_id, content, contact_number)
               VALUES ($1, $2, $3, $4)
               RETURNING id, status, created_at
       `
	err := db.Conn.QueryRow(query, m.SessionID, m.UserID, m.Content, m.ContactNumber).
		Scan(&m.ID, &m.Status, &m.CreatedAt)
	if err != nil {
		log.Printf("[DB ERROR] Создание рассылки: %v", err)
		return nil, err
	}
	return &m, nil
}

// GetMessageByID возвращает рассылку с текущими счётчиками.
func (db *DB) GetMessageByID(id int) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(db.Conn.QueryRow(query, id))
}

// MessagesByUser возвращает рассылки пользователя, свежие первыми.
func (db *DB) MessagesByUser(userID int) ([]models.Message, error) {
	query := `
               SELECT ` + messageColumns + `
               FROM messages
               WHERE user_id = $1
               ORDER BY id DESC
       `
	rows, err := db.Conn.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// MarkMessageProcessing переводит рассылку из pending в processing.
func (db *DB) MarkMessageProcessing(id int) error {
	_, err := db.Conn.Exec(
		"UPDATE messages SET status = $1, started_at = NOW() WHERE id = $2 AND status = $3",
		models.MessageStatusProcessing, id, models.MessageStatusPending,
	)
	return err
}

// SetMessageTotalGroups фиксирует объём рассылки после выборки активных групп.
func (db *DB) SetMessageTotalGroups(id, total int) error {
	_, err := db.Conn.Exec("UPDATE messages SET total_groups = $1 WHERE id = $2", total, id)
	return err
}

// FailMessage терминально завершает рассылку с текстом ошибки.
func (db *DB) FailMessage(id int, errMsg string) error {
	_, err := db.Conn.Exec(
		"UPDATE messages SET status = $1, error_message = $2, completed_at = NOW() WHERE id = $3",
		models.MessageStatusFailed, errMsg, id,
	)
	return err
}

// IncrementMessageCounters прибавляет дельты пачки к счётчикам рассылки.
// Именно прибавляет: пачки завершаются не по порядку и возможно параллельно,
// поэтому перезапись значений недопустима.
func (db *DB) IncrementMessageCounters(id, sent, failed, skipped int) error {
	_, err := db.Conn.Exec(
		`UPDATE messages
                SET sent_count = sent_count + $1,
                    failed_count = failed_count + $2,
                    skipped_count = skipped_count + $3
                WHERE id = $4`,
		sent, failed, skipped, id,
	)
	return err
}

// CompleteMessageIfDone переводит рассылку в completed, когда все группы учтены.
// Возвращает true, если переход выполнен этим вызовом.
func (db *DB) CompleteMessageIfDone(id int) (bool, error) {
	query := `
               UPDATE messages
               SET status = $1, completed_at = NOW()
               WHERE id = $2
                 AND status = $3
                 AND total_groups > 0
                 AND sent_count + failed_count + skipped_count >= total_groups
       `
	res, err := db.Conn.Exec(query, models.MessageStatusCompleted, id, models.MessageStatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
