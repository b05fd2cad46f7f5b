package storage

import (
	"log"
	"time"

	"tsr_go/models"
)

const subscriptionColumns = `
               id, user_id, session_id, plan_type, start_date, end_date, status, created_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.SessionID,
		&sub.PlanType,
		&sub.StartDate,
		&sub.EndDate,
		&sub.Status,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription оформляет аренду: в одной транзакции создаёт подписку
// и переводит сессию в rented с привязкой к пользователю.
func (db *DB) CreateSubscription(sub models.Subscription) (*models.Subscription, error) {
	tx, err := db.Conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
               INSERT INTO subscriptions (user_id, session_id, plan_type, start_date, end_date, status)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, created_at
       `
	err = tx.QueryRow(
		query,
		sub.UserID,
		sub.SessionID,
		sub.PlanType,
		sub.StartDate,
		sub.EndDate,
		models.SubscriptionStatusActive,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		log.Printf("[DB ERROR] Создание подписки: %v", err)
		return nil, err
	}
	sub.Status = models.SubscriptionStatusActive

	_, err = tx.Exec(
		"UPDATE sessions SET status = $1, current_user_id = $2 WHERE id = $3",
		models.SessionStatusRented, sub.UserID, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscriptionByID возвращает подписку по идентификатору.
func (db *DB) GetSubscriptionByID(id int) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(db.Conn.QueryRow(query, id))
}

// ActiveSubscriptionBySession ищет активную аренду указанной сессии.
// Возвращает sql.ErrNoRows, если сессия никому не сдана.
func (db *DB) ActiveSubscriptionBySession(sessionID int) (*models.Subscription, error) {
	query := `
               SELECT ` + subscriptionColumns + `
               FROM subscriptions
               WHERE session_id = $1 AND status = $2
       `
	return scanSubscription(db.Conn.QueryRow(query, sessionID, models.SubscriptionStatusActive))
}

// ActiveSubscriptionByUser ищет активную аренду пользователя.
func (db *DB) ActiveSubscriptionByUser(userID int) (*models.Subscription, error) {
	query := `
               SELECT ` + subscriptionColumns + `
               FROM subscriptions
               WHERE user_id = $1 AND status = $2
               ORDER BY id DESC
               LIMIT 1
       `
	return scanSubscription(db.Conn.QueryRow(query, userID, models.SubscriptionStatusActive))
}

// ReassignSubscription атомарно перевешивает активную аренду на новую сессию:
// старая сессия блокируется и отвязывается, новая переходит в rented,
// подписка начинает указывать на новую сессию.
func (db *DB) ReassignSubscription(subID, oldSessionID, newSessionID, userID int) error {
	tx, err := db.Conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"UPDATE sessions SET status = $1, is_healthy = false, current_user_id = NULL WHERE id = $2",
		models.SessionStatusBlocked, oldSessionID,
	)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		"UPDATE sessions SET status = $1, current_user_id = $2 WHERE id = $3",
		models.SessionStatusRented, userID, newSessionID,
	)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		"UPDATE subscriptions SET session_id = $1 WHERE id = $2",
		newSessionID, subID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// CancelSubscription закрывает подписку и освобождает сессию.
func (db *DB) CancelSubscription(subID int) (*models.Subscription, error) {
	tx, err := db.Conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
               UPDATE subscriptions SET status = $1
               WHERE id = $2 AND status = $3
               RETURNING ` + subscriptionColumns + `
       `
	sub, err := scanSubscription(tx.QueryRow(query, models.SubscriptionStatusCancelled, subID, models.SubscriptionStatusActive))
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"UPDATE sessions SET status = $1, current_user_id = NULL WHERE id = $2",
		models.SessionStatusAvailable, sub.SessionID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sub, nil
}

// ExpireSubscriptions закрывает просроченные аренды и возвращает их,
// чтобы вызывающий код освободил сессии и выгрузил подключения.
func (db *DB) ExpireSubscriptions(now time.Time) ([]models.Subscription, error) {
	tx, err := db.Conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
               UPDATE subscriptions SET status = $1
               WHERE status = $2 AND end_date < $3
               RETURNING ` + subscriptionColumns + `
       `
	rows, err := tx.Query(query, models.SubscriptionStatusExpired, models.SubscriptionStatusActive, now)
	if err != nil {
		return nil, err
	}

	var expired []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		expired = append(expired, *sub)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, sub := range expired {
		_, err = tx.Exec(
			"UPDATE sessions SET status = $1, current_user_id = NULL WHERE id = $2 AND status = $3",
			models.SessionStatusAvailable, sub.SessionID, models.SessionStatusRented,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return expired, nil
}

// SubscriptionsByUser возвращает подписки пользователя.
func (db *DB) SubscriptionsByUser(userID int) ([]models.Subscription, error) {
	query := `
               SELECT ` + subscriptionColumns + `
               FROM subscriptions
               WHERE user_id = $1
               ORDER BY id DESC
       `
	rows, err := db.Conn.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
