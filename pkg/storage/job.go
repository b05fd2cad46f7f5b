package storage

import (
	"database/sql"
	"log"
	"time"

	"tsr_go/models"
)

// CreateJob кладёт задание в очередь. runAt в прошлом означает немедленный запуск.
func (db *DB) CreateJob(j models.Job) (*models.Job, error) {
	query := `
               INSERT INTO jobs (kind, payload, run_at, max_attempts, backoff_kind, backoff_delay_ms)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, status, created_at
       `
	err := db.Conn.QueryRow(
		query,
		j.Kind,
		j.Payload,
		j.RunAt,
		j.MaxAttempts,
		j.BackoffKind,
		j.BackoffDelayMS,
	).Scan(&j.ID, &j.Status, &j.CreatedAt)
	if err != nil {
		log.Printf("[DB ERROR] Постановка задания %s: %v", j.Kind, err)
		return nil, err
	}
	return &j, nil
}

// ClaimDueJobs атомарно забирает созревшие задания указанного вида.
// FOR UPDATE SKIP LOCKED исключает двойную выдачу при конкурентных выборках.
func (db *DB) ClaimDueJobs(kind string, limit int) ([]models.Job, error) {
	query := `
               UPDATE jobs
               SET status = $1, attempts = attempts + 1
               WHERE id IN (
                       SELECT id FROM jobs
                       WHERE kind = $2 AND status = $3 AND run_at <= NOW()
                       ORDER BY run_at, id
                       LIMIT $4
                       FOR UPDATE SKIP LOCKED
               )
               RETURNING id, kind, payload, status, run_at, attempts, max_attempts,
                         backoff_kind, backoff_delay_ms, last_error, created_at
       `
	rows, err := db.Conn.Query(query, models.JobStatusActive, kind, models.JobStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		var lastError sql.NullString
		err := rows.Scan(
			&j.ID,
			&j.Kind,
			&j.Payload,
			&j.Status,
			&j.RunAt,
			&j.Attempts,
			&j.MaxAttempts,
			&j.BackoffKind,
			&j.BackoffDelayMS,
			&lastError,
			&j.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if lastError.Valid {
			j.LastError = &lastError.String
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RequeueActiveJobs возвращает в очередь задания, оставшиеся в active
// после аварийного завершения процесса. Вызывается до запуска воркеров:
// в работающем процессе active-задания держат сами воркеры.
func (db *DB) RequeueActiveJobs() (int64, error) {
	res, err := db.Conn.Exec(
		"UPDATE jobs SET status = $1 WHERE status = $2",
		models.JobStatusPending, models.JobStatusActive,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkJobDone завершает задание успешно.
func (db *DB) MarkJobDone(id int64) error {
	_, err := db.Conn.Exec("UPDATE jobs SET status = $1 WHERE id = $2", models.JobStatusDone, id)
	return err
}

// RetryJob возвращает задание в очередь с новым временем запуска.
func (db *DB) RetryJob(id int64, errMsg string, runAt time.Time) error {
	_, err := db.Conn.Exec(
		"UPDATE jobs SET status = $1, last_error = $2, run_at = $3 WHERE id = $4",
		models.JobStatusPending, errMsg, runAt, id,
	)
	return err
}

// FailJob терминально завершает задание после исчерпания попыток.
func (db *DB) FailJob(id int64, errMsg string) error {
	_, err := db.Conn.Exec(
		"UPDATE jobs SET status = $1, last_error = $2 WHERE id = $3",
		models.JobStatusFailed, errMsg, id,
	)
	return err
}

// JobCounts возвращает число заданий по виду и статусу для мониторинга очереди.
func (db *DB) JobCounts() (map[string]map[string]int, error) {
	rows, err := db.Conn.Query("SELECT kind, status, COUNT(*) FROM jobs GROUP BY kind, status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var kind, status string
		var n int
		if err := rows.Scan(&kind, &status, &n); err != nil {
			return nil, err
		}
		if counts[kind] == nil {
			counts[kind] = make(map[string]int)
		}
		counts[kind][status] = n
	}
	return counts, rows.Err()
}
