package models

import "time"

// Статусы задания в очереди.
const (
	JobStatusPending = "pending"
	JobStatusActive  = "active"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Виды расчёта паузы между повторами.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Job — запись долговременной очереди заданий.
// Очередь живёт в Postgres и обеспечивает доставку "как минимум один раз"
// с отложенным запуском и учётом повторов.
type Job struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	Payload        []byte    `json:"payload"`
	Status         string    `json:"status"`
	RunAt          time.Time `json:"run_at"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	BackoffKind    string    `json:"backoff_kind"`
	BackoffDelayMS int       `json:"backoff_delay_ms"`
	LastError      *string   `json:"last_error"`
	CreatedAt      time.Time `json:"created_at"`
}
