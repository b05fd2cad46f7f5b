package broadcast

import (
	"time"

	"tsr_go/internal/queue"
	"tsr_go/models"
)

// Виды заданий конвейера рассылки.
const (
	KindSplit = "broadcast_split"
	KindBatch = "batch_send"
)

// SplitJob — задание разбиения рассылки на пачки.
type SplitJob struct {
	MessageID     int    `json:"broadcastId"`
	SessionID     int    `json:"sessionId"`
	UserID        int    `json:"userId"`
	Content       string `json:"content"`
	ContactNumber string `json:"contactNumber"`
}

// BatchJob — задание отправки одной пачки групп.
type BatchJob struct {
	MessageID int      `json:"broadcastId"`
	SessionID int      `json:"sessionId"`
	GroupIDs  []string `json:"groupIds"`
	Content   string   `json:"content"`
}

// Политики повторов заданий очереди.
func splitOptions() queue.Options {
	return queue.Options{
		MaxAttempts:  3,
		BackoffKind:  models.BackoffExponential,
		BackoffDelay: 5 * time.Second,
	}
}

func batchOptions(delay time.Duration) queue.Options {
	return queue.Options{
		Delay:        delay,
		MaxAttempts:  2,
		BackoffKind:  models.BackoffFixed,
		BackoffDelay: 10 * time.Second,
	}
}
