package telegram

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

// ErrNotAuthorized означает, что сеть отвергла сохранённую авторизацию сессии.
var ErrNotAuthorized = errors.New("сессия не авторизована")

// Замкнутый набор антиспам-сигналов сети. Отправка возвращает один из них
// вместо сырой ошибки MTProto, чтобы обработчик мог разобрать все варианты.
type (
	// FloodWaitError — сеть требует паузу перед следующей отправкой.
	FloodWaitError struct{ Seconds int }
	// SpamBlockedError — аккаунт получил спам-блок (PEER_FLOOD).
	SpamBlockedError struct{}
	// UserBannedError — аккаунт забанен в группе или деактивирован.
	UserBannedError struct{ Reason string }
)

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("FLOOD_WAIT: %d сек", e.Seconds)
}

func (e *SpamBlockedError) Error() string { return "SPAM_BLOCK" }

func (e *UserBannedError) Error() string { return "USER_BANNED: " + e.Reason }

// ClassifySendError сводит ошибки отправки к набору антиспам-сигналов.
// Прочие ошибки возвращаются как есть и учитываются как обычный сбой отправки.
func ClassifySendError(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Seconds: int(d / time.Second)}
	}
	if tgerr.Is(err, "PEER_FLOOD") {
		return &SpamBlockedError{}
	}
	if tgerr.Is(err, "USER_BANNED_IN_CHANNEL") {
		return &UserBannedError{Reason: "USER_BANNED_IN_CHANNEL"}
	}
	if tgerr.Is(err, "USER_DEACTIVATED_BAN") {
		return &UserBannedError{Reason: "USER_DEACTIVATED_BAN"}
	}
	return err
}
