package telegram

import (
	"errors"
	"testing"

	"github.com/gotd/td/tgerr"
)

func TestClassifySendErrorFloodWait(t *testing.T) {
	err := ClassifySendError(tgerr.New(420, "FLOOD_WAIT_30"))

	var flood *FloodWaitError
	if !errors.As(err, &flood) {
		t.Fatalf("ошибка %v, ожидалась FloodWaitError", err)
	}
	if flood.Seconds != 30 {
		t.Errorf("Seconds = %d, ожидалось 30", flood.Seconds)
	}
}

func TestClassifySendErrorPeerFlood(t *testing.T) {
	err := ClassifySendError(tgerr.New(400, "PEER_FLOOD"))

	var spam *SpamBlockedError
	if !errors.As(err, &spam) {
		t.Fatalf("ошибка %v, ожидалась SpamBlockedError", err)
	}
}

func TestClassifySendErrorBans(t *testing.T) {
	for _, code := range []string{"USER_BANNED_IN_CHANNEL", "USER_DEACTIVATED_BAN"} {
		err := ClassifySendError(tgerr.New(400, code))

		var banned *UserBannedError
		if !errors.As(err, &banned) {
			t.Fatalf("%s: ошибка %v, ожидалась UserBannedError", code, err)
		}
		if banned.Reason != code {
			t.Errorf("Reason = %q, ожидалось %q", banned.Reason, code)
		}
	}
}

func TestClassifySendErrorPassThrough(t *testing.T) {
	plain := errors.New("сеть моргнула")
	if got := ClassifySendError(plain); got != plain {
		t.Errorf("обычная ошибка изменена: %v", got)
	}
	if got := ClassifySendError(nil); got != nil {
		t.Errorf("nil превратился в %v", got)
	}
}
