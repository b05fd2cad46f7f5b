// Package telegram реализует подключение арендной сессии к Telegram поверх gotd/td:
// инициализацию клиента, долгоживущее соединение, отправку в группы и
// каталогизацию окружения. Сигналы антиспама сети приводятся к замкнутому
// набору типизированных ошибок.
package telegram

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"tsr_go/models"

	"golang.org/x/net/proxy"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
)

// newClient собирает клиента gotd для сессии: блоб авторизации живёт в БД,
// при наличии прокси трафик заворачивается в SOCKS5.
func newClient(db *sql.DB, s *models.Session) (*telegram.Client, error) {
	opts := telegram.Options{
		SessionStorage: &DBSessionStorage{DB: db, SessionID: s.ID},
	}
	if p := s.Proxy; p != nil {
		addr := fmt.Sprintf("%s:%d", p.IP, p.Port)
		var auth *proxy.Auth
		if p.Login != "" || p.Password != "" {
			auth = &proxy.Auth{User: p.Login, Password: p.Password}
		}
		d, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		dc, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer missing context")
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dc.DialContext})
		log.Printf("[PROXY] %s via %s", s.Phone, addr)
	}
	return telegram.NewClient(s.ApiID, s.ApiHash, opts), nil
}

// Handle — живое подключение одной сессии. Соединение держится в фоновой
// горутине client.Run и живёт до Disconnect или фатальной ошибки сети.
type Handle struct {
	sessionID int
	phone     string
	db        *sql.DB
	session   models.Session

	mu     sync.Mutex
	client *telegram.Client
	api    *tg.Client
	cancel context.CancelFunc
	done   chan struct{}
	alive  atomic.Bool
}

// NewHandle создаёт подключение без установки соединения.
// Соединение поднимает Reconnect.
func NewHandle(db *sql.DB, s *models.Session) *Handle {
	return &Handle{
		sessionID: s.ID,
		phone:     s.Phone,
		db:        db,
		session:   *s,
	}
}

// SessionID возвращает идентификатор сессии, которой принадлежит подключение.
func (h *Handle) SessionID() int { return h.sessionID }

// Alive сообщает, живо ли соединение.
func (h *Handle) Alive() bool { return h.alive.Load() }

// Reconnect поднимает соединение по сохранённому блобу авторизации.
// Блокирует до готовности соединения либо истечения контекста:
// зависший пир не должен останавливать пул воркеров.
func (h *Handle) Reconnect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.alive.Load() {
		return nil
	}
	h.stopLocked()

	client, err := newClient(h.db, &h.session)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})
	var runErr error

	go func() {
		defer close(done)
		runErr = client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return err
			}
			if !status.Authorized {
				return ErrNotAuthorized
			}
			h.alive.Store(true)
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		h.alive.Store(false)
	}()

	select {
	case <-ready:
		h.client = client
		h.api = tg.NewClient(client)
		h.cancel = cancel
		h.done = done
		log.Printf("[TG] сессия %d подключена", h.sessionID)
		return nil
	case <-done:
		cancel()
		return fmt.Errorf("переподключение сессии %d: %w", h.sessionID, runErr)
	case <-ctx.Done():
		cancel()
		<-done
		return fmt.Errorf("переподключение сессии %d: %w", h.sessionID, ctx.Err())
	}
}

// stopLocked гасит предыдущее соединение. Вызывается под h.mu.
func (h *Handle) stopLocked() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
		h.cancel = nil
		h.done = nil
	}
	h.client = nil
	h.api = nil
}

// Disconnect закрывает соединение. Повторный вызов безопасен.
func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	log.Printf("[TG] сессия %d отключена", h.sessionID)
	return nil
}

// apiClient возвращает текущий API-клиент или ошибку, если соединения нет.
func (h *Handle) apiClient() (*tg.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.api == nil || !h.alive.Load() {
		return nil, fmt.Errorf("сессия %d: нет соединения", h.sessionID)
	}
	return h.api, nil
}

// Self выполняет дешёвый опрос собственного профиля для проверки живости.
func (h *Handle) Self(ctx context.Context) error {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil || !h.alive.Load() {
		return fmt.Errorf("сессия %d: нет соединения", h.sessionID)
	}
	_, err := client.Self(ctx)
	return err
}

// inputPeer собирает peer для отправки: супергруппы и каналы требуют access hash,
// обычные группы адресуются по chat id.
func inputPeer(ref models.GroupRef) tg.InputPeerClass {
	if ref.IsChannel {
		return &tg.InputPeerChannel{ChannelID: ref.ID, AccessHash: ref.AccessHash}
	}
	return &tg.InputPeerChat{ChatID: ref.ID}
}

// SendToGroup отправляет текст в группу. Антиспам-сигналы сети
// возвращаются типизированными ошибками (см. ClassifySendError).
func (h *Handle) SendToGroup(ctx context.Context, ref models.GroupRef, text string) error {
	api, err := h.apiClient()
	if err != nil {
		return err
	}
	_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     inputPeer(ref),
		Message:  text,
		RandomID: rand.Int63(),
	})
	if err != nil {
		return ClassifySendError(err)
	}
	return nil
}

// probeTimeout ограничивает служебные вызовы, которым не передали дедлайн.
const probeTimeout = 15 * time.Second

// withDeadline добавляет таймаут, если вызывающий код его не задал.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, probeTimeout)
}
