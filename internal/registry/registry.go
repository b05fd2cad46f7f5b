// Package registry владеет пулом живых подключений к Telegram.
// Реестр — единственный владелец времени жизни соединений: остальные
// компоненты берут подключение через Acquire и никогда не закрывают его сами.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"tsr_go/models"
	"tsr_go/pkg/telegram"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionNotFound — в хранилище нет сессии или её авторизационного блоба.
	ErrSessionNotFound = errors.New("сессия не найдена")
	// ErrReconnectFailed — сеть отвергла повторную авторизацию сессии.
	ErrReconnectFailed = errors.New("переподключение не удалось")
)

// Conn — поверхность возможностей живого подключения.
// Реализуется telegram.Handle; тесты подставляют фальшивые подключения.
type Conn interface {
	Alive() bool
	Reconnect(ctx context.Context) error
	Self(ctx context.Context) error
	SendToGroup(ctx context.Context, ref models.GroupRef, text string) error
	ListGroups(ctx context.Context) ([]telegram.GroupInfo, error)
	CheckGroupRestrictions(ctx context.Context, ref models.GroupRef) (bool, error)
	HasDeleteBot(ctx context.Context, ref models.GroupRef) (bool, error)
	Disconnect() error
}

// SessionSource отдаёт сессии из хранилища. Реализуется storage.DB.
type SessionSource interface {
	GetSessionByID(id int) (*models.Session, error)
}

// Dialer строит подключение для сессии, не устанавливая соединение.
type Dialer func(s *models.Session) (Conn, error)

// Registry — пул подключений, ключ — идентификатор сессии.
type Registry struct {
	store          SessionSource
	dial           Dialer
	connectTimeout time.Duration

	mu   sync.RWMutex
	pool map[int]Conn

	flight singleflight.Group

	lockMu sync.Mutex
	locks  map[int]*sync.Mutex
}

func New(store SessionSource, dial Dialer, connectTimeout time.Duration) *Registry {
	return &Registry{
		store:          store,
		dial:           dial,
		connectTimeout: connectTimeout,
		pool:           make(map[int]Conn),
		locks:          make(map[int]*sync.Mutex),
	}
}

// Acquire возвращает живое подключение сессии, при необходимости загружая его.
// Конкурентные вызовы для одного id не создают двух соединений:
// второй вызов ждёт результат первого через singleflight.
func (r *Registry) Acquire(ctx context.Context, sessionID int) (Conn, error) {
	r.mu.RLock()
	conn := r.pool[sessionID]
	r.mu.RUnlock()
	if conn != nil && conn.Alive() {
		return conn, nil
	}

	v, err, _ := r.flight.Do(strconv.Itoa(sessionID), func() (any, error) {
		return r.load(sessionID)
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return v.(Conn), nil
}

// load выполняется внутри singleflight ровно один раз на волну вызовов.
// Таймаут соединения собственный: отмена первого вызывающего не должна
// ронять остальных ожидающих тот же результат.
func (r *Registry) load(sessionID int) (Conn, error) {
	r.mu.RLock()
	conn := r.pool[sessionID]
	r.mu.RUnlock()
	if conn != nil && conn.Alive() {
		return conn, nil
	}

	s, err := r.store.GetSessionByID(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("сессия %d: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(s.SessionData) == 0 {
		return nil, fmt.Errorf("сессия %d без авторизационного блоба: %w", sessionID, ErrSessionNotFound)
	}

	conn, err = r.dial(s)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
	defer cancel()
	if err := conn.Reconnect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconnectFailed, err)
	}

	r.mu.Lock()
	r.pool[sessionID] = conn
	r.mu.Unlock()
	log.Printf("[REGISTRY] сессия %d загружена в пул", sessionID)
	return conn, nil
}

// Get возвращает подключение из пула без загрузки.
func (r *Registry) Get(sessionID int) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.pool[sessionID]
	return conn, ok
}

// Unload отключает и выбрасывает подключение из пула.
// Повторный вызов и вызов для незагруженной сессии безопасны.
func (r *Registry) Unload(sessionID int) {
	r.mu.Lock()
	conn := r.pool[sessionID]
	delete(r.pool, sessionID)
	r.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Disconnect(); err != nil {
		log.Printf("[REGISTRY] отключение сессии %d: %v", sessionID, err)
	}
	log.Printf("[REGISTRY] сессия %d выгружена из пула", sessionID)
}

// PooledIDs возвращает идентификаторы загруженных сессий.
func (r *Registry) PooledIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.pool))
	for id := range r.pool {
		ids = append(ids, id)
	}
	return ids
}

// Size возвращает число загруженных подключений.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pool)
}
