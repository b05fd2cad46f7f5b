package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"tsr_go/internal/registry"
	"tsr_go/models"
	"tsr_go/pkg/telegram"

	"github.com/google/go-cmp/cmp"
)

type fakeStore struct {
	stale []models.Session

	healthy      []int
	disconnected []int
	resets       int
	staleErr     error
}

func (s *fakeStore) MarkSessionHealthy(sessionID int) error {
	s.healthy = append(s.healthy, sessionID)
	return nil
}

func (s *fakeStore) MarkSessionDisconnected(sessionID int) error {
	s.disconnected = append(s.disconnected, sessionID)
	return nil
}

func (s *fakeStore) StaleUnhealthyRented(staleAfter time.Duration) ([]models.Session, error) {
	return s.stale, s.staleErr
}

func (s *fakeStore) ResetDailyCounters() error {
	s.resets++
	return nil
}

type fakeConn struct {
	selfErr error
}

func (c *fakeConn) Alive() bool                         { return true }
func (c *fakeConn) Reconnect(ctx context.Context) error { return nil }
func (c *fakeConn) Self(ctx context.Context) error      { return c.selfErr }
func (c *fakeConn) Disconnect() error                   { return nil }

func (c *fakeConn) SendToGroup(ctx context.Context, ref models.GroupRef, text string) error {
	return nil
}

func (c *fakeConn) ListGroups(ctx context.Context) ([]telegram.GroupInfo, error) {
	return nil, nil
}

func (c *fakeConn) CheckGroupRestrictions(ctx context.Context, ref models.GroupRef) (bool, error) {
	return false, nil
}

func (c *fakeConn) HasDeleteBot(ctx context.Context, ref models.GroupRef) (bool, error) {
	return false, nil
}

type fakeConns struct {
	pool map[int]registry.Conn

	unloaded   []int
	acquired   []int
	acquireErr error
}

func (c *fakeConns) Get(sessionID int) (registry.Conn, bool) {
	conn, ok := c.pool[sessionID]
	return conn, ok
}

func (c *fakeConns) Acquire(ctx context.Context, sessionID int) (registry.Conn, error) {
	c.acquired = append(c.acquired, sessionID)
	if c.acquireErr != nil {
		return nil, c.acquireErr
	}
	return c.pool[sessionID], nil
}

func (c *fakeConns) Unload(sessionID int) {
	c.unloaded = append(c.unloaded, sessionID)
}

func (c *fakeConns) PooledIDs() []int {
	ids := make([]int, 0, len(c.pool))
	for id := range c.pool {
		ids = append(ids, id)
	}
	return ids
}

type fakeReplacer struct {
	replaced []int
	err      error
}

func (r *fakeReplacer) Replace(ctx context.Context, oldSessionID int, reason string) error {
	r.replaced = append(r.replaced, oldSessionID)
	return r.err
}

func testConfig() Config {
	return Config{ProbeTimeout: time.Second, StaleAfter: 10 * time.Minute, ReplaceDelay: 0}
}

func TestRunHealthCheckMarksHealthy(t *testing.T) {
	store := &fakeStore{}
	conns := &fakeConns{pool: map[int]registry.Conn{1: &fakeConn{}}}
	m := NewMonitor(store, conns, &fakeReplacer{}, testConfig())

	m.RunHealthCheck(context.Background())

	if diff := cmp.Diff([]int{1}, store.healthy); diff != "" {
		t.Errorf("здоровые сессии (-want +got):\n%s", diff)
	}
	if len(store.disconnected) != 0 {
		t.Errorf("живая сессия отмечена отключённой: %v", store.disconnected)
	}
}

func TestRunHealthCheckReconnectsDeadConnection(t *testing.T) {
	store := &fakeStore{}
	conns := &fakeConns{pool: map[int]registry.Conn{1: &fakeConn{selfErr: errors.New("timeout")}}}
	m := NewMonitor(store, conns, &fakeReplacer{}, testConfig())

	m.RunHealthCheck(context.Background())

	if diff := cmp.Diff([]int{1}, store.disconnected); diff != "" {
		t.Errorf("отключённые сессии (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, conns.unloaded); diff != "" {
		t.Errorf("выгруженные сессии (-want +got):\n%s", diff)
	}
	// Одна попытка переподключения, после успеха сессия снова здорова.
	if diff := cmp.Diff([]int{1}, conns.acquired); diff != "" {
		t.Errorf("переподключения (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, store.healthy); diff != "" {
		t.Errorf("здоровые сессии (-want +got):\n%s", diff)
	}
}

func TestRunHealthCheckReconnectFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	conns := &fakeConns{
		pool:       map[int]registry.Conn{1: &fakeConn{selfErr: errors.New("timeout")}},
		acquireErr: errors.New("сеть недоступна"),
	}
	m := NewMonitor(store, conns, &fakeReplacer{}, testConfig())

	m.RunHealthCheck(context.Background())

	if len(store.healthy) != 0 {
		t.Errorf("сессия отмечена здоровой при неудачном переподключении: %v", store.healthy)
	}
	if diff := cmp.Diff([]int{1}, store.disconnected); diff != "" {
		t.Errorf("отключённые сессии (-want +got):\n%s", diff)
	}
}

func TestRunUnhealthySweepReplacesStale(t *testing.T) {
	store := &fakeStore{stale: []models.Session{{ID: 3}, {ID: 5}}}
	rep := &fakeReplacer{}
	m := NewMonitor(store, &fakeConns{}, rep, testConfig())

	m.RunUnhealthySweep(context.Background())

	if diff := cmp.Diff([]int{3, 5}, rep.replaced); diff != "" {
		t.Errorf("замены (-want +got):\n%s", diff)
	}
}

func TestRunUnhealthySweepErrorsDoNotEscape(t *testing.T) {
	store := &fakeStore{stale: []models.Session{{ID: 3}, {ID: 5}}}
	rep := &fakeReplacer{err: errors.New("нет кандидата")}
	m := NewMonitor(store, &fakeConns{}, rep, testConfig())

	// Ошибка замены не прерывает проход: обе сессии получают попытку.
	m.RunUnhealthySweep(context.Background())

	if diff := cmp.Diff([]int{3, 5}, rep.replaced); diff != "" {
		t.Errorf("замены (-want +got):\n%s", diff)
	}
}

func TestRunUnhealthySweepEmpty(t *testing.T) {
	store := &fakeStore{}
	rep := &fakeReplacer{}
	m := NewMonitor(store, &fakeConns{}, rep, testConfig())

	m.RunUnhealthySweep(context.Background())

	if len(rep.replaced) != 0 {
		t.Errorf("замены без нездоровых сессий: %v", rep.replaced)
	}
}

func TestRunUnhealthySweepCancelledBetweenReplacements(t *testing.T) {
	store := &fakeStore{stale: []models.Session{{ID: 3}, {ID: 5}}}
	rep := &fakeReplacer{}
	cfg := testConfig()
	cfg.ReplaceDelay = time.Minute
	m := NewMonitor(store, &fakeConns{}, rep, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.RunUnhealthySweep(ctx)

	// Отменённый контекст останавливает проход на паузе перед второй заменой.
	if diff := cmp.Diff([]int{3}, rep.replaced); diff != "" {
		t.Errorf("замены (-want +got):\n%s", diff)
	}
}

func TestResetDailyCounters(t *testing.T) {
	store := &fakeStore{}
	m := NewMonitor(store, &fakeConns{}, &fakeReplacer{}, testConfig())

	m.ResetDailyCounters()
	if store.resets != 1 {
		t.Errorf("сбросов %d, ожидался 1", store.resets)
	}
}
