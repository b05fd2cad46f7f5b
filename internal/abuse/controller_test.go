package abuse

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tsr_go/internal/registry"
	"tsr_go/models"

	"github.com/google/go-cmp/cmp"
)

type reassignment struct {
	SubID, OldSessionID, NewSessionID, UserID int
}

// fakeStore — хранилище в памяти для проверки политики замены.
type fakeStore struct {
	sub       *models.Subscription // активная аренда старой сессии
	candidate *models.Session      // кандидат на замену

	blocked   map[int]string
	spam      map[int]string
	reassigns []reassignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocked: map[int]string{}, spam: map[int]string{}}
}

func (s *fakeStore) MarkSessionBlocked(sessionID int, reason string) error {
	s.blocked[sessionID] = reason
	return nil
}

func (s *fakeStore) MarkSessionSpam(sessionID int, reason string) error {
	s.spam[sessionID] = reason
	return nil
}

func (s *fakeStore) ActiveSubscriptionBySession(sessionID int) (*models.Subscription, error) {
	if s.sub == nil || s.sub.SessionID != sessionID {
		return nil, sql.ErrNoRows
	}
	return s.sub, nil
}

func (s *fakeStore) FindReplacementSession(minGroups int) (*models.Session, error) {
	if s.candidate == nil || s.candidate.GroupsCount < minGroups {
		return nil, sql.ErrNoRows
	}
	return s.candidate, nil
}

func (s *fakeStore) ReassignSubscription(subID, oldSessionID, newSessionID, userID int) error {
	s.reassigns = append(s.reassigns, reassignment{subID, oldSessionID, newSessionID, userID})
	// Аренда теперь висит на новой сессии.
	s.sub.SessionID = newSessionID
	return nil
}

type fakeConns struct {
	unloaded []int
	acquired []int
}

func (c *fakeConns) Acquire(ctx context.Context, sessionID int) (registry.Conn, error) {
	c.acquired = append(c.acquired, sessionID)
	return nil, nil
}

func (c *fakeConns) Unload(sessionID int) {
	c.unloaded = append(c.unloaded, sessionID)
}

func testController(store *fakeStore, conns *fakeConns) *Controller {
	return NewController(store, conns, Config{
		LongFloodWait: time.Hour,
		MinGroups:     200,
	})
}

func TestHandleFloodWaitShortBlocksWithoutReplace(t *testing.T) {
	store := newFakeStore()
	store.sub = &models.Subscription{ID: 1, SessionID: 5, UserID: 9}
	store.candidate = &models.Session{ID: 6, GroupsCount: 250}
	conns := &fakeConns{}
	c := testController(store, conns)

	if err := c.HandleFloodWait(context.Background(), 5, 30); err != nil {
		t.Fatalf("HandleFloodWait: %v", err)
	}

	if store.blocked[5] != "Flood wait: 30с" {
		t.Errorf("причина блокировки %q", store.blocked[5])
	}
	if len(store.reassigns) != 0 {
		t.Errorf("короткая пауза не должна вести к замене, но аренда перевешена: %v", store.reassigns)
	}
}

func TestHandleFloodWaitLongTriggersReplace(t *testing.T) {
	store := newFakeStore()
	store.sub = &models.Subscription{ID: 1, SessionID: 5, UserID: 9}
	store.candidate = &models.Session{ID: 6, GroupsCount: 250}
	conns := &fakeConns{}
	c := testController(store, conns)

	if err := c.HandleFloodWait(context.Background(), 5, 7200); err != nil {
		t.Fatalf("HandleFloodWait: %v", err)
	}

	want := []reassignment{{SubID: 1, OldSessionID: 5, NewSessionID: 6, UserID: 9}}
	if diff := cmp.Diff(want, store.reassigns); diff != "" {
		t.Errorf("перевес аренды (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{5}, conns.unloaded); diff != "" {
		t.Errorf("выгрузка старого подключения (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{6}, conns.acquired); diff != "" {
		t.Errorf("прогрев нового подключения (-want +got):\n%s", diff)
	}
}

func TestHandleBanAlwaysReplaces(t *testing.T) {
	store := newFakeStore()
	store.sub = &models.Subscription{ID: 2, SessionID: 3, UserID: 8}
	store.candidate = &models.Session{ID: 4, GroupsCount: 300}
	conns := &fakeConns{}
	c := testController(store, conns)

	if err := c.HandleBan(context.Background(), 3, "SPAM_BLOCK"); err != nil {
		t.Fatalf("HandleBan: %v", err)
	}

	if store.spam[3] != "SPAM_BLOCK" {
		t.Errorf("причина спам-статуса %q", store.spam[3])
	}
	if len(store.reassigns) != 1 {
		t.Fatalf("перевесов %d, ожидался 1", len(store.reassigns))
	}
}

func TestReplaceIdempotent(t *testing.T) {
	store := newFakeStore()
	store.sub = &models.Subscription{ID: 2, SessionID: 3, UserID: 8}
	store.candidate = &models.Session{ID: 4, GroupsCount: 300}
	conns := &fakeConns{}
	c := testController(store, conns)

	if err := c.Replace(context.Background(), 3, "UNHEALTHY"); err != nil {
		t.Fatalf("первый Replace: %v", err)
	}
	// Повторный сигнал той же сессии: активной аренды у неё уже нет.
	if err := c.Replace(context.Background(), 3, "UNHEALTHY"); err != nil {
		t.Fatalf("повторный Replace: %v", err)
	}

	if len(store.reassigns) != 1 {
		t.Errorf("перевесов %d, ожидался 1", len(store.reassigns))
	}
}

func TestReplaceWithoutCandidateIsNotAnError(t *testing.T) {
	store := newFakeStore()
	store.sub = &models.Subscription{ID: 2, SessionID: 3, UserID: 8}
	store.candidate = &models.Session{ID: 4, GroupsCount: 50} // окружение меньше порога
	conns := &fakeConns{}
	c := testController(store, conns)

	if err := c.Replace(context.Background(), 3, "USER_BANNED"); err != nil {
		t.Fatalf("Replace без кандидата: %v", err)
	}
	if len(store.reassigns) != 0 {
		t.Errorf("аренда перевешена на кандидата ниже порога: %v", store.reassigns)
	}
	if len(conns.unloaded) != 0 {
		t.Errorf("подключение выгружено без замены: %v", conns.unloaded)
	}
}

func TestReplaceWithoutSubscriptionIsNoop(t *testing.T) {
	store := newFakeStore()
	store.candidate = &models.Session{ID: 4, GroupsCount: 300}
	conns := &fakeConns{}
	c := testController(store, conns)

	if err := c.Replace(context.Background(), 3, "UNHEALTHY"); err != nil {
		t.Fatalf("Replace свободной сессии: %v", err)
	}
	if len(store.reassigns) != 0 || len(conns.unloaded) != 0 {
		t.Error("замена свободной сессии должна быть пустой операцией")
	}
}
