package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// replacementTestDriver реализует минимальный SQL-драйвер для тестов выборки
// кандидата на замену и удаления сессии. Он возвращает предопределённые
// ответы и не требует внешних зависимостей.
type replacementTestDriver struct{}

type replacementTestConn struct{}

type replacementTestRows struct {
	columns []string
	data    [][]driver.Value
	idx     int
}

type replacementResult struct{ affected int64 }

func (replacementTestDriver) Open(name string) (driver.Conn, error) {
	return &replacementTestConn{}, nil
}

func (c *replacementTestConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (c *replacementTestConn) Close() error              { return nil }
func (c *replacementTestConn) Begin() (driver.Tx, error) { return nil, errors.New("not implemented") }

func (c *replacementTestConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	// Единственная строка — кандидат без привязки к прокси.
	return &replacementTestRows{
		columns: []string{
			"id", "phone", "api_id", "api_hash", "phone_code_hash", "session_data",
			"is_authorized", "status", "is_healthy", "groups_count", "messages_sent_today",
			"last_message_at", "last_health_check", "ban_reason", "current_user_id",
			"proxy_id", "created_at",
			"p_id", "p_ip", "p_port", "p_login", "p_password", "p_is_active",
		},
		data: [][]driver.Value{{
			int64(6), "+79990001122", int64(12345), "hash", nil, []byte("blob"),
			true, "available", true, int64(250), int64(0),
			nil, time.Now(), nil, nil,
			nil, time.Now(),
			nil, nil, nil, nil, nil, nil,
		}},
	}, nil
}

func (c *replacementTestConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	// DELETE с условием на статус не задевает арендованную сессию.
	return replacementResult{affected: 0}, nil
}

func (r *replacementTestRows) Columns() []string { return r.columns }
func (r *replacementTestRows) Close() error      { return nil }
func (r *replacementTestRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.idx])
	r.idx++
	return nil
}

func (r replacementResult) LastInsertId() (int64, error) { return 0, nil }
func (r replacementResult) RowsAffected() (int64, error) { return r.affected, nil }

func init() {
	sql.Register("replacementDummy", replacementTestDriver{})
	sql.Register("captureDummy", captureTestDriver{})
}

// captureTestDriver записывает выполненные запросы и их аргументы,
// чтобы проверять содержимое UPDATE без настоящей БД.
type captureTestDriver struct{}

type captureExec struct {
	query string
	args  []driver.Value
}

var capturedExecs []captureExec

type captureTestConn struct{}

type captureTestTx struct{}

func (captureTestDriver) Open(name string) (driver.Conn, error) { return &captureTestConn{}, nil }

func (c *captureTestConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (c *captureTestConn) Close() error              { return nil }
func (c *captureTestConn) Begin() (driver.Tx, error) { return captureTestTx{}, nil }

func (captureTestTx) Commit() error   { return nil }
func (captureTestTx) Rollback() error { return nil }

func (c *captureTestConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (c *captureTestConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	capturedExecs = append(capturedExecs, captureExec{query: query, args: values})
	return replacementResult{affected: 1}, nil
}

func captureDB(t *testing.T) *DB {
	t.Helper()
	capturedExecs = nil
	conn, err := sql.Open("captureDummy", "")
	if err != nil {
		t.Fatal(err)
	}
	return NewDB(conn)
}

func TestFindReplacementSessionScansCandidate(t *testing.T) {
	conn, err := sql.Open("replacementDummy", "")
	if err != nil {
		t.Fatal(err)
	}
	db := NewDB(conn)

	s, err := db.FindReplacementSession(200)
	if err != nil {
		t.Fatalf("FindReplacementSession: %v", err)
	}

	if s.ID != 6 {
		t.Errorf("ID = %d, ожидалось 6", s.ID)
	}
	if s.GroupsCount != 250 {
		t.Errorf("GroupsCount = %d, ожидалось 250", s.GroupsCount)
	}
	if !s.IsHealthy || !s.IsAuthorized {
		t.Error("кандидат должен быть здоров и авторизован")
	}
	if s.Proxy != nil {
		t.Errorf("прокси не привязан, но разобран: %+v", s.Proxy)
	}
	if string(s.SessionData) != "blob" {
		t.Errorf("session_data = %q", s.SessionData)
	}
}

func TestDeleteSessionRefusesRented(t *testing.T) {
	conn, err := sql.Open("replacementDummy", "")
	if err != nil {
		t.Fatal(err)
	}
	db := NewDB(conn)

	if err := db.DeleteSession(1); err == nil {
		t.Fatal("удаление арендованной сессии должно возвращать ошибку")
	}
}

func TestMarkSessionBlockedDropsHealth(t *testing.T) {
	db := captureDB(t)

	if err := db.MarkSessionBlocked(5, "Flood wait: 30с"); err != nil {
		t.Fatalf("MarkSessionBlocked: %v", err)
	}

	if len(capturedExecs) != 1 {
		t.Fatalf("запросов %d, ожидался 1", len(capturedExecs))
	}
	// Статус blocked влечёт is_healthy = false.
	if !strings.Contains(capturedExecs[0].query, "is_healthy = false") {
		t.Errorf("запрос не сбрасывает is_healthy: %s", capturedExecs[0].query)
	}
}

func TestMarkSessionHealthyRestoresBlockedAndDisconnected(t *testing.T) {
	db := captureDB(t)

	if err := db.MarkSessionHealthy(5); err != nil {
		t.Fatalf("MarkSessionHealthy: %v", err)
	}

	if len(capturedExecs) != 1 {
		t.Fatalf("запросов %d, ожидался 1", len(capturedExecs))
	}
	args := capturedExecs[0].args
	// Успешный опрос возвращает в rented и отключённые,
	// и заблокированные коротким флуд-баном сессии.
	if len(args) != 4 || args[0] != "disconnected" || args[1] != "blocked" || args[2] != "rented" {
		t.Errorf("аргументы восстановления статуса: %v", args)
	}
}

func TestReassignSubscriptionDropsOldSessionHealth(t *testing.T) {
	db := captureDB(t)

	if err := db.ReassignSubscription(1, 5, 6, 9); err != nil {
		t.Fatalf("ReassignSubscription: %v", err)
	}

	if len(capturedExecs) != 3 {
		t.Fatalf("запросов %d, ожидалось 3", len(capturedExecs))
	}
	// Старая сессия блокируется нездоровой, чтобы не выглядеть живой для выборок.
	if !strings.Contains(capturedExecs[0].query, "is_healthy = false") {
		t.Errorf("запрос не сбрасывает is_healthy старой сессии: %s", capturedExecs[0].query)
	}
}
