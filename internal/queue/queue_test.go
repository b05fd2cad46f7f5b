package queue

import (
	"testing"
	"time"

	"tsr_go/models"
)

type fakeStore struct {
	created  []models.Job
	requeues int
	orphaned int64
}

func (s *fakeStore) CreateJob(j models.Job) (*models.Job, error) {
	j.ID = int64(len(s.created) + 1)
	s.created = append(s.created, j)
	return &j, nil
}

func (s *fakeStore) RequeueActiveJobs() (int64, error) {
	s.requeues++
	return s.orphaned, nil
}

func (s *fakeStore) ClaimDueJobs(kind string, limit int) ([]models.Job, error) { return nil, nil }
func (s *fakeStore) MarkJobDone(id int64) error                               { return nil }
func (s *fakeStore) RetryJob(id int64, errMsg string, runAt time.Time) error  { return nil }
func (s *fakeStore) FailJob(id int64, errMsg string) error                    { return nil }

func TestNextBackoffFixed(t *testing.T) {
	job := models.Job{BackoffKind: models.BackoffFixed, BackoffDelayMS: 10000}
	for attempts := 1; attempts <= 3; attempts++ {
		job.Attempts = attempts
		if got := NextBackoff(job); got != 10*time.Second {
			t.Errorf("попытка %d: пауза %s, ожидалось 10s", attempts, got)
		}
	}
}

func TestNextBackoffExponential(t *testing.T) {
	job := models.Job{BackoffKind: models.BackoffExponential, BackoffDelayMS: 5000}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i, w := range want {
		job.Attempts = i + 1
		if got := NextBackoff(job); got != w {
			t.Errorf("попытка %d: пауза %s, ожидалось %s", job.Attempts, got, w)
		}
	}
}

func TestEnqueueDefaults(t *testing.T) {
	store := &fakeStore{}
	q := New(store, time.Second)

	if err := q.Enqueue("test_kind", map[string]int{"a": 1}, Options{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job := store.created[0]
	if job.MaxAttempts != 1 {
		t.Errorf("max_attempts = %d, ожидалось 1", job.MaxAttempts)
	}
	if job.BackoffKind != models.BackoffFixed {
		t.Errorf("backoff_kind = %q", job.BackoffKind)
	}
	if string(job.Payload) != `{"a":1}` {
		t.Errorf("payload = %s", job.Payload)
	}
}

func TestStartRequeuesInterruptedJobs(t *testing.T) {
	store := &fakeStore{orphaned: 2}
	q := New(store, time.Hour)

	// Задания, оставшиеся в active после падения процесса,
	// возвращаются в очередь до запуска воркеров.
	q.Start()
	defer q.Stop()

	if store.requeues != 1 {
		t.Errorf("возвратов прерванных заданий %d, ожидался 1", store.requeues)
	}
}

func TestEnqueueDelay(t *testing.T) {
	store := &fakeStore{}
	q := New(store, time.Second)

	before := time.Now()
	if err := q.Enqueue("test_kind", nil, Options{Delay: 40 * time.Second}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runAt := store.created[0].RunAt
	if runAt.Before(before.Add(39 * time.Second)) {
		t.Errorf("run_at %s раньше ожидаемой задержки", runAt)
	}
}
