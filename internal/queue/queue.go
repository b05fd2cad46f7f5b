// Package queue — воркеры долговременной очереди заданий.
// Сами задания лежат в Postgres (pkg/storage), очередь обеспечивает
// доставку "как минимум один раз", отложенный запуск и повторы с паузой.
// Порядок между несвязанными заданиями не гарантируется.
package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"tsr_go/models"
)

// Store — операции очереди над таблицей заданий. Реализуется storage.DB.
type Store interface {
	CreateJob(j models.Job) (*models.Job, error)
	ClaimDueJobs(kind string, limit int) ([]models.Job, error)
	RequeueActiveJobs() (int64, error)
	MarkJobDone(id int64) error
	RetryJob(id int64, errMsg string, runAt time.Time) error
	FailJob(id int64, errMsg string) error
}

// Handler обрабатывает одно задание. Ошибка ведёт к повтору по политике задания.
type Handler func(ctx context.Context, payload []byte) error

// Options — политика отдельного задания, задаётся при постановке.
type Options struct {
	Delay        time.Duration // отложенный запуск
	MaxAttempts  int           // всего попыток, включая первую
	BackoffKind  string        // models.BackoffFixed или models.BackoffExponential
	BackoffDelay time.Duration // базовая пауза между попытками
}

type kindWorker struct {
	kind        string
	concurrency int
	handler     Handler
	sem         chan struct{}
}

// Queue раздаёт созревшие задания зарегистрированным обработчикам.
type Queue struct {
	store Store
	poll  time.Duration

	mu    sync.Mutex
	kinds map[string]*kindWorker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store Store, poll time.Duration) *Queue {
	return &Queue{
		store: store,
		poll:  poll,
		kinds: make(map[string]*kindWorker),
	}
}

// Register подключает обработчик вида заданий с ограничением параллельности.
// Вызывается до Start.
func (q *Queue) Register(kind string, concurrency int, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.kinds[kind] = &kindWorker{
		kind:        kind,
		concurrency: concurrency,
		handler:     h,
		sem:         make(chan struct{}, concurrency),
	}
}

// Enqueue сериализует payload и кладёт задание в очередь.
func (q *Queue) Enqueue(kind string, payload any, opts Options) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffKind == "" {
		opts.BackoffKind = models.BackoffFixed
	}
	_, err = q.store.CreateJob(models.Job{
		Kind:           kind,
		Payload:        data,
		RunAt:          time.Now().Add(opts.Delay),
		MaxAttempts:    opts.MaxAttempts,
		BackoffKind:    opts.BackoffKind,
		BackoffDelayMS: int(opts.BackoffDelay / time.Millisecond),
	})
	if err != nil {
		return err
	}
	log.Printf("[QUEUE] задание %s поставлено, задержка %s", kind, opts.Delay)
	return nil
}

// Start запускает опрос очереди для всех зарегистрированных видов заданий.
// Задания, оставшиеся в active после падения процесса, возвращаются
// в очередь до запуска воркеров, иначе они потеряны навсегда.
func (q *Queue) Start() {
	if n, err := q.store.RequeueActiveJobs(); err != nil {
		log.Printf("[QUEUE] возврат прерванных заданий: %v", err)
	} else if n > 0 {
		log.Printf("[QUEUE] возвращено %d заданий, прерванных перезапуском", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range q.kinds {
		q.wg.Add(1)
		go q.runWorker(ctx, w)
	}
	log.Printf("[QUEUE] запущено %d воркеров", len(q.kinds))
}

// Stop останавливает опрос и дожидается заданий в работе.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) runWorker(ctx context.Context, w *kindWorker) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Забираем не больше, чем есть свободных слотов параллельности.
		free := w.concurrency - len(w.sem)
		if free <= 0 {
			continue
		}
		jobs, err := q.store.ClaimDueJobs(w.kind, free)
		if err != nil {
			log.Printf("[QUEUE] выборка заданий %s: %v", w.kind, err)
			continue
		}
		for _, job := range jobs {
			w.sem <- struct{}{}
			q.wg.Add(1)
			go func(job models.Job) {
				defer q.wg.Done()
				defer func() { <-w.sem }()
				q.runJob(ctx, w, job)
			}(job)
		}
	}
}

func (q *Queue) runJob(ctx context.Context, w *kindWorker, job models.Job) {
	err := w.handler(ctx, job.Payload)
	if err == nil {
		if err := q.store.MarkJobDone(job.ID); err != nil {
			log.Printf("[QUEUE] завершение задания %d: %v", job.ID, err)
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		log.Printf("[QUEUE] задание %d (%s) исчерпало попытки: %v", job.ID, job.Kind, err)
		if ferr := q.store.FailJob(job.ID, err.Error()); ferr != nil {
			log.Printf("[QUEUE] провал задания %d: %v", job.ID, ferr)
		}
		return
	}

	delay := NextBackoff(job)
	log.Printf("[QUEUE] задание %d (%s) будет повторено через %s: %v", job.ID, job.Kind, delay, err)
	if rerr := q.store.RetryJob(job.ID, err.Error(), time.Now().Add(delay)); rerr != nil {
		log.Printf("[QUEUE] повтор задания %d: %v", job.ID, rerr)
	}
}

// NextBackoff считает паузу перед следующей попыткой задания.
// fixed — постоянная пауза, exponential — удвоение с каждой попыткой.
func NextBackoff(job models.Job) time.Duration {
	base := time.Duration(job.BackoffDelayMS) * time.Millisecond
	if job.BackoffKind != models.BackoffExponential {
		return base
	}
	d := base
	for i := 1; i < job.Attempts; i++ {
		d *= 2
	}
	return d
}
