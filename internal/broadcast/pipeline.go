// Package broadcast — конвейер рассылки: разбиение на пачки групп,
// отправка пачек с дросселированием и сведение исходов в счётчики рассылки.
package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tsr_go/internal/common"
	"tsr_go/internal/queue"
	"tsr_go/internal/registry"
	"tsr_go/models"
	"tsr_go/pkg/telegram"
)

// ErrNoActiveGroups — у сессии нет активных групп, рассылка терминально проваливается.
var ErrNoActiveGroups = errors.New("нет активных групп у сессии")

// Store — операции конвейера над хранилищем. Реализуется storage.DB.
type Store interface {
	MarkMessageProcessing(id int) error
	SetMessageTotalGroups(id, total int) error
	FailMessage(id int, errMsg string) error
	IncrementMessageCounters(id, sent, failed, skipped int) error
	CompleteMessageIfDone(id int) (bool, error)
	ActiveSessionGroups(sessionID int) ([]models.SessionGroup, error)
	GroupBySessionAndRemoteID(sessionID int, groupID string) (*models.SessionGroup, error)
	TouchGroupSent(groupRowID int) error
	IncrementSessionSent(sessionID, n int) error
}

// Conns — доступ к пулу подключений. Реализуется registry.Registry.
type Conns interface {
	Acquire(ctx context.Context, sessionID int) (registry.Conn, error)
	LockSession(sessionID int)
	UnlockSession(sessionID int)
}

// Enqueuer ставит задания в очередь. Реализуется queue.Queue.
type Enqueuer interface {
	Enqueue(kind string, payload any, opts queue.Options) error
}

// AbuseHandler принимает антиспам-сигналы, поднятые при отправке.
// Только он имеет право менять статус сессии.
type AbuseHandler interface {
	HandleFloodWait(ctx context.Context, sessionID, seconds int) error
	HandleBan(ctx context.Context, sessionID int, reason string) error
}

// Config — настройки конвейера.
type Config struct {
	BatchSize       int           // групп в одной пачке
	InterBatchDelay time.Duration // задержка пачек после первой, от старта рассылки
	PerMessageDelay time.Duration // пауза между отправками внутри пачки
}

// Pipeline — конвейер рассылки. Состояния рассылки:
// pending -> processing -> {completed | failed}.
type Pipeline struct {
	store Store
	conns Conns
	jobs  Enqueuer
	abuse AbuseHandler
	cfg   Config
}

func NewPipeline(store Store, conns Conns, jobs Enqueuer, abuse AbuseHandler, cfg Config) *Pipeline {
	return &Pipeline{store: store, conns: conns, jobs: jobs, abuse: abuse, cfg: cfg}
}

// Submit ставит задание разбиения для только что созданной рассылки.
func (p *Pipeline) Submit(m *models.Message) error {
	return p.jobs.Enqueue(KindSplit, SplitJob{
		MessageID:     m.ID,
		SessionID:     m.SessionID,
		UserID:        m.UserID,
		Content:       m.Content,
		ContactNumber: m.ContactNumber,
	}, splitOptions())
}

// ProcessSplit — обработчик задания разбиения: переводит рассылку в processing,
// фиксирует объём и раскладывает группы по пачкам. Любая ошибка этапа
// терминальна для рассылки; повторную доставку самого задания решает очередь.
func (p *Pipeline) ProcessSplit(ctx context.Context, payload []byte) error {
	var job SplitJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return err
	}
	if err := p.split(ctx, job); err != nil {
		if ferr := p.store.FailMessage(job.MessageID, err.Error()); ferr != nil {
			log.Printf("[BROADCAST] провал рассылки %d: %v", job.MessageID, ferr)
		}
		return err
	}
	return nil
}

func (p *Pipeline) split(ctx context.Context, job SplitJob) error {
	if err := p.store.MarkMessageProcessing(job.MessageID); err != nil {
		return err
	}

	groups, err := p.store.ActiveSessionGroups(job.SessionID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return ErrNoActiveGroups
	}

	if err := p.store.SetMessageTotalGroups(job.MessageID, len(groups)); err != nil {
		return err
	}

	content := job.Content
	if job.ContactNumber != "" {
		content = fmt.Sprintf("%s\n\n📞 Контакт: %s", job.Content, job.ContactNumber)
	}

	groupIDs := make([]string, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.GroupID
	}

	// Пачки независимы: задержка отсчитывается от старта рассылки,
	// а не от завершения предыдущей пачки.
	batches := 0
	for i := 0; i < len(groupIDs); i += p.cfg.BatchSize {
		end := i + p.cfg.BatchSize
		if end > len(groupIDs) {
			end = len(groupIDs)
		}
		var delay time.Duration
		if i > 0 {
			delay = p.cfg.InterBatchDelay
		}
		err := p.jobs.Enqueue(KindBatch, BatchJob{
			MessageID: job.MessageID,
			SessionID: job.SessionID,
			GroupIDs:  groupIDs[i:end],
			Content:   content,
		}, batchOptions(delay))
		if err != nil {
			return err
		}
		batches++
	}

	log.Printf("[BROADCAST] рассылка %d: %d групп, %d пачек", job.MessageID, len(groupIDs), batches)
	return nil
}

// ProcessBatch — обработчик задания пачки: отправляет сообщение в группы
// по порядку, с паузой между отправками. Пачки одной сессии выполняются
// строго по очереди через замок сессии.
func (p *Pipeline) ProcessBatch(ctx context.Context, payload []byte) error {
	var job BatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return err
	}

	p.conns.LockSession(job.SessionID)
	defer p.conns.UnlockSession(job.SessionID)

	conn, err := p.conns.Acquire(ctx, job.SessionID)
	if err != nil {
		return err
	}

	var sent, failed, skipped int
	for i, gid := range job.GroupIDs {
		if i > 0 {
			// Пауза между отправками сглаживает всплеск. До сведения счётчиков
			// отмена контекста безопасна: пачка уйдёт на повтор целиком.
			if err := common.Wait(ctx, p.cfg.PerMessageDelay); err != nil {
				return err
			}
		}

		// Перепроверяем группу перед отправкой: флаг активности могли снять.
		// Пропуск — только для исчезнувших и выключенных групп; сбой самой
		// проверки учитывается как failed, чтобы не маскировать проблемы БД.
		g, err := p.store.GroupBySessionAndRemoteID(job.SessionID, gid)
		if errors.Is(err, sql.ErrNoRows) {
			skipped++
			continue
		}
		if err != nil {
			log.Printf("[BROADCAST] проверка группы %s: %v", gid, err)
			failed++
			continue
		}
		if !g.IsActive {
			skipped++
			continue
		}
		ref, err := g.Ref()
		if err != nil {
			failed++
			continue
		}

		sendErr := conn.SendToGroup(ctx, ref, job.Content)
		if sendErr == nil {
			sent++
			if err := p.store.TouchGroupSent(g.ID); err != nil {
				log.Printf("[BROADCAST] статистика группы %s: %v", gid, err)
			}
			continue
		}

		var floodWait *telegram.FloodWaitError
		if errors.As(sendErr, &floodWait) {
			// Сигнал обрывает пачку; неотправленный остаток уходит отдельным
			// заданием после предписанной паузы с запасом в десять секунд.
			log.Printf("[BROADCAST] сессия %d: FLOOD_WAIT %d сек на группе %s", job.SessionID, floodWait.Seconds, gid)
			if err := p.abuse.HandleFloodWait(ctx, job.SessionID, floodWait.Seconds); err != nil {
				log.Printf("[BROADCAST] обработка FLOOD_WAIT: %v", err)
			}
			retry := BatchJob{
				MessageID: job.MessageID,
				SessionID: job.SessionID,
				GroupIDs:  job.GroupIDs[i:],
				Content:   job.Content,
			}
			delay := time.Duration(floodWait.Seconds+10) * time.Second
			if err := p.jobs.Enqueue(KindBatch, retry, batchOptions(delay)); err != nil {
				log.Printf("[BROADCAST] перенос пачки рассылки %d: %v", job.MessageID, err)
			}
			break
		}

		var spamBlock *telegram.SpamBlockedError
		var userBanned *telegram.UserBannedError
		if errors.As(sendErr, &spamBlock) || errors.As(sendErr, &userBanned) {
			reason := "SPAM_BLOCK"
			if userBanned != nil {
				reason = "USER_BANNED"
			}
			log.Printf("[BROADCAST] сессия %d: %s, пачка прервана", job.SessionID, reason)
			// Сессия потеряна для рассылки; остаток пачки учитываем как
			// пропущенный, иначе рассылка никогда не достигнет completed.
			skipped += len(job.GroupIDs) - i
			if err := p.abuse.HandleBan(ctx, job.SessionID, reason); err != nil {
				log.Printf("[BROADCAST] обработка бана: %v", err)
			}
			break
		}

		// Обычный сбой отправки учитывается локально и пачку не прерывает.
		log.Printf("[BROADCAST] отправка в группу %s: %v", gid, sendErr)
		failed++
	}

	return p.flush(job, sent, failed, skipped)
}

// flush прибавляет дельты пачки к счётчикам рассылки и сессии
// и завершает рассылку, когда учтены все группы.
func (p *Pipeline) flush(job BatchJob, sent, failed, skipped int) error {
	if err := p.store.IncrementMessageCounters(job.MessageID, sent, failed, skipped); err != nil {
		return err
	}
	if err := p.store.IncrementSessionSent(job.SessionID, sent); err != nil {
		log.Printf("[BROADCAST] счётчик сессии %d: %v", job.SessionID, err)
	}

	done, err := p.store.CompleteMessageIfDone(job.MessageID)
	if err != nil {
		return err
	}
	if done {
		log.Printf("[BROADCAST] рассылка %d завершена", job.MessageID)
	}
	log.Printf("[BROADCAST] пачка рассылки %d: %d отправлено, %d сбоев, %d пропущено",
		job.MessageID, sent, failed, skipped)
	return nil
}
