// Package health следит за живостью загруженных подключений и сверяет
// сохранённое состояние сессий с фактическим. Монитор только выполняет
// проходы по требованию; расписание задаёт внешний планировщик.
package health

import (
	"context"
	"log"
	"time"

	"tsr_go/internal/common"
	"tsr_go/internal/registry"
	"tsr_go/models"
)

// Store — операции монитора над хранилищем. Реализуется storage.DB.
type Store interface {
	MarkSessionHealthy(sessionID int) error
	MarkSessionDisconnected(sessionID int) error
	StaleUnhealthyRented(staleAfter time.Duration) ([]models.Session, error)
	ResetDailyCounters() error
}

// Conns — операции над пулом подключений. Реализуется registry.Registry.
type Conns interface {
	Get(sessionID int) (registry.Conn, bool)
	Acquire(ctx context.Context, sessionID int) (registry.Conn, error)
	Unload(sessionID int)
	PooledIDs() []int
}

// Replacer запускает замену сессии. Реализуется abuse.Controller.
type Replacer interface {
	Replace(ctx context.Context, oldSessionID int, reason string) error
}

// Config — пороги и паузы монитора.
type Config struct {
	ProbeTimeout time.Duration // таймаут одного опроса или переподключения
	StaleAfter   time.Duration // давность last_health_check для замены
	ReplaceDelay time.Duration // пауза между заменами в одном проходе
}

type Monitor struct {
	store    Store
	conns    Conns
	replacer Replacer
	cfg      Config
}

func NewMonitor(store Store, conns Conns, replacer Replacer, cfg Config) *Monitor {
	return &Monitor{store: store, conns: conns, replacer: replacer, cfg: cfg}
}

// RunHealthCheck опрашивает все загруженные подключения.
// Живое подключение подтверждает здоровье сессии; на мёртвом выполняется
// одна попытка переподключения, неудача остаётся следующему проходу.
func (m *Monitor) RunHealthCheck(ctx context.Context) {
	ids := m.conns.PooledIDs()
	log.Printf("[HEALTH] проверка %d подключений", len(ids))

	for _, id := range ids {
		conn, ok := m.conns.Get(id)
		if !ok {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		err := conn.Self(probeCtx)
		cancel()

		if err == nil {
			if uerr := m.store.MarkSessionHealthy(id); uerr != nil {
				log.Printf("[HEALTH] отметка здоровья сессии %d: %v", id, uerr)
			}
			continue
		}

		log.Printf("[HEALTH] сессия %d не отвечает: %v", id, err)
		if uerr := m.store.MarkSessionDisconnected(id); uerr != nil {
			log.Printf("[HEALTH] отметка отключения сессии %d: %v", id, uerr)
		}

		// Одна попытка переподключения через реестр.
		m.conns.Unload(id)
		reCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		_, err = m.conns.Acquire(reCtx, id)
		cancel()
		if err != nil {
			log.Printf("[HEALTH] переподключение сессии %d: %v", id, err)
			continue
		}
		if uerr := m.store.MarkSessionHealthy(id); uerr != nil {
			log.Printf("[HEALTH] отметка здоровья сессии %d: %v", id, uerr)
		}
	}
}

// RunUnhealthySweep ищет арендованные сессии, которые давно нездоровы,
// и перевешивает их аренды. Паузы между заменами размазывают нагрузку,
// чтобы массовый сбой не породил лавину замен. Ошибки прохода не фатальны:
// состояние перепроверится на следующем проходе.
func (m *Monitor) RunUnhealthySweep(ctx context.Context) {
	sessions, err := m.store.StaleUnhealthyRented(m.cfg.StaleAfter)
	if err != nil {
		log.Printf("[HEALTH] выборка нездоровых сессий: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	log.Printf("[HEALTH] найдено %d нездоровых арендованных сессий", len(sessions))

	for i, s := range sessions {
		if i > 0 {
			if err := common.Wait(ctx, m.cfg.ReplaceDelay); err != nil {
				return
			}
		}
		if err := m.replacer.Replace(ctx, s.ID, "UNHEALTHY"); err != nil {
			log.Printf("[HEALTH] замена сессии %d: %v", s.ID, err)
		}
	}
}

// ResetDailyCounters обнуляет суточные счётчики отправок всех сессий.
func (m *Monitor) ResetDailyCounters() {
	if err := m.store.ResetDailyCounters(); err != nil {
		log.Printf("[HEALTH] сброс суточных счётчиков: %v", err)
		return
	}
	log.Printf("[HEALTH] суточные счётчики отправок обнулены")
}
