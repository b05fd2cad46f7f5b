package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"tsr_go/internal/abuse"
	"tsr_go/internal/broadcast"
	"tsr_go/internal/config"
	"tsr_go/internal/health"
	"tsr_go/internal/queue"
	"tsr_go/internal/registry"
	"tsr_go/internal/sessions"
	"tsr_go/internal/stats"
	"tsr_go/internal/subscriptions"
	"tsr_go/internal/users"
	"tsr_go/migrations"
	"tsr_go/models"
	"tsr_go/pkg/storage"
	"tsr_go/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация подключения к БД
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	// Проверка подключения
	if err := dbConn.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	// Схема накатывается при старте, отдельный cmd/migrate — для деплоя
	if err := migrations.Run(dbConn); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	db := storage.NewDB(dbConn)

	// Пул подключений к Telegram: одно живое подключение на сессию
	reg := registry.New(db, func(s *models.Session) (registry.Conn, error) {
		return telegram.NewHandle(dbConn, s), nil
	}, cfg.ProbeTimeout)

	// Контроллер антиспам-сигналов и замены сессий
	ctrl := abuse.NewController(db, reg, abuse.Config{
		LongFloodWait: cfg.LongFloodWait,
		MinGroups:     cfg.MinGroupsForSwap,
	})

	// Очередь заданий и конвейер рассылки
	q := queue.New(db, cfg.QueuePollEvery)
	pipeline := broadcast.NewPipeline(db, reg, q, ctrl, broadcast.Config{
		BatchSize:       cfg.GroupsPerBatch,
		InterBatchDelay: cfg.InterBatchDelay,
		PerMessageDelay: cfg.PerMessageDelay,
	})
	q.Register(broadcast.KindSplit, cfg.SplitConcurrency, pipeline.ProcessSplit)
	q.Register(broadcast.KindBatch, cfg.BatchConcurrency, pipeline.ProcessBatch)
	q.Start()
	defer q.Stop()

	monitor := health.NewMonitor(db, reg, ctrl, health.Config{
		ProbeTimeout: cfg.ProbeTimeout,
		StaleAfter:   cfg.StaleAfter,
		ReplaceDelay: cfg.ReplaceDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Периодический опрос загруженных подключений
	go func() {
		ticker := time.NewTicker(cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				monitor.RunHealthCheck(ctx)
			}
		}
	}()

	// Настройка роутера
	r, subsHandler := setupRouter(db, reg, pipeline)

	// Фоновые расписания: поиск нездоровых арендованных сессий,
	// суточный сброс счётчиков, закрытие просроченных аренд
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.UnhealthySweepSpec, func() { monitor.RunUnhealthySweep(ctx) }); err != nil {
		log.Fatalf("Bad UNHEALTHY_SWEEP_CRON: %v", err)
	}
	if _, err := sched.AddFunc(cfg.DailyResetSpec, func() { monitor.ResetDailyCounters() }); err != nil {
		log.Fatalf("Bad DAILY_RESET_CRON: %v", err)
	}
	if _, err := sched.AddFunc(cfg.ExpireSweepSpec, func() { subsHandler.ExpireSweep(ctx) }); err != nil {
		log.Fatalf("Bad EXPIRE_SWEEP_CRON: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Запуск сервера
	log.Printf("Starting server on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// Настройка маршрутов
func setupRouter(db *storage.DB, reg *registry.Registry, pipeline *broadcast.Pipeline) (*gin.Engine, *subscriptions.Handler) {
	r := gin.Default()

	// Группа роутов для сессий
	sessionGroup := r.Group("/sessions")
	sessions.SetupRoutes(sessionGroup, db, reg)

	// Группа роутов для аренд
	subsGroup := r.Group("/subscriptions")
	subsHandler := subscriptions.SetupRoutes(subsGroup, db, reg)

	// Группа роутов для рассылок
	messageGroup := r.Group("/messages")
	broadcast.SetupRoutes(messageGroup, db, pipeline)

	// Группа роутов для пользователей
	userGroup := r.Group("/users")
	users.SetupRoutes(userGroup, db)

	// Группа роутов для статистики
	statsGroup := r.Group("/stats")
	stats.SetupRoutes(statsGroup, db, reg)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Логирование зарегистрированных роутов
	log.Printf("[ROUTER] Routes initialized:")
	log.Printf("[ROUTER] POST /sessions/create")
	log.Printf("[ROUTER] POST /sessions/verify")
	log.Printf("[ROUTER] POST /subscriptions")
	log.Printf("[ROUTER] POST /messages/send")
	log.Printf("[ROUTER] GET /health")

	return r, subsHandler
}
