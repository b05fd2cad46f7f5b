package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config собирает все настройки сервиса из переменных окружения.
type Config struct {
	DatabaseURL string
	Port        string

	// Разбиение рассылки.
	GroupsPerBatch  int           // групп в одной пачке
	InterBatchDelay time.Duration // пауза между пачками от старта рассылки
	PerMessageDelay time.Duration // пауза между сообщениями внутри пачки

	// Здоровье сессий.
	HealthCheckInterval time.Duration // период опроса подключений
	StaleAfter          time.Duration // давность last_health_check для замены
	ProbeTimeout        time.Duration // таймаут одного опроса/переподключения
	UnhealthySweepSpec  string        // cron-расписание поиска нездоровых сессий
	DailyResetSpec      string        // cron-расписание сброса суточных счётчиков
	ExpireSweepSpec     string        // cron-расписание закрытия просроченных аренд

	// Политика замены.
	LongFloodWait    time.Duration // флуд-бан дольше порога сразу ведёт к замене
	MinGroupsForSwap int           // минимальный размер окружения кандидата
	ReplaceDelay     time.Duration // пауза между заменами в одном проходе

	// Очередь заданий.
	SplitConcurrency int // воркеры разбиения рассылок
	BatchConcurrency int // воркеры отправки пачек
	QueuePollEvery   time.Duration
}

// Load читает окружение и подставляет значения по умолчанию.
// Обязателен только DATABASE_URL.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                envString("PORT", "8080"),
		GroupsPerBatch:      envInt("GROUPS_PER_BATCH", 10),
		InterBatchDelay:     envMillis("MESSAGE_DELAY_MS", 5000),
		PerMessageDelay:     envMillis("SEND_DELAY_MS", 500),
		HealthCheckInterval: envMillis("HEALTH_CHECK_INTERVAL_MS", 300000),
		StaleAfter:          envMillis("HEALTH_STALE_MS", 10*60*1000),
		ProbeTimeout:        envMillis("PROBE_TIMEOUT_MS", 15000),
		UnhealthySweepSpec:  envString("UNHEALTHY_SWEEP_CRON", "*/15 * * * *"),
		DailyResetSpec:      envString("DAILY_RESET_CRON", "0 0 * * *"),
		ExpireSweepSpec:     envString("EXPIRE_SWEEP_CRON", "@hourly"),
		LongFloodWait:       time.Duration(envInt("LONG_FLOOD_WAIT_S", 3600)) * time.Second,
		MinGroupsForSwap:    envInt("MIN_GROUPS_FOR_REPLACEMENT", 200),
		ReplaceDelay:        envMillis("REPLACE_DELAY_MS", 2000),
		SplitConcurrency:    envInt("SPLIT_CONCURRENCY", 50),
		BatchConcurrency:    envInt("BATCH_CONCURRENCY", 10),
		QueuePollEvery:      envMillis("QUEUE_POLL_MS", 1000),
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("переменная окружения DATABASE_URL обязательна")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envMillis(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Millisecond
}
