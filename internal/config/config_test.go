package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load без DATABASE_URL должен возвращать ошибку")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GroupsPerBatch != 10 {
		t.Errorf("GroupsPerBatch = %d, ожидалось 10", cfg.GroupsPerBatch)
	}
	if cfg.InterBatchDelay != 5*time.Second {
		t.Errorf("InterBatchDelay = %s, ожидалось 5s", cfg.InterBatchDelay)
	}
	if cfg.PerMessageDelay != 500*time.Millisecond {
		t.Errorf("PerMessageDelay = %s, ожидалось 500ms", cfg.PerMessageDelay)
	}
	if cfg.LongFloodWait != time.Hour {
		t.Errorf("LongFloodWait = %s, ожидался 1h", cfg.LongFloodWait)
	}
	if cfg.MinGroupsForSwap != 200 {
		t.Errorf("MinGroupsForSwap = %d, ожидалось 200", cfg.MinGroupsForSwap)
	}
	if cfg.UnhealthySweepSpec != "*/15 * * * *" {
		t.Errorf("UnhealthySweepSpec = %q", cfg.UnhealthySweepSpec)
	}
	if cfg.DailyResetSpec != "0 0 * * *" {
		t.Errorf("DailyResetSpec = %q", cfg.DailyResetSpec)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test?sslmode=disable")
	t.Setenv("GROUPS_PER_BATCH", "25")
	t.Setenv("MESSAGE_DELAY_MS", "1000")
	t.Setenv("LONG_FLOOD_WAIT_S", "600")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GroupsPerBatch != 25 {
		t.Errorf("GroupsPerBatch = %d, ожидалось 25", cfg.GroupsPerBatch)
	}
	if cfg.InterBatchDelay != time.Second {
		t.Errorf("InterBatchDelay = %s, ожидалось 1s", cfg.InterBatchDelay)
	}
	if cfg.LongFloodWait != 10*time.Minute {
		t.Errorf("LongFloodWait = %s, ожидалось 10m", cfg.LongFloodWait)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test?sslmode=disable")
	t.Setenv("GROUPS_PER_BATCH", "не число")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GroupsPerBatch != 10 {
		t.Errorf("GroupsPerBatch = %d, ожидалось значение по умолчанию 10", cfg.GroupsPerBatch)
	}
}
