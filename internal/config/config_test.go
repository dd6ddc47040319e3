package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
classifier:
  budget_per_minute: 12
  severe_terms: ["slurword"]
prefilter:
  sample_rate: 0.25
  strict_channels:
    -100123: "^\\d+$"
strikes:
  threshold: 5
quarantine:
  account_age_threshold: 48h
bot:
  forum_chats: [-100555]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Classifier.BudgetPerMinute != 12 {
		t.Fatalf("unexpected budget: %d", cfg.Classifier.BudgetPerMinute)
	}
	if len(cfg.Classifier.SevereTerms) != 1 || cfg.Classifier.SevereTerms[0] != "slurword" {
		t.Fatalf("unexpected severe terms: %v", cfg.Classifier.SevereTerms)
	}
	if cfg.Prefilter.SampleRate != 0.25 {
		t.Fatalf("unexpected sample rate: %v", cfg.Prefilter.SampleRate)
	}
	if cfg.Prefilter.StrictChannels[-100123] != `^\d+$` {
		t.Fatalf("unexpected strict channels: %v", cfg.Prefilter.StrictChannels)
	}
	if cfg.Strikes.Threshold != 5 {
		t.Fatalf("unexpected threshold: %d", cfg.Strikes.Threshold)
	}
	if cfg.Quarantine.AccountAgeThreshold != 48*time.Hour {
		t.Fatalf("unexpected account age threshold: %s", cfg.Quarantine.AccountAgeThreshold)
	}
	if len(cfg.Bot.ForumChats) != 1 || cfg.Bot.ForumChats[0] != -100555 {
		t.Fatalf("unexpected forum chats: %v", cfg.Bot.ForumChats)
	}

	if cfg.Classifier.MaxConcurrency != 4 {
		t.Fatalf("max concurrency default should stay 4")
	}
	if cfg.Quarantine.MaxDuration != 72*time.Hour {
		t.Fatalf("quarantine max duration default should stay 72h")
	}
	if cfg.Strikes.Decay() != 30*24*time.Hour {
		t.Fatalf("unexpected decay: %s", cfg.Strikes.Decay())
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STRIKE_THRESHOLD", "4")
	t.Setenv("STRIKE_DECAY_DAYS", "10")
	t.Setenv("SAMPLE_RATE", "0.5")
	t.Setenv("CLASSIFY_CACHE_TTL", "2m")
	t.Setenv("ACCOUNT_AGE_THRESHOLD", "24h")
	t.Setenv("LOG_CHAT_ID", "-100777")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Strikes.Threshold != 4 || cfg.Strikes.Decay() != 10*24*time.Hour {
		t.Fatalf("unexpected strikes config: %+v", cfg.Strikes)
	}
	if cfg.Prefilter.SampleRate != 0.5 {
		t.Fatalf("unexpected sample rate: %v", cfg.Prefilter.SampleRate)
	}
	if cfg.Classifier.CacheTTL != 2*time.Minute {
		t.Fatalf("unexpected cache ttl: %s", cfg.Classifier.CacheTTL)
	}
	if cfg.Quarantine.AccountAgeThreshold != 24*time.Hour {
		t.Fatalf("unexpected account age threshold: %s", cfg.Quarantine.AccountAgeThreshold)
	}
	if cfg.Bot.LogChatID != -100777 {
		t.Fatalf("unexpected log chat: %d", cfg.Bot.LogChatID)
	}
	if cfg.Postgres.MigrateOnStart {
		t.Fatalf("expected migrate on start disabled")
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STRIKE_THRESHOLD", "three")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for malformed STRIKE_THRESHOLD")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error without bot token")
	}

	cfg.Bot.Token = "123:abc"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Env = "prod"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for default jwt secret in production")
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"POSTGRES_DSN",
		"MIGRATE_ON_START",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
		"S3_BUCKET",
		"S3_USE_SSL",
		"ADMIN_JWT_SECRET",
		"BOT_TOKEN",
		"TICKET_CHAT_ID",
		"LOG_CHAT_ID",
		"ANTHROPIC_API_KEY",
		"CLASSIFIER_MODEL",
		"CLASSIFIER_FALLBACK_MODEL",
		"CLASSIFY_BUDGET_PER_MINUTE",
		"CLASSIFY_MAX_CONCURRENCY",
		"CLASSIFY_CACHE_TTL",
		"SAMPLE_RATE",
		"STRIKE_THRESHOLD",
		"STRIKE_DECAY_DAYS",
		"ACCOUNT_AGE_THRESHOLD",
		"QUARANTINE_MAX_DURATION",
	} {
		t.Setenv(key, "")
	}
}
