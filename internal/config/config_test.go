package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_DRIVER", "DATABASE_URL", "LOG_LEVEL", "CATEGORIES", "ANSWER_FEE", "MIN_BALANCE",
		"QUESTION_TTL", "LLM_PROVIDER", "LLM_BASE_URL", "LLM_TOKEN", "LLM_MODEL", "GEMINI_API_KEY",
		"GATEWAY_MAX_ATTEMPTS", "GATEWAY_BACKOFF", "GATEWAY_TIMEOUT", "GENERATION_WORKERS",
		"GENERATION_QUEUE", "RAG_CHUNK_SIZE", "RAG_CHUNK_OVERLAP", "RAG_TOP_K", "POLICY_FILE",
		"VIEW_CACHE_SIZE", "VIEW_CACHE_TTL", "LAW_FEED_URLS", "LAW_FEED_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.NotEmpty(t, cfg.DatabaseURL)
	assert.Equal(t, int64(3000), cfg.Policy.AnswerFee)
	assert.Equal(t, int64(5000), cfg.Policy.MinBalance)
	assert.Equal(t, DefaultCategories, cfg.Policy.Categories)
	assert.Equal(t, 720*time.Hour, cfg.Policy.QuestionTTL)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.Backoff)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("ANSWER_FEE", "1000")
	t.Setenv("CATEGORIES", "매매, 임대차 ,")
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("LAW_FEED_URLS", "https://law.example/rss/amend.xml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "lawq.db", cfg.DatabaseURL)
	assert.Equal(t, int64(1000), cfg.Policy.AnswerFee)
	assert.Equal(t, []string{"매매", "임대차"}, cfg.Policy.Categories)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, []string{"https://law.example/rss/amend.xml"}, cfg.LawFeed.URLs)
	assert.Equal(t, 6*time.Hour, cfg.LawFeed.Interval)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("bad number", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIN_BALANCE", "lots")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MIN_BALANCE")
	})

	t.Run("openai without base url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LLM_PROVIDER", "openai")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DB_DRIVER", "oracle")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoad_PolicyFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "answer_fee: 2000\nmin_balance: 4000\ncategories:\n  - 임대차\nquestion_ttl: 48h\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("POLICY_FILE", path)
	t.Setenv("ANSWER_FEE", "9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(2000), cfg.Policy.AnswerFee)
	assert.Equal(t, int64(4000), cfg.Policy.MinBalance)
	assert.Equal(t, []string{"임대차"}, cfg.Policy.Categories)
	assert.Equal(t, 48*time.Hour, cfg.Policy.QuestionTTL)
}
