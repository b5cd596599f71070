package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCategories 질문 등록 화면의 카테고리 선택지와 동일하다.
var DefaultCategories = []string{"매매", "임대차", "취득/등기", "세금/절세", "대출/담보"}

type Config struct {
	Port        string
	DBDriver    string // postgres, sqlite
	DatabaseURL string
	LogLevel    string

	Policy Policy

	LLM       LLMConfig
	Gateway   GatewayConfig
	RAG       RAGConfig
	ViewCache CacheConfig
	LawFeed   FeedConfig
}

// Policy 답변 수수료와 카테고리 등 운영 정책. POLICY_FILE(YAML)로 덮어쓸 수 있다.
type Policy struct {
	AnswerFee   int64         `yaml:"answer_fee"`
	MinBalance  int64         `yaml:"min_balance"`
	Categories  []string      `yaml:"categories"`
	QuestionTTL time.Duration `yaml:"question_ttl"`
}

type LLMConfig struct {
	Provider     string // mock, openai, gemini
	BaseURL      string
	Token        string
	Model        string
	GeminiAPIKey string
}

type GatewayConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Workers     int
	QueueSize   int
}

type RAGConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// FeedConfig 법령 개정 RSS 피드. URL 이 없으면 동기화하지 않는다
type FeedConfig struct {
	URLs     []string
	Interval time.Duration
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		Port:        valueOrDefault("PORT", "8080"),
		DBDriver:    valueOrDefault("DB_DRIVER", "postgres"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:    valueOrDefault("LOG_LEVEL", "info"),
		Policy: Policy{
			Categories: splitList(os.Getenv("CATEGORIES")),
		},
		LLM: LLMConfig{
			Provider:     valueOrDefault("LLM_PROVIDER", "mock"),
			BaseURL:      strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
			Token:        strings.TrimSpace(os.Getenv("LLM_TOKEN")),
			Model:        strings.TrimSpace(os.Getenv("LLM_MODEL")),
			GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		},
		LawFeed: FeedConfig{
			URLs: splitList(os.Getenv("LAW_FEED_URLS")),
		},
	}

	var err error
	if cfg.Policy.AnswerFee, err = int64Env("ANSWER_FEE", 3000); err != nil {
		return Config{}, err
	}
	if cfg.Policy.MinBalance, err = int64Env("MIN_BALANCE", 5000); err != nil {
		return Config{}, err
	}
	if cfg.Policy.QuestionTTL, err = durationEnv("QUESTION_TTL", 720*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.MaxAttempts, err = intEnv("GATEWAY_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Backoff, err = durationEnv("GATEWAY_BACKOFF", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Timeout, err = durationEnv("GATEWAY_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Workers, err = intEnv("GENERATION_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.QueueSize, err = intEnv("GENERATION_QUEUE", 1000); err != nil {
		return Config{}, err
	}
	if cfg.RAG.ChunkSize, err = intEnv("RAG_CHUNK_SIZE", 800); err != nil {
		return Config{}, err
	}
	if cfg.RAG.ChunkOverlap, err = intEnv("RAG_CHUNK_OVERLAP", 100); err != nil {
		return Config{}, err
	}
	if cfg.RAG.TopK, err = intEnv("RAG_TOP_K", 5); err != nil {
		return Config{}, err
	}
	if cfg.ViewCache.Size, err = intEnv("VIEW_CACHE_SIZE", 500); err != nil {
		return Config{}, err
	}
	if cfg.ViewCache.TTL, err = durationEnv("VIEW_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.LawFeed.Interval, err = durationEnv("LAW_FEED_INTERVAL", 6*time.Hour); err != nil {
		return Config{}, err
	}

	if path := strings.TrimSpace(os.Getenv("POLICY_FILE")); path != "" {
		if err := cfg.Policy.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	if len(cfg.Policy.Categories) == 0 {
		cfg.Policy.Categories = append([]string(nil), DefaultCategories...)
	}

	if cfg.DatabaseURL == "" {
		switch cfg.DBDriver {
		case "postgres":
			// Fallback for local dev if not set
			cfg.DatabaseURL = "host=localhost user=postgres password=postgres dbname=lawq port=5432 sslmode=disable TimeZone=Asia/Seoul"
		case "sqlite":
			cfg.DatabaseURL = "lawq.db"
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.LLM.Provider {
	case "mock":
	case "openai":
		if c.LLM.BaseURL == "" || c.LLM.Model == "" {
			return fmt.Errorf("LLM_BASE_URL and LLM_MODEL are required for the openai provider")
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.Policy.AnswerFee <= 0 {
		return fmt.Errorf("ANSWER_FEE must be positive")
	}
	if c.Policy.MinBalance < 0 {
		return fmt.Errorf("MIN_BALANCE must not be negative")
	}
	if c.Gateway.MaxAttempts < 1 {
		return fmt.Errorf("GATEWAY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Gateway.Workers < 1 {
		return fmt.Errorf("GENERATION_WORKERS must be at least 1")
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("RAG_CHUNK_OVERLAP must be smaller than RAG_CHUNK_SIZE")
	}
	return nil
}

// overlayFile YAML 파일에 있는 값만 덮어쓴다.
func (p *Policy) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	var file struct {
		AnswerFee   *int64   `yaml:"answer_fee"`
		MinBalance  *int64   `yaml:"min_balance"`
		Categories  []string `yaml:"categories"`
		QuestionTTL string   `yaml:"question_ttl"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	if file.AnswerFee != nil {
		p.AnswerFee = *file.AnswerFee
	}
	if file.MinBalance != nil {
		p.MinBalance = *file.MinBalance
	}
	if len(file.Categories) > 0 {
		p.Categories = file.Categories
	}
	if file.QuestionTTL != "" {
		d, err := time.ParseDuration(file.QuestionTTL)
		if err != nil {
			return fmt.Errorf("invalid question_ttl in policy file: %w", err)
		}
		p.QuestionTTL = d
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var res []string
	for _, p := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		res = append(res, trimmed)
	}
	return res
}
