package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lawq/internal/config"
	"lawq/internal/db"
	"lawq/internal/logger"
	"lawq/internal/metrics"
	"lawq/internal/router"
	"lawq/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const serviceName = "lawq"

const shutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "부동산 법률 Q&A 백엔드",
	Long: `부동산 법률 질문을 받아 AI 참고 답변을 붙이고,
인증된 변호사의 유료 답변을 함께 조립해 보여주는 API 서버입니다.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP 서버와 AI 답변 워커를 실행한다",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마만 마이그레이션한다",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		gdb, err := db.Open(cfg.DBDriver, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		log.Info("migration completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup() (config.Config, *logger.Logger, error) {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(serviceName, cfg.LogLevel)
	if envErr != nil {
		log.Debug("No .env file found, using environment variables")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, log, nil
}

// newGateway LLM_PROVIDER 에 맞는 게이트웨이. 검색기는 등록된 법령 자료다
func newGateway(ctx context.Context, cfg config.Config, retriever services.Retriever) (services.AnswerGenerationGateway, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return services.NewOpenAIGateway(cfg.LLM.BaseURL, cfg.LLM.Token, cfg.LLM.Model, retriever, cfg.RAG.TopK), nil
	case "gemini":
		return services.NewGeminiGateway(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.Model, retriever, cfg.RAG.TopK)
	case "mock", "":
		return &services.MockGateway{Retriever: retriever, TopK: cfg.RAG.TopK}, nil
	}
	return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLM.Provider)
}

func serve(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	// Initialize Database
	gdb, err := db.Open(cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	m := metrics.New()
	accounts := services.NewAccountService(gdb, cfg.Policy.MinBalance, log, m)
	documents := services.NewDocumentService(gdb, services.NewLawTextFetcher(), cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, log)

	gateway, err := newGateway(ctx, cfg, documents)
	if err != nil {
		return err
	}

	answers, err := services.NewAnswerService(gdb, accounts, gateway, services.AnswerOptions{
		Categories: cfg.Policy.Categories,
		AnswerFee:  cfg.Policy.AnswerFee,
		CacheSize:  cfg.ViewCache.Size,
		CacheTTL:   cfg.ViewCache.TTL,
		Generation: services.GenerationOptions{
			Workers:     cfg.Gateway.Workers,
			QueueSize:   cfg.Gateway.QueueSize,
			MaxAttempts: cfg.Gateway.MaxAttempts,
			Backoff:     cfg.Gateway.Backoff,
			Timeout:     cfg.Gateway.Timeout,
		},
	}, log, m)
	if err != nil {
		return err
	}

	// 재시작 전에 끝나지 않은 AI 답변 생성을 다시 예약한다
	if n, err := answers.ResumePending(ctx); err != nil {
		log.WithError(err).Warn("resume pending generation failed")
	} else if n > 0 {
		log.WithField("count", n).Info("pending generation resumed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(router.Deps{Answers: answers, Accounts: accounts, Documents: documents, Log: log, Metrics: m}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := services.NewExpirySweeper(answers, cfg.Policy.QuestionTTL, time.Hour, log)
	feeds := services.NewLawFeedSync(gdb, documents, cfg.LawFeed.URLs, cfg.LawFeed.Interval, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return feeds.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpErr := srv.Shutdown(shutdownCtx)
		// 남은 생성은 pending 으로 남고 다음 기동 때 이어서 한다
		if err := answers.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("generation workers did not drain")
		}
		return httpErr
	})

	return g.Wait()
}
