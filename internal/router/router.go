package router

import (
	"net/http"

	"lawq/internal/handlers"
	"lawq/internal/logger"
	"lawq/internal/metrics"
	"lawq/internal/middleware"
	"lawq/internal/services"

	"github.com/gin-gonic/gin"
)

// Deps 라우트가 쓰는 서비스 묶음
type Deps struct {
	Answers   *services.AnswerService
	Accounts  *services.AccountService
	Documents *services.DocumentService
	Log       *logger.Logger
	Metrics   *metrics.Metrics
}

// New 미들웨어와 라우트를 붙인 엔진
func New(deps Deps) *gin.Engine {
	handlers.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Log != nil {
		r.Use(logger.GinMiddleware(deps.Log))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	r.Use(middleware.LoadRequester())

	RegisterRoutes(r, deps)
	return r
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	// Handlers
	questionHandler := handlers.NewQuestionHandler(deps.Answers)
	attorneyHandler := handlers.NewAttorneyHandler(deps.Accounts, deps.Answers)
	adminHandler := handlers.NewAdminHandler(deps.Accounts, deps.Answers)
	documentHandler := handlers.NewDocumentHandler(deps.Documents)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 공개 라우트 (비공개 질문은 서비스에서 거른다)
	r.GET("/questions", questionHandler.ListPublic)               // 공개 질문 목록
	r.GET("/questions/:id", questionHandler.Detail)               // 질문 + 답변
	r.GET("/questions/:id/answers", questionHandler.ListAnswers) // 답변만

	// 로그인 필요
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/questions", questionHandler.Submit)                       // 질문 등록
		authorized.PUT("/questions/:id/visibility", questionHandler.SetVisibility) // 공개 범위 변경
		authorized.POST("/questions/:id/close", questionHandler.Close)             // 질문 종료
		authorized.POST("/questions/:id/archive", questionHandler.Archive)         // 보관
		authorized.POST("/questions/:id/ai-retry", questionHandler.RetryAI)        // AI 답변 재시도
		authorized.POST("/questions/:id/answers", attorneyHandler.Answer)          // 변호사 답변

		authorized.GET("/me/questions", questionHandler.ListMine)                         // 내 질문
		authorized.POST("/me/attorney", attorneyHandler.Register)                         // 변호사 계정 생성
		authorized.GET("/me/attorney", attorneyHandler.Me)                                // 내 변호사 계정
		authorized.POST("/me/attorney/verification", attorneyHandler.SubmitVerification) // 인증 요청
		authorized.GET("/me/attorney/ledger", attorneyHandler.MyLedger)                   // 잔액 변동 내역
	}

	// 관리자
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.GET("/attorneys/pending", adminHandler.PendingAttorneys)
		admin.GET("/attorneys/:id", adminHandler.Attorney)
		admin.PUT("/attorneys/:id/verification", adminHandler.SetVerification)
		admin.POST("/attorneys/:id/credit", adminHandler.Credit)
		admin.POST("/attorneys/:id/debit", adminHandler.Debit)
		admin.GET("/attorneys/:id/ledger", adminHandler.Ledger)
		admin.PUT("/answers/:id/review", adminHandler.ReviewAnswer)

		admin.GET("/documents", documentHandler.List)
		admin.POST("/documents", documentHandler.Register)
		admin.PUT("/documents/:id/active", documentHandler.SetActive)
		admin.GET("/documents/search", documentHandler.Search)
	}
}
