package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"lawq/internal/config"
	"lawq/internal/db"
	"lawq/internal/logger"
	"lawq/internal/metrics"
	"lawq/internal/models"
	"lawq/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	asker    = models.Requester{ID: "asker-1", Role: models.RoleUser}
	stranger = models.Requester{ID: "stranger", Role: models.RoleUser}
	lawyer   = models.Requester{ID: "lawyer-a", Role: models.RoleLawyer}
	admin    = models.Requester{ID: "admin-1", Role: models.RoleAdmin}
)

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type answerJSON struct {
	ID             string `json:"id"`
	Origin         string `json:"origin"`
	Body           string `json:"body"`
	BodyHTML       string `json:"body_html"`
	ApprovalStatus string `json:"approval_status"`
}

type detailJSON struct {
	Question models.Question `json:"question"`
	Answers  []answerJSON    `json:"answers"`
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.OpenMemory()
	require.NoError(t, err)

	log := logger.Discard()
	m := metrics.New()
	accounts := services.NewAccountService(gdb, 5000, log, m)
	documents := services.NewDocumentService(gdb, nil, 200, 20, log)
	answers, err := services.NewAnswerService(gdb, accounts, &services.MockGateway{Retriever: documents, TopK: 3}, services.AnswerOptions{
		Categories: config.DefaultCategories,
		AnswerFee:  3000,
		Generation: services.GenerationOptions{Workers: 1, QueueSize: 8, MaxAttempts: 2, Backoff: time.Millisecond, Timeout: time.Second},
	}, log, m)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = answers.Shutdown(ctx)
	})

	return New(Deps{Answers: answers, Accounts: accounts, Documents: documents, Log: log, Metrics: m})
}

func do(t *testing.T, r http.Handler, method, path string, who *models.Requester, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set("X-User-ID", who.ID)
		req.Header.Set("X-User-Role", string(who.Role))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func submitQuestion(t *testing.T, r http.Handler, visibility string) models.Question {
	t.Helper()
	w := do(t, r, http.MethodPost, "/questions", &asker, gin.H{
		"category":   "임대차",
		"situation":  "다음 달 전세 계약을 앞두고 있습니다.",
		"body":       "확정일자는 언제 받아야 하나요?",
		"visibility": visibility,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Question](t, w)
}

func waitAnswered(t *testing.T, r http.Handler, id string) detailJSON {
	t.Helper()
	var detail detailJSON
	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, "/questions/"+id, &asker, nil)
		if w.Code != http.StatusOK {
			return false
		}
		detail = decode[detailJSON](t, w)
		return detail.Question.State == models.QuestionStateAIAnswered
	}, 3*time.Second, 10*time.Millisecond)
	return detail
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestServer(t)

	w := do(t, r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	submitQuestion(t, r, "public")
	w = do(t, r, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lawq_questions_submitted_total{category="임대차"} 1`)
	assert.Contains(t, w.Body.String(), "lawq_http_requests_total")
}

func TestSubmitQuestionAPI(t *testing.T) {
	r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/questions", nil, gin.H{"category": "임대차", "body": "질문"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/questions", &asker, gin.H{"category": "임대차", "situation": "전세 계약 예정", "body": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EmptyBody", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/questions", &asker, gin.H{"category": "임대차", "situation": " \n ", "body": "질문"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EmptyBody", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/questions", &asker, gin.H{"category": "상속", "situation": "상속 분쟁", "body": "질문"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidCategory", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/questions", &asker, gin.H{"category": "임대차", "situation": "전세 계약 예정", "body": "질문", "visibility": "friends"})
	assert.Equal(t, "InvalidVisibility", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/questions", &asker, "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRequest", decode[apiError](t, w).Error)

	q := submitQuestion(t, r, "")
	assert.Equal(t, models.VisibilityPublic, q.Visibility)
	assert.Contains(t, []models.QuestionState{models.QuestionStateOpen, models.QuestionStateAIAnswered}, q.State)

	detail := waitAnswered(t, r, q.ID)
	require.Len(t, detail.Answers, 1)
	assert.Equal(t, "ai", detail.Answers[0].Origin)
	assert.Contains(t, detail.Answers[0].Body, "[임대차]")
	assert.Contains(t, detail.Answers[0].BodyHTML, "<p>")

	w = do(t, r, http.MethodGet, "/questions?category="+url.QueryEscape("임대차"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Items []models.Question `json:"items"`
		Total int64             `json:"total"`
	}](t, w)
	assert.Equal(t, int64(1), page.Total)

	w = do(t, r, http.MethodGet, "/questions?category="+url.QueryEscape("상속"), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/questions/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", decode[apiError](t, w).Error)
}

func TestPrivateQuestionAPI(t *testing.T) {
	r := newTestServer(t)
	q := submitQuestion(t, r, "private")

	w := do(t, r, http.MethodGet, "/questions/"+q.ID, &stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AccessDenied", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodGet, "/questions/"+q.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodGet, "/questions/"+q.ID+"/answers", &admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 공개 목록에는 나오지 않고 내 질문에는 나온다
	w = do(t, r, http.MethodGet, "/questions", nil, nil)
	assert.Equal(t, int64(0), decode[struct {
		Total int64 `json:"total"`
	}](t, w).Total)
	w = do(t, r, http.MethodGet, "/me/questions", &asker, nil)
	assert.Equal(t, int64(1), decode[struct {
		Total int64 `json:"total"`
	}](t, w).Total)

	w = do(t, r, http.MethodPut, "/questions/"+q.ID+"/visibility", &stranger, gin.H{"visibility": "public"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, r, http.MethodPut, "/questions/"+q.ID+"/visibility", &asker, gin.H{"visibility": "public"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.VisibilityPublic, decode[models.Question](t, w).Visibility)

	w = do(t, r, http.MethodGet, "/questions/"+q.ID, &stranger, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAttorneyAnswerAPI(t *testing.T) {
	r := newTestServer(t)
	q := submitQuestion(t, r, "public")
	waitAnswered(t, r, q.ID)

	answer := func() *httptest.ResponseRecorder {
		return do(t, r, http.MethodPost, "/questions/"+q.ID+"/answers", &lawyer, gin.H{"body": "전입신고 당일 확정일자를 받으세요."})
	}

	// 계정이 없으면 인증되지 않은 변호사
	w := answer()
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AttorneyNotVerified", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/me/attorney", &asker, gin.H{"name": "김질문"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/me/attorney", &lawyer, gin.H{"name": "김변호"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/me/attorney/verification", &lawyer, gin.H{"document_url": ""})
	assert.Equal(t, "EmptyBody", decode[apiError](t, w).Error)
	w = do(t, r, http.MethodPost, "/me/attorney/verification", &lawyer, gin.H{"document_url": "https://files.example/license.pdf"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/admin/attorneys/pending", &lawyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, r, http.MethodGet, "/admin/attorneys/pending", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Accounts []models.AttorneyAccount `json:"accounts"`
	}](t, w).Accounts, 1)

	w = do(t, r, http.MethodPut, "/admin/attorneys/lawyer-a/verification", &admin, gin.H{"status": "verified"})
	require.Equal(t, http.StatusOK, w.Code)

	// 잔액 0: 인증은 됐지만 잔액 부족
	w = answer()
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "InsufficientBalance", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/admin/attorneys/lawyer-a/credit", &admin, gin.H{"amount": 0})
	assert.Equal(t, "InvalidAmount", decode[apiError](t, w).Error)
	w = do(t, r, http.MethodPost, "/admin/attorneys/lawyer-a/credit", &admin, gin.H{"amount": 10000})
	require.Equal(t, http.StatusOK, w.Code)

	w = answer()
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	answerID := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	w = do(t, r, http.MethodGet, "/me/attorney", &lawyer, nil)
	me := decode[struct {
		Account   models.AttorneyAccount `json:"account"`
		CanAnswer bool                   `json:"can_answer"`
	}](t, w)
	assert.Equal(t, int64(7000), me.Account.Balance)
	assert.True(t, me.CanAnswer)

	w = do(t, r, http.MethodGet, "/me/attorney/ledger", &lawyer, nil)
	entries := decode[struct {
		Entries []models.LedgerEntry `json:"entries"`
	}](t, w).Entries
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-3000), entries[0].Amount)

	detail := waitAnswered(t, r, q.ID)
	require.Len(t, detail.Answers, 2)
	assert.Equal(t, "ai", detail.Answers[0].Origin)
	assert.Equal(t, "attorney", detail.Answers[1].Origin)
	assert.Equal(t, "pending", detail.Answers[1].ApprovalStatus)

	w = do(t, r, http.MethodPut, "/admin/answers/"+answerID+"/review", &admin, gin.H{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPut, "/admin/answers/"+answerID+"/review", &admin, gin.H{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPut, "/admin/answers/"+answerID+"/review", &admin, gin.H{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/questions/"+q.ID+"/close", &stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, r, http.MethodPost, "/questions/"+q.ID+"/close", &asker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.QuestionStateClosed, decode[models.Question](t, w).State)

	w = answer()
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "QuestionClosed", decode[apiError](t, w).Error)
}

func TestDocumentAPI(t *testing.T) {
	r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/admin/documents", &admin, gin.H{"file_name": "주택임대차보호법"})
	assert.Equal(t, "EmptyBody", decode[apiError](t, w).Error)

	w = do(t, r, http.MethodPost, "/admin/documents", &admin, gin.H{
		"file_name":   "주택임대차보호법",
		"storage_url": "s3://laws/lease.txt",
		"content":     "제3조의2(보증금의 회수) 대항요건과 임대차계약증서상의 확정일자를 갖춘 임차인은 보증금을 우선 변제받을 권리가 있다.",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode[models.LawDocument](t, w)
	assert.Equal(t, 1, doc.Version)

	w = do(t, r, http.MethodGet, "/admin/documents/search?q="+url.QueryEscape("확정일자"), &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Chunks []services.RetrievedChunk `json:"chunks"`
	}](t, w).Chunks, 1)

	// 검색된 조문이 AI 답변에 인용된다
	q := submitQuestion(t, r, "public")
	detail := waitAnswered(t, r, q.ID)
	require.Len(t, detail.Answers, 1)
	assert.Contains(t, detail.Answers[0].Body, "주택임대차보호법")

	w = do(t, r, http.MethodPut, "/admin/documents/"+doc.ID+"/active", &admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPut, "/admin/documents/"+doc.ID+"/active", &admin, gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/admin/documents", &admin, nil)
	docs := decode[struct {
		Documents []models.LawDocument `json:"documents"`
	}](t, w).Documents
	require.Len(t, docs, 1)
	assert.False(t, docs[0].IsActive)
}
