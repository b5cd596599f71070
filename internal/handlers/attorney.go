package handlers

import (
	"net/http"

	"lawq/internal/services"
	"lawq/internal/utils"

	"github.com/gin-gonic/gin"
)

type AttorneyHandler struct {
	accounts *services.AccountService
	answers  *services.AnswerService
}

func NewAttorneyHandler(accounts *services.AccountService, answers *services.AnswerService) *AttorneyHandler {
	return &AttorneyHandler{accounts: accounts, answers: answers}
}

type registerAttorneyRequest struct {
	Name string `json:"name" binding:"notblank"`
}

type verificationRequest struct {
	Name        string `json:"name"`
	DocumentURL string `json:"document_url" binding:"notblank"`
}

type attorneyAnswerRequest struct {
	Body string `json:"body" binding:"notblank"`
}

// Register 변호사 본인 계정 생성 (이미 있으면 그대로 돌려준다)
func (h *AttorneyHandler) Register(c *gin.Context) {
	var req registerAttorneyRequest
	if !bindJSON(c, &req) {
		return
	}
	acc, err := h.accounts.Register(c.Request.Context(), requester(c), req.Name)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

// SubmitVerification 자격 증빙을 올리고 심사를 요청한다
func (h *AttorneyHandler) SubmitVerification(c *gin.Context) {
	var req verificationRequest
	if !bindJSON(c, &req) {
		return
	}
	acc, err := h.accounts.SubmitVerification(c.Request.Context(), requester(c), req.Name, req.DocumentURL)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *AttorneyHandler) Me(c *gin.Context) {
	r := requester(c)
	acc, err := h.accounts.Get(c.Request.Context(), r, r.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acc, "can_answer": acc.CanAnswer()})
}

func (h *AttorneyHandler) MyLedger(c *gin.Context) {
	r := requester(c)
	entries, err := h.accounts.Ledger(c.Request.Context(), r, r.ID, utils.PositiveInt(c.Query("limit"), 50))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": nonNil(entries)})
}

// Answer 변호사 답변 작성. 수수료가 차감되고 답변은 승인 대기 상태로 저장된다
func (h *AttorneyHandler) Answer(c *gin.Context) {
	var req attorneyAnswerRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.answers.SubmitAttorneyAnswer(c.Request.Context(), c.Param("id"), requester(c).ID, req.Body)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "question_id": c.Param("id")})
}
