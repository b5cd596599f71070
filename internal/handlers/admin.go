package handlers

import (
	"net/http"

	"lawq/internal/models"
	"lawq/internal/services"
	"lawq/internal/utils"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	accounts *services.AccountService
	answers  *services.AnswerService
}

func NewAdminHandler(accounts *services.AccountService, answers *services.AnswerService) *AdminHandler {
	return &AdminHandler{accounts: accounts, answers: answers}
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type amountRequest struct {
	Amount int64  `json:"amount" binding:"gt=0"`
	Reason string `json:"reason"`
}

// PendingAttorneys 인증 심사 대기 목록
func (h *AdminHandler) PendingAttorneys(c *gin.Context) {
	accounts, err := h.accounts.ListPendingReview(c.Request.Context(), requester(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": nonNil(accounts)})
}

func (h *AdminHandler) Attorney(c *gin.Context) {
	acc, err := h.accounts.Get(c.Request.Context(), requester(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *AdminHandler) SetVerification(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	acc, err := h.accounts.SetVerification(c.Request.Context(), requester(c), c.Param("id"), models.VerificationStatus(req.Status))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// Credit 잔액 충전
func (h *AdminHandler) Credit(c *gin.Context) {
	var req amountRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.accounts.Credit(c.Request.Context(), requester(c), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Debit 수동 차감 (조정)
func (h *AdminHandler) Debit(c *gin.Context) {
	var req amountRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.accounts.Debit(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *AdminHandler) Ledger(c *gin.Context) {
	entries, err := h.accounts.Ledger(c.Request.Context(), requester(c), c.Param("id"), utils.PositiveInt(c.Query("limit"), 50))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": nonNil(entries)})
}

// ReviewAnswer 변호사 답변 승인/반려. 반려해도 수수료는 돌려주지 않는다
func (h *AdminHandler) ReviewAnswer(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	answer, err := h.answers.ReviewAnswer(c.Request.Context(), c.Param("id"), requester(c), models.ApprovalStatus(req.Status))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}
