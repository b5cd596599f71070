package handlers

import (
	"net/http"

	"lawq/internal/models"
	"lawq/internal/services"
	"lawq/internal/utils"

	"github.com/gin-gonic/gin"
)

type QuestionHandler struct {
	answers *services.AnswerService
}

func NewQuestionHandler(answers *services.AnswerService) *QuestionHandler {
	return &QuestionHandler{answers: answers}
}

type submitQuestionRequest struct {
	Category   string `json:"category"`
	Situation  string `json:"situation" binding:"notblank"`
	Body       string `json:"body" binding:"notblank"`
	Visibility string `json:"visibility"`
}

type visibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"`
}

// answerResponse 본문 markdown 을 정제된 HTML 로 함께 내려준다
type answerResponse struct {
	models.Answer
	BodyHTML string `json:"body_html"`
}

type questionDetail struct {
	Question models.Question  `json:"question"`
	Answers  []answerResponse `json:"answers"`
}

func renderAnswers(answers []models.Answer) []answerResponse {
	out := make([]answerResponse, 0, len(answers))
	for _, a := range answers {
		out = append(out, answerResponse{Answer: a, BodyHTML: utils.RenderMarkdown(a.Body)})
	}
	return out
}

func pageParams(c *gin.Context) (int, int) {
	page := utils.PositiveInt(c.Query("page"), 1)
	size := utils.PositiveInt(c.Query("page_size"), 20)
	if size > 100 {
		size = 20
	}
	return page, size
}

// Submit 질문 등록. 곧바로 open 상태로 저장되고 AI 답변 생성이 예약된다
func (h *QuestionHandler) Submit(c *gin.Context) {
	var req submitQuestionRequest
	if !bindJSON(c, &req) {
		return
	}

	id, err := h.answers.SubmitQuestion(c.Request.Context(), requester(c), services.QuestionInput{
		Category:   req.Category,
		Situation:  req.Situation,
		Body:       req.Body,
		Visibility: models.Visibility(req.Visibility),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	q, err := h.answers.GetQuestion(c.Request.Context(), id, requester(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// Detail 질문과 노출 순서대로 정렬된 답변
func (h *QuestionHandler) Detail(c *gin.Context) {
	view, err := h.answers.View(c.Request.Context(), c.Param("id"), requester(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questionDetail{Question: view.Question, Answers: renderAnswers(view.Answers)})
}

// ListAnswers 답변만 필요할 때
func (h *QuestionHandler) ListAnswers(c *gin.Context) {
	answers, err := h.answers.ListAnswers(c.Request.Context(), c.Param("id"), requester(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": renderAnswers(answers)})
}

func (h *QuestionHandler) ListPublic(c *gin.Context) {
	page, size := pageParams(c)
	items, total, err := h.answers.ListPublicQuestions(c.Request.Context(), c.Query("category"), page, size)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse[models.Question]{Items: nonNil(items), Total: total, Page: page, PageSize: size})
}

func (h *QuestionHandler) ListMine(c *gin.Context) {
	page, size := pageParams(c)
	items, total, err := h.answers.ListMyQuestions(c.Request.Context(), requester(c), page, size)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse[models.Question]{Items: nonNil(items), Total: total, Page: page, PageSize: size})
}

func (h *QuestionHandler) SetVisibility(c *gin.Context) {
	var req visibilityRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.answers.SetVisibility(c.Request.Context(), c.Param("id"), requester(c), models.Visibility(req.Visibility)); err != nil {
		RespondError(c, err)
		return
	}
	h.respondQuestion(c)
}

func (h *QuestionHandler) Close(c *gin.Context) {
	if err := h.answers.CloseQuestion(c.Request.Context(), c.Param("id"), requester(c)); err != nil {
		RespondError(c, err)
		return
	}
	h.respondQuestion(c)
}

func (h *QuestionHandler) Archive(c *gin.Context) {
	if err := h.answers.Archive(c.Request.Context(), c.Param("id"), requester(c)); err != nil {
		RespondError(c, err)
		return
	}
	h.respondQuestion(c)
}

// RetryAI AI 답변 생성에 실패한 질문을 다시 예약한다
func (h *QuestionHandler) RetryAI(c *gin.Context) {
	if err := h.answers.RetryAiAnswer(c.Request.Context(), c.Param("id"), requester(c)); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": c.Param("id"), "ai_status": models.AIStatusPending})
}

func (h *QuestionHandler) respondQuestion(c *gin.Context) {
	q, err := h.answers.GetQuestion(c.Request.Context(), c.Param("id"), requester(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
