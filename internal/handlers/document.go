package handlers

import (
	"net/http"

	"lawq/internal/services"
	"lawq/internal/utils"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documents *services.DocumentService
}

func NewDocumentHandler(documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type registerDocumentRequest struct {
	FileName   string `json:"file_name" binding:"notblank"`
	StorageURL string `json:"storage_url" binding:"notblank"`
	Version    int    `json:"version"`
	IsActive   *bool  `json:"is_active"`
	Content    string `json:"content"`
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Register 법령 자료 등록. content 가 없으면 storage_url 에서 본문을 가져온다
func (h *DocumentHandler) Register(c *gin.Context) {
	var req registerDocumentRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.Register(c.Request.Context(), requester(c), services.DocumentInput{
		FileName:   req.FileName,
		StorageURL: req.StorageURL,
		Version:    req.Version,
		Active:     req.IsActive,
		Content:    req.Content,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), requester(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": nonNil(docs)})
}

func (h *DocumentHandler) SetActive(c *gin.Context) {
	var req activeRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.SetActive(c.Request.Context(), requester(c), c.Param("id"), *req.Active)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Search AI 답변에 들어갈 근거 조각을 미리 확인한다
func (h *DocumentHandler) Search(c *gin.Context) {
	chunks, err := h.documents.Retrieve(c.Request.Context(), c.Query("q"), utils.PositiveInt(c.Query("k"), 5))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": nonNil(chunks)})
}
