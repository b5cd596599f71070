package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"lawq/internal/errorz"
	"lawq/internal/middleware"
	"lawq/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var errBadRequest = errors.New("bad request")

type errorInfo struct {
	status  int
	message string
}

var errorTable = map[string]errorInfo{
	"NotFound":            {http.StatusNotFound, "대상을 찾을 수 없습니다."},
	"InvalidCategory":     {http.StatusBadRequest, "지원하지 않는 분야입니다."},
	"EmptyBody":           {http.StatusBadRequest, "내용을 입력해 주세요."},
	"InvalidVisibility":   {http.StatusBadRequest, "공개 범위는 public 또는 private 입니다."},
	"InvalidAmount":       {http.StatusBadRequest, "금액은 0보다 커야 합니다."},
	"InvalidStatus":       {http.StatusBadRequest, "허용되지 않는 상태 값입니다."},
	"QuestionClosed":      {http.StatusConflict, "종료된 질문에는 답변할 수 없습니다."},
	"AttorneyNotVerified": {http.StatusForbidden, "변호사 인증이 완료되지 않았습니다."},
	"InsufficientBalance": {http.StatusPaymentRequired, "잔액이 부족합니다. 5,000원 미만일 경우 답변이 제한됩니다."},
	"AccessDenied":        {http.StatusForbidden, "권한이 없습니다."},
	"InvalidTransition":   {http.StatusConflict, "현재 상태에서는 처리할 수 없습니다."},
	"AiAnswerUnavailable": {http.StatusServiceUnavailable, "AI 답변을 생성하지 못했습니다."},
	"GatewayTimeout":      {http.StatusGatewayTimeout, "외부 서비스 응답이 지연되었습니다."},
	"GatewayUnavailable":  {http.StatusBadGateway, "외부 서비스에 연결할 수 없습니다."},
	"GatewayRejected":     {http.StatusBadGateway, "외부 서비스가 요청을 거절했습니다."},
	"InvalidRequest":      {http.StatusBadRequest, "요청 형식이 올바르지 않습니다."},
}

// errorCode errorz 코드에 요청 형식 오류를 더한다
func errorCode(err error) string {
	if errors.Is(err, errBadRequest) {
		return "InvalidRequest"
	}
	return errorz.Code(err)
}

// StatusFor 에러에 대응하는 HTTP 상태 코드
func StatusFor(err error) int {
	if info, ok := errorTable[errorCode(err)]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// RespondError {"error": 코드, "message": 안내 문구} 로 응답한다. 500 은 로그 미들웨어가 남기도록 c.Error 에 담는다
func RespondError(c *gin.Context, err error) {
	code := errorCode(err)
	info, ok := errorTable[code]
	if !ok {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   code,
			"message": "일시적인 오류가 발생했습니다.",
		})
		return
	}
	c.AbortWithStatusJSON(info.status, gin.H{"error": code, "message": info.message})
}

var registerOnce sync.Once

// RegisterValidators gin 바인딩에 notblank 규칙을 추가한다
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
				return strings.TrimSpace(fl.Field().String()) != ""
			})
		}
	})
}

// bindJSON 실패하면 응답까지 보내고 false
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondError(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errBadRequest
	}
	switch verrs[0].Tag() {
	case "notblank", "required":
		return errorz.ErrEmptyBody
	case "gt":
		return errorz.ErrInvalidAmount
	}
	return errBadRequest
}

// requester 식별되지 않은 요청이면 익명 요청자
func requester(c *gin.Context) models.Requester {
	r, _ := middleware.CurrentRequester(c)
	return r
}

type pageResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}
