package middleware

import (
	"net/http"
	"strings"

	"lawq/internal/models"

	"github.com/gin-gonic/gin"
)

const CheckUserKey = "requester"

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// LoadRequester 상위 인증 프론트가 넣어 준 헤더로 요청자를 식별한다.
// 헤더가 없거나 역할이 잘못되면 익명으로 둔다
func LoadRequester() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id != "" {
			role, ok := models.ParseRole(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
			if !ok {
				role = models.RoleUser
			}
			c.Set(CheckUserKey, models.Requester{ID: id, Role: role})
		}
		c.Next()
	}
}

// AuthRequired ensures a requester is identified
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentRequester(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthenticated",
				"message": "로그인이 필요합니다.",
			})
			return
		}
		c.Next()
	}
}

// AdminRequired 관리자 전용 라우트
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := CurrentRequester(c)
		if !ok || !r.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "AccessDenied",
				"message": "관리자만 사용할 수 있습니다.",
			})
			return
		}
		c.Next()
	}
}

// CurrentRequester 식별되지 않은 요청이면 익명 Requester 와 false
func CurrentRequester(c *gin.Context) (models.Requester, bool) {
	v, exists := c.Get(CheckUserKey)
	if !exists {
		return models.Requester{}, false
	}
	r, ok := v.(models.Requester)
	return r, ok && r.ID != ""
}
