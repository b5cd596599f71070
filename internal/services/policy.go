package services

import (
	"lawq/internal/errorz"
	"lawq/internal/models"
)

// CanRead 공개 질문은 누구나, 비공개 질문은 작성자와 관리자만 읽는다
func CanRead(visibility models.Visibility, authorID string, requester models.Requester) bool {
	if visibility == models.VisibilityPublic {
		return true
	}
	if requester.ID != "" && requester.ID == authorID {
		return true
	}
	return requester.IsAdmin()
}

// CanReadQuestion 질문 레코드 기준 CanRead
func CanReadQuestion(q *models.Question, requester models.Requester) bool {
	return CanRead(q.Visibility, q.AuthorID, requester)
}

// RequireAdmin 관리자 권한이 없으면 ErrAccessDenied
func RequireAdmin(requester models.Requester) error {
	if !requester.IsAdmin() {
		return errorz.ErrAccessDenied
	}
	return nil
}

func isAuthorOrAdmin(q *models.Question, requester models.Requester) bool {
	return (requester.ID != "" && requester.ID == q.AuthorID) || requester.IsAdmin()
}
