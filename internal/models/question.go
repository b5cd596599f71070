package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuestionState string

const (
	QuestionStateDraft      QuestionState = "draft" // 외부에서 도달할 수 없음. 생성 즉시 open
	QuestionStateOpen       QuestionState = "open"
	QuestionStateAIAnswered QuestionState = "ai_answered"
	QuestionStateClosed     QuestionState = "closed"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type AIStatus string

const (
	AIStatusPending     AIStatus = "pending"
	AIStatusReady       AIStatus = "ready"
	AIStatusUnavailable AIStatus = "unavailable"
)

// Question 질문 - 질문자 한 명의 제출과 그 생애주기
type Question struct {
	ID         string        `gorm:"primaryKey;size:36" json:"id"`
	AuthorID   string        `gorm:"size:64;not null;index" json:"author_id"`
	Category   string        `gorm:"size:50;not null;index" json:"category"`
	Situation  string        `gorm:"type:text;not null" json:"situation"` // 상황 설명
	Body       string        `gorm:"type:text;not null" json:"body"`      // 질문 내용
	Visibility Visibility    `gorm:"size:10;not null" json:"visibility"`
	State      QuestionState `gorm:"size:20;not null;index" json:"state"`
	AIStatus   AIStatus      `gorm:"size:20;not null" json:"ai_status"`
	AIError    string        `gorm:"size:40" json:"ai_error,omitempty"` // 마지막 AI 생성 실패 코드
	ClosedAt   *time.Time    `json:"closed_at,omitempty"`
	ArchivedAt *time.Time    `gorm:"index" json:"archived_at,omitempty"` // soft-archival
	CreatedAt  time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	Answers []Answer `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"answers,omitempty"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// AcceptsAnswers open, ai_answered 상태에서만 변호사 답변을 받는다
func (q *Question) AcceptsAnswers() bool {
	return q.State == QuestionStateOpen || q.State == QuestionStateAIAnswered
}

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}
