package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Origin string

const (
	OriginAI       Origin = "ai"
	OriginAttorney Origin = "attorney"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Citation AI 답변의 근거 법령 조각
type Citation struct {
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title"`
	ChunkIndex int    `json:"chunk_index"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// Answer AI 답변과 변호사 답변을 origin 으로 구분하는 단일 레코드
type Answer struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	QuestionID string `gorm:"size:36;not null;index" json:"question_id"`
	// AI 답변일 때만 question_id 를 담는다. 질문당 AI 답변 1개를 DB 에서도 보장
	AISlot         *string        `gorm:"size:36;uniqueIndex" json:"-"`
	Origin         Origin         `gorm:"size:10;not null" json:"origin"`
	AuthorID       *string        `gorm:"size:64;index" json:"author_id"` // AI 답변은 null
	Body           string         `gorm:"type:text;not null" json:"body"`
	Citations      []Citation     `gorm:"type:text;serializer:json" json:"citations"`
	Model          string         `gorm:"size:100" json:"model,omitempty"`
	ApprovalStatus ApprovalStatus `gorm:"size:10;not null;index" json:"approval_status"`
	ReviewedBy     *string        `gorm:"size:64" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
}

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Citations == nil {
		a.Citations = []Citation{}
	}
	return nil
}
