package models

import (
	"time"
)

type VerificationStatus string

const (
	VerificationUnverified    VerificationStatus = "unverified"
	VerificationPendingReview VerificationStatus = "pending_review"
	VerificationVerified      VerificationStatus = "verified"
	VerificationRejected      VerificationStatus = "rejected"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationUnverified, VerificationPendingReview, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// AttorneyAccount 변호사 계정 - 인증 상태와 잔액
type AttorneyAccount struct {
	ID                      string             `gorm:"primaryKey;size:64" json:"id"` // 변호사 user id
	Name                    string             `gorm:"size:100" json:"name"`
	VerificationDocumentURL string             `gorm:"size:512" json:"verification_document_url,omitempty"`
	VerificationStatus      VerificationStatus `gorm:"size:20;not null;index" json:"verification_status"`
	Balance                 int64              `gorm:"not null;default:0;check:balance >= 0" json:"balance"` // 최소 화폐 단위(원)
	MinBalance              int64              `gorm:"not null" json:"min_balance"`                          // 답변 작성에 필요한 최소 잔액
	ReviewedBy              *string            `gorm:"size:64" json:"reviewed_by,omitempty"`
	ReviewedAt              *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// CanAnswer 인증 완료 + 잔액이 기준 이상
func (a *AttorneyAccount) CanAnswer() bool {
	return a.VerificationStatus == VerificationVerified && a.Balance >= a.MinBalance
}
