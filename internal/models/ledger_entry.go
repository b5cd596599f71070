package models

import (
	"time"
)

type LedgerEntry struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	AccountID    string          `gorm:"size:64;not null;index" json:"account_id"`
	Account      AttorneyAccount `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Amount       int64           `gorm:"not null" json:"amount"`          // 양수는 충전, 음수는 차감
	Reason       string          `gorm:"size:100;not null" json:"reason"` // 변동 사유
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	AnswerID     *string         `gorm:"size:36;index" json:"answer_id,omitempty"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}
