package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lawq/internal/errorz"
	"lawq/internal/logger"
	"lawq/internal/metrics"
	"lawq/internal/models"
	"lawq/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 잔액 변동 사유
const (
	ReasonAnswerFee   = "답변 작성 수수료"
	ReasonAdminCredit = "관리자 충전"
	ReasonAdminDebit  = "관리자 차감"
)

const defaultLedgerLimit = 50

// AccountService 변호사 계정의 인증 상태와 잔액을 관리한다.
// 잔액 변경은 계정 잠금 + 트랜잭션 안에서만 일어나고 항상 원장 기록을 남긴다.
type AccountService struct {
	db         *gorm.DB
	locks      *utils.KeyedMutex
	minBalance int64
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewAccountService(gdb *gorm.DB, minBalance int64, log *logger.Logger, m *metrics.Metrics) *AccountService {
	return &AccountService{
		db:         gdb,
		locks:      utils.NewKeyedMutex(),
		minBalance: minBalance,
		log:        log,
		metrics:    m,
	}
}

// Register 변호사 계정을 만든다. 이미 있으면 기존 계정을 돌려준다
func (s *AccountService) Register(ctx context.Context, requester models.Requester, name string) (*models.AttorneyAccount, error) {
	if requester.ID == "" || requester.Role != models.RoleLawyer {
		return nil, errorz.ErrAccessDenied
	}

	unlock := s.locks.Lock(requester.ID)
	defer unlock()

	var acc models.AttorneyAccount
	err := s.db.WithContext(ctx).First(&acc, "id = ?", requester.ID).Error
	if err == nil {
		return &acc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	acc = models.AttorneyAccount{
		ID:                 requester.ID,
		Name:               strings.TrimSpace(name),
		VerificationStatus: models.VerificationUnverified,
		MinBalance:         s.minBalance,
	}
	if err := s.db.WithContext(ctx).Create(&acc).Error; err != nil {
		return nil, err
	}
	s.log.WithAccount(acc.ID).Info("attorney account registered")
	return &acc, nil
}

// SubmitVerification 자격 증빙을 제출해 심사 대기로 전환한다. 계정이 없으면 만든다
func (s *AccountService) SubmitVerification(ctx context.Context, requester models.Requester, name, documentURL string) (*models.AttorneyAccount, error) {
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return nil, fmt.Errorf("%w: verification document url", errorz.ErrEmptyBody)
	}
	if _, err := s.Register(ctx, requester, name); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(requester.ID)
	defer unlock()

	var acc models.AttorneyAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&acc, "id = ?", requester.ID).Error; err != nil {
			return err
		}
		if acc.VerificationStatus != models.VerificationUnverified && acc.VerificationStatus != models.VerificationRejected {
			return fmt.Errorf("%w: %s -> %s", errorz.ErrInvalidTransition, acc.VerificationStatus, models.VerificationPendingReview)
		}

		updates := map[string]interface{}{
			"verification_status":       models.VerificationPendingReview,
			"verification_document_url": documentURL,
			"reviewed_by":               nil,
			"reviewed_at":               nil,
		}
		if n := strings.TrimSpace(name); n != "" {
			updates["name"] = n
		}
		if err := tx.Model(&acc).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&acc, "id = ?", requester.ID).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.WithAccount(acc.ID).Info("verification submitted")
	return &acc, nil
}

// SetVerification 관리자만 인증 상태를 바꾼다. rejected -> verified 는 재심사를 거쳐야 한다
func (s *AccountService) SetVerification(ctx context.Context, admin models.Requester, accountID string, status models.VerificationStatus) (*models.AttorneyAccount, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", errorz.ErrInvalidStatus, status)
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	var acc models.AttorneyAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&acc, "id = ?", accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorz.ErrNotFound
			}
			return err
		}
		if acc.VerificationStatus == models.VerificationRejected && status == models.VerificationVerified {
			return fmt.Errorf("%w: %s -> %s", errorz.ErrInvalidTransition, acc.VerificationStatus, status)
		}

		now := time.Now()
		reviewer := admin.ID
		if err := tx.Model(&acc).Updates(map[string]interface{}{
			"verification_status": status,
			"reviewed_by":         &reviewer,
			"reviewed_at":         &now,
		}).Error; err != nil {
			return err
		}
		return tx.First(&acc, "id = ?", accountID).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithAccount(accountID).WithFields(logrus.Fields{
		"status":   status,
		"reviewer": admin.ID,
	}).Info("verification status changed")
	return &acc, nil
}

// Debit 잔액을 원자적으로 차감하고 원장 기록을 남긴다
func (s *AccountService) Debit(ctx context.Context, accountID string, amount int64, reason string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", errorz.ErrInvalidAmount, amount)
	}
	if strings.TrimSpace(reason) == "" {
		reason = ReasonAdminDebit
	}

	var entry *models.LedgerEntry
	err := s.locks.WithLock(accountID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			entry, err = debitTx(tx, accountID, amount, reason, nil)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.LedgerDebits.Add(float64(amount))
	return entry, nil
}

// Credit 관리자 충전
func (s *AccountService) Credit(ctx context.Context, admin models.Requester, accountID string, amount int64, reason string) (*models.LedgerEntry, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", errorz.ErrInvalidAmount, amount)
	}
	if strings.TrimSpace(reason) == "" {
		reason = ReasonAdminCredit
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	var entry models.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AttorneyAccount{}).
			Where("id = ?", accountID).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errorz.ErrNotFound
		}

		var acc models.AttorneyAccount
		if err := tx.Select("balance").First(&acc, "id = ?", accountID).Error; err != nil {
			return err
		}
		entry = models.LedgerEntry{
			AccountID:    accountID,
			Amount:       amount,
			Reason:       reason,
			BalanceAfter: acc.Balance,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.WithAccount(accountID).WithField("amount", amount).Info("balance credited")
	return &entry, nil
}

// Get 본인 또는 관리자만 조회
func (s *AccountService) Get(ctx context.Context, requester models.Requester, accountID string) (*models.AttorneyAccount, error) {
	if requester.ID != accountID && !requester.IsAdmin() {
		return nil, errorz.ErrAccessDenied
	}
	var acc models.AttorneyAccount
	if err := s.db.WithContext(ctx).First(&acc, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorz.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// Ledger 최근 원장 기록 (최신순)
func (s *AccountService) Ledger(ctx context.Context, requester models.Requester, accountID string, limit int) ([]models.LedgerEntry, error) {
	if _, err := s.Get(ctx, requester, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = defaultLedgerLimit
	}
	var entries []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ListPendingReview 심사 대기 계정 (관리자)
func (s *AccountService) ListPendingReview(ctx context.Context, admin models.Requester) ([]models.AttorneyAccount, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	var accounts []models.AttorneyAccount
	err := s.db.WithContext(ctx).
		Where("verification_status = ?", models.VerificationPendingReview).
		Order("updated_at ASC").
		Find(&accounts).Error
	return accounts, err
}

// debitTx 조건부 UPDATE 로 잔액이 음수가 되지 않게 차감한다. 호출자가 계정 잠금을 쥐고 있어야 한다
func debitTx(tx *gorm.DB, accountID string, amount int64, reason string, answerID *string) (*models.LedgerEntry, error) {
	res := tx.Model(&models.AttorneyAccount{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.AttorneyAccount{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, errorz.ErrNotFound
		}
		return nil, errorz.ErrInsufficientBalance
	}

	var acc models.AttorneyAccount
	if err := tx.Select("balance").First(&acc, "id = ?", accountID).Error; err != nil {
		return nil, err
	}

	entry := models.LedgerEntry{
		AccountID:    accountID,
		Amount:       -amount,
		Reason:       reason,
		BalanceAfter: acc.Balance,
		AnswerID:     answerID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
