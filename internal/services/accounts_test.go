package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"lawq/internal/errorz"
	"lawq/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lawyer = models.Requester{ID: "lawyer-a", Role: models.RoleLawyer}

func TestDebit(t *testing.T) {
	env := newTestEnv(t, answerWith("ok"))
	ctx := context.Background()
	env.seedAttorney(t, "lawyer-a", models.VerificationVerified, 10000)

	entry, err := env.accounts.Debit(ctx, "lawyer-a", 4000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-4000), entry.Amount)
	assert.Equal(t, int64(6000), entry.BalanceAfter)
	assert.Equal(t, ReasonAdminDebit, entry.Reason)

	_, err = env.accounts.Debit(ctx, "lawyer-a", 6001, "조정")
	assert.ErrorIs(t, err, errorz.ErrInsufficientBalance)
	assert.Equal(t, int64(6000), env.balance(t, "lawyer-a"))

	entry, err = env.accounts.Debit(ctx, "lawyer-a", 6000, "조정")
	require.NoError(t, err)
	assert.Zero(t, entry.BalanceAfter)

	for _, amount := range []int64{0, -1} {
		_, err = env.accounts.Debit(ctx, "lawyer-a", amount, "조정")
		assert.ErrorIs(t, err, errorz.ErrInvalidAmount)
	}

	_, err = env.accounts.Debit(ctx, "ghost", 100, "조정")
	assert.ErrorIs(t, err, errorz.ErrNotFound)

	var count int64
	require.NoError(t, env.db.Model(&models.LedgerEntry{}).Where("account_id = ?", "lawyer-a").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestDebit_ConcurrentNeverOverdraws(t *testing.T) {
	env := newTestEnv(t, answerWith("ok"))
	env.seedAttorney(t, "lawyer-a", models.VerificationVerified, 5000)

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.accounts.Debit(context.Background(), "lawyer-a", 1000, "조정")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errorz.ErrInsufficientBalance):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(5), short.Load())
	assert.Zero(t, env.balance(t, "lawyer-a"))
	assert.Zero(t, env.accounts.locks.Len())
}

func TestCredit(t *testing.T) {
	env := newTestEnv(t, answerWith("ok"))
	ctx := context.Background()
	env.seedAttorney(t, "lawyer-a", models.VerificationVerified, 1000)

	_, err := env.accounts.Credit(ctx, lawyer, "lawyer-a", 5000, "")
	assert.ErrorIs(t, err, errorz.ErrAccessDenied)

	_, err = env.accounts.Credit(ctx, admin, "lawyer-a", 0, "")
	assert.ErrorIs(t, err, errorz.ErrInvalidAmount)

	entry, err := env.accounts.Credit(ctx, admin, "lawyer-a", 5000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), entry.Amount)
	assert.Equal(t, int64(6000), entry.BalanceAfter)
	assert.Equal(t, ReasonAdminCredit, entry.Reason)

	_, err = env.accounts.Credit(ctx, admin, "ghost", 5000, "")
	assert.ErrorIs(t, err, errorz.ErrNotFound)

	entries, err := env.accounts.Ledger(ctx, lawyer, "lawyer-a", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = env.accounts.Ledger(ctx, stranger, "lawyer-a", 0)
	assert.ErrorIs(t, err, errorz.ErrAccessDenied)
}

func TestSetVerification(t *testing.T) {
	env := newTestEnv(t, answerWith("ok"))
	ctx := context.Background()
	env.seedAttorney(t, "lawyer-a", models.VerificationPendingReview, 0)

	_, err := env.accounts.SetVerification(ctx, lawyer, "lawyer-a", models.VerificationVerified)
	assert.ErrorIs(t, err, errorz.ErrAccessDenied)

	_, err = env.accounts.SetVerification(ctx, admin, "lawyer-a", "approved")
	assert.ErrorIs(t, err, errorz.ErrInvalidStatus)

	_, err = env.accounts.SetVerification(ctx, admin, "ghost", models.VerificationVerified)
	assert.ErrorIs(t, err, errorz.ErrNotFound)

	acc, err := env.accounts.SetVerification(ctx, admin, "lawyer-a", models.VerificationRejected)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, acc.VerificationStatus)
	require.NotNil(t, acc.ReviewedBy)
	assert.Equal(t, admin.ID, *acc.ReviewedBy)

	// 거절된 계정은 재심사 없이 인증될 수 없다
	_, err = env.accounts.SetVerification(ctx, admin, "lawyer-a", models.VerificationVerified)
	assert.ErrorIs(t, err, errorz.ErrInvalidTransition)
	assert.Equal(t, models.VerificationRejected, mustAccount(t, env, "lawyer-a").VerificationStatus)

	acc, err = env.accounts.SubmitVerification(ctx, lawyer, "", "https://files.example/license-v2.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPendingReview, acc.VerificationStatus)
	assert.Nil(t, acc.ReviewedBy)

	pending, err := env.accounts.ListPendingReview(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	acc, err = env.accounts.SetVerification(ctx, admin, "lawyer-a", models.VerificationVerified)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationVerified, acc.VerificationStatus)
}

func TestRegisterAndSubmitVerification(t *testing.T) {
	env := newTestEnv(t, answerWith("ok"))
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, asker, "김변호")
	assert.ErrorIs(t, err, errorz.ErrAccessDenied)

	acc, err := env.accounts.Register(ctx, lawyer, "김변호")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationUnverified, acc.VerificationStatus)
	assert.Equal(t, int64(5000), acc.MinBalance)
	assert.Zero(t, acc.Balance)

	again, err := env.accounts.Register(ctx, lawyer, "다른 이름")
	require.NoError(t, err)
	assert.Equal(t, "김변호", again.Name)

	_, err = env.accounts.SubmitVerification(ctx, lawyer, "", " ")
	assert.ErrorIs(t, err, errorz.ErrEmptyBody)

	acc, err = env.accounts.SubmitVerification(ctx, lawyer, "김변호사", "https://files.example/license.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPendingReview, acc.VerificationStatus)
	assert.Equal(t, "김변호사", acc.Name)

	_, err = env.accounts.SubmitVerification(ctx, lawyer, "", "https://files.example/license.pdf")
	assert.ErrorIs(t, err, errorz.ErrInvalidTransition)

	got, err := env.accounts.Get(ctx, lawyer, "lawyer-a")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/license.pdf", got.VerificationDocumentURL)

	_, err = env.accounts.Get(ctx, stranger, "lawyer-a")
	assert.ErrorIs(t, err, errorz.ErrAccessDenied)

	_, err = env.accounts.Get(ctx, admin, "ghost")
	assert.ErrorIs(t, err, errorz.ErrNotFound)
}

func mustAccount(t *testing.T, env *testEnv, id string) models.AttorneyAccount {
	t.Helper()
	var acc models.AttorneyAccount
	require.NoError(t, env.db.First(&acc, "id = ?", id).Error)
	return acc
}
