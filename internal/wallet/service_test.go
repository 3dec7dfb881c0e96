package wallet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/testutil"
	"vpn-shop-bot/internal/wallet"
)

func newService(t *testing.T) *wallet.Service {
	t.Helper()
	store := testutil.NewTestStorage(t)
	return wallet.NewService(store.DB(), logger.Nop())
}

func requireConsistent(t *testing.T, svc *wallet.Service, userID int64) *wallet.Wallet {
	t.Helper()
	w, err := svc.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, w.TotalDeposited-w.TotalSpent, w.Balance)
	return w
}

func TestGetBalanceCreatesWallet(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	balance, err := svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	w, err := svc.GetWallet(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), w.UserID)
	assert.Zero(t, w.TotalDeposited)
}

func TestPendingCreditApproval(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	txID, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 42, Amount: 50000, Method: wallet.MethodCard})
	require.NoError(t, err)
	require.NotZero(t, txID)

	balance, err := svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	pending, err := svc.GetPendingTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, txID, pending[0].ID)

	require.NoError(t, svc.ApproveTransaction(ctx, txID, 1))

	balance, err = svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)

	tx, err := svc.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusApproved, tx.Status)
	assert.Equal(t, int64(1), tx.AdminID.Int64)
	assert.True(t, tx.ProcessedAt.Valid)

	requireConsistent(t, svc, 42)
}

func TestAddCreditRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	for _, amount := range []int64{0, -100} {
		_, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 1, Amount: amount, Method: wallet.MethodCard})
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	}

	txs, err := svc.GetTransactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAutoApprovedCredit(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	txID, err := svc.AddCredit(ctx, wallet.CreditRequest{
		UserID:      5,
		Amount:      20000,
		Method:      wallet.MethodManual,
		AdminID:     1,
		AutoApprove: true,
	})
	require.NoError(t, err)

	tx, err := svc.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusApproved, tx.Status)
	assert.True(t, tx.ProcessedAt.Valid)

	w := requireConsistent(t, svc, 5)
	assert.Equal(t, int64(20000), w.Balance)

	err = svc.ApproveTransaction(ctx, txID, 1)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
	w = requireConsistent(t, svc, 5)
	assert.Equal(t, int64(20000), w.Balance)
}

func TestDuplicateCreditsAreNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	req := wallet.CreditRequest{UserID: 3, Amount: 1000, Method: wallet.MethodCard, Reference: "r-1"}
	first, err := svc.AddCredit(ctx, req)
	require.NoError(t, err)
	second, err := svc.AddCredit(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDeductInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 42, Amount: 50000, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)

	err = svc.DeductBalance(ctx, 42, 70000, "purchase", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	assert.Contains(t, apperrors.UserMessage(err), "موجودی کافی نیست")
	assert.Contains(t, apperrors.UserMessage(err), "20000")

	balance, err := svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)

	txs, err := svc.GetTransactions(ctx, 42, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestDeductRecordsApprovedDebit(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 8, Amount: 30000, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)

	require.NoError(t, svc.DeductBalance(ctx, 8, 12000, "plan 1", "order-1"))

	w := requireConsistent(t, svc, 8)
	assert.Equal(t, int64(18000), w.Balance)
	assert.Equal(t, int64(12000), w.TotalSpent)

	txs, err := svc.GetTransactions(ctx, 8, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	debit := txs[0]
	assert.Equal(t, wallet.DirectionDebit, debit.Direction)
	assert.Equal(t, wallet.StatusApproved, debit.Status)
	assert.Equal(t, "order-1", debit.Reference)

	err = svc.ApproveTransaction(ctx, debit.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
}

func TestResolveExactlyOnce(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	approved, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 9, Amount: 10000, Method: wallet.MethodCard})
	require.NoError(t, err)
	rejected, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 9, Amount: 7000, Method: wallet.MethodCard})
	require.NoError(t, err)

	require.NoError(t, svc.ApproveTransaction(ctx, approved, 1))
	require.NoError(t, svc.RejectTransaction(ctx, rejected, 1))

	for _, id := range []int64{approved, rejected} {
		assert.ErrorIs(t, svc.ApproveTransaction(ctx, id, 2), apperrors.ErrAlreadyProcessed)
		assert.ErrorIs(t, svc.RejectTransaction(ctx, id, 2), apperrors.ErrAlreadyProcessed)
	}

	w := requireConsistent(t, svc, 9)
	assert.Equal(t, int64(10000), w.Balance)
	assert.Equal(t, int64(10000), w.TotalDeposited)

	assert.ErrorIs(t, svc.ApproveTransaction(ctx, 999, 1), apperrors.ErrNotFound)
}

func TestRejectLeavesWalletUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 4, Amount: 40000, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)
	require.NoError(t, svc.DeductBalance(ctx, 4, 15000, "plan", ""))
	before := requireConsistent(t, svc, 4)

	txID, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 4, Amount: 99000, Method: wallet.MethodCard})
	require.NoError(t, err)
	require.NoError(t, svc.RejectTransaction(ctx, txID, 1))

	after := requireConsistent(t, svc, 4)
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.TotalDeposited, after.TotalDeposited)
	assert.Equal(t, before.TotalSpent, after.TotalSpent)

	tx, err := svc.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusRejected, tx.Status)
}

func TestBalanceInvariantOverSequence(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	steps := []struct {
		credit  int64
		approve bool
		debit   int64
	}{
		{credit: 10000, approve: true},
		{debit: 4000},
		{credit: 25000},
		{debit: 50000},
		{credit: 3000, approve: true},
		{debit: 9000},
	}

	for _, step := range steps {
		if step.credit > 0 {
			txID, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 11, Amount: step.credit, Method: wallet.MethodCard, AutoApprove: step.approve})
			require.NoError(t, err)
			if !step.approve {
				require.NoError(t, svc.ApproveTransaction(ctx, txID, 1))
			}
		}
		if step.debit > 0 {
			_ = svc.DeductBalance(ctx, 11, step.debit, "step", "")
		}
		requireConsistent(t, svc, 11)
	}

	w := requireConsistent(t, svc, 11)
	assert.Equal(t, int64(25000), w.Balance)
}

func TestConcurrentDebitsCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 77, Amount: 50000, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.DeductBalance(ctx, 77, 10000, "race", ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	w := requireConsistent(t, svc, 77)
	assert.Zero(t, w.Balance)
}

func TestWalletStats(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now.AddDate(0, 0, -40) })
	_, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 21, Amount: 5000, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return now })
	lastID, err := svc.AddCredit(ctx, wallet.CreditRequest{UserID: 21, Amount: 8000, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)
	_, err = svc.AddCredit(ctx, wallet.CreditRequest{UserID: 21, Amount: 1000, Method: wallet.MethodCard})
	require.NoError(t, err)
	require.NoError(t, svc.DeductBalance(ctx, 21, 2000, "plan", ""))

	st, err := svc.GetWalletStats(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), st.Balance)
	assert.Equal(t, int64(13000), st.TotalDeposited)
	assert.Equal(t, int64(2000), st.TotalSpent)
	assert.Equal(t, 4, st.TransactionCount)
	assert.Equal(t, 1, st.RecentDeposits)
	assert.Equal(t, int64(8000), st.RecentAmount)
	require.NotNil(t, st.LastDeposit)
	assert.Equal(t, lastID, st.LastDeposit.ID)

	sys, err := svc.GetSystemStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sys.WalletCount)
	assert.Equal(t, int64(11000), sys.TotalBalance)
	assert.Equal(t, 1, sys.PendingCount)
	assert.Equal(t, int64(1000), sys.PendingAmount)
	assert.Equal(t, 1, sys.RecentDeposits)
}
