package wallet

import (
	"context"
	"database/sql"
	"time"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/storage"
)

const statsWindow = 30 * 24 * time.Hour

// Service is the balance ledger. Each state change runs in a single transaction.
type Service struct {
	repo *Repository
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates a wallet service over db
func NewService(db *sql.DB, log *logger.Logger) *Service {
	return &Service{
		repo: NewRepository(db),
		log:  log.Component("wallet"),
		now:  time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetBalance returns the user's balance, creating an empty wallet on first access
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// GetWallet returns the user's wallet row, creating it if missing
func (s *Service) GetWallet(ctx context.Context, userID int64) (*Wallet, error) {
	q := s.repo.DB()
	if err := s.repo.EnsureWallet(ctx, q, userID, s.now()); err != nil {
		return nil, s.fail(err, "ensure wallet", userID)
	}
	w, err := s.repo.GetWallet(ctx, q, userID)
	if err != nil {
		return nil, s.fail(err, "get wallet", userID)
	}
	return w, nil
}

// AddCredit records a deposit. Auto-approved credits are applied to the balance
// immediately; others wait for ApproveTransaction.
func (s *Service) AddCredit(ctx context.Context, req CreditRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, apperrors.InvalidAmount("مبلغ باید بیشتر از صفر باشد")
	}

	now := s.now()
	t := &Transaction{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Direction:   DirectionCredit,
		Method:      req.Method,
		Status:      StatusPending,
		Reference:   req.Reference,
		Description: req.Description,
		CreatedAt:   now,
	}
	if req.AdminID != 0 {
		t.AdminID = sql.NullInt64{Int64: req.AdminID, Valid: true}
	}
	if req.AutoApprove {
		t.Status = StatusApproved
		t.ProcessedAt = sql.NullTime{Time: now, Valid: true}
	}

	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.repo.EnsureWallet(ctx, q, req.UserID, now); err != nil {
			return err
		}
		if _, err := s.repo.InsertTransaction(ctx, q, t); err != nil {
			return err
		}
		if req.AutoApprove {
			return s.repo.Credit(ctx, q, req.UserID, req.Amount, now)
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(err, "add credit", req.UserID)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id": req.UserID,
		"tx_id":   t.ID,
		"amount":  req.Amount,
		"method":  req.Method,
		"status":  t.Status,
	}).Info("credit recorded")

	return t.ID, nil
}

// DeductBalance debits amount and records an approved debit transaction.
// It fails without touching the wallet when the balance does not cover amount.
func (s *Service) DeductBalance(ctx context.Context, userID, amount int64, description, reference string) error {
	if amount <= 0 {
		return apperrors.InvalidAmount("مبلغ باید بیشتر از صفر باشد")
	}

	now := s.now()
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.repo.EnsureWallet(ctx, q, userID, now); err != nil {
			return err
		}

		ok, err := s.repo.Debit(ctx, q, userID, amount, now)
		if err != nil {
			return err
		}
		if !ok {
			w, err := s.repo.GetWallet(ctx, q, userID)
			if err != nil {
				return err
			}
			return apperrors.InsufficientBalance(w.Balance, amount)
		}

		_, err = s.repo.InsertTransaction(ctx, q, &Transaction{
			UserID:      userID,
			Amount:      amount,
			Direction:   DirectionDebit,
			Method:      MethodPurchase,
			Status:      StatusApproved,
			Reference:   reference,
			Description: description,
			CreatedAt:   now,
			ProcessedAt: sql.NullTime{Time: now, Valid: true},
		})
		return err
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInsufficientBalance) {
			s.log.WithField("user_id", userID).Infof("debit of %d refused: insufficient balance", amount)
			return err
		}
		return s.fail(err, "deduct balance", userID)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":   userID,
		"amount":    amount,
		"reference": reference,
	}).Info("balance deducted")

	return nil
}

// ApproveTransaction applies a pending credit to the wallet
func (s *Service) ApproveTransaction(ctx context.Context, txID, adminID int64) error {
	now := s.now()
	var t *Transaction

	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		var err error
		t, err = s.repo.GetTransaction(ctx, q, txID)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return apperrors.AlreadyProcessed("این تراکنش قبلا پردازش شده است")
		}
		if t.Direction != DirectionCredit {
			return apperrors.InvalidInput("فقط تراکنش‌های واریز قابل تایید هستند")
		}

		ok, err := s.repo.Resolve(ctx, q, txID, StatusApproved, adminID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.AlreadyProcessed("این تراکنش قبلا پردازش شده است")
		}

		if err := s.repo.EnsureWallet(ctx, q, t.UserID, now); err != nil {
			return err
		}
		return s.repo.Credit(ctx, q, t.UserID, t.Amount, now)
	})
	if err != nil {
		return s.failTx(err, "approve transaction", txID)
	}

	s.log.WithFields(map[string]interface{}{
		"tx_id":    txID,
		"admin_id": adminID,
		"user_id":  t.UserID,
		"amount":   t.Amount,
	}).Info("transaction approved")

	return nil
}

// RejectTransaction marks a pending transaction rejected; the wallet is not touched
func (s *Service) RejectTransaction(ctx context.Context, txID, adminID int64) error {
	now := s.now()

	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		t, err := s.repo.GetTransaction(ctx, q, txID)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return apperrors.AlreadyProcessed("این تراکنش قبلا پردازش شده است")
		}

		ok, err := s.repo.Resolve(ctx, q, txID, StatusRejected, adminID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.AlreadyProcessed("این تراکنش قبلا پردازش شده است")
		}
		return nil
	})
	if err != nil {
		return s.failTx(err, "reject transaction", txID)
	}

	s.log.WithFields(map[string]interface{}{
		"tx_id":    txID,
		"admin_id": adminID,
	}).Info("transaction rejected")

	return nil
}

func (s *Service) GetTransaction(ctx context.Context, txID int64) (*Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, s.repo.DB(), txID)
	if err != nil {
		return nil, s.failTx(err, "get transaction", txID)
	}
	return t, nil
}

// GetTransactions returns the user's latest transactions
func (s *Service) GetTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	txs, err := s.repo.ListByUser(ctx, s.repo.DB(), userID, normalizeLimit(limit))
	if err != nil {
		return nil, s.fail(err, "list transactions", userID)
	}
	return txs, nil
}

// GetPendingTransactions returns transactions awaiting admin review, oldest first
func (s *Service) GetPendingTransactions(ctx context.Context, limit int) ([]*Transaction, error) {
	txs, err := s.repo.ListPending(ctx, s.repo.DB(), normalizeLimit(limit))
	if err != nil {
		return nil, s.fail(err, "list pending transactions", 0)
	}
	return txs, nil
}

// GetWalletStats summarises a user's wallet over the last 30 days
func (s *Service) GetWalletStats(ctx context.Context, userID int64) (*Stats, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := s.repo.DB()
	st := &Stats{
		Balance:        w.Balance,
		TotalDeposited: w.TotalDeposited,
		TotalSpent:     w.TotalSpent,
	}

	if st.TransactionCount, err = s.repo.CountByUser(ctx, q, userID); err != nil {
		return nil, s.fail(err, "count transactions", userID)
	}
	if st.RecentDeposits, st.RecentAmount, err = s.repo.ApprovedCreditsSince(ctx, q, userID, s.now().Add(-statsWindow)); err != nil {
		return nil, s.fail(err, "recent deposits", userID)
	}
	if st.LastDeposit, err = s.repo.LastApprovedCredit(ctx, q, userID); err != nil {
		return nil, s.fail(err, "last deposit", userID)
	}

	return st, nil
}

// GetSystemStats aggregates all wallets
func (s *Service) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	q := s.repo.DB()
	st, err := s.repo.Totals(ctx, q)
	if err != nil {
		return nil, s.fail(err, "system totals", 0)
	}
	if st.RecentDeposits, st.RecentAmount, err = s.repo.ApprovedCreditsSince(ctx, q, 0, s.now().Add(-statsWindow)); err != nil {
		return nil, s.fail(err, "system recent deposits", 0)
	}
	return st, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

// fail logs err and converts anything that is not already a BotError into a database error
func (s *Service) fail(err error, op string, userID int64) error {
	var be *apperrors.BotError
	if apperrors.As(err, &be) && be.Code != apperrors.CodeDatabase {
		return err
	}
	s.log.WithField("user_id", userID).ErrorErr(err, op+" failed")
	if be != nil {
		return be
	}
	return apperrors.Database(err)
}

func (s *Service) failTx(err error, op string, txID int64) error {
	var be *apperrors.BotError
	if apperrors.As(err, &be) && be.Code != apperrors.CodeDatabase {
		s.log.WithField("tx_id", txID).Warnf("%s: %s", op, be.Message)
		return err
	}
	s.log.WithField("tx_id", txID).ErrorErr(err, op+" failed")
	if be != nil {
		return be
	}
	return apperrors.Database(err)
}
