package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

// Ledger is the single writer of wallet balances. Every balance change goes
// through Credit or Debit, which append one immutable transaction row and
// update the cached balance together. Callers compose ledger calls with their
// own writes inside Repository.Atomically, so a failure anywhere rolls back
// the whole group.
type Ledger struct {
	logger *logger.Logger
}

func NewLedger(logger *logger.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// Entry describes one wallet movement. Amount is always positive; Debit
// stores it negated.
type Entry struct {
	UserID      string
	Amount      decimal.Decimal
	Type        string
	Description string
	ReferenceID string
}

// GetOrCreate returns the user's wallet, creating a zero-balance one on the
// first financial action.
func (l *Ledger) GetOrCreate(repo models.Repository, userID string, now int64) (*models.Wallet, error) {
	wallet, err := repo.GetWalletByUser(userID)
	if err == nil {
		return wallet, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	wallet = &models.Wallet{
		ID:          uuid.NewString(),
		UserID:      userID,
		Balance:     decimal.Zero,
		TotalEarned: decimal.Zero,
		TotalLost:   decimal.Zero,
		TotalStaked: decimal.Zero,
		CreatedAt:   now,
	}
	if err := repo.CreateWallet(wallet); err != nil {
		return nil, fmt.Errorf("failed to create wallet for user %s: %w", userID, err)
	}
	l.logger.Info("Created wallet", "user", userID, "wallet", wallet.ID)
	return wallet, nil
}

// Credit adds entry.Amount to the wallet and appends the transaction row.
// Reward-type credits also bump the totalEarned counter.
func (l *Ledger) Credit(repo models.Repository, entry Entry, now int64) (*models.Wallet, error) {
	if !entry.Amount.IsPositive() {
		return nil, models.Invalid("amount", "credit amount must be positive")
	}
	wallet, err := l.GetOrCreate(repo, entry.UserID, now)
	if err != nil {
		return nil, err
	}
	wallet.Balance = wallet.Balance.Add(entry.Amount)
	if entry.Type == models.TxReward || entry.Type == models.TxRecoveryReward {
		wallet.TotalEarned = wallet.TotalEarned.Add(entry.Amount)
	}
	if err := l.append(repo, wallet, entry, entry.Amount, now); err != nil {
		return nil, err
	}
	return wallet, nil
}

// Debit removes entry.Amount from the wallet, failing with InsufficientFunds
// when the balance would go negative. Stake-creation debits also bump the
// totalStaked counter.
func (l *Ledger) Debit(repo models.Repository, entry Entry, now int64) (*models.Wallet, error) {
	if !entry.Amount.IsPositive() {
		return nil, models.Invalid("amount", "debit amount must be positive")
	}
	wallet, err := l.GetOrCreate(repo, entry.UserID, now)
	if err != nil {
		return nil, err
	}
	if wallet.Balance.LessThan(entry.Amount) {
		return nil, fmt.Errorf("wallet %s balance %s, debit %s: %w",
			wallet.ID, wallet.Balance.String(), entry.Amount.String(), models.ErrInsufficientFunds)
	}
	wallet.Balance = wallet.Balance.Sub(entry.Amount)
	switch entry.Type {
	case models.TxStakeCreation, models.TxParticipantJoin, models.TxRecoveryStakeCreation:
		wallet.TotalStaked = wallet.TotalStaked.Add(entry.Amount)
	case models.TxPenalty, models.TxRecoveryPenalty:
		wallet.TotalLost = wallet.TotalLost.Add(entry.Amount)
	}
	if err := l.append(repo, wallet, entry, entry.Amount.Neg(), now); err != nil {
		return nil, err
	}
	return wallet, nil
}

// RecordLoss bumps the totalLost counter for funds forfeited in escrow, where
// no wallet balance moves. The counters are wallet statistics, not balance;
// only balance changes require a transaction row.
func (l *Ledger) RecordLoss(repo models.Repository, userID string, amount decimal.Decimal, now int64) error {
	if !amount.IsPositive() {
		return nil
	}
	wallet, err := l.GetOrCreate(repo, userID, now)
	if err != nil {
		return err
	}
	wallet.TotalLost = wallet.TotalLost.Add(amount)
	return repo.UpdateWallet(wallet)
}

// ApplyStreak adjusts the streak counters for a settled stake: +1 on
// completion, halved (rounding down) on partial completion, reset on failure.
func (l *Ledger) ApplyStreak(repo models.Repository, userID, outcome string, now int64) error {
	wallet, err := l.GetOrCreate(repo, userID, now)
	if err != nil {
		return err
	}
	switch outcome {
	case models.StakeCompleted:
		wallet.CurrentStreak++
		if wallet.CurrentStreak > wallet.LongestStreak {
			wallet.LongestStreak = wallet.CurrentStreak
		}
	case models.StakePartiallyCompleted:
		wallet.CurrentStreak /= 2
	case models.StakeFailed:
		wallet.CurrentStreak = 0
	default:
		return nil
	}
	return repo.UpdateWallet(wallet)
}

// VerifyBalance replays the wallet's transaction log and compares the sum
// with the cached balance. Drift means the atomic boundary was violated
// somewhere and is reported as a consistency error.
func (l *Ledger) VerifyBalance(repo models.Repository, walletID string) error {
	wallet, err := repo.GetWallet(walletID)
	if err != nil {
		return err
	}
	txs, err := repo.GetWalletTransactions(walletID, 0)
	if err != nil {
		return err
	}
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	if !sum.Equal(wallet.Balance) {
		return fmt.Errorf("wallet %s cached balance %s, replayed %s: %w",
			walletID, wallet.Balance.String(), sum.String(), models.ErrConsistency)
	}
	return nil
}

func (l *Ledger) append(repo models.Repository, wallet *models.Wallet, entry Entry, signed decimal.Decimal, now int64) error {
	tx := &models.WalletTransaction{
		ID:          uuid.NewString(),
		WalletID:    wallet.ID,
		UserID:      entry.UserID,
		Type:        entry.Type,
		Amount:      signed,
		Description: entry.Description,
		ReferenceID: entry.ReferenceID,
		CreatedAt:   now,
	}
	if err := repo.AddWalletTransaction(tx); err != nil {
		return err
	}
	if err := repo.UpdateWallet(wallet); err != nil {
		return err
	}
	l.logger.Debug("Ledger entry", "user", entry.UserID, "type", entry.Type, "amount", signed.String(), "reference", entry.ReferenceID)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
