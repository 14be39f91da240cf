package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/internal/repository"
	"github.com/sponsio/sponsio/pkg/logger"
)

const testNow = int64(1750000000)

func newLedger() (*Ledger, *repository.MemoryDB) {
	return NewLedger(logger.NewNop()), repository.NewMemoryDB()
}

func TestGetOrCreate(t *testing.T) {
	ldg, repo := newLedger()

	wallet, err := ldg.GetOrCreate(repo, "alice", testNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", wallet.UserID)
	assert.True(t, wallet.Balance.IsZero())
	assert.Equal(t, testNow, wallet.CreatedAt)

	// A second call returns the same wallet instead of creating another.
	again, err := ldg.GetOrCreate(repo, "alice", testNow+10)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)
	assert.Equal(t, testNow, again.CreatedAt)
}

func TestCreditAndDebit(t *testing.T) {
	ldg, repo := newLedger()

	wallet, err := ldg.Credit(repo, Entry{
		UserID: "alice",
		Amount: decimal.NewFromInt(100),
		Type:   models.TxStakeRefund,
	}, testNow)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(100)))

	wallet, err = ldg.Debit(repo, Entry{
		UserID:      "alice",
		Amount:      decimal.NewFromInt(40),
		Type:        models.TxStakeCreation,
		ReferenceID: "stake-1",
	}, testNow)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, wallet.TotalStaked.Equal(decimal.NewFromInt(40)))

	// The log holds one positive and one negative row.
	txs, err := repo.GetWalletTransactions(wallet.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(-40)))
	assert.True(t, txs[1].Amount.Equal(decimal.NewFromInt(100)))
}

func TestDebitInsufficientFunds(t *testing.T) {
	ldg, repo := newLedger()

	_, err := ldg.Credit(repo, Entry{UserID: "alice", Amount: decimal.NewFromInt(10), Type: models.TxStakeRefund}, testNow)
	require.NoError(t, err)

	_, err = ldg.Debit(repo, Entry{UserID: "alice", Amount: decimal.RequireFromString("10.01"), Type: models.TxStakeCreation}, testNow)
	assert.True(t, errors.Is(err, models.ErrInsufficientFunds))

	// The failed debit left no trace.
	wallet, err := repo.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(10)))
	require.NoError(t, ldg.VerifyBalance(repo, wallet.ID))
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	ldg, repo := newLedger()

	_, err := ldg.Credit(repo, Entry{UserID: "alice", Amount: decimal.Zero, Type: models.TxReward}, testNow)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = ldg.Debit(repo, Entry{UserID: "alice", Amount: decimal.NewFromInt(-5), Type: models.TxStakeCreation}, testNow)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRewardCreditsBumpTotalEarned(t *testing.T) {
	ldg, repo := newLedger()

	_, err := ldg.Credit(repo, Entry{UserID: "alice", Amount: decimal.NewFromInt(50), Type: models.TxStakeRefund}, testNow)
	require.NoError(t, err)
	wallet, err := ldg.Credit(repo, Entry{UserID: "alice", Amount: decimal.NewFromInt(5), Type: models.TxReward}, testNow)
	require.NoError(t, err)

	assert.True(t, wallet.TotalEarned.Equal(decimal.NewFromInt(5)))
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(55)))
}

func TestRecordLoss(t *testing.T) {
	ldg, repo := newLedger()

	require.NoError(t, ldg.RecordLoss(repo, "alice", decimal.NewFromInt(25), testNow))
	wallet, err := repo.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.TotalLost.Equal(decimal.NewFromInt(25)))
	// Losses are forfeited custody, not balance movements: no log row exists
	// and the balance still replays cleanly.
	txs, err := repo.GetWalletTransactions(wallet.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
	require.NoError(t, ldg.VerifyBalance(repo, wallet.ID))

	// Zero and negative losses are ignored.
	require.NoError(t, ldg.RecordLoss(repo, "alice", decimal.Zero, testNow))
	wallet, _ = repo.GetWalletByUser("alice")
	assert.True(t, wallet.TotalLost.Equal(decimal.NewFromInt(25)))
}

func TestApplyStreak(t *testing.T) {
	ldg, repo := newLedger()

	check := func(current, longest int) {
		t.Helper()
		wallet, err := repo.GetWalletByUser("alice")
		require.NoError(t, err)
		assert.Equal(t, current, wallet.CurrentStreak)
		assert.Equal(t, longest, wallet.LongestStreak)
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, ldg.ApplyStreak(repo, "alice", models.StakeCompleted, testNow))
	}
	check(5, 5)

	// Partial completion halves, rounding down.
	require.NoError(t, ldg.ApplyStreak(repo, "alice", models.StakePartiallyCompleted, testNow))
	check(2, 5)
	require.NoError(t, ldg.ApplyStreak(repo, "alice", models.StakePartiallyCompleted, testNow))
	check(1, 5)

	require.NoError(t, ldg.ApplyStreak(repo, "alice", models.StakeFailed, testNow))
	check(0, 5)

	// The longest streak is a high-water mark and survives resets.
	require.NoError(t, ldg.ApplyStreak(repo, "alice", models.StakeCompleted, testNow))
	check(1, 5)
}

func TestVerifyBalanceDetectsDrift(t *testing.T) {
	ldg, repo := newLedger()

	wallet, err := ldg.Credit(repo, Entry{UserID: "alice", Amount: decimal.NewFromInt(100), Type: models.TxStakeRefund}, testNow)
	require.NoError(t, err)
	require.NoError(t, ldg.VerifyBalance(repo, wallet.ID))

	// Mutating the cached balance without a log row is exactly the corruption
	// the replay check exists to catch.
	wallet.Balance = wallet.Balance.Add(decimal.NewFromInt(1))
	require.NoError(t, repo.UpdateWallet(wallet))
	err = ldg.VerifyBalance(repo, wallet.ID)
	assert.True(t, errors.Is(err, models.ErrConsistency))
}
