package repository

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sponsio/sponsio/internal/models"
)

const testNow = int64(1750000000)

func testWallet(id, user string, balance int64) *models.Wallet {
	return &models.Wallet{
		ID:        id,
		UserID:    user,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: testNow,
	}
}

func TestAtomicallyCommits(t *testing.T) {
	db := NewMemoryDB()

	err := db.Atomically(func(tx models.Repository) error {
		if err := tx.CreateWallet(testWallet("w1", "alice", 100)); err != nil {
			return err
		}
		return tx.AddWalletTransaction(&models.WalletTransaction{ID: "t1", WalletID: "w1", UserID: "alice", Amount: decimal.NewFromInt(100)})
	})
	require.NoError(t, err)

	wallet, err := db.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(100)))
	txs, err := db.GetWalletTransactions("w1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestAtomicallyRollsBackEverything(t *testing.T) {
	db := NewMemoryDB()
	require.NoError(t, db.CreateWallet(testWallet("w1", "alice", 100)))

	boom := errors.New("boom")
	err := db.Atomically(func(tx models.Repository) error {
		wallet, err := tx.GetWalletByUser("alice")
		if err != nil {
			return err
		}
		wallet.Balance = decimal.Zero
		if err := tx.UpdateWallet(wallet); err != nil {
			return err
		}
		if err := tx.CreateStake(&models.Stake{ID: "s1", OwnerID: "alice", Status: models.StakeActive}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Neither the balance change nor the stake survived.
	wallet, err := db.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(100)))
	_, err = db.GetStake("s1")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAtomicallyNestedJoins(t *testing.T) {
	db := NewMemoryDB()

	boom := errors.New("boom")
	err := db.Atomically(func(tx models.Repository) error {
		if err := tx.CreateWallet(testWallet("w1", "alice", 10)); err != nil {
			return err
		}
		// The nested block joins the outer transaction; its failure unwinds both.
		return tx.Atomically(func(inner models.Repository) error {
			if err := inner.CreateWallet(testWallet("w2", "bob", 20)); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.GetWalletByUser("alice")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = db.GetWalletByUser("bob")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUpdateMissingRowIsConsistencyError(t *testing.T) {
	db := NewMemoryDB()

	err := db.UpdateWallet(testWallet("ghost", "alice", 0))
	assert.True(t, errors.Is(err, models.ErrConsistency))
	err = db.UpdateStake(&models.Stake{ID: "ghost"})
	assert.True(t, errors.Is(err, models.ErrConsistency))
}

func TestListSweepCandidates(t *testing.T) {
	db := NewMemoryDB()

	stakes := []*models.Stake{
		{ID: "due-active", Status: models.StakeActive, Deadline: testNow - 10},
		{ID: "future-active", Status: models.StakeActive, Deadline: testNow + 10},
		{ID: "due-grace", Status: models.StakeGracePeriod, Deadline: testNow - 100, GracePeriodEnd: testNow - 1},
		{ID: "running-grace", Status: models.StakeGracePeriod, Deadline: testNow - 100, GracePeriodEnd: testNow + 100},
		{ID: "settled", Status: models.StakeFailed, Deadline: testNow - 100},
	}
	for _, s := range stakes {
		require.NoError(t, db.CreateStake(s))
	}

	candidates, err := db.ListSweepCandidates(testNow, 10)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, c := range candidates {
		ids[c.ID] = true
	}
	assert.Equal(t, map[string]bool{"due-active": true, "due-grace": true}, ids)
}

func TestSweepLockLease(t *testing.T) {
	db := NewMemoryDB()

	ok, err := db.AcquireSweepLock("sweep", "node-a", testNow, testNow+300)
	require.NoError(t, err)
	assert.True(t, ok)

	// Another instance cannot take an unexpired lease.
	ok, err = db.AcquireSweepLock("sweep", "node-b", testNow+10, testNow+310)
	require.NoError(t, err)
	assert.False(t, ok)

	// The holder may renew its own lease.
	ok, err = db.AcquireSweepLock("sweep", "node-a", testNow+20, testNow+320)
	require.NoError(t, err)
	assert.True(t, ok)

	// After expiry anyone may take over.
	ok, err = db.AcquireSweepLock("sweep", "node-b", testNow+400, testNow+700)
	require.NoError(t, err)
	assert.True(t, ok)

	// Release by a non-holder is a no-op; release by the holder frees it.
	require.NoError(t, db.ReleaseSweepLock("sweep", "node-a"))
	ok, _ = db.AcquireSweepLock("sweep", "node-c", testNow+410, testNow+710)
	assert.False(t, ok)
	require.NoError(t, db.ReleaseSweepLock("sweep", "node-b"))
	ok, _ = db.AcquireSweepLock("sweep", "node-c", testNow+420, testNow+720)
	assert.True(t, ok)
}

func TestCountAndSumStakesSince(t *testing.T) {
	db := NewMemoryDB()

	amounts := []int64{10, 20, 30}
	for i, a := range amounts {
		require.NoError(t, db.CreateStake(&models.Stake{
			ID:         string(rune('a' + i)),
			OwnerID:    "alice",
			Status:     models.StakeActive,
			OwnerStake: decimal.NewFromInt(a),
			CreatedAt:  testNow - int64(i)*100,
		}))
	}
	require.NoError(t, db.CreateStake(&models.Stake{
		ID: "other", OwnerID: "bob", Status: models.StakeActive,
		OwnerStake: decimal.NewFromInt(500), CreatedAt: testNow,
	}))

	count, err := db.CountStakesSince("alice", testNow-150)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	sum, err := db.SumStakeAmountsSince("alice", testNow-1000)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(60)))

	recent, err := db.RecentStakeAmounts("alice", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first.
	assert.True(t, recent[0].Equal(decimal.NewFromInt(10)))
	assert.True(t, recent[1].Equal(decimal.NewFromInt(20)))
}
