package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/ledger"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/internal/repository"
	"github.com/sponsio/sponsio/pkg/logger"
)

const testNow = int64(1750000000)

func testConfig() *config.Config {
	return &config.Config{
		MinStakeAmount:      decimal.NewFromInt(5),
		MaxStakeAmount:      decimal.NewFromInt(1000),
		MinDeadlineOffset:   time.Hour,
		MaxDeadlineOffset:   90 * 24 * time.Hour,
		MaxRecoveryPct:      decimal.RequireFromString("0.5"),
		RecoveryMultiplier:  decimal.NewFromInt(2),
		MaxRecoveryAttempts: 3,
	}
}

type fixture struct {
	mgr  *Manager
	repo *repository.MemoryDB
	ldg  *ledger.Ledger
	now  int64
}

func newFixture() *fixture {
	log := logger.NewNop()
	repo := repository.NewMemoryDB()
	ldg := ledger.NewLedger(log)
	f := &fixture{
		repo: repo,
		ldg:  ldg,
		now:  testNow,
	}
	f.mgr = NewManager(testConfig(), repo, ldg, nil, log)
	f.mgr.Now = func() int64 { return f.now }
	return f
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.ldg.Credit(f.repo, ledger.Entry{
		UserID:      userID,
		Amount:      decimal.NewFromInt(amount),
		Type:        models.TxStakeRefund,
		Description: "test deposit",
	}, f.now)
	require.NoError(t, err)
}

// failedStake seeds a FAILED original with the given penalty.
func (f *fixture) failedStake(t *testing.T, owner string, penalty int64) *models.Stake {
	t.Helper()
	stake := &models.Stake{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		Title:         "missed goal",
		Type:          models.StakeTypeSelf,
		Status:        models.StakeFailed,
		OwnerStake:    decimal.NewFromInt(penalty),
		TotalAmount:   decimal.NewFromInt(penalty),
		PenaltyAmount: decimal.NewFromInt(penalty),
		Currency:      "USD",
		Deadline:      testNow - 3600,
		CreatedAt:     testNow - 7200,
		CompletedAt:   testNow - 60,
	}
	require.NoError(t, f.repo.CreateStake(stake))
	return stake
}

func (f *fixture) create(t *testing.T, original *models.Stake, amount int64) *models.RecoveryStake {
	t.Helper()
	recovery, err := f.mgr.Create(models.CreateRecoveryInput{
		OriginalStakeID: original.ID,
		UserID:          original.OwnerID,
		Amount:          decimal.NewFromInt(amount),
		Deadline:        f.now + 7200,
	})
	require.NoError(t, err)
	return recovery
}

func TestCreateRecoveryTarget(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 100)
	original := f.failedStake(t, "alice", 100)

	// Target is capped by the stake multiplier: min(100*0.5, 20*2) = 40.
	recovery := f.create(t, original, 20)
	assert.Equal(t, models.RecoveryActive, recovery.Status)
	assert.True(t, recovery.RecoveryTarget.Equal(decimal.NewFromInt(40)))

	// The recovery principal was debited.
	wallet, err := f.repo.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(80)))
}

func TestCreateRecoveryTargetCappedByPenalty(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 100)
	original := f.failedStake(t, "alice", 100)

	// min(100*0.5, 80*2) = 50: the loss fraction caps, not the multiplier.
	recovery := f.create(t, original, 80)
	assert.True(t, recovery.RecoveryTarget.Equal(decimal.NewFromInt(50)))
}

func TestCreateRecoveryGuards(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 1000)

	create := func(stakeID, user string) error {
		_, err := f.mgr.Create(models.CreateRecoveryInput{
			OriginalStakeID: stakeID,
			UserID:          user,
			Amount:          decimal.NewFromInt(20),
			Deadline:        f.now + 7200,
		})
		return err
	}

	original := f.failedStake(t, "alice", 100)
	assert.True(t, errors.Is(create(original.ID, "bob"), models.ErrNotStakeOwner))

	active := f.failedStake(t, "alice", 100)
	active.Status = models.StakeActive
	require.NoError(t, f.repo.UpdateStake(active))
	assert.True(t, errors.Is(create(active.ID, "alice"), models.ErrValidation))

	chained := f.failedStake(t, "alice", 100)
	chained.RecoveryForID = original.ID
	require.NoError(t, f.repo.UpdateStake(chained))
	assert.True(t, errors.Is(create(chained.ID, "alice"), models.ErrRecoveryChain))
}

func TestCreateRecoveryAttemptCap(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 1000)
	original := f.failedStake(t, "alice", 100)

	for i := 0; i < 3; i++ {
		f.create(t, original, 20)
	}
	_, err := f.mgr.Create(models.CreateRecoveryInput{
		OriginalStakeID: original.ID,
		UserID:          "alice",
		Amount:          decimal.NewFromInt(20),
		Deadline:        f.now + 7200,
	})
	assert.True(t, errors.Is(err, models.ErrRecoveryAttempts))
}

func TestSettleRecoverySuccess(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 100)
	original := f.failedStake(t, "alice", 100)
	recovery := f.create(t, original, 20)

	settled, err := f.mgr.Settle(models.SettleRecoveryInput{
		RecoveryID: recovery.ID,
		UserID:     "alice",
		Succeeded:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RecoveryCompleted, settled.Status)
	assert.Equal(t, f.now, settled.SettledAt)

	// Principal (20) plus the capped target (40) came back.
	wallet, err := f.repo.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(140)))
	assert.True(t, wallet.TotalEarned.Equal(decimal.NewFromInt(40)))
	require.NoError(t, f.ldg.VerifyBalance(f.repo, wallet.ID))

	// The recovered amount reduced the original stake's outstanding penalty.
	after, err := f.repo.GetStake(original.ID)
	require.NoError(t, err)
	assert.True(t, after.PenaltyAmount.Equal(decimal.NewFromInt(60)))
}

func TestSettleRecoveryFailure(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 100)
	original := f.failedStake(t, "alice", 100)
	recovery := f.create(t, original, 20)

	settled, err := f.mgr.Settle(models.SettleRecoveryInput{
		RecoveryID: recovery.ID,
		UserID:     "alice",
		Succeeded:  false,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RecoveryFailed, settled.Status)

	// The recovery principal is forfeited on top of the original loss.
	wallet, err := f.repo.GetWalletByUser("alice")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(80)))
	assert.True(t, wallet.TotalLost.Equal(decimal.NewFromInt(20)))

	// The original penalty stands.
	after, _ := f.repo.GetStake(original.ID)
	assert.True(t, after.PenaltyAmount.Equal(decimal.NewFromInt(100)))
}

func TestSettleRecoveryGuards(t *testing.T) {
	f := newFixture()
	f.fund(t, "alice", 100)
	original := f.failedStake(t, "alice", 100)
	recovery := f.create(t, original, 20)

	_, err := f.mgr.Settle(models.SettleRecoveryInput{RecoveryID: recovery.ID, UserID: "bob", Succeeded: true})
	assert.True(t, errors.Is(err, models.ErrNotStakeOwner))

	// A success claim after the deadline is rejected.
	f.now = recovery.Deadline + 1
	_, err = f.mgr.Settle(models.SettleRecoveryInput{RecoveryID: recovery.ID, UserID: "alice", Succeeded: true})
	assert.True(t, errors.Is(err, models.ErrValidation))

	// Failure is still recordable, and a settled recovery settles no further.
	_, err = f.mgr.Settle(models.SettleRecoveryInput{RecoveryID: recovery.ID, UserID: "alice", Succeeded: false})
	require.NoError(t, err)
	_, err = f.mgr.Settle(models.SettleRecoveryInput{RecoveryID: recovery.ID, UserID: "alice", Succeeded: false})
	assert.True(t, errors.Is(err, models.ErrStakeClosed))
}
