package escrow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/internal/repository"
	"github.com/sponsio/sponsio/pkg/logger"
)

const testNow = int64(1750000000)

// fakeGateway scripts gateway behaviour per call. Errors are consumed in
// order; an exhausted script succeeds.
type fakeGateway struct {
	confirmErrs  []error
	transferErrs []error
	refundErrs   []error

	openCalls     int
	confirmCalls  int
	transferCalls int
	refundCalls   int

	lastTransferAmount    decimal.Decimal
	lastTransferRecipient string
}

func (f *fakeGateway) OpenIntent(_ context.Context, amount decimal.Decimal, currency string) (*models.PaymentIntent, error) {
	f.openCalls++
	return &models.PaymentIntent{ID: fmt.Sprintf("pi_%d", f.openCalls), ClientSecret: "secret"}, nil
}

func (f *fakeGateway) Confirm(_ context.Context, intentID string) error {
	f.confirmCalls++
	return f.next(&f.confirmErrs)
}

func (f *fakeGateway) Transfer(_ context.Context, amount decimal.Decimal, currency, recipient string) (string, error) {
	f.transferCalls++
	if err := f.next(&f.transferErrs); err != nil {
		return "", err
	}
	f.lastTransferAmount = amount
	f.lastTransferRecipient = recipient
	return fmt.Sprintf("tr_%d", f.transferCalls), nil
}

func (f *fakeGateway) Refund(_ context.Context, intentID string, amount decimal.Decimal) (string, error) {
	f.refundCalls++
	if err := f.next(&f.refundErrs); err != nil {
		return "", err
	}
	return fmt.Sprintf("re_%d", f.refundCalls), nil
}

func (f *fakeGateway) next(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func testConfig() *config.Config {
	return &config.Config{
		PlatformFeePct:      decimal.RequireFromString("0.05"),
		GatewayFeePct:       decimal.RequireFromString("0.029"),
		PaymentRetryMax:     2,
		PaymentRetryBackoff: time.Millisecond,
	}
}

func newManager() (*Manager, *fakeGateway, *repository.MemoryDB) {
	gw := &fakeGateway{}
	return NewManager(testConfig(), gw, logger.NewNop()), gw, repository.NewMemoryDB()
}

func create(t *testing.T, m *Manager, repo models.Repository, stakeID, userID string, amount decimal.Decimal) *models.EscrowTransaction {
	t.Helper()
	esc, err := m.Create(context.Background(), repo, stakeID, userID, amount, "USD", models.RailCard, testNow)
	require.NoError(t, err)
	return esc
}

func TestCreateComputesFees(t *testing.T) {
	m, gw, repo := newManager()

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	assert.Equal(t, models.EscrowPending, esc.Status)
	assert.Equal(t, "pi_1", esc.PaymentIntentID)
	assert.True(t, esc.GatewayFee.Equal(decimal.RequireFromString("2.9")))
	assert.True(t, esc.PlatformFee.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 1, gw.openCalls)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	m, _, repo := newManager()

	create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Create(context.Background(), repo, "stake-1", "alice", decimal.NewFromInt(100), "USD", models.RailCard, testNow)
	assert.True(t, errors.Is(err, models.ErrDuplicateEscrow))
}

func TestLock(t *testing.T) {
	m, _, repo := newManager()

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	locked, err := m.Lock(context.Background(), repo, esc.ID, testNow+1)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowLocked, locked.Status)
	assert.Equal(t, testNow+1, locked.LockedAt)

	// Locking twice violates the status machine.
	_, err = m.Lock(context.Background(), repo, esc.ID, testNow+2)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestLockRetriesTransientFailures(t *testing.T) {
	m, gw, repo := newManager()
	gw.confirmErrs = []error{models.ErrPaymentProvider, models.ErrPaymentProvider}

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	locked, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowLocked, locked.Status)
	assert.Equal(t, 3, gw.confirmCalls)
}

func TestLockDeclineFailsWithoutRetry(t *testing.T) {
	m, gw, repo := newManager()
	gw.confirmErrs = []error{models.ErrPaymentDeclined}

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	assert.True(t, errors.Is(err, models.ErrPaymentDeclined))
	assert.Equal(t, 1, gw.confirmCalls)

	stored, err := repo.GetEscrow(esc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFailed, stored.Status)
}

func TestLockRetryExhaustionFails(t *testing.T) {
	m, gw, repo := newManager()
	gw.confirmErrs = []error{models.ErrPaymentProvider, models.ErrPaymentProvider, models.ErrPaymentProvider}

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	assert.True(t, errors.Is(err, models.ErrPaymentProvider))
	assert.Equal(t, 3, gw.confirmCalls)

	stored, _ := repo.GetEscrow(esc.ID)
	assert.Equal(t, models.EscrowFailed, stored.Status)
}

func TestReleaseReward(t *testing.T) {
	m, gw, repo := newManager()

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	require.NoError(t, err)

	released, err := m.Release(context.Background(), repo, esc.ID, models.ReleaseReward, testNow+5)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)
	assert.Equal(t, testNow+5, released.ReleasedAt)
	assert.Equal(t, "alice", gw.lastTransferRecipient)
	// 100 - 2.9 gateway - 5 platform
	assert.True(t, gw.lastTransferAmount.Equal(decimal.RequireFromString("92.1")))
}

func TestReleasePenaltyGoesToPlatform(t *testing.T) {
	m, gw, repo := newManager()

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	require.NoError(t, err)

	released, err := m.Release(context.Background(), repo, esc.ID, models.ReleasePenalty, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)
	assert.Equal(t, PlatformAccount, gw.lastTransferRecipient)
	// The gateway fee is sunk on every outcome; only the platform fee is waived.
	assert.True(t, gw.lastTransferAmount.Equal(decimal.RequireFromString("97.1")))
}

func TestReleaseRefund(t *testing.T) {
	m, gw, repo := newManager()

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	require.NoError(t, err)

	refunded, err := m.Release(context.Background(), repo, esc.ID, models.ReleaseRefund, testNow+7)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowRefunded, refunded.Status)
	assert.Equal(t, testNow+7, refunded.RefundedAt)
	assert.Equal(t, 1, gw.refundCalls)
	assert.Equal(t, 0, gw.transferCalls)
}

func TestReleaseRequiresLocked(t *testing.T) {
	m, _, repo := newManager()

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Release(context.Background(), repo, esc.ID, models.ReleaseReward, testNow)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestReleaseStaysLockedOnTransferFailure(t *testing.T) {
	m, gw, repo := newManager()
	gw.transferErrs = []error{models.ErrPaymentProvider, models.ErrPaymentProvider, models.ErrPaymentProvider}

	esc := create(t, m, repo, "stake-1", "alice", decimal.NewFromInt(100))
	_, err := m.Lock(context.Background(), repo, esc.ID, testNow)
	require.NoError(t, err)

	_, err = m.Release(context.Background(), repo, esc.ID, models.ReleaseReward, testNow)
	assert.True(t, errors.Is(err, models.ErrPaymentProvider))

	// Funds remain in custody and the release can be retried.
	stored, _ := repo.GetEscrow(esc.ID)
	assert.Equal(t, models.EscrowLocked, stored.Status)

	released, err := m.Release(context.Background(), repo, esc.ID, models.ReleaseReward, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)
}

func TestCanTransitionEscrow(t *testing.T) {
	assert.True(t, models.CanTransitionEscrow(models.EscrowPending, models.EscrowLocked))
	assert.True(t, models.CanTransitionEscrow(models.EscrowPending, models.EscrowFailed))
	assert.True(t, models.CanTransitionEscrow(models.EscrowLocked, models.EscrowReleased))
	assert.True(t, models.CanTransitionEscrow(models.EscrowLocked, models.EscrowRefunded))

	assert.False(t, models.CanTransitionEscrow(models.EscrowPending, models.EscrowReleased))
	assert.False(t, models.CanTransitionEscrow(models.EscrowLocked, models.EscrowFailed))
	assert.False(t, models.CanTransitionEscrow(models.EscrowReleased, models.EscrowRefunded))
	assert.False(t, models.CanTransitionEscrow(models.EscrowFailed, models.EscrowLocked))
}
