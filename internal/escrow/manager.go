package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

// PlatformAccount is the treasury recipient for penalty releases.
const PlatformAccount = "platform"

// Manager owns the custody records. It wraps the payment-gateway handshake
// with a durable escrow row whose status machine is independent of the
// stake's: PENDING -> LOCKED -> RELEASED | REFUNDED, PENDING -> FAILED.
// Gateway calls are the only external-latency points here; each retries its
// own idempotent sub-step with bounded backoff, never the surrounding
// transaction.
type Manager struct {
	cfg     *config.Config
	gateway models.PaymentGateway
	logger  *logger.Logger
}

func NewManager(cfg *config.Config, gateway models.PaymentGateway, logger *logger.Logger) *Manager {
	return &Manager{cfg: cfg, gateway: gateway, logger: logger}
}

// Create opens a payment handshake and records a PENDING escrow for the
// (stake, user) pair. Gateway and platform fees are computed now and stored
// on the row so settlement never re-derives them. A second escrow for the
// same pair is rejected.
func (m *Manager) Create(ctx context.Context, repo models.Repository, stakeID, userID string, amount decimal.Decimal, currency, rail string, now int64) (*models.EscrowTransaction, error) {
	if _, err := repo.GetEscrowByStakeAndUser(stakeID, userID); err == nil {
		return nil, fmt.Errorf("stake %s user %s: %w", stakeID, userID, models.ErrDuplicateEscrow)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	intent, err := m.gateway.OpenIntent(ctx, amount, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment intent for stake %s: %w", stakeID, err)
	}

	escrow := &models.EscrowTransaction{
		ID:              uuid.NewString(),
		StakeID:         stakeID,
		UserID:          userID,
		Amount:          amount,
		GatewayFee:      amount.Mul(m.cfg.GatewayFeePct).Round(4),
		PlatformFee:     amount.Mul(m.cfg.PlatformFeePct).Round(4),
		Currency:        currency,
		Rail:            rail,
		Status:          models.EscrowPending,
		PaymentIntentID: intent.ID,
		CreatedAt:       now,
	}
	if err := repo.CreateEscrow(escrow); err != nil {
		return nil, err
	}
	m.logger.Info("Escrow opened", "escrow", escrow.ID, "stake", stakeID, "user", userID, "amount", amount.String())
	return escrow, nil
}

// Lock confirms the payment intent and flips the escrow PENDING -> LOCKED.
// Confirmation is verified with the gateway independently of whatever the
// client claims; transient gateway failures retry with bounded backoff.
// A definitive decline, or retry exhaustion, marks the escrow FAILED.
func (m *Manager) Lock(ctx context.Context, repo models.Repository, escrowID string, now int64) (*models.EscrowTransaction, error) {
	escrow, err := repo.GetEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionEscrow(escrow.Status, models.EscrowLocked) {
		return nil, fmt.Errorf("escrow %s is %s: %w", escrowID, escrow.Status, models.ErrInvalidTransition)
	}

	err = m.withRetry(ctx, func() error {
		return m.gateway.Confirm(ctx, escrow.PaymentIntentID)
	})
	if err != nil {
		reason := err.Error()
		if failErr := m.markFailed(repo, escrow, reason, now); failErr != nil {
			return nil, failErr
		}
		return nil, fmt.Errorf("payment confirmation for escrow %s: %w", escrowID, err)
	}

	escrow.Status = models.EscrowLocked
	escrow.LockedAt = now
	if err := repo.UpdateEscrow(escrow); err != nil {
		return nil, err
	}
	m.logger.Info("Escrow locked", "escrow", escrow.ID, "stake", escrow.StakeID)
	return escrow, nil
}

// Release settles a LOCKED escrow. The destination and amount follow the
// kind: REFUND returns the full principal on the original intent, REWARD
// transfers the principal net of fees to the payer, PENALTY transfers the
// principal net of the gateway fee to the platform. The gateway transfer runs
// first and the terminal status is written only after it succeeds; on
// transfer failure the escrow stays LOCKED and the operation is retryable.
func (m *Manager) Release(ctx context.Context, repo models.Repository, escrowID, kind string, now int64) (*models.EscrowTransaction, error) {
	escrow, err := repo.GetEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	target := models.EscrowReleased
	if kind == models.ReleaseRefund {
		target = models.EscrowRefunded
	}
	if !models.CanTransitionEscrow(escrow.Status, target) {
		return nil, fmt.Errorf("escrow %s is %s: %w", escrowID, escrow.Status, models.ErrInvalidTransition)
	}

	var receipt string
	switch kind {
	case models.ReleaseRefund:
		err = m.withRetry(ctx, func() error {
			var refundErr error
			receipt, refundErr = m.gateway.Refund(ctx, escrow.PaymentIntentID, escrow.Amount)
			return refundErr
		})
	case models.ReleaseReward:
		net := escrow.Amount.Sub(escrow.GatewayFee).Sub(escrow.PlatformFee)
		err = m.withRetry(ctx, func() error {
			var transferErr error
			receipt, transferErr = m.gateway.Transfer(ctx, net, escrow.Currency, escrow.UserID)
			return transferErr
		})
	case models.ReleasePenalty:
		net := escrow.Amount.Sub(escrow.GatewayFee)
		err = m.withRetry(ctx, func() error {
			var transferErr error
			receipt, transferErr = m.gateway.Transfer(ctx, net, escrow.Currency, PlatformAccount)
			return transferErr
		})
	default:
		return nil, models.Invalid("kind", fmt.Sprintf("unknown release kind %q", kind))
	}
	if err != nil {
		// Funds stay in custody; the caller may retry the release.
		return nil, fmt.Errorf("settlement transfer for escrow %s (%s): %w", escrowID, kind, err)
	}

	escrow.Status = target
	escrow.TransferID = receipt
	if target == models.EscrowRefunded {
		escrow.RefundedAt = now
	} else {
		escrow.ReleasedAt = now
	}
	if err := repo.UpdateEscrow(escrow); err != nil {
		return nil, err
	}
	m.logger.Info("Escrow settled", "escrow", escrow.ID, "stake", escrow.StakeID, "kind", kind, "receipt", receipt)
	return escrow, nil
}

// Fail marks a PENDING escrow FAILED, recording the reason.
func (m *Manager) Fail(repo models.Repository, escrowID, reason string, now int64) (*models.EscrowTransaction, error) {
	escrow, err := repo.GetEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if err := m.markFailed(repo, escrow, reason, now); err != nil {
		return nil, err
	}
	return escrow, nil
}

func (m *Manager) markFailed(repo models.Repository, escrow *models.EscrowTransaction, reason string, now int64) error {
	if !models.CanTransitionEscrow(escrow.Status, models.EscrowFailed) {
		return fmt.Errorf("escrow %s is %s: %w", escrow.ID, escrow.Status, models.ErrInvalidTransition)
	}
	escrow.Status = models.EscrowFailed
	escrow.FailureReason = reason
	if err := repo.UpdateEscrow(escrow); err != nil {
		return err
	}
	m.logger.Warn("Escrow failed", "escrow", escrow.ID, "stake", escrow.StakeID, "reason", reason)
	return nil
}

// withRetry retries fn with doubling backoff while the failure is transient
// (ErrPaymentProvider). Declines and other errors return immediately.
func (m *Manager) withRetry(ctx context.Context, fn func() error) error {
	backoff := m.cfg.PaymentRetryBackoff
	var err error
	for attempt := 0; attempt <= m.cfg.PaymentRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s", models.ErrPaymentProvider, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrPaymentProvider) {
			return err
		}
	}
	return err
}
