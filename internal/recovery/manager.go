package recovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/ledger"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
	"github.com/sponsio/sponsio/pkg/validation"
)

// Manager opens and settles recovery stakes: bounded second chances against
// a prior loss. The recovery target is capped both by a fraction of the
// original loss and by a multiplier of the new stake, and the attempts per
// original stake are capped. A recovery stake can never itself be recovered,
// so the cap cannot be bypassed through an intermediate failure.
type Manager struct {
	cfg      *config.Config
	repo     models.Repository
	ledger   *ledger.Ledger
	notifier models.NotificationService
	logger   *logger.Logger

	Now func() int64
}

func NewManager(cfg *config.Config, repo models.Repository, ldg *ledger.Ledger, notifier models.NotificationService, logger *logger.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		ledger:   ldg,
		notifier: notifier,
		logger:   logger,
		Now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

// Create opens a recovery stake against a FAILED original owned by the
// requester. The new amount is debited from the wallet atomically with the
// record creation; no escrow is involved.
func (m *Manager) Create(input models.CreateRecoveryInput) (*models.RecoveryStake, error) {
	now := m.Now()
	original, err := m.repo.GetStake(input.OriginalStakeID)
	if err != nil {
		return nil, err
	}
	if original.OwnerID != input.UserID {
		return nil, models.ErrNotStakeOwner
	}
	if original.Status != models.StakeFailed {
		return nil, models.Invalid("original_stake_id", "only a FAILED stake can be recovered")
	}
	if original.RecoveryForID != "" {
		return nil, models.ErrRecoveryChain
	}
	if err := validation.ValidateAmount(input.Amount, m.cfg.MinStakeAmount, m.cfg.MaxStakeAmount); err != nil {
		return nil, models.Invalid("amount", err.Error())
	}
	if err := validation.ValidateDeadline(input.Deadline, now, m.cfg.MinDeadlineOffset, m.cfg.MaxDeadlineOffset); err != nil {
		return nil, models.Invalid("deadline", err.Error())
	}
	attempts, err := m.repo.CountRecoveryAttempts(original.ID)
	if err != nil {
		return nil, err
	}
	if attempts >= int64(m.cfg.MaxRecoveryAttempts) {
		return nil, fmt.Errorf("stake %s has %d attempts: %w", original.ID, attempts, models.ErrRecoveryAttempts)
	}

	target := decimal.Min(
		original.PenaltyAmount.Mul(m.cfg.MaxRecoveryPct),
		input.Amount.Mul(m.cfg.RecoveryMultiplier),
	).Round(4)

	recovery := &models.RecoveryStake{
		ID:              uuid.NewString(),
		OriginalStakeID: original.ID,
		UserID:          input.UserID,
		Amount:          input.Amount,
		RecoveryTarget:  target,
		Status:          models.RecoveryActive,
		Deadline:        input.Deadline,
		CreatedAt:       now,
	}
	err = m.repo.Atomically(func(tx models.Repository) error {
		if _, err := m.ledger.Debit(tx, ledger.Entry{
			UserID:      input.UserID,
			Amount:      input.Amount,
			Type:        models.TxRecoveryStakeCreation,
			Description: fmt.Sprintf("recovery attempt for stake %s", original.ID),
			ReferenceID: recovery.ID,
		}, now); err != nil {
			return err
		}
		return tx.CreateRecoveryStake(recovery)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Recovery stake opened", "recovery", recovery.ID, "original", original.ID,
		"amount", input.Amount.String(), "target", target.String())
	return recovery, nil
}

// Settle resolves an active recovery stake. Success returns the principal
// and credits the capped recovery target, reducing the original stake's
// outstanding penalty by the same amount; failure forfeits the recovery
// amount as a new loss.
func (m *Manager) Settle(input models.SettleRecoveryInput) (*models.RecoveryStake, error) {
	now := m.Now()
	recovery, err := m.repo.GetRecoveryStake(input.RecoveryID)
	if err != nil {
		return nil, err
	}
	if recovery.UserID != input.UserID {
		return nil, models.ErrNotStakeOwner
	}
	if recovery.Status != models.RecoveryActive {
		return nil, fmt.Errorf("recovery stake %s is %s: %w", recovery.ID, recovery.Status, models.ErrStakeClosed)
	}
	succeeded := input.Succeeded
	if succeeded && now > recovery.Deadline {
		return nil, models.Invalid("recovery", "deadline has passed; the recovery can only settle as failed")
	}

	err = m.repo.Atomically(func(tx models.Repository) error {
		if succeeded {
			if _, err := m.ledger.Credit(tx, ledger.Entry{
				UserID:      recovery.UserID,
				Amount:      recovery.Amount,
				Type:        models.TxStakeRefund,
				Description: "recovery principal returned",
				ReferenceID: recovery.ID,
			}, now); err != nil {
				return err
			}
			if recovery.RecoveryTarget.IsPositive() {
				if _, err := m.ledger.Credit(tx, ledger.Entry{
					UserID:      recovery.UserID,
					Amount:      recovery.RecoveryTarget,
					Type:        models.TxRecoveryReward,
					Description: fmt.Sprintf("recovered loss from stake %s", recovery.OriginalStakeID),
					ReferenceID: recovery.ID,
				}, now); err != nil {
					return err
				}
			}
			original, err := tx.GetStake(recovery.OriginalStakeID)
			if err != nil {
				return err
			}
			reduced := original.PenaltyAmount.Sub(recovery.RecoveryTarget)
			if reduced.IsNegative() {
				reduced = decimal.Zero
			}
			original.PenaltyAmount = reduced
			if err := tx.UpdateStake(original); err != nil {
				return err
			}
			recovery.Status = models.RecoveryCompleted
		} else {
			if err := m.ledger.RecordLoss(tx, recovery.UserID, recovery.Amount, now); err != nil {
				return err
			}
			recovery.Status = models.RecoveryFailed
		}
		recovery.SettledAt = now
		return tx.UpdateRecoveryStake(recovery)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Recovery stake settled", "recovery", recovery.ID, "status", recovery.Status)
	if m.notifier != nil {
		n := &models.Notification{
			Event:    models.EventRecoverySettled,
			UserID:   recovery.UserID,
			StakeID:  recovery.OriginalStakeID,
			Outcome:  recovery.Status,
			Amount:   recovery.RecoveryTarget,
		}
		go func() {
			defer func() { recover() }()
			m.notifier.SendNotification(n)
		}()
	}
	return recovery, nil
}
