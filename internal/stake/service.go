package stake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/escrow"
	"github.com/sponsio/sponsio/internal/ledger"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/internal/risk"
	"github.com/sponsio/sponsio/internal/settlement"
	"github.com/sponsio/sponsio/pkg/logger"
	"github.com/sponsio/sponsio/pkg/validation"
)

// Service owns the stake lifecycle state machine: ACTIVE -> GRACE_PERIOD ->
// COMPLETED | PARTIALLY_COMPLETED | FAILED, with CANCELLED reachable only
// from ACTIVE with zero participants. It emits settlement plans through the
// calculator and executes them against the escrow manager and the ledger
// inside one atomic unit per stake.
type Service struct {
	cfg      *config.Config
	repo     models.Repository
	ledger   *ledger.Ledger
	gate     *risk.Gate
	escrows  *escrow.Manager
	calc     *settlement.Calculator
	notifier models.NotificationService
	logger   *logger.Logger

	// Now is injectable for deterministic tests.
	Now func() int64
}

func NewService(
	cfg *config.Config,
	repo models.Repository,
	ldg *ledger.Ledger,
	gate *risk.Gate,
	escrows *escrow.Manager,
	calc *settlement.Calculator,
	notifier models.NotificationService,
	logger *logger.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		repo:     repo,
		ledger:   ldg,
		gate:     gate,
		escrows:  escrows,
		calc:     calc,
		notifier: notifier,
		logger:   logger,
		Now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

var validStakeTypes = map[string]bool{
	models.StakeTypeSelf:      true,
	models.StakeTypeSocial:    true,
	models.StakeTypeChallenge: true,
	models.StakeTypeTeam:      true,
	models.StakeTypeCharity:   true,
}

// CreateStake runs the risk gate and, on approval, debits the owner's wallet,
// opens and locks the escrow, and creates the stake in ACTIVE state, all as
// one atomic unit. A payment failure rolls the whole unit back; only a
// detached FAILED escrow row survives for audit.
func (s *Service) CreateStake(input models.CreateStakeInput) (*models.Stake, error) {
	now := s.Now()
	if err := s.validateCreate(&input, now); err != nil {
		return nil, err
	}

	verdict, err := s.gate.Evaluate(s.repo, input.OwnerID, input.Amount, input.Type, input.Context, now)
	if err != nil {
		return nil, err
	}
	if err := riskError(verdict); err != nil {
		s.logger.Warn("Stake creation rejected by risk gate", "user", input.OwnerID, "decision", verdict.Decision)
		return nil, err
	}

	stake := &models.Stake{
		ID:                uuid.NewString(),
		OwnerID:           input.OwnerID,
		Title:             strings.TrimSpace(input.Title),
		Description:       strings.TrimSpace(input.Description),
		Type:              input.Type,
		Status:            models.StakeActive,
		TotalAmount:       input.Amount,
		OwnerStake:        input.Amount,
		ParticipantStakes: decimal.Zero,
		PenaltyAmount:     decimal.Zero,
		RewardAmount:      decimal.Zero,
		Currency:          validation.NormalizeCurrency(input.Currency),
		Deadline:          input.Deadline,
		CreatedAt:         now,
	}

	var paymentErr error
	err = s.repo.Atomically(func(tx models.Repository) error {
		if _, err := s.ledger.Debit(tx, ledger.Entry{
			UserID:      input.OwnerID,
			Amount:      input.Amount,
			Type:        models.TxStakeCreation,
			Description: fmt.Sprintf("stake %q", stake.Title),
			ReferenceID: stake.ID,
		}, now); err != nil {
			return err
		}
		esc, err := s.escrows.Create(context.Background(), tx, stake.ID, input.OwnerID, input.Amount, stake.Currency, input.Rail, now)
		if err != nil {
			return err
		}
		// The stake turns ACTIVE only once the payment is verified and the
		// escrow is LOCKED.
		if _, err := s.escrows.Lock(context.Background(), tx, esc.ID, now); err != nil {
			paymentErr = err
			return err
		}
		return tx.CreateStake(stake)
	})
	if err != nil {
		if paymentErr != nil {
			s.recordFailedPayment(stake.ID, input.OwnerID, input.Amount, stake.Currency, input.Rail, paymentErr, now)
			return nil, fmt.Errorf("stake creation payment: %w", paymentErr)
		}
		return nil, err
	}

	s.logger.Info("Stake created", "stake", stake.ID, "owner", input.OwnerID, "amount", input.Amount.String(), "deadline", stake.Deadline)
	return stake, nil
}

// JoinStake adds a participant to an ACTIVE stake. The owner cannot join,
// and a participant can join only once; concurrent double-joins lose at the
// (stake, participant) uniqueness constraint inside the same atomic unit
// that debits the wallet and bumps the stake totals.
func (s *Service) JoinStake(input models.JoinStakeInput) (*models.Stake, error) {
	now := s.Now()
	if input.Role != models.RoleSupporter && input.Role != models.RoleStakeholder {
		return nil, models.Invalid("role", fmt.Sprintf("unknown role %q", input.Role))
	}
	if err := validation.ValidateAmount(input.Amount, s.cfg.MinStakeAmount, s.cfg.MaxStakeAmount); err != nil {
		return nil, models.Invalid("amount", err.Error())
	}

	stake, err := s.repo.GetStake(input.StakeID)
	if err != nil {
		return nil, err
	}
	if stake.Status != models.StakeActive {
		return nil, fmt.Errorf("stake %s is %s: %w", stake.ID, stake.Status, models.ErrStakeClosed)
	}
	if stake.OwnerID == input.ParticipantID {
		return nil, models.ErrOwnerCannotJoin
	}

	verdict, err := s.gate.Evaluate(s.repo, input.ParticipantID, input.Amount, stake.Type, input.Context, now)
	if err != nil {
		return nil, err
	}
	if err := riskError(verdict); err != nil {
		return nil, err
	}

	var paymentErr error
	err = s.repo.Atomically(func(tx models.Repository) error {
		current, err := tx.GetStake(input.StakeID)
		if err != nil {
			return err
		}
		if current.Status != models.StakeActive {
			return fmt.Errorf("stake %s is %s: %w", current.ID, current.Status, models.ErrStakeClosed)
		}
		if err := tx.AddParticipant(&models.StakeParticipant{
			ID:            uuid.NewString(),
			StakeID:       current.ID,
			ParticipantID: input.ParticipantID,
			Amount:        input.Amount,
			Role:          input.Role,
			JoinedAt:      now,
		}); err != nil {
			return err
		}
		if _, err := s.ledger.Debit(tx, ledger.Entry{
			UserID:      input.ParticipantID,
			Amount:      input.Amount,
			Type:        models.TxParticipantJoin,
			Description: fmt.Sprintf("joined stake %q", current.Title),
			ReferenceID: current.ID,
		}, now); err != nil {
			return err
		}
		esc, err := s.escrows.Create(context.Background(), tx, current.ID, input.ParticipantID, input.Amount, current.Currency, input.Rail, now)
		if err != nil {
			return err
		}
		if _, err := s.escrows.Lock(context.Background(), tx, esc.ID, now); err != nil {
			paymentErr = err
			return err
		}
		current.ParticipantStakes = current.ParticipantStakes.Add(input.Amount)
		current.TotalAmount = current.TotalAmount.Add(input.Amount)
		if err := tx.UpdateStake(current); err != nil {
			return err
		}
		stake = current
		return nil
	})
	if err != nil {
		if paymentErr != nil {
			s.recordFailedPayment(stake.ID, input.ParticipantID, input.Amount, stake.Currency, input.Rail, paymentErr, now)
			return nil, fmt.Errorf("join payment: %w", paymentErr)
		}
		return nil, err
	}

	s.logger.Info("Participant joined", "stake", stake.ID, "participant", input.ParticipantID, "role", input.Role, "amount", input.Amount.String())
	return stake, nil
}

// SubmitCompletion accepts proof while the stake is ACTIVE or in its grace
// period. A completion percentage below the configured floor settles as a
// full failure; between the floor and 100 as a partial completion with a
// reduced penalty.
func (s *Service) SubmitCompletion(input models.CompletionInput) (*models.Stake, error) {
	now := s.Now()
	stake, err := s.repo.GetStake(input.StakeID)
	if err != nil {
		return nil, err
	}
	if stake.OwnerID != input.UserID {
		return nil, models.ErrNotStakeOwner
	}
	if !stake.AcceptsCompletion() {
		return nil, fmt.Errorf("stake %s is %s: %w", stake.ID, stake.Status, models.ErrStakeClosed)
	}
	if err := s.calc.ValidateProof(stake, input.Proof, now); err != nil {
		return nil, err
	}
	pct := input.CompletionPercentage
	if pct <= 0 {
		pct = 100
	}
	if pct > 100 {
		return nil, models.Invalid("completion_percentage", "must be between 1 and 100")
	}

	outcome := s.calc.Outcome(pct)
	stake.CompletionProof = strings.TrimSpace(input.Proof)
	stake.CompletionPercentage = pct
	return s.settle(stake, outcome, now)
}

// CancelStake refunds the owner in full and marks the stake CANCELLED.
// Only an ACTIVE stake with zero participants can be cancelled.
func (s *Service) CancelStake(stakeID, userID string) (*models.Stake, error) {
	now := s.Now()
	stake, err := s.repo.GetStake(stakeID)
	if err != nil {
		return nil, err
	}
	if stake.OwnerID != userID {
		return nil, models.ErrNotStakeOwner
	}
	if stake.Status != models.StakeActive {
		return nil, fmt.Errorf("stake %s is %s: %w", stake.ID, stake.Status, models.ErrStakeClosed)
	}
	participants, err := s.repo.GetParticipants(stakeID)
	if err != nil {
		return nil, err
	}
	if len(participants) > 0 {
		return nil, models.ErrStakeHasParticipants
	}

	err = s.repo.Atomically(func(tx models.Repository) error {
		esc, err := tx.GetEscrowByStakeAndUser(stake.ID, stake.OwnerID)
		if err != nil {
			return err
		}
		if _, err := s.escrows.Release(context.Background(), tx, esc.ID, models.ReleaseRefund, now); err != nil {
			return err
		}
		if _, err := s.ledger.Credit(tx, ledger.Entry{
			UserID:      stake.OwnerID,
			Amount:      stake.OwnerStake,
			Type:        models.TxStakeRefund,
			Description: fmt.Sprintf("cancelled stake %q", stake.Title),
			ReferenceID: stake.ID,
		}, now); err != nil {
			return err
		}
		stake.Status = models.StakeCancelled
		stake.CompletedAt = now
		return tx.UpdateStake(stake)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stake cancelled", "stake", stake.ID, "owner", userID)
	return stake, nil
}

func (s *Service) GetStake(stakeID string) (*models.Stake, error) {
	return s.repo.GetStake(stakeID)
}

func (s *Service) GetWallet(userID string) (*models.Wallet, error) {
	return s.ledger.GetOrCreate(s.repo, userID, s.Now())
}

func (s *Service) GetWalletTransactions(userID string, limit int) ([]*models.WalletTransaction, error) {
	wallet, err := s.repo.GetWalletByUser(userID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetWalletTransactions(wallet.ID, limit)
}

// settle executes the calculator's plan for the stake as one atomic unit.
// The terminal-state guard makes re-settlement a no-op error, which keeps the
// sweep idempotent.
func (s *Service) settle(stake *models.Stake, outcome string, now int64) (*models.Stake, error) {
	participants, err := s.repo.GetParticipants(stake.ID)
	if err != nil {
		return nil, err
	}
	plan, err := s.calc.Plan(stake, participants, outcome)
	if err != nil {
		return nil, err
	}

	err = s.repo.Atomically(func(tx models.Repository) error {
		current, err := tx.GetStake(stake.ID)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return fmt.Errorf("stake %s already settled as %s: %w", current.ID, current.Status, models.ErrStakeClosed)
		}

		for _, action := range plan.EscrowActions {
			esc, err := tx.GetEscrowByStakeAndUser(current.ID, action.UserID)
			if err != nil {
				return err
			}
			if _, err := s.escrows.Release(context.Background(), tx, esc.ID, action.Kind, now); err != nil {
				return err
			}
		}
		for _, credit := range plan.Credits {
			if _, err := s.ledger.Credit(tx, ledger.Entry{
				UserID:      credit.UserID,
				Amount:      credit.Amount,
				Type:        credit.Type,
				Description: credit.Description,
				ReferenceID: current.ID,
			}, now); err != nil {
				return err
			}
		}
		for _, loss := range plan.Losses {
			if err := s.ledger.RecordLoss(tx, loss.UserID, loss.Amount, now); err != nil {
				return err
			}
		}
		if err := s.ledger.ApplyStreak(tx, current.OwnerID, outcome, now); err != nil {
			return err
		}

		current.Status = outcome
		current.PenaltyAmount = plan.OwnerPenalty
		current.RewardAmount = plan.OwnerReward
		current.CompletionProof = stake.CompletionProof
		current.CompletionPercentage = stake.CompletionPercentage
		current.CompletedAt = now
		if err := tx.UpdateStake(current); err != nil {
			return err
		}
		stake = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stake settled", "stake", stake.ID, "outcome", outcome,
		"penalty", stake.PenaltyAmount.String(), "reward", stake.RewardAmount.String())
	s.notify(&models.Notification{
		Event:    models.EventStakeSettled,
		UserID:   stake.OwnerID,
		StakeID:  stake.ID,
		Outcome:  outcome,
		Amount:   stake.TotalAmount,
		Currency: stake.Currency,
	})
	return stake, nil
}

// notify dispatches fire-and-forget; a notification failure never blocks or
// rolls back settlement.
func (s *Service) notify(n *models.Notification) {
	if s.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Notification dispatch panicked", "event", n.Event, "stake", n.StakeID, "panic", r)
			}
		}()
		s.notifier.SendNotification(n)
	}()
}

// recordFailedPayment persists a detached FAILED escrow row after the
// creation transaction rolled back, keeping an audit trail (and the
// chargeback history the risk gate reads) without holding any funds.
func (s *Service) recordFailedPayment(stakeID, userID string, amount decimal.Decimal, currency, rail string, cause error, now int64) {
	reason := cause.Error()
	if errors.Is(cause, models.ErrPaymentDeclined) {
		reason = models.FailureChargeback
	}
	row := &models.EscrowTransaction{
		ID:            uuid.NewString(),
		StakeID:       stakeID,
		UserID:        userID,
		Amount:        amount,
		GatewayFee:    decimal.Zero,
		PlatformFee:   decimal.Zero,
		Currency:      currency,
		Rail:          rail,
		Status:        models.EscrowFailed,
		FailureReason: reason,
		CreatedAt:     now,
	}
	if err := s.repo.CreateEscrow(row); err != nil {
		s.logger.Error("Failed to record failed payment", "stake", stakeID, "user", userID, "error", err)
	}
}

func (s *Service) validateCreate(input *models.CreateStakeInput, now int64) error {
	if strings.TrimSpace(input.Title) == "" {
		return models.Invalid("title", "title is required")
	}
	if !validStakeTypes[input.Type] {
		return models.Invalid("type", fmt.Sprintf("unknown stake type %q", input.Type))
	}
	if err := validation.ValidateAmount(input.Amount, s.cfg.MinStakeAmount, s.cfg.MaxStakeAmount); err != nil {
		return models.Invalid("amount", err.Error())
	}
	input.Currency = validation.NormalizeCurrency(input.Currency)
	if input.Currency == "" {
		input.Currency = s.cfg.Currency
	}
	if err := validation.ValidateCurrency(input.Currency); err != nil {
		return models.Invalid("currency", err.Error())
	}
	if err := validation.ValidateDeadline(input.Deadline, now, s.cfg.MinDeadlineOffset, s.cfg.MaxDeadlineOffset); err != nil {
		return models.Invalid("deadline", err.Error())
	}
	return nil
}

func riskError(verdict *risk.Result) error {
	switch verdict.Decision {
	case risk.DecisionBlock:
		return fmt.Errorf("%d violations, score %d: %w", len(verdict.Violations), verdict.FraudScore, models.ErrRiskBlocked)
	case risk.DecisionReview:
		return fmt.Errorf("%d violations, score %d: %w", len(verdict.Violations), verdict.FraudScore, models.ErrRiskReviewRequired)
	}
	return nil
}
