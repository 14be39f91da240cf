package settlement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/models"
)

// EscrowAction resolves one funded party's custody: the escrow manager maps
// the kind to a destination and amount.
type EscrowAction struct {
	UserID string
	Kind   string
}

// WalletCredit is one ledger credit owed by the settlement.
type WalletCredit struct {
	UserID      string
	Amount      decimal.Decimal
	Type        string
	Description string
}

// Loss is a forfeited amount recorded against a wallet's totalLost counter.
type Loss struct {
	UserID string
	Amount decimal.Decimal
}

// Plan is the computed set of fund movements for a resolved stake. The
// calculator never mutates state; the stake service and escrow manager
// execute the plan.
type Plan struct {
	Outcome       string
	OwnerPenalty  decimal.Decimal
	OwnerReward   decimal.Decimal
	EscrowActions []EscrowAction
	Credits       []WalletCredit
	Losses        []Loss
}

// Calculator is a pure function over a stake snapshot and its participants.
type Calculator struct {
	cfg *config.Config
}

func NewCalculator(cfg *config.Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// ValidateProof checks minimal proof length and temporal consistency: the
// submission must arrive by the deadline or within the granted grace window.
func (c *Calculator) ValidateProof(stake *models.Stake, proof string, now int64) error {
	if len(strings.TrimSpace(proof)) < c.cfg.MinProofLength {
		return models.Invalid("proof", fmt.Sprintf("proof must be at least %d characters", c.cfg.MinProofLength))
	}
	cutoff := stake.Deadline
	if stake.GracePeriodEnd > 0 && stake.GracePeriodEnd > cutoff {
		cutoff = stake.GracePeriodEnd
	}
	if now > cutoff {
		return models.Invalid("proof", "submitted after the deadline and grace window")
	}
	return nil
}

// Outcome maps a completion percentage to the stake's terminal status:
// 100 completes, anything at or above the configured floor partially
// completes, the rest fails.
func (c *Calculator) Outcome(completionPercentage int) string {
	switch {
	case completionPercentage >= 100:
		return models.StakeCompleted
	case completionPercentage >= c.cfg.PartialCompletionFloor:
		return models.StakePartiallyCompleted
	default:
		return models.StakeFailed
	}
}

// Plan computes the settlement for the given outcome. Supporters are always
// refunded in full whatever the outcome; the owner and stakeholder
// participants earn the reward fraction on success and bear penalties
// proportional to their contribution otherwise. On partial completion the
// penalty is the base penalty reduced by the configured fraction.
func (c *Calculator) Plan(stake *models.Stake, participants []*models.StakeParticipant, outcome string) (*Plan, error) {
	plan := &Plan{
		Outcome:      outcome,
		OwnerPenalty: decimal.Zero,
		OwnerReward:  decimal.Zero,
	}

	var penaltyScale decimal.Decimal
	switch outcome {
	case models.StakeCompleted:
		penaltyScale = decimal.Zero
	case models.StakePartiallyCompleted:
		penaltyScale = c.cfg.PenaltyFraction.Mul(decimal.NewFromInt(1).Sub(c.cfg.PartialPenaltyReduction))
	case models.StakeFailed:
		penaltyScale = c.cfg.PenaltyFraction
	default:
		return nil, models.Invalid("outcome", fmt.Sprintf("%q is not a settleable outcome", outcome))
	}

	c.settleParty(plan, stake.OwnerID, stake.OwnerStake, outcome, penaltyScale, true)
	for _, p := range participants {
		if p.IsSupporter() {
			plan.EscrowActions = append(plan.EscrowActions, EscrowAction{UserID: p.ParticipantID, Kind: models.ReleaseRefund})
			plan.Credits = append(plan.Credits, WalletCredit{
				UserID:      p.ParticipantID,
				Amount:      p.Amount,
				Type:        models.TxStakeRefund,
				Description: fmt.Sprintf("supporter refund for stake %s", stake.ID),
			})
			continue
		}
		c.settleParty(plan, p.ParticipantID, p.Amount, outcome, penaltyScale, false)
	}

	return plan, nil
}

func (c *Calculator) settleParty(plan *Plan, userID string, principal decimal.Decimal, outcome string, penaltyScale decimal.Decimal, isOwner bool) {
	if outcome == models.StakeCompleted {
		reward := principal.Mul(c.cfg.RewardFraction).Round(4)
		plan.EscrowActions = append(plan.EscrowActions, EscrowAction{UserID: userID, Kind: models.ReleaseReward})
		plan.Credits = append(plan.Credits,
			WalletCredit{UserID: userID, Amount: principal, Type: models.TxStakeRefund, Description: "principal returned on completion"},
			WalletCredit{UserID: userID, Amount: reward, Type: models.TxReward, Description: "completion reward"},
		)
		if isOwner {
			plan.OwnerReward = reward
		}
		return
	}

	penalty := principal.Mul(penaltyScale).Round(4)
	plan.EscrowActions = append(plan.EscrowActions, EscrowAction{UserID: userID, Kind: models.ReleasePenalty})
	if refund := principal.Sub(penalty); refund.IsPositive() {
		plan.Credits = append(plan.Credits, WalletCredit{
			UserID:      userID,
			Amount:      refund,
			Type:        models.TxStakeRefund,
			Description: "partial refund after penalty",
		})
	}
	if penalty.IsPositive() {
		plan.Losses = append(plan.Losses, Loss{UserID: userID, Amount: penalty})
	}
	if isOwner {
		plan.OwnerPenalty = penalty
	}
}
