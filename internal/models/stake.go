package models

import "github.com/shopspring/decimal"

// Stake statuses. ACTIVE is the initial state; COMPLETED, PARTIALLY_COMPLETED,
// FAILED and CANCELLED are terminal.
const (
	StakeActive             = "ACTIVE"
	StakeGracePeriod        = "GRACE_PERIOD"
	StakeCompleted          = "COMPLETED"
	StakePartiallyCompleted = "PARTIALLY_COMPLETED"
	StakeFailed             = "FAILED"
	StakeCancelled          = "CANCELLED"
)

// Stake types.
const (
	StakeTypeSelf      = "SELF"
	StakeTypeSocial    = "SOCIAL"
	StakeTypeChallenge = "CHALLENGE"
	StakeTypeTeam      = "TEAM"
	StakeTypeCharity   = "CHARITY"
)

// Participant roles. A supporter's contribution is refunded in full whatever
// the outcome; a stakeholder shares reward and penalty pro rata.
const (
	RoleSupporter   = "SUPPORTER"
	RoleStakeholder = "STAKEHOLDER"
)

// Stake is the accountability unit: money locked against a deadline-bound
// goal. It is owned exclusively by its creator; participants live in their
// own table. Financial fields are frozen once the stake reaches a terminal
// state.
type Stake struct {
	// ID is the stake's unique identifier.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// OwnerID is the creating user.
	OwnerID string `json:"owner_id" gorm:"column:owner_id;index;not null"`
	// Title is the goal headline.
	Title string `json:"title" gorm:"column:title;not null"`
	// Description is the free-form goal description.
	Description string `json:"description" gorm:"column:description"`
	// Type is one of the StakeType* constants.
	Type string `json:"type" gorm:"column:type;not null"`
	// Status is one of the Stake* status constants.
	Status string `json:"status" gorm:"column:status;index;not null"`
	// TotalAmount is OwnerStake plus the sum of all participant contributions.
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"column:total_amount;type:numeric(20,4);not null"`
	// OwnerStake is the owner's own locked amount.
	OwnerStake decimal.Decimal `json:"owner_stake" gorm:"column:owner_stake;type:numeric(20,4);not null"`
	// ParticipantStakes is the sum of all participant contributions.
	ParticipantStakes decimal.Decimal `json:"participant_stakes" gorm:"column:participant_stakes;type:numeric(20,4);not null"`
	// PenaltyAmount is what the owner loses on failure. Reduced by recovery
	// settlements after the fact.
	PenaltyAmount decimal.Decimal `json:"penalty_amount" gorm:"column:penalty_amount;type:numeric(20,4);not null"`
	// RewardAmount is the computed reward credited on completion.
	RewardAmount decimal.Decimal `json:"reward_amount" gorm:"column:reward_amount;type:numeric(20,4);not null"`
	// Currency is the ISO currency code shared by all amounts on the stake.
	Currency string `json:"currency" gorm:"column:currency;size:3;not null"`
	// Deadline is the Unix timestamp (UTC) the goal must be met by.
	Deadline int64 `json:"deadline" gorm:"column:deadline;index;not null"`
	// CompletionPercentage is the self-reported completion, 0-100.
	CompletionPercentage int `json:"completion_percentage" gorm:"column:completion_percentage;not null;default:0"`
	// CompletionProof is the user-submitted evidence.
	CompletionProof string `json:"completion_proof" gorm:"column:completion_proof"`
	// GracePeriodEnd is the Unix timestamp the one-time grace period runs to.
	// Zero means no grace period has been granted yet; the sweep checks this
	// before granting so re-runs never grant a second one.
	GracePeriodEnd int64 `json:"grace_period_end" gorm:"column:grace_period_end"`
	// RecoveryForID links a recovery stake back to the failed original.
	// Empty for ordinary stakes.
	RecoveryForID string `json:"recovery_for_id,omitempty" gorm:"column:recovery_for_id;index"`
	// CreatedAt is the Unix timestamp when the stake was created.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
	// CompletedAt is the Unix timestamp of the terminal transition.
	CompletedAt int64 `json:"completed_at" gorm:"column:completed_at"`
}

// IsTerminal reports whether the stake has reached a terminal status.
// No financial field may change after that.
func (s *Stake) IsTerminal() bool {
	switch s.Status {
	case StakeCompleted, StakePartiallyCompleted, StakeFailed, StakeCancelled:
		return true
	}
	return false
}

// AcceptsCompletion reports whether a completion submission is still allowed.
func (s *Stake) AcceptsCompletion() bool {
	return s.Status == StakeActive || s.Status == StakeGracePeriod
}

// StakeParticipant is a join row between a stake and a participating user,
// created only while the stake is ACTIVE. (stake, participant) is unique so
// concurrent double-joins lose at the constraint.
type StakeParticipant struct {
	// ID is the row's unique identifier.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// StakeID references the owning stake.
	StakeID string `json:"stake_id" gorm:"column:stake_id;uniqueIndex:idx_stake_participant;not null"`
	// ParticipantID is the joining user.
	ParticipantID string `json:"participant_id" gorm:"column:participant_id;uniqueIndex:idx_stake_participant;not null"`
	// Amount is the participant's contribution.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,4);not null"`
	// Role is RoleSupporter or RoleStakeholder.
	Role string `json:"role" gorm:"column:role;not null"`
	// JoinedAt is the Unix timestamp when the participant joined.
	JoinedAt int64 `json:"joined_at" gorm:"column:joined_at"`
}

// IsSupporter reports whether the participant has no penalty exposure.
func (p *StakeParticipant) IsSupporter() bool {
	return p.Role == RoleSupporter
}
