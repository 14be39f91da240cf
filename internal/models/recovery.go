package models

import "github.com/shopspring/decimal"

// Recovery stake statuses mirror the terminal outcomes of the backing stake.
const (
	RecoveryActive    = "ACTIVE"
	RecoveryCompleted = "COMPLETED"
	RecoveryFailed    = "FAILED"
)

// RecoveryStake is a bounded second chance opened against a prior loss.
// It carries its own escrow-free microstake: the amount is debited straight
// from the wallet, and on completion the capped RecoveryTarget is credited
// back while the original stake's outstanding penalty shrinks by the same
// amount.
type RecoveryStake struct {
	// ID is the recovery stake's unique identifier.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// OriginalStakeID is the FAILED stake being recovered. The per-original
	// attempt cap counts rows with this value.
	OriginalStakeID string `json:"original_stake_id" gorm:"column:original_stake_id;index;not null"`
	// UserID is the owner, who must also own the original stake.
	UserID string `json:"user_id" gorm:"column:user_id;index;not null"`
	// Amount is the new stake debited from the wallet at creation.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,4);not null"`
	// RecoveryTarget = min(originalLoss * maxRecoveryPct, Amount * recoveryMultiplier),
	// fixed at creation.
	RecoveryTarget decimal.Decimal `json:"recovery_target" gorm:"column:recovery_target;type:numeric(20,4);not null"`
	// Status is one of the Recovery* constants.
	Status string `json:"status" gorm:"column:status;index;not null"`
	// Deadline is the Unix timestamp the recovery goal must be met by.
	Deadline int64 `json:"deadline" gorm:"column:deadline;index;not null"`
	// CreatedAt is the Unix timestamp when the recovery stake was opened.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
	// SettledAt is the Unix timestamp of the terminal transition.
	SettledAt int64 `json:"settled_at" gorm:"column:settled_at"`
}
