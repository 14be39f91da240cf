package models

import "github.com/shopspring/decimal"

// Wallet transaction types. Every financial mutation writes exactly one of
// these to the append-only transaction log.
const (
	TxStakeCreation         = "STAKE_CREATION"
	TxStakeRefund           = "STAKE_REFUND"
	TxParticipantJoin       = "PARTICIPANT_JOIN"
	TxReward                = "REWARD"
	TxPenalty               = "PENALTY"
	TxRecoveryStakeCreation = "RECOVERY_STAKE_CREATION"
	TxRecoveryReward        = "RECOVERY_REWARD"
	TxRecoveryPenalty       = "RECOVERY_PENALTY"
)

// Wallet is the per-user balance record. One per user, created lazily on the
// first financial action, never deleted. Balance is a cache of the transaction
// log: it must always equal the sum of the wallet's transaction amounts and is
// only ever updated together with a new WalletTransaction row.
type Wallet struct {
	// ID is the wallet's unique identifier.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// UserID is the owning user. One wallet per user.
	UserID string `json:"user_id" gorm:"column:user_id;uniqueIndex;not null"`
	// Balance is the spendable balance, cached from the transaction log.
	Balance decimal.Decimal `json:"balance" gorm:"column:balance;type:numeric(20,4);not null"`
	// TotalEarned accumulates all rewards ever credited. Monotonic.
	TotalEarned decimal.Decimal `json:"total_earned" gorm:"column:total_earned;type:numeric(20,4);not null"`
	// TotalLost accumulates all penalties ever applied. Monotonic.
	TotalLost decimal.Decimal `json:"total_lost" gorm:"column:total_lost;type:numeric(20,4);not null"`
	// TotalStaked accumulates all amounts ever locked into stakes. Monotonic.
	TotalStaked decimal.Decimal `json:"total_staked" gorm:"column:total_staked;type:numeric(20,4);not null"`
	// CurrentStreak counts consecutive completed stakes.
	CurrentStreak int `json:"current_streak" gorm:"column:current_streak;not null;default:0"`
	// LongestStreak is the high-water mark of CurrentStreak.
	LongestStreak int `json:"longest_streak" gorm:"column:longest_streak;not null;default:0"`
	// CreatedAt is the Unix timestamp when the wallet was created.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// WalletTransaction is one immutable entry in the append-only ledger log.
// Once written it is never updated or deleted; corrections are new
// offsetting entries.
type WalletTransaction struct {
	// ID is the transaction's unique identifier.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// WalletID references the wallet the entry settles against.
	WalletID string `json:"wallet_id" gorm:"column:wallet_id;index;not null"`
	// UserID is the owner of the wallet, denormalised for audit queries.
	UserID string `json:"user_id" gorm:"column:user_id;index;not null"`
	// Type is one of the Tx* constants.
	Type string `json:"type" gorm:"column:type;index;not null"`
	// Amount is signed: positive for credits, negative for debits.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,4);not null"`
	// Description is a human-readable audit note.
	Description string `json:"description" gorm:"column:description"`
	// ReferenceID is the stake or escrow this entry settles.
	ReferenceID string `json:"reference_id" gorm:"column:reference_id;index"`
	// CreatedAt is the Unix timestamp when the entry was written.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}
