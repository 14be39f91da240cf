package models

import "github.com/shopspring/decimal"

// Escrow statuses. Transitions only move forward:
// PENDING -> LOCKED -> RELEASED | REFUNDED, PENDING -> FAILED.
// RELEASED, REFUNDED and FAILED are terminal. This machine is deliberately
// independent of the stake's own status so payment-provider asynchrony never
// corrupts business state.
const (
	EscrowPending  = "PENDING"
	EscrowLocked   = "LOCKED"
	EscrowReleased = "RELEASED"
	EscrowRefunded = "REFUNDED"
	EscrowFailed   = "FAILED"
)

// Release kinds understood by the escrow manager.
const (
	ReleaseReward  = "REWARD"
	ReleaseRefund  = "REFUND"
	ReleasePenalty = "PENALTY"
)

// Payment rails.
const (
	RailCard   = "CARD"
	RailBank   = "BANK"
	RailCrypto = "CRYPTO"
)

// FailureChargeback marks an escrow failed because the payer reversed the
// charge; the risk gate counts these per user.
const FailureChargeback = "chargeback"

var escrowTransitions = map[string][]string{
	EscrowPending: {EscrowLocked, EscrowFailed},
	EscrowLocked:  {EscrowReleased, EscrowRefunded},
}

// CanTransitionEscrow reports whether from -> to is a legal escrow edge.
func CanTransitionEscrow(from, to string) bool {
	for _, next := range escrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EscrowTransaction is the custody record for one funded stake-party pair.
// It wraps the payment-gateway handshake with a durable record of where the
// money is, joined to the stake only by StakeID.
type EscrowTransaction struct {
	// ID is the escrow's unique identifier.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// StakeID references the stake being funded.
	StakeID string `json:"stake_id" gorm:"column:stake_id;uniqueIndex:idx_escrow_stake_user;not null"`
	// UserID is the paying party. One escrow per (stake, user).
	UserID string `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_escrow_stake_user;not null"`
	// Amount is the principal held in custody.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,4);not null"`
	// GatewayFee is the payment-rail fee, computed at creation so settlement
	// never re-derives it.
	GatewayFee decimal.Decimal `json:"gateway_fee" gorm:"column:gateway_fee;type:numeric(20,4);not null"`
	// PlatformFee is the platform's cut, also fixed at creation.
	PlatformFee decimal.Decimal `json:"platform_fee" gorm:"column:platform_fee;type:numeric(20,4);not null"`
	// Currency is the ISO currency code.
	Currency string `json:"currency" gorm:"column:currency;size:3;not null"`
	// Rail is the payment rail (card, bank, crypto).
	Rail string `json:"rail" gorm:"column:rail;not null"`
	// Status is one of the Escrow* constants.
	Status string `json:"status" gorm:"column:status;index;not null"`
	// PaymentIntentID is the external gateway intent backing this custody.
	PaymentIntentID string `json:"payment_intent_id" gorm:"column:payment_intent_id;index"`
	// TransferID is the gateway receipt of the settlement transfer, set on release.
	TransferID string `json:"transfer_id" gorm:"column:transfer_id"`
	// FailureReason records why a PENDING escrow failed.
	FailureReason string `json:"failure_reason" gorm:"column:failure_reason"`
	// CreatedAt/LockedAt/ReleasedAt/RefundedAt are Unix timestamps of the
	// corresponding transitions. Zero when not reached.
	CreatedAt  int64 `json:"created_at" gorm:"column:created_at;index"`
	LockedAt   int64 `json:"locked_at" gorm:"column:locked_at"`
	ReleasedAt int64 `json:"released_at" gorm:"column:released_at"`
	RefundedAt int64 `json:"refunded_at" gorm:"column:refunded_at"`
}

// IsTerminal reports whether the escrow can move no further.
func (e *EscrowTransaction) IsTerminal() bool {
	switch e.Status {
	case EscrowReleased, EscrowRefunded, EscrowFailed:
		return true
	}
	return false
}
