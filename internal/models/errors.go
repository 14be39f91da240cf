package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a wallet, stake or escrow does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientFunds is returned when a debit would take a wallet balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRiskBlocked is returned when the risk gate rejects a transaction outright.
	ErrRiskBlocked = errors.New("transaction blocked by risk screening")
	// ErrRiskReviewRequired is returned when the risk gate defers a transaction to manual review.
	ErrRiskReviewRequired = errors.New("transaction requires manual review")
	// ErrPaymentProvider is returned when the payment gateway fails after retries.
	ErrPaymentProvider = errors.New("payment provider failure")
	// ErrPaymentDeclined is returned when the gateway reports a definitive decline.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrConsistency indicates the atomic-transaction boundary was violated.
	// It is fatal for the request that observes it.
	ErrConsistency = errors.New("ledger consistency violation")

	ErrDuplicateParticipant = errors.New("participant already joined this stake")
	ErrOwnerCannotJoin      = errors.New("stake owner cannot join as participant")
	ErrDuplicateEscrow      = errors.New("escrow already exists for this stake and user")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrStakeClosed          = errors.New("stake is in a terminal state")
	ErrStakeHasParticipants = errors.New("stake with participants cannot be cancelled")
	ErrNotStakeOwner        = errors.New("stake is owned by another user")
	ErrRecoveryChain        = errors.New("a recovery stake cannot itself be recovered")
	ErrRecoveryAttempts     = errors.New("maximum recovery attempts reached for this stake")
	ErrSweepLockHeld        = errors.New("sweep lock held by another instance")
)

// ValidationError describes a malformed or out-of-bounds input. It is
// surfaced to the caller verbatim and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError for the given field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
