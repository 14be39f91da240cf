package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Notification event kinds emitted by the settlement engine.
const (
	EventGraceGranted    = "GRACE_PERIOD_GRANTED"
	EventStakeSettled    = "STAKE_SETTLED"
	EventRecoverySettled = "RECOVERY_SETTLED"
)

// NotificationService dispatches settlement events to the user's configured
// channels. Dispatch is fire-and-forget: a failure to notify must never block
// or roll back settlement.
type NotificationService interface {
	SendNotification(notification *Notification)
}

// Notification is one settlement event addressed to a user.
type Notification struct {
	Event    string          `json:"event"`
	UserID   string          `json:"user_id"`
	StakeID  string          `json:"stake_id"`
	Outcome  string          `json:"outcome,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (n *Notification) String() string {
	switch n.Event {
	case EventGraceGranted:
		return fmt.Sprintf("Your stake %s missed its deadline. A grace period has been granted.", n.StakeID)
	case EventStakeSettled:
		return fmt.Sprintf("Your stake %s settled as %s (%s %s).", n.StakeID, n.Outcome, n.Amount.String(), n.Currency)
	case EventRecoverySettled:
		return fmt.Sprintf("Your recovery stake for %s settled as %s (%s %s).", n.StakeID, n.Outcome, n.Amount.String(), n.Currency)
	}
	return fmt.Sprintf("Stake %s: %s", n.StakeID, n.Event)
}
