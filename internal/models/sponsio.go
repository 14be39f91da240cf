package models

import "github.com/shopspring/decimal"

// RequestContext is the per-request snapshot the risk gate consumes. The
// verification fields come from the external identity provider; the rest
// describe the client making the request.
type RequestContext struct {
	EmailVerified      bool   `json:"email_verified"`
	NameVerified       bool   `json:"name_verified"`
	IdentityVerified   bool   `json:"identity_verified"`
	Country            string `json:"country"`
	PaymentMethodValid bool   `json:"payment_method_valid"`
	ClientSignature    string `json:"client_signature"`
}

// CreateStakeInput is the request to open a new stake.
type CreateStakeInput struct {
	OwnerID     string
	Title       string
	Description string
	Type        string
	Amount      decimal.Decimal
	Currency    string
	Rail        string
	Deadline    int64
	Context     RequestContext
}

// JoinStakeInput is the request to join an ACTIVE stake.
type JoinStakeInput struct {
	StakeID       string
	ParticipantID string
	Amount        decimal.Decimal
	Role          string
	Rail          string
	Context       RequestContext
}

// CompletionInput is a user-submitted proof of completion.
type CompletionInput struct {
	StakeID              string
	UserID               string
	Proof                string
	CompletionPercentage int
}

// CreateRecoveryInput opens a recovery stake against a failed original.
type CreateRecoveryInput struct {
	OriginalStakeID string
	UserID          string
	Amount          decimal.Decimal
	Deadline        int64
}

// SettleRecoveryInput resolves a recovery stake.
type SettleRecoveryInput struct {
	RecoveryID string
	UserID     string
	Succeeded  bool
}

// APIServer is the interface for the HTTP API server.
type APIServer interface {
	// Start starts the server and blocks until it stops.
	Start()
	// Shutdown gracefully shuts the server down.
	Shutdown() error
}

// SponsioI is the settlement engine's service surface, consumed by the HTTP
// API and the background sweep.
type SponsioI interface {
	// Start launches the background deadline sweep.
	Start()
	// Shutdown stops background work.
	Shutdown()

	CreateStake(input CreateStakeInput) (*Stake, error)
	JoinStake(input JoinStakeInput) (*Stake, error)
	SubmitCompletion(input CompletionInput) (*Stake, error)
	CancelStake(stakeID, userID string) (*Stake, error)
	GetStake(stakeID string) (*Stake, error)

	GetWallet(userID string) (*Wallet, error)
	GetWalletTransactions(userID string, limit int) ([]*WalletTransaction, error)

	CreateRecoveryStake(input CreateRecoveryInput) (*RecoveryStake, error)
	SettleRecoveryStake(input SettleRecoveryInput) (*RecoveryStake, error)

	// SweepDeadlines runs one idempotent pass over overdue stakes.
	SweepDeadlines(now int64) error
}
