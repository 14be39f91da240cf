package models

import "github.com/shopspring/decimal"

// Repository is the persistence boundary for the settlement engine.
//
// Atomically runs fn against a transactional view of the repository: every
// write inside fn commits or rolls back as one unit. All financial mutations
// (wallet debit/credit + transaction append + dependent stake/escrow update)
// must go through it.
type Repository interface {
	Atomically(fn func(Repository) error) error

	// Wallets
	CreateWallet(wallet *Wallet) error
	GetWalletByUser(userID string) (*Wallet, error)
	GetWallet(walletID string) (*Wallet, error)
	UpdateWallet(wallet *Wallet) error
	AddWalletTransaction(tx *WalletTransaction) error
	GetWalletTransactions(walletID string, limit int) ([]*WalletTransaction, error)

	// Stakes
	CreateStake(stake *Stake) error
	GetStake(stakeID string) (*Stake, error)
	UpdateStake(stake *Stake) error
	// ListSweepCandidates returns non-terminal stakes whose deadline has
	// passed, oldest deadline first.
	ListSweepCandidates(now int64, limit int) ([]*Stake, error)
	AddParticipant(participant *StakeParticipant) error
	GetParticipants(stakeID string) ([]*StakeParticipant, error)

	// Stake history consumed by the risk gate.
	CountStakesSince(userID string, since int64) (int64, error)
	SumStakeAmountsSince(userID string, since int64) (decimal.Decimal, error)
	RecentStakeAmounts(userID string, limit int) ([]decimal.Decimal, error)
	CountChargebacks(userID string) (int64, error)

	// Escrows
	CreateEscrow(escrow *EscrowTransaction) error
	GetEscrow(escrowID string) (*EscrowTransaction, error)
	GetEscrowByStakeAndUser(stakeID, userID string) (*EscrowTransaction, error)
	ListEscrowsByStake(stakeID string) ([]*EscrowTransaction, error)
	UpdateEscrow(escrow *EscrowTransaction) error

	// Recovery stakes
	CreateRecoveryStake(recovery *RecoveryStake) error
	GetRecoveryStake(recoveryID string) (*RecoveryStake, error)
	UpdateRecoveryStake(recovery *RecoveryStake) error
	CountRecoveryAttempts(originalStakeID string) (int64, error)

	// Sweep coordination
	AcquireSweepLock(name, instanceID string, now, expiresAt int64) (bool, error)
	ReleaseSweepLock(name, instanceID string) error
}
