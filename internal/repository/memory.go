package repository

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/models"
)

// MemoryDB is an in-memory models.Repository used by unit tests in place of
// postgres. Atomically works on a cloned state that only replaces the live
// one on success, so rollback semantics match the real store.
type MemoryDB struct {
	mu    sync.Mutex
	state *memState
	// inTx marks a transactional view; such views run under the parent's
	// lock and must not re-lock.
	inTx bool
}

type memState struct {
	wallets      map[string]models.Wallet
	walletByUser map[string]string
	walletTxs    []models.WalletTransaction
	stakes       map[string]models.Stake
	participants []models.StakeParticipant
	escrows      map[string]models.EscrowTransaction
	recoveries   map[string]models.RecoveryStake
	locks        map[string]models.SweepLock
}

func newMemState() *memState {
	return &memState{
		wallets:      make(map[string]models.Wallet),
		walletByUser: make(map[string]string),
		stakes:       make(map[string]models.Stake),
		escrows:      make(map[string]models.EscrowTransaction),
		recoveries:   make(map[string]models.RecoveryStake),
		locks:        make(map[string]models.SweepLock),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.walletByUser {
		c.walletByUser[k] = v
	}
	c.walletTxs = append(c.walletTxs, s.walletTxs...)
	for k, v := range s.stakes {
		c.stakes[k] = v
	}
	c.participants = append(c.participants, s.participants...)
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.recoveries {
		c.recoveries[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = v
	}
	return c
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{state: newMemState()}
}

func (db *MemoryDB) Atomically(fn func(models.Repository) error) error {
	if db.inTx {
		// Nested atomic blocks join the enclosing transaction.
		return fn(db)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	txView := &MemoryDB{state: db.state.clone(), inTx: true}
	if err := fn(txView); err != nil {
		return err
	}
	db.state = txView.state
	return nil
}

func (db *MemoryDB) lock() func() {
	if db.inTx {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *MemoryDB) CreateWallet(wallet *models.Wallet) error {
	defer db.lock()()
	if _, ok := db.state.walletByUser[wallet.UserID]; ok {
		return fmt.Errorf("wallet for user %s already exists", wallet.UserID)
	}
	db.state.wallets[wallet.ID] = *wallet
	db.state.walletByUser[wallet.UserID] = wallet.ID
	return nil
}

func (db *MemoryDB) GetWalletByUser(userID string) (*models.Wallet, error) {
	defer db.lock()()
	id, ok := db.state.walletByUser[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
	}
	w := db.state.wallets[id]
	return &w, nil
}

func (db *MemoryDB) GetWallet(walletID string) (*models.Wallet, error) {
	defer db.lock()()
	w, ok := db.state.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", walletID, models.ErrNotFound)
	}
	return &w, nil
}

func (db *MemoryDB) UpdateWallet(wallet *models.Wallet) error {
	defer db.lock()()
	if _, ok := db.state.wallets[wallet.ID]; !ok {
		return fmt.Errorf("wallet %s update affected zero rows: %w", wallet.ID, models.ErrConsistency)
	}
	db.state.wallets[wallet.ID] = *wallet
	return nil
}

func (db *MemoryDB) AddWalletTransaction(tx *models.WalletTransaction) error {
	defer db.lock()()
	db.state.walletTxs = append(db.state.walletTxs, *tx)
	return nil
}

func (db *MemoryDB) GetWalletTransactions(walletID string, limit int) ([]*models.WalletTransaction, error) {
	defer db.lock()()
	var out []*models.WalletTransaction
	for i := len(db.state.walletTxs) - 1; i >= 0; i-- {
		if db.state.walletTxs[i].WalletID != walletID {
			continue
		}
		tx := db.state.walletTxs[i]
		out = append(out, &tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (db *MemoryDB) CreateStake(stake *models.Stake) error {
	defer db.lock()()
	db.state.stakes[stake.ID] = *stake
	return nil
}

func (db *MemoryDB) GetStake(stakeID string) (*models.Stake, error) {
	defer db.lock()()
	s, ok := db.state.stakes[stakeID]
	if !ok {
		return nil, fmt.Errorf("stake %s: %w", stakeID, models.ErrNotFound)
	}
	return &s, nil
}

func (db *MemoryDB) UpdateStake(stake *models.Stake) error {
	defer db.lock()()
	if _, ok := db.state.stakes[stake.ID]; !ok {
		return fmt.Errorf("stake %s update affected zero rows: %w", stake.ID, models.ErrConsistency)
	}
	db.state.stakes[stake.ID] = *stake
	return nil
}

func (db *MemoryDB) ListSweepCandidates(now int64, limit int) ([]*models.Stake, error) {
	defer db.lock()()
	var out []*models.Stake
	for _, s := range db.state.stakes {
		due := (s.Status == models.StakeActive && s.Deadline <= now) ||
			(s.Status == models.StakeGracePeriod && s.GracePeriodEnd <= now)
		if due {
			stake := s
			out = append(out, &stake)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline < out[j].Deadline })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (db *MemoryDB) AddParticipant(participant *models.StakeParticipant) error {
	defer db.lock()()
	for _, p := range db.state.participants {
		if p.StakeID == participant.StakeID && p.ParticipantID == participant.ParticipantID {
			return models.ErrDuplicateParticipant
		}
	}
	db.state.participants = append(db.state.participants, *participant)
	return nil
}

func (db *MemoryDB) GetParticipants(stakeID string) ([]*models.StakeParticipant, error) {
	defer db.lock()()
	var out []*models.StakeParticipant
	for _, p := range db.state.participants {
		if p.StakeID == stakeID {
			participant := p
			out = append(out, &participant)
		}
	}
	return out, nil
}

func (db *MemoryDB) CountStakesSince(userID string, since int64) (int64, error) {
	defer db.lock()()
	var count int64
	for _, s := range db.state.stakes {
		if s.OwnerID == userID && s.CreatedAt >= since {
			count++
		}
	}
	return count, nil
}

func (db *MemoryDB) SumStakeAmountsSince(userID string, since int64) (decimal.Decimal, error) {
	defer db.lock()()
	sum := decimal.Zero
	for _, s := range db.state.stakes {
		if s.OwnerID == userID && s.CreatedAt >= since {
			sum = sum.Add(s.OwnerStake)
		}
	}
	return sum, nil
}

func (db *MemoryDB) RecentStakeAmounts(userID string, limit int) ([]decimal.Decimal, error) {
	defer db.lock()()
	var owned []models.Stake
	for _, s := range db.state.stakes {
		if s.OwnerID == userID {
			owned = append(owned, s)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt > owned[j].CreatedAt })
	if limit > 0 && len(owned) > limit {
		owned = owned[:limit]
	}
	amounts := make([]decimal.Decimal, len(owned))
	for i, s := range owned {
		amounts[i] = s.OwnerStake
	}
	return amounts, nil
}

func (db *MemoryDB) CountChargebacks(userID string) (int64, error) {
	defer db.lock()()
	var count int64
	for _, e := range db.state.escrows {
		if e.UserID == userID && e.Status == models.EscrowFailed && e.FailureReason == models.FailureChargeback {
			count++
		}
	}
	return count, nil
}

func (db *MemoryDB) CreateEscrow(escrow *models.EscrowTransaction) error {
	defer db.lock()()
	for _, e := range db.state.escrows {
		if e.StakeID == escrow.StakeID && e.UserID == escrow.UserID {
			return models.ErrDuplicateEscrow
		}
	}
	db.state.escrows[escrow.ID] = *escrow
	return nil
}

func (db *MemoryDB) GetEscrow(escrowID string) (*models.EscrowTransaction, error) {
	defer db.lock()()
	e, ok := db.state.escrows[escrowID]
	if !ok {
		return nil, fmt.Errorf("escrow %s: %w", escrowID, models.ErrNotFound)
	}
	return &e, nil
}

func (db *MemoryDB) GetEscrowByStakeAndUser(stakeID, userID string) (*models.EscrowTransaction, error) {
	defer db.lock()()
	for _, e := range db.state.escrows {
		if e.StakeID == stakeID && e.UserID == userID {
			escrow := e
			return &escrow, nil
		}
	}
	return nil, fmt.Errorf("escrow for stake %s user %s: %w", stakeID, userID, models.ErrNotFound)
}

func (db *MemoryDB) ListEscrowsByStake(stakeID string) ([]*models.EscrowTransaction, error) {
	defer db.lock()()
	var out []*models.EscrowTransaction
	for _, e := range db.state.escrows {
		if e.StakeID == stakeID {
			escrow := e
			out = append(out, &escrow)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (db *MemoryDB) UpdateEscrow(escrow *models.EscrowTransaction) error {
	defer db.lock()()
	if _, ok := db.state.escrows[escrow.ID]; !ok {
		return fmt.Errorf("escrow %s update affected zero rows: %w", escrow.ID, models.ErrConsistency)
	}
	db.state.escrows[escrow.ID] = *escrow
	return nil
}

func (db *MemoryDB) CreateRecoveryStake(recovery *models.RecoveryStake) error {
	defer db.lock()()
	db.state.recoveries[recovery.ID] = *recovery
	return nil
}

func (db *MemoryDB) GetRecoveryStake(recoveryID string) (*models.RecoveryStake, error) {
	defer db.lock()()
	r, ok := db.state.recoveries[recoveryID]
	if !ok {
		return nil, fmt.Errorf("recovery stake %s: %w", recoveryID, models.ErrNotFound)
	}
	return &r, nil
}

func (db *MemoryDB) UpdateRecoveryStake(recovery *models.RecoveryStake) error {
	defer db.lock()()
	if _, ok := db.state.recoveries[recovery.ID]; !ok {
		return fmt.Errorf("recovery stake %s update affected zero rows: %w", recovery.ID, models.ErrConsistency)
	}
	db.state.recoveries[recovery.ID] = *recovery
	return nil
}

func (db *MemoryDB) CountRecoveryAttempts(originalStakeID string) (int64, error) {
	defer db.lock()()
	var count int64
	for _, r := range db.state.recoveries {
		if r.OriginalStakeID == originalStakeID {
			count++
		}
	}
	return count, nil
}

func (db *MemoryDB) AcquireSweepLock(name, instanceID string, now, expiresAt int64) (bool, error) {
	defer db.lock()()
	existing, ok := db.state.locks[name]
	if ok && existing.ExpiresAt >= now && existing.InstanceID != instanceID {
		return false, nil
	}
	db.state.locks[name] = models.SweepLock{LockName: name, InstanceID: instanceID, AcquiredAt: now, ExpiresAt: expiresAt}
	return true, nil
}

func (db *MemoryDB) ReleaseSweepLock(name, instanceID string) error {
	defer db.lock()()
	if existing, ok := db.state.locks[name]; ok && existing.InstanceID == instanceID {
		delete(db.state.locks, name)
	}
	return nil
}
