package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.Stake{},
		&models.StakeParticipant{},
		&models.EscrowTransaction{},
		&models.RecoveryStake{},
		&models.SweepLock{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// Atomically runs fn inside one database transaction. The Repository handed
// to fn writes through the transaction, so any error rolls back the whole
// group of mutations.
func (db *PostgresDB) Atomically(fn func(models.Repository) error) error {
	return db.Conn.Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresDB{Conn: tx, logger: db.logger})
	})
}

func (db *PostgresDB) CreateWallet(wallet *models.Wallet) error {
	if err := db.Conn.Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetWalletByUser(userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.Conn.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("wallet for user %s: %w", userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet by user: %s", err)
	}
	return &wallet, nil
}

func (db *PostgresDB) GetWallet(walletID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.Conn.Where("id = ?", walletID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("wallet %s: %w", walletID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet: %s", err)
	}
	return &wallet, nil
}

func (db *PostgresDB) UpdateWallet(wallet *models.Wallet) error {
	res := db.Conn.Model(&models.Wallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
		"balance":        wallet.Balance,
		"total_earned":   wallet.TotalEarned,
		"total_lost":     wallet.TotalLost,
		"total_staked":   wallet.TotalStaked,
		"current_streak": wallet.CurrentStreak,
		"longest_streak": wallet.LongestStreak,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update wallet: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("wallet %s update affected zero rows: %w", wallet.ID, models.ErrConsistency)
	}
	return nil
}

func (db *PostgresDB) AddWalletTransaction(tx *models.WalletTransaction) error {
	if err := db.Conn.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to append wallet transaction: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetWalletTransactions(walletID string, limit int) ([]*models.WalletTransaction, error) {
	var txs []*models.WalletTransaction
	q := db.Conn.Where("wallet_id = ?", walletID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to get wallet transactions: %s", err)
	}
	return txs, nil
}

func (db *PostgresDB) CreateStake(stake *models.Stake) error {
	if err := db.Conn.Create(stake).Error; err != nil {
		return fmt.Errorf("failed to create stake: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetStake(stakeID string) (*models.Stake, error) {
	var stake models.Stake
	if err := db.Conn.Where("id = ?", stakeID).First(&stake).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stake %s: %w", stakeID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get stake: %s", err)
	}
	return &stake, nil
}

func (db *PostgresDB) UpdateStake(stake *models.Stake) error {
	res := db.Conn.Save(stake)
	if res.Error != nil {
		return fmt.Errorf("failed to update stake: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("stake %s update affected zero rows: %w", stake.ID, models.ErrConsistency)
	}
	return nil
}

func (db *PostgresDB) ListSweepCandidates(now int64, limit int) ([]*models.Stake, error) {
	var stakes []*models.Stake
	err := db.Conn.
		Where("(status = ? AND deadline <= ?) OR (status = ? AND grace_period_end <= ?)",
			models.StakeActive, now, models.StakeGracePeriod, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&stakes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %s", err)
	}
	return stakes, nil
}

func (db *PostgresDB) AddParticipant(participant *models.StakeParticipant) error {
	if err := db.Conn.Create(participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrDuplicateParticipant
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetParticipants(stakeID string) ([]*models.StakeParticipant, error) {
	var participants []*models.StakeParticipant
	if err := db.Conn.Where("stake_id = ?", stakeID).Order("joined_at ASC").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to get participants: %s", err)
	}
	return participants, nil
}

func (db *PostgresDB) CountStakesSince(userID string, since int64) (int64, error) {
	var count int64
	err := db.Conn.Model(&models.Stake{}).
		Where("owner_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count stakes: %s", err)
	}
	return count, nil
}

func (db *PostgresDB) SumStakeAmountsSince(userID string, since int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := db.Conn.Model(&models.Stake{}).
		Select("SUM(owner_stake)").
		Where("owner_id = ? AND created_at >= ?", userID, since).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum stake amounts: %s", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (db *PostgresDB) RecentStakeAmounts(userID string, limit int) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := db.Conn.Model(&models.Stake{}).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Pluck("owner_stake", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent stake amounts: %s", err)
	}
	return amounts, nil
}

func (db *PostgresDB) CountChargebacks(userID string) (int64, error) {
	var count int64
	err := db.Conn.Model(&models.EscrowTransaction{}).
		Where("user_id = ? AND status = ? AND failure_reason = ?", userID, models.EscrowFailed, models.FailureChargeback).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count chargebacks: %s", err)
	}
	return count, nil
}

func (db *PostgresDB) CreateEscrow(escrow *models.EscrowTransaction) error {
	if err := db.Conn.Create(escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrDuplicateEscrow
		}
		return fmt.Errorf("failed to create escrow: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetEscrow(escrowID string) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	if err := db.Conn.Where("id = ?", escrowID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("escrow %s: %w", escrowID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get escrow: %s", err)
	}
	return &escrow, nil
}

func (db *PostgresDB) GetEscrowByStakeAndUser(stakeID, userID string) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	if err := db.Conn.Where("stake_id = ? AND user_id = ?", stakeID, userID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("escrow for stake %s user %s: %w", stakeID, userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get escrow by stake and user: %s", err)
	}
	return &escrow, nil
}

func (db *PostgresDB) ListEscrowsByStake(stakeID string) ([]*models.EscrowTransaction, error) {
	var escrows []*models.EscrowTransaction
	if err := db.Conn.Where("stake_id = ?", stakeID).Order("created_at ASC").Find(&escrows).Error; err != nil {
		return nil, fmt.Errorf("failed to list escrows: %s", err)
	}
	return escrows, nil
}

func (db *PostgresDB) UpdateEscrow(escrow *models.EscrowTransaction) error {
	res := db.Conn.Save(escrow)
	if res.Error != nil {
		return fmt.Errorf("failed to update escrow: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("escrow %s update affected zero rows: %w", escrow.ID, models.ErrConsistency)
	}
	return nil
}

func (db *PostgresDB) CreateRecoveryStake(recovery *models.RecoveryStake) error {
	if err := db.Conn.Create(recovery).Error; err != nil {
		return fmt.Errorf("failed to create recovery stake: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetRecoveryStake(recoveryID string) (*models.RecoveryStake, error) {
	var recovery models.RecoveryStake
	if err := db.Conn.Where("id = ?", recoveryID).First(&recovery).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("recovery stake %s: %w", recoveryID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get recovery stake: %s", err)
	}
	return &recovery, nil
}

func (db *PostgresDB) UpdateRecoveryStake(recovery *models.RecoveryStake) error {
	res := db.Conn.Save(recovery)
	if res.Error != nil {
		return fmt.Errorf("failed to update recovery stake: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("recovery stake %s update affected zero rows: %w", recovery.ID, models.ErrConsistency)
	}
	return nil
}

func (db *PostgresDB) CountRecoveryAttempts(originalStakeID string) (int64, error) {
	var count int64
	err := db.Conn.Model(&models.RecoveryStake{}).
		Where("original_stake_id = ?", originalStakeID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recovery attempts: %s", err)
	}
	return count, nil
}

// AcquireSweepLock takes or renews the named lease. It succeeds when the lock
// is free, expired, or already held by this instance.
func (db *PostgresDB) AcquireSweepLock(name, instanceID string, now, expiresAt int64) (bool, error) {
	res := db.Conn.Exec(`
		INSERT INTO sweep_locks (lock_name, instance_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (lock_name) DO UPDATE
		SET instance_id = EXCLUDED.instance_id,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at  = EXCLUDED.expires_at
		WHERE sweep_locks.expires_at < ? OR sweep_locks.instance_id = ?`,
		name, instanceID, now, expiresAt, now, instanceID)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %s", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *PostgresDB) ReleaseSweepLock(name, instanceID string) error {
	res := db.Conn.Where("lock_name = ? AND instance_id = ?", name, instanceID).Delete(&models.SweepLock{})
	if res.Error != nil {
		return fmt.Errorf("failed to release sweep lock: %s", res.Error)
	}
	return nil
}
