package sponsio

import (
	"sync"
	"time"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/escrow"
	"github.com/sponsio/sponsio/internal/ledger"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/internal/recovery"
	"github.com/sponsio/sponsio/internal/risk"
	"github.com/sponsio/sponsio/internal/settlement"
	"github.com/sponsio/sponsio/internal/stake"
	"github.com/sponsio/sponsio/pkg/logger"
)

const sweepLockName = "deadline-sweep"

// Sponsio is the main struct for the stake settlement engine. It wires the
// ledger, risk gate, escrow manager, calculator and lifecycle services
// together and owns the background deadline sweep.
type Sponsio struct {
	logger *logger.Logger
	config *config.Config

	repo       models.Repository
	stakes     *stake.Service
	recoveries *recovery.Manager

	stopOnce sync.Once
	stop     chan struct{}
	done     sync.WaitGroup
}

// NewSponsio creates a new Sponsio instance wired against the given
// repository, payment gateway and notificator.
func NewSponsio(
	repo models.Repository,
	gateway models.PaymentGateway,
	notifier models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
) models.SponsioI {
	ldg := ledger.NewLedger(logger)
	gate := risk.NewGate(config, logger)
	escrows := escrow.NewManager(config, gateway, logger)
	calc := settlement.NewCalculator(config)

	return &Sponsio{
		logger:     logger,
		config:     config,
		repo:       repo,
		stakes:     stake.NewService(config, repo, ldg, gate, escrows, calc, notifier, logger),
		recoveries: recovery.NewManager(config, repo, ldg, notifier, logger),
		stop:       make(chan struct{}),
	}
}

// Start launches the periodic deadline sweep. The sweep is single-writer
// across instances: each pass first takes the database lease and skips the
// pass when another live instance holds it.
func (s *Sponsio) Start() {
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runSweep()
			}
		}
	}()
	s.logger.Info("Deadline sweep started", "interval", s.config.SweepInterval)
}

// Shutdown stops the background sweep and releases the lease.
func (s *Sponsio) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.done.Wait()
	if err := s.repo.ReleaseSweepLock(sweepLockName, s.config.InstanceID); err != nil {
		s.logger.Error("Failed to release sweep lock", "error", err)
	}
	s.logger.Info("Deadline sweep stopped")
}

func (s *Sponsio) runSweep() {
	now := time.Now().UTC().Unix()
	expires := now + int64(s.config.SweepLockTTL.Seconds())
	acquired, err := s.repo.AcquireSweepLock(sweepLockName, s.config.InstanceID, now, expires)
	if err != nil {
		s.logger.Error("Failed to acquire sweep lock", "error", err)
		return
	}
	if !acquired {
		s.logger.Debug("Sweep lock held elsewhere, skipping pass")
		return
	}
	if err := s.stakes.SweepDeadlines(now); err != nil {
		s.logger.Error("Deadline sweep pass failed", "error", err)
	}
}

func (s *Sponsio) CreateStake(input models.CreateStakeInput) (*models.Stake, error) {
	return s.stakes.CreateStake(input)
}

func (s *Sponsio) JoinStake(input models.JoinStakeInput) (*models.Stake, error) {
	return s.stakes.JoinStake(input)
}

func (s *Sponsio) SubmitCompletion(input models.CompletionInput) (*models.Stake, error) {
	return s.stakes.SubmitCompletion(input)
}

func (s *Sponsio) CancelStake(stakeID, userID string) (*models.Stake, error) {
	return s.stakes.CancelStake(stakeID, userID)
}

func (s *Sponsio) GetStake(stakeID string) (*models.Stake, error) {
	return s.stakes.GetStake(stakeID)
}

func (s *Sponsio) GetWallet(userID string) (*models.Wallet, error) {
	return s.stakes.GetWallet(userID)
}

func (s *Sponsio) GetWalletTransactions(userID string, limit int) ([]*models.WalletTransaction, error) {
	return s.stakes.GetWalletTransactions(userID, limit)
}

func (s *Sponsio) CreateRecoveryStake(input models.CreateRecoveryInput) (*models.RecoveryStake, error) {
	return s.recoveries.Create(input)
}

func (s *Sponsio) SettleRecoveryStake(input models.SettleRecoveryInput) (*models.RecoveryStake, error) {
	return s.recoveries.Settle(input)
}

func (s *Sponsio) SweepDeadlines(now int64) error {
	return s.stakes.SweepDeadlines(now)
}
