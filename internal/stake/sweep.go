package stake

import (
	"errors"
	"fmt"

	"github.com/sponsio/sponsio/internal/models"
)

const sweepBatchSize = 100

// SweepDeadlines runs one idempotent pass over overdue stakes. An ACTIVE
// stake past its deadline is granted exactly one grace period (guarded by the
// grace-period timestamp, so a re-run never grants a second); a GRACE_PERIOD
// stake past its grace end is settled as FAILED (guarded by the terminal
// check inside settle). Errors on one stake are logged and do not stop the
// pass.
func (s *Service) SweepDeadlines(now int64) error {
	candidates, err := s.repo.ListSweepCandidates(now, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("deadline sweep: %w", err)
	}

	for _, candidate := range candidates {
		if err := s.sweepOne(candidate.ID, now); err != nil {
			if errors.Is(err, models.ErrStakeClosed) {
				continue
			}
			s.logger.Error("Deadline sweep failed for stake", "stake", candidate.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) sweepOne(stakeID string, now int64) error {
	stake, err := s.repo.GetStake(stakeID)
	if err != nil {
		return err
	}
	if stake.IsTerminal() {
		return nil
	}

	if stake.Status == models.StakeActive && stake.Deadline <= now {
		if stake.GracePeriodEnd == 0 {
			return s.grantGrace(stake, now)
		}
		// Grace was already granted in a previous pass; fall through only
		// once that window has also elapsed.
		if stake.GracePeriodEnd > now {
			return nil
		}
	}
	if stake.Status == models.StakeGracePeriod && stake.GracePeriodEnd > now {
		return nil
	}

	_, err = s.settle(stake, models.StakeFailed, now)
	return err
}

func (s *Service) grantGrace(stake *models.Stake, now int64) error {
	stake.Status = models.StakeGracePeriod
	stake.GracePeriodEnd = now + int64(s.cfg.GracePeriod.Seconds())
	if err := s.repo.UpdateStake(stake); err != nil {
		return err
	}
	s.logger.Info("Grace period granted", "stake", stake.ID, "until", stake.GracePeriodEnd)
	s.notify(&models.Notification{
		Event:    models.EventGraceGranted,
		UserID:   stake.OwnerID,
		StakeID:  stake.ID,
		Amount:   stake.TotalAmount,
		Currency: stake.Currency,
	})
	return nil
}
