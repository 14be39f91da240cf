package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/config"
	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

// Decision outcomes, worst case across all checks.
const (
	DecisionAllow  = "ALLOW"
	DecisionReview = "REVIEW"
	DecisionBlock  = "BLOCK"
)

// Violation severities.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Violation is one failed check. The full list is reported to the caller, so
// the gate never short-circuits.
type Violation struct {
	Check    string `json:"check"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Result is the gate's verdict for one evaluation.
type Result struct {
	Decision   string      `json:"decision"`
	FraudScore int         `json:"fraud_score"`
	Violations []Violation `json:"violations"`
}

// Gate is the pre-commit risk screen. It is side-effect-free: evaluations for
// different users may run concurrently without coordination.
type Gate struct {
	cfg    *config.Config
	logger *logger.Logger
}

func NewGate(cfg *config.Config, logger *logger.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger}
}

// Evaluate runs every check to completion and combines them into a single
// allow/review/block decision: any CRITICAL violation blocks, a fraud score
// at or above the high threshold blocks, a score at or above the medium
// threshold or any HIGH violation defers to review.
func (g *Gate) Evaluate(repo models.Repository, userID string, amount decimal.Decimal, stakeType string, reqCtx models.RequestContext, now int64) (*Result, error) {
	res := &Result{Decision: DecisionAllow}

	g.checkAmountBounds(res, amount)
	if err := g.checkRateLimit(res, repo, userID, now); err != nil {
		return nil, err
	}
	if err := g.checkVelocityLimits(res, repo, userID, amount, now); err != nil {
		return nil, err
	}
	g.checkVerification(res, amount, reqCtx)
	g.checkGeography(res, reqCtx)
	g.checkPaymentMethod(res, reqCtx)
	if err := g.scoreFraud(res, repo, userID, amount, reqCtx, now); err != nil {
		return nil, err
	}

	res.Decision = g.classify(res)
	if res.Decision != DecisionAllow {
		g.logger.Warn("Risk gate decision", "user", userID, "decision", res.Decision,
			"score", res.FraudScore, "violations", len(res.Violations))
	}
	return res, nil
}

func (g *Gate) classify(res *Result) string {
	anyHigh := false
	for _, v := range res.Violations {
		if v.Severity == SeverityCritical {
			return DecisionBlock
		}
		if v.Severity == SeverityHigh {
			anyHigh = true
		}
	}
	if res.FraudScore >= g.cfg.FraudHighThreshold {
		return DecisionBlock
	}
	if res.FraudScore >= g.cfg.FraudMediumThreshold || anyHigh {
		return DecisionReview
	}
	return DecisionAllow
}

func (g *Gate) checkAmountBounds(res *Result, amount decimal.Decimal) {
	if amount.LessThan(g.cfg.MinStakeAmount) {
		res.Violations = append(res.Violations, Violation{
			Check:    "amount_bounds",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("amount %s below minimum %s", amount.String(), g.cfg.MinStakeAmount.String()),
		})
	}
	if amount.GreaterThan(g.cfg.MaxStakeAmount) {
		res.Violations = append(res.Violations, Violation{
			Check:    "amount_bounds",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("amount %s above maximum %s", amount.String(), g.cfg.MaxStakeAmount.String()),
		})
	}
}

func (g *Gate) checkRateLimit(res *Result, repo models.Repository, userID string, now int64) error {
	since := now - int64(g.cfg.RateLimitWindow.Seconds())
	count, err := repo.CountStakesSince(userID, since)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if count >= int64(g.cfg.RateLimitMax) {
		res.Violations = append(res.Violations, Violation{
			Check:    "rate_limit",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%d stakes within %s, limit %d", count, g.cfg.RateLimitWindow, g.cfg.RateLimitMax),
		})
	}
	return nil
}

func (g *Gate) checkVelocityLimits(res *Result, repo models.Repository, userID string, amount decimal.Decimal, now int64) error {
	const day = int64(24 * 60 * 60)
	windows := []struct {
		name       string
		since      int64
		countLimit int
		valueLimit decimal.Decimal
	}{
		{"daily", now - day, g.cfg.DailyStakeLimit, g.cfg.DailyValueLimit},
		{"monthly", now - 30*day, g.cfg.MonthlyStakeLimit, g.cfg.MonthlyValueLimit},
	}
	for _, w := range windows {
		count, err := repo.CountStakesSince(userID, w.since)
		if err != nil {
			return fmt.Errorf("%s velocity check: %w", w.name, err)
		}
		if count >= int64(w.countLimit) {
			res.Violations = append(res.Violations, Violation{
				Check:    w.name + "_count",
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("%d stakes in %s window, limit %d", count, w.name, w.countLimit),
			})
		}
		sum, err := repo.SumStakeAmountsSince(userID, w.since)
		if err != nil {
			return fmt.Errorf("%s velocity check: %w", w.name, err)
		}
		if sum.Add(amount).GreaterThan(w.valueLimit) {
			res.Violations = append(res.Violations, Violation{
				Check:    w.name + "_value",
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("cumulative value %s in %s window exceeds %s", sum.Add(amount).String(), w.name, w.valueLimit.String()),
			})
		}
	}
	return nil
}

func (g *Gate) checkVerification(res *Result, amount decimal.Decimal, reqCtx models.RequestContext) {
	if !reqCtx.EmailVerified {
		res.Violations = append(res.Violations, Violation{
			Check:    "verification",
			Severity: SeverityMedium,
			Message:  "email not verified",
		})
	}
	if !reqCtx.NameVerified {
		res.Violations = append(res.Violations, Violation{
			Check:    "verification",
			Severity: SeverityLow,
			Message:  "name not verified",
		})
	}
	// Large amounts require full identity verification.
	half := g.cfg.MaxStakeAmount.Div(decimal.NewFromInt(2))
	if !reqCtx.IdentityVerified && amount.GreaterThan(half) {
		res.Violations = append(res.Violations, Violation{
			Check:    "verification",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("identity not verified for amount %s", amount.String()),
		})
	}
}

func (g *Gate) checkGeography(res *Result, reqCtx models.RequestContext) {
	for _, restricted := range g.cfg.RestrictedCountries {
		if reqCtx.Country == restricted {
			res.Violations = append(res.Violations, Violation{
				Check:    "geography",
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("country %s is restricted", reqCtx.Country),
			})
			return
		}
	}
}

func (g *Gate) checkPaymentMethod(res *Result, reqCtx models.RequestContext) {
	if !reqCtx.PaymentMethodValid {
		res.Violations = append(res.Violations, Violation{
			Check:    "payment_method",
			Severity: SeverityHigh,
			Message:  "no valid payment method on file",
		})
	}
}
