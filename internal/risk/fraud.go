package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/models"
)

// Fraud heuristics. Each indicator appends a MEDIUM violation and adds its
// configured point contribution to the running score; the gate maps the
// accumulated score to a decision. The point values themselves are
// configuration with no claimed statistical derivation.

const rapidWindowSeconds = 5 * 60

func (g *Gate) scoreFraud(res *Result, repo models.Repository, userID string, amount decimal.Decimal, reqCtx models.RequestContext, now int64) error {
	recent, err := repo.RecentStakeAmounts(userID, 10)
	if err != nil {
		return fmt.Errorf("fraud scoring: %w", err)
	}

	// Rapid successive transactions.
	rapid, err := repo.CountStakesSince(userID, now-rapidWindowSeconds)
	if err != nil {
		return fmt.Errorf("fraud scoring: %w", err)
	}
	if rapid >= 3 {
		g.indicate(res, g.cfg.PointsRapidCreation, fmt.Sprintf("%d stakes created within 5 minutes", rapid))
	}

	// Amount far above the user's historical average.
	if len(recent) >= 3 {
		sum := decimal.Zero
		for _, a := range recent {
			sum = sum.Add(a)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(recent))))
		if avg.IsPositive() && amount.GreaterThan(avg.Mul(decimal.NewFromInt(3))) {
			g.indicate(res, g.cfg.PointsAnomalousAmount,
				fmt.Sprintf("amount %s more than triple the historical average %s", amount.String(), avg.String()))
		}
	}

	// Suspicious client signature.
	if len(reqCtx.ClientSignature) < 8 {
		g.indicate(res, g.cfg.PointsBadSignature, "missing or malformed client signature")
	}

	// Round-number and just-under-limit amount patterns.
	hundred := decimal.NewFromInt(100)
	if amount.GreaterThanOrEqual(hundred) && amount.Mod(hundred).IsZero() {
		g.indicate(res, g.cfg.PointsAmountPattern, fmt.Sprintf("round-number amount %s", amount.String()))
	}
	justUnder := g.cfg.MaxStakeAmount.Mul(decimal.RequireFromString("0.95"))
	if amount.GreaterThan(justUnder) && amount.LessThanOrEqual(g.cfg.MaxStakeAmount) {
		g.indicate(res, g.cfg.PointsAmountPattern, fmt.Sprintf("amount %s just under the limit", amount.String()))
	}

	// Monotonically increasing stake sizes (recent is newest first).
	if len(recent) >= 3 {
		escalating := amount.GreaterThan(recent[0])
		for i := 0; escalating && i < len(recent)-1; i++ {
			if !recent[i].GreaterThan(recent[i+1]) {
				escalating = false
			}
		}
		if escalating {
			g.indicate(res, g.cfg.PointsEscalation, "monotonically increasing stake sizes")
		}
	}

	// Prior chargebacks.
	chargebacks, err := repo.CountChargebacks(userID)
	if err != nil {
		return fmt.Errorf("fraud scoring: %w", err)
	}
	if chargebacks > 0 {
		g.indicate(res, g.cfg.PointsChargebacks, fmt.Sprintf("%d prior chargebacks", chargebacks))
	}

	return nil
}

func (g *Gate) indicate(res *Result, points int, message string) {
	res.FraudScore += points
	res.Violations = append(res.Violations, Violation{
		Check:    "fraud_score",
		Severity: SeverityMedium,
		Message:  message,
	})
}
