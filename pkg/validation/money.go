package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidateAmount validates a monetary amount against inclusive bounds
func ValidateAmount(amount, min, max decimal.Decimal) error {
	if amount.IsZero() || amount.IsNegative() {
		return fmt.Errorf("amount must be positive")
	}
	if amount.LessThan(min) {
		return fmt.Errorf("amount below minimum: %s < %s", amount.String(), min.String())
	}
	if amount.GreaterThan(max) {
		return fmt.Errorf("amount above maximum: %s > %s", amount.String(), max.String())
	}
	return nil
}

// ValidateCurrency validates an ISO 4217-style currency code
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("invalid currency code length: expected 3 characters, got %d", len(code))
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("invalid currency code: %q", code)
		}
	}
	return nil
}

// NormalizeCurrency converts a currency code to its canonical uppercase form
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateDeadline checks that a Unix deadline falls inside the allowed
// window relative to now
func ValidateDeadline(deadline, now int64, minOffset, maxOffset time.Duration) error {
	if deadline <= now+int64(minOffset.Seconds()) {
		return fmt.Errorf("deadline must be at least %s in the future", minOffset)
	}
	if deadline > now+int64(maxOffset.Seconds()) {
		return fmt.Errorf("deadline must be at most %s in the future", maxOffset)
	}
	return nil
}
