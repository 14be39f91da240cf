package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	min := decimal.NewFromInt(5)
	max := decimal.NewFromInt(1000)

	assert.NoError(t, ValidateAmount(decimal.NewFromInt(5), min, max))
	assert.NoError(t, ValidateAmount(decimal.NewFromInt(1000), min, max))
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("49.99"), min, max))

	assert.Error(t, ValidateAmount(decimal.Zero, min, max))
	assert.Error(t, ValidateAmount(decimal.NewFromInt(-10), min, max))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("4.99"), min, max))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("1000.01"), min, max))
}

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("USD"))
	assert.NoError(t, ValidateCurrency("EUR"))

	assert.Error(t, ValidateCurrency(""))
	assert.Error(t, ValidateCurrency("US"))
	assert.Error(t, ValidateCurrency("usd"))
	assert.Error(t, ValidateCurrency("US1"))
	assert.Error(t, ValidateCurrency("USDT"))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", NormalizeCurrency(" usd "))
	assert.Equal(t, "EUR", NormalizeCurrency("EUR"))
	assert.Equal(t, "", NormalizeCurrency("  "))
}

func TestValidateDeadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix()
	min := time.Hour
	max := 90 * 24 * time.Hour

	assert.NoError(t, ValidateDeadline(now+7200, now, min, max))
	assert.NoError(t, ValidateDeadline(now+int64(max.Seconds()), now, min, max))

	// Exactly the minimum offset is still too soon.
	assert.Error(t, ValidateDeadline(now+3600, now, min, max))
	assert.Error(t, ValidateDeadline(now-1, now, min, max))
	assert.Error(t, ValidateDeadline(now+int64(max.Seconds())+1, now, min, max))
}
