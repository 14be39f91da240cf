package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentIntent is the gateway's handle for an opened payment handshake.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// PaymentGateway is the narrow contract the engine needs from the external
// payment provider: move N units from party A to party B, irreversibly, with
// a receipt. No provider-specific behaviour leaks past this interface.
type PaymentGateway interface {
	// OpenIntent opens a payment handshake for the given amount.
	OpenIntent(ctx context.Context, amount decimal.Decimal, currency string) (*PaymentIntent, error)
	// Confirm verifies that the intent's payment succeeded. A definitive
	// decline is ErrPaymentDeclined; transient failures are ErrPaymentProvider
	// and may be retried.
	Confirm(ctx context.Context, intentID string) error
	// Transfer pays out to a recipient and returns the gateway transaction id.
	Transfer(ctx context.Context, amount decimal.Decimal, currency, recipient string) (string, error)
	// Refund returns funds on an intent and returns the gateway refund id.
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) (string, error)
}
