package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

// HTTPGateway talks to the external payment provider over its JSON API.
// It implements models.PaymentGateway and nothing provider-specific leaks
// past it: the engine only ever sees intent ids and receipts.
type HTTPGateway struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, logger *logger.Logger) *HTTPGateway {
	return &HTTPGateway{
		logger:  logger,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type intentRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type confirmResponse struct {
	Status string `json:"status"` // succeeded | failed
	Reason string `json:"reason"`
}

type transferRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
}

type refundRequest struct {
	Amount string `json:"amount"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
}

func (g *HTTPGateway) OpenIntent(ctx context.Context, amount decimal.Decimal, currency string) (*models.PaymentIntent, error) {
	var out intentResponse
	err := g.post(ctx, "/v1/intents", intentRequest{Amount: amount.String(), Currency: currency}, &out)
	if err != nil {
		return nil, err
	}
	return &models.PaymentIntent{ID: out.ID, ClientSecret: out.ClientSecret}, nil
}

func (g *HTTPGateway) Confirm(ctx context.Context, intentID string) error {
	var out confirmResponse
	err := g.post(ctx, fmt.Sprintf("/v1/intents/%s/confirm", intentID), nil, &out)
	if err != nil {
		return err
	}
	if out.Status != "succeeded" {
		return fmt.Errorf("intent %s %s (%s): %w", intentID, out.Status, out.Reason, models.ErrPaymentDeclined)
	}
	return nil
}

func (g *HTTPGateway) Transfer(ctx context.Context, amount decimal.Decimal, currency, recipient string) (string, error) {
	var out transferResponse
	err := g.post(ctx, "/v1/transfers", transferRequest{Amount: amount.String(), Currency: currency, Recipient: recipient}, &out)
	if err != nil {
		return "", err
	}
	return out.TransactionID, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, intentID string, amount decimal.Decimal) (string, error) {
	var out refundResponse
	err := g.post(ctx, fmt.Sprintf("/v1/intents/%s/refund", intentID), refundRequest{Amount: amount.String()}, &out)
	if err != nil {
		return "", err
	}
	return out.RefundID, nil
}

// post sends one JSON request. Transport errors and 5xx responses come back
// as ErrPaymentProvider so the escrow manager knows they are retryable;
// 4xx responses are definitive and map to ErrPaymentDeclined.
func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s: %s: %w", path, err, models.ErrPaymentProvider)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway response %s: %s: %w", path, err, models.ErrPaymentProvider)
	}
	switch {
	case resp.StatusCode >= 500:
		g.logger.Warn("Payment gateway server error", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("gateway %s returned %d: %w", path, resp.StatusCode, models.ErrPaymentProvider)
	case resp.StatusCode >= 400:
		return fmt.Errorf("gateway %s returned %d: %w", path, resp.StatusCode, models.ErrPaymentDeclined)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode gateway response %s: %s: %w", path, err, models.ErrPaymentProvider)
		}
	}
	return nil
}
