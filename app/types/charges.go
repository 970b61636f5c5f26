package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderMerchantID     = "X-Merchant-ID"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)

type ChargeRequest struct {
	MerchantID     string `json:"-"`
	IdempotencyKey string `json:"-"`

	CustomerID      string `json:"customerId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"paymentMethodId"`
}

func NewChargeRequestFromContext(ctx echo.Context) (*ChargeRequest, error) {
	var body ChargeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.MerchantID = strings.TrimSpace(ctx.Request().Header.Get(HeaderMerchantID))
	body.IdempotencyKey = strings.TrimSpace(ctx.Request().Header.Get(HeaderIdempotencyKey))
	body.CustomerID = strings.TrimSpace(body.CustomerID)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.PaymentMethodID = strings.TrimSpace(body.PaymentMethodID)

	return &body, nil
}

// ValidateIdentifiers covers the identifiers that must be present before any
// store access happens; body validation is separate so a missing header never
// reads as a malformed payload.
func (r *ChargeRequest) ValidateIdentifiers() error {
	if r.MerchantID == "" {
		return errors.New("x-merchant-id header is required")
	}
	if r.IdempotencyKey == "" {
		return errors.New("x-idempotency-key header is required")
	}
	return nil
}

func (r *ChargeRequest) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return errors.New("customerId is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amountCents must be > 0")
	}
	if len(strings.TrimSpace(r.Currency)) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if strings.TrimSpace(r.PaymentMethodID) == "" {
		return errors.New("paymentMethodId is required")
	}
	return nil
}

// Fingerprint digests the request payload independently of the order the
// client's JSON keys arrived in: the hash is computed over a re-serialized
// map, and encoding/json writes map keys sorted.
func (r *ChargeRequest) Fingerprint() string {
	payload, _ := json.Marshal(map[string]interface{}{
		"customerId":      r.CustomerID,
		"amountCents":     r.AmountCents,
		"currency":        r.Currency,
		"paymentMethodId": r.PaymentMethodID,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type ChargeResponse struct {
	PaymentID        string `json:"paymentId"`
	Status           string `json:"status"`
	ProviderChargeID string `json:"providerChargeId,omitempty"`
	Error            string `json:"error,omitempty"`
}

type PaymentResponse struct {
	PaymentID        string `json:"paymentId"`
	MerchantID       string `json:"merchantId"`
	CustomerID       string `json:"customerId"`
	AmountCents      int64  `json:"amountCents"`
	Currency         string `json:"currency"`
	PaymentMethodID  string `json:"paymentMethodId"`
	Status           string `json:"status"`
	ProviderChargeID string `json:"providerChargeId,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
