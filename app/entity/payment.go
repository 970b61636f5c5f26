package entity

import "time"

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
)

type Payment struct {
	PaymentID string

	MerchantID      string
	CustomerID      string
	AmountCents     int64
	Currency        string
	PaymentMethodID string

	Status string

	ProviderChargeID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
