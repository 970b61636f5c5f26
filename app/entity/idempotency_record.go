package entity

import "time"

const (
	IdempotencyStatusInProgress = "IN_PROGRESS"
	IdempotencyStatusSucceeded  = "SUCCEEDED"
	IdempotencyStatusFailed     = "FAILED"
)

// IdempotencyRecord is keyed by (MerchantID, IdempotencyKey). The key pair is
// the dedup mutex: the unique constraint on it decides concurrent inserts.
type IdempotencyRecord struct {
	MerchantID     string
	IdempotencyKey string

	RequestHash string

	Status string

	PaymentID *string

	ResponseCode *int32
	ResponseBody *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *IdempotencyRecord) Terminal() bool {
	return r.Status == IdempotencyStatusSucceeded || r.Status == IdempotencyStatusFailed
}
