package provider

import "context"

type Outcome int32

const (
	// OutcomeUnknown means the remote side's actual state could not be
	// determined (timeout, connection loss, provider 5xx). It is the default
	// for a reason: misreading an unknown outcome as a definite failure is
	// how double charges happen.
	OutcomeUnknown   Outcome = 0
	OutcomeSucceeded Outcome = 1
	OutcomeFailed    Outcome = 2
)

type ChargeInput struct {
	// ReferenceID is our payment id; the provider keys the attempt by it,
	// which is also how reconciliation looks the attempt up later.
	ReferenceID string

	MerchantID      string
	CustomerID      string
	AmountCents     int64
	Currency        string
	PaymentMethodID string
}

type ChargeResult struct {
	Outcome          Outcome
	ProviderChargeID string
	Reason           string
}

// Gateway is the boundary to the external charge provider. Charge classifies
// its own result: OutcomeFailed is only returned when the provider positively
// reported non-execution. ChargeStatus consults the provider's source of
// truth for a previously attempted charge and follows the same rule.
type Gateway interface {
	Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error)
	ChargeStatus(ctx context.Context, referenceID string) (*ChargeResult, error)
}
