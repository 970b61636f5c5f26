package entity

import "time"

type PaymentEvent struct {
	ID uint64

	PaymentID string

	EventType string

	OldStatus *string
	NewStatus string

	PayloadJSON *string

	CreatedAt time.Time
}
