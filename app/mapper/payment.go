package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-charges/app/entity"
	"github.com/vibast-solutions/ms-go-charges/app/types"
)

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		PaymentID:        item.PaymentID,
		MerchantID:       item.MerchantID,
		CustomerID:       item.CustomerID,
		AmountCents:      item.AmountCents,
		Currency:         item.Currency,
		PaymentMethodID:  item.PaymentMethodID,
		Status:           item.Status,
		ProviderChargeID: derefString(item.ProviderChargeID),
		CreatedAt:        item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
