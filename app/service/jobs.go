package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-charges/app/entity"
	"github.com/vibast-solutions/ms-go-charges/app/provider"
	"github.com/vibast-solutions/ms-go-charges/app/repository"
	"github.com/vibast-solutions/ms-go-charges/app/types"
)

// RunReconcileBatch resolves attempts abandoned in IN_PROGRESS by an ambiguous
// provider outcome. It is the only actor besides the original request path
// that finalizes records, and it goes through the same guarded transition, so
// a late-arriving finalization on either side degrades to a no-op.
func (s *ChargeService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.chargesCfg.ReconcileStaleAfter)
	items, err := s.store.ListStaleInProgress(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, record := range items {
		if record == nil || record.PaymentID == nil {
			continue
		}
		if err := s.reconcileRecord(ctx, record); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *ChargeService) reconcileRecord(ctx context.Context, record *entity.IdempotencyRecord) error {
	paymentID := *record.PaymentID

	result, err := s.gateway.ChargeStatus(ctx, paymentID)
	if err != nil {
		return err
	}

	var status string
	var statusCode int
	var response *types.ChargeResponse
	var providerChargeID *string

	switch result.Outcome {
	case provider.OutcomeSucceeded:
		status = entity.PaymentStatusSucceeded
		statusCode = http.StatusCreated
		response = &types.ChargeResponse{
			PaymentID:        paymentID,
			Status:           status,
			ProviderChargeID: result.ProviderChargeID,
		}
		providerChargeID = optionalString(result.ProviderChargeID)
	case provider.OutcomeFailed:
		reason := result.Reason
		if reason == "" {
			reason = "charge was not executed"
		}
		status = entity.PaymentStatusFailed
		statusCode = http.StatusBadGateway
		response = &types.ChargeResponse{
			PaymentID: paymentID,
			Status:    status,
			Error:     reason,
		}
	default:
		// Still ambiguous or provider unreachable; the next sweep retries.
		return nil
	}

	body, err := json.Marshal(response)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.store.FinalizeAttempt(ctx, &repository.FinalizeAttemptParams{
		MerchantID:       record.MerchantID,
		IdempotencyKey:   record.IdempotencyKey,
		PaymentID:        paymentID,
		Status:           status,
		ProviderChargeID: providerChargeID,
		ResponseCode:     int32(statusCode),
		ResponseBody:     string(body),
		Now:              now,
	})
	if errors.Is(err, repository.ErrAlreadyFinalized) {
		return nil
	}
	if err != nil {
		return err
	}

	oldStatus := entity.PaymentStatusPending
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: paymentID,
		EventType: "payment_reconciled",
		OldStatus: &oldStatus,
		NewStatus: status,
		CreatedAt: now,
	})

	return nil
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
