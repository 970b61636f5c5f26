package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-charges/app/entity"
	"github.com/vibast-solutions/ms-go-charges/app/provider"
	"github.com/vibast-solutions/ms-go-charges/app/repository"
	"github.com/vibast-solutions/ms-go-charges/app/types"
	"github.com/vibast-solutions/ms-go-charges/config"
)

const (
	defaultBatchSize       = int32(100)
	defaultProviderTimeout = 10 * time.Second
)

type chargeStore interface {
	BeginAttempt(ctx context.Context, record *entity.IdempotencyRecord, payment *entity.Payment) error
	FinalizeAttempt(ctx context.Context, params *repository.FinalizeAttemptParams) error
	FindIdempotencyRecord(ctx context.Context, merchantID, idempotencyKey string) (*entity.IdempotencyRecord, error)
	FindPayment(ctx context.Context, paymentID string) (*entity.Payment, error)
	ListStaleInProgress(ctx context.Context, before time.Time, limit int32) ([]*entity.IdempotencyRecord, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type ChargeService struct {
	store      chargeStore
	eventRepo  paymentEventRepository
	gateway    provider.Gateway
	chargesCfg config.ChargesConfig
}

func NewChargeService(
	store chargeStore,
	eventRepo paymentEventRepository,
	gateway provider.Gateway,
	chargesCfg config.ChargesConfig,
) *ChargeService {
	return &ChargeService{
		store:      store,
		eventRepo:  eventRepo,
		gateway:    gateway,
		chargesCfg: chargesCfg,
	}
}

// ChargeReply is the durable response contract: status code and body are
// stored alongside the idempotency record and replayed byte for byte on
// duplicate submissions.
type ChargeReply struct {
	StatusCode int
	Body       json.RawMessage
}

func (s *ChargeService) Charge(ctx context.Context, req *types.ChargeRequest) (*ChargeReply, error) {
	merchantID := strings.TrimSpace(req.MerchantID)
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if merchantID == "" || idempotencyKey == "" {
		return nil, ErrInvalidRequest
	}

	// The payment's fate must not depend on the caller staying connected.
	ctx = context.WithoutCancel(ctx)

	requestHash := req.Fingerprint()
	now := time.Now().UTC()

	record := &entity.IdempotencyRecord{
		MerchantID:     merchantID,
		IdempotencyKey: idempotencyKey,
		RequestHash:    requestHash,
		Status:         entity.IdempotencyStatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	payment := &entity.Payment{
		PaymentID:       uuid.NewString(),
		MerchantID:      merchantID,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		AmountCents:     req.AmountCents,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		Status:          entity.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.BeginAttempt(ctx, record, payment); err != nil {
		if errors.Is(err, repository.ErrIdempotencyKeyExists) {
			return s.replayExisting(ctx, merchantID, idempotencyKey, requestHash)
		}
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.PaymentID,
		EventType: "payment_created",
		NewStatus: payment.Status,
		CreatedAt: now,
	})

	return s.executeCharge(ctx, payment, merchantID, idempotencyKey)
}

func (s *ChargeService) GetPayment(ctx context.Context, paymentID string) (*entity.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrInvalidRequest
	}

	payment, err := s.store.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// executeCharge invokes the provider outside any transaction: the attempt is
// already committed, so a slow call holds no database resources.
func (s *ChargeService) executeCharge(ctx context.Context, payment *entity.Payment, merchantID, idempotencyKey string) (*ChargeReply, error) {
	timeout := s.chargesCfg.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	chargeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.gateway.Charge(chargeCtx, &provider.ChargeInput{
		ReferenceID:     payment.PaymentID,
		MerchantID:      payment.MerchantID,
		CustomerID:      payment.CustomerID,
		AmountCents:     payment.AmountCents,
		Currency:        payment.Currency,
		PaymentMethodID: payment.PaymentMethodID,
	})
	if err != nil {
		// Nothing proves the charge never reached the provider.
		result = &provider.ChargeResult{Outcome: provider.OutcomeUnknown, Reason: err.Error()}
	}

	switch result.Outcome {
	case provider.OutcomeSucceeded:
		return s.finalizeAttempt(ctx, merchantID, idempotencyKey, payment.PaymentID,
			entity.PaymentStatusSucceeded, http.StatusCreated,
			&types.ChargeResponse{
				PaymentID:        payment.PaymentID,
				Status:           entity.PaymentStatusSucceeded,
				ProviderChargeID: result.ProviderChargeID,
			},
			optionalString(result.ProviderChargeID),
		)
	case provider.OutcomeFailed:
		reason := result.Reason
		if reason == "" {
			reason = "charge declined"
		}
		return s.finalizeAttempt(ctx, merchantID, idempotencyKey, payment.PaymentID,
			entity.PaymentStatusFailed, http.StatusBadGateway,
			&types.ChargeResponse{
				PaymentID: payment.PaymentID,
				Status:    entity.PaymentStatusFailed,
				Error:     reason,
			},
			nil,
		)
	default:
		// Outcome unknown: both records stay pending. The reconciliation
		// worker owns resolving them; marking FAILED here could double-charge.
		return inProgressReply(payment.PaymentID)
	}
}

func (s *ChargeService) finalizeAttempt(
	ctx context.Context,
	merchantID, idempotencyKey, paymentID string,
	status string,
	statusCode int,
	response *types.ChargeResponse,
	providerChargeID *string,
) (*ChargeReply, error) {
	body, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.store.FinalizeAttempt(ctx, &repository.FinalizeAttemptParams{
		MerchantID:       merchantID,
		IdempotencyKey:   idempotencyKey,
		PaymentID:        paymentID,
		Status:           status,
		ProviderChargeID: providerChargeID,
		ResponseCode:     int32(statusCode),
		ResponseBody:     string(body),
		Now:              now,
	})
	if errors.Is(err, repository.ErrAlreadyFinalized) || errors.Is(err, repository.ErrTerminalConflict) {
		// The reconciliation worker finalized first; the stored response wins.
		return s.replayStored(ctx, merchantID, idempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	oldStatus := entity.PaymentStatusPending
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: paymentID,
		EventType: finalizeEventType(status),
		OldStatus: &oldStatus,
		NewStatus: status,
		CreatedAt: now,
	})

	return &ChargeReply{StatusCode: statusCode, Body: body}, nil
}

func (s *ChargeService) replayExisting(ctx context.Context, merchantID, idempotencyKey, requestHash string) (*ChargeReply, error) {
	record, err := s.store.FindIdempotencyRecord(ctx, merchantID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("idempotency record vanished for merchant=%s", merchantID)
	}
	if record.RequestHash != requestHash {
		return nil, ErrKeyReuseMismatch
	}

	return replyFromRecord(record)
}

func (s *ChargeService) replayStored(ctx context.Context, merchantID, idempotencyKey string) (*ChargeReply, error) {
	record, err := s.store.FindIdempotencyRecord(ctx, merchantID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("idempotency record vanished for merchant=%s", merchantID)
	}
	return replyFromRecord(record)
}

func replyFromRecord(record *entity.IdempotencyRecord) (*ChargeReply, error) {
	switch record.Status {
	case entity.IdempotencyStatusSucceeded:
		return storedReply(record, http.StatusOK), nil
	case entity.IdempotencyStatusFailed:
		return storedReply(record, http.StatusBadGateway), nil
	default:
		var paymentID string
		if record.PaymentID != nil {
			paymentID = *record.PaymentID
		}
		return inProgressReply(paymentID)
	}
}

func storedReply(record *entity.IdempotencyRecord, fallbackCode int) *ChargeReply {
	statusCode := fallbackCode
	if record.ResponseCode != nil {
		statusCode = int(*record.ResponseCode)
	}

	var body json.RawMessage
	if record.ResponseBody != nil && strings.TrimSpace(*record.ResponseBody) != "" {
		body = json.RawMessage(*record.ResponseBody)
	} else {
		body, _ = json.Marshal(&types.ChargeResponse{Status: record.Status})
	}

	return &ChargeReply{StatusCode: statusCode, Body: body}
}

func inProgressReply(paymentID string) (*ChargeReply, error) {
	body, err := json.Marshal(&types.ChargeResponse{
		PaymentID: paymentID,
		Status:    entity.IdempotencyStatusInProgress,
	})
	if err != nil {
		return nil, err
	}
	return &ChargeReply{StatusCode: http.StatusAccepted, Body: body}, nil
}

func finalizeEventType(status string) string {
	if status == entity.PaymentStatusSucceeded {
		return "payment_succeeded"
	}
	return "payment_failed"
}

func (s *ChargeService) batchSize() int32 {
	if s.chargesCfg.JobBatchSize > 0 {
		return s.chargesCfg.JobBatchSize
	}
	return defaultBatchSize
}

func optionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
