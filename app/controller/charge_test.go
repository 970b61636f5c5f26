package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-charges/app/entity"
	"github.com/vibast-solutions/ms-go-charges/app/provider"
	"github.com/vibast-solutions/ms-go-charges/app/repository"
	"github.com/vibast-solutions/ms-go-charges/app/service"
	"github.com/vibast-solutions/ms-go-charges/app/types"
	"github.com/vibast-solutions/ms-go-charges/config"
)

type controllerStore struct {
	mu       sync.Mutex
	records  map[string]*entity.IdempotencyRecord
	payments map[string]*entity.Payment
}

func newControllerStore() *controllerStore {
	return &controllerStore{
		records:  map[string]*entity.IdempotencyRecord{},
		payments: map[string]*entity.Payment{},
	}
}

func (s *controllerStore) BeginAttempt(_ context.Context, record *entity.IdempotencyRecord, payment *entity.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.MerchantID + "|" + record.IdempotencyKey
	if _, ok := s.records[key]; ok {
		return repository.ErrIdempotencyKeyExists
	}

	paymentID := payment.PaymentID
	recordCopy := *record
	recordCopy.PaymentID = &paymentID
	s.records[key] = &recordCopy

	paymentCopy := *payment
	s.payments[paymentID] = &paymentCopy
	return nil
}

func (s *controllerStore) FinalizeAttempt(_ context.Context, params *repository.FinalizeAttemptParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[params.MerchantID+"|"+params.IdempotencyKey]
	if !ok {
		return repository.ErrIdempotencyKeyNotFound
	}
	if record.Status != entity.IdempotencyStatusInProgress {
		if record.Status == params.Status {
			return repository.ErrAlreadyFinalized
		}
		return repository.ErrTerminalConflict
	}

	record.Status = params.Status
	code := params.ResponseCode
	record.ResponseCode = &code
	body := params.ResponseBody
	record.ResponseBody = &body
	record.UpdatedAt = params.Now

	if payment, ok := s.payments[params.PaymentID]; ok {
		payment.Status = params.Status
		if params.ProviderChargeID != nil {
			chargeID := *params.ProviderChargeID
			payment.ProviderChargeID = &chargeID
		}
		payment.UpdatedAt = params.Now
	}
	return nil
}

func (s *controllerStore) FindIdempotencyRecord(_ context.Context, merchantID, idempotencyKey string) (*entity.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[merchantID+"|"+idempotencyKey]
	if !ok {
		return nil, nil
	}
	recordCopy := *record
	return &recordCopy, nil
}

func (s *controllerStore) FindPayment(_ context.Context, paymentID string) (*entity.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, nil
	}
	paymentCopy := *payment
	return &paymentCopy, nil
}

func (s *controllerStore) ListStaleInProgress(_ context.Context, _ time.Time, _ int32) ([]*entity.IdempotencyRecord, error) {
	return []*entity.IdempotencyRecord{}, nil
}

type controllerGateway struct {
	result *provider.ChargeResult
}

func (g *controllerGateway) Charge(_ context.Context, _ *provider.ChargeInput) (*provider.ChargeResult, error) {
	return g.result, nil
}

func (g *controllerGateway) ChargeStatus(_ context.Context, _ string) (*provider.ChargeResult, error) {
	return &provider.ChargeResult{Outcome: provider.OutcomeUnknown}, nil
}

type controllerEventRepo struct{}

func (r *controllerEventRepo) Create(_ context.Context, _ *entity.PaymentEvent) error {
	return nil
}

func newTestController(store *controllerStore, gateway *controllerGateway) *ChargeController {
	svc := service.NewChargeService(store, &controllerEventRepo{}, gateway, config.ChargesConfig{
		ProviderTimeout:     time.Second,
		ReconcileStaleAfter: 15 * time.Minute,
		JobBatchSize:        100,
	})
	return NewChargeController(svc)
}

func performCharge(t *testing.T, ctrl *ChargeController, merchantID, idempotencyKey, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/charge", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if merchantID != "" {
		req.Header.Set(types.HeaderMerchantID, merchantID)
	}
	if idempotencyKey != "" {
		req.Header.Set(types.HeaderIdempotencyKey, idempotencyKey)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := ctrl.CreateCharge(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

const validChargeBody = `{"customerId":"c-1","amountCents":100,"currency":"eur","paymentMethodId":"pm-1"}`

func TestCreateChargeMissingIdentifiers(t *testing.T) {
	ctrl := newTestController(newControllerStore(), &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded}})

	rec := performCharge(t, ctrl, "", "k-1", validChargeBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = performCharge(t, ctrl, "m-1", "", validChargeBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateChargeInvalidBody(t *testing.T) {
	ctrl := newTestController(newControllerStore(), &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded}})

	rec := performCharge(t, ctrl, "m-1", "k-1", `{"customerId":"c-1","amountCents":0,"currency":"eur","paymentMethodId":"pm-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateChargeSuccess(t *testing.T) {
	ctrl := newTestController(newControllerStore(), &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded, ProviderChargeID: "ch_1"}})

	rec := performCharge(t, ctrl, "m-1", "k-1", validChargeBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body types.ChargeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Status != entity.PaymentStatusSucceeded || body.PaymentID == "" || body.ProviderChargeID != "ch_1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestCreateChargeReplaysDuplicate(t *testing.T) {
	store := newControllerStore()
	ctrl := newTestController(store, &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded, ProviderChargeID: "ch_1"}})

	first := performCharge(t, ctrl, "m-1", "k-1", validChargeBody)
	second := performCharge(t, ctrl, "m-1", "k-1", validChargeBody)

	if second.Code != first.Code {
		t.Fatalf("expected replayed status %d, got %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

func TestCreateChargeConflictOnPayloadChange(t *testing.T) {
	store := newControllerStore()
	ctrl := newTestController(store, &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded, ProviderChargeID: "ch_1"}})

	performCharge(t, ctrl, "m-1", "k-1", validChargeBody)
	rec := performCharge(t, ctrl, "m-1", "k-1", `{"customerId":"c-1","amountCents":200,"currency":"eur","paymentMethodId":"pm-1"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var body types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Error != "Idempotency-Key reuse with different payload" {
		t.Fatalf("unexpected conflict message: %q", body.Error)
	}
}

func TestCreateChargeAmbiguousReturnsAccepted(t *testing.T) {
	ctrl := newTestController(newControllerStore(), &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeUnknown, Reason: "timeout"}})

	rec := performCharge(t, ctrl, "m-1", "k-1", validChargeBody)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var body types.ChargeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Status != entity.IdempotencyStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", body.Status)
	}
}

func TestGetPayment(t *testing.T) {
	store := newControllerStore()
	ctrl := newTestController(store, &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded, ProviderChargeID: "ch_1"}})

	created := performCharge(t, ctrl, "m-1", "k-1", validChargeBody)
	var charge types.ChargeResponse
	if err := json.Unmarshal(created.Body.Bytes(), &charge); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/"+charge.PaymentID, nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues(charge.PaymentID)

	if err := ctrl.GetPayment(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body types.PaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.PaymentID != charge.PaymentID || body.Status != entity.PaymentStatusSucceeded {
		t.Fatalf("unexpected payment body: %+v", body)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	ctrl := newTestController(newControllerStore(), &controllerGateway{result: &provider.ChargeResult{Outcome: provider.OutcomeSucceeded}})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/missing", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	if err := ctrl.GetPayment(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	ctrl := newTestController(newControllerStore(), &controllerGateway{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := ctrl.Health(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
