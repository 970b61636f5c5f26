package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-charges/app/entity"
)

// Store owns the transaction boundaries of the charge flow. Reads run against
// the pool directly; the two multi-write steps (opening an attempt, finalizing
// an outcome) each run inside a single transaction so the idempotency record
// and the payment ledger can never disagree after a crash.
type Store struct {
	db          *sql.DB
	idempotency *IdempotencyRepository
	payments    *PaymentRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		idempotency: NewIdempotencyRepository(db),
		payments:    NewPaymentRepository(db),
	}
}

type FinalizeAttemptParams struct {
	MerchantID     string
	IdempotencyKey string
	PaymentID      string

	// Status applies to both the payment and the idempotency record;
	// the two state machines share their terminal vocabulary.
	Status string

	ProviderChargeID *string
	ResponseCode     int32
	ResponseBody     string
	Now              time.Time
}

// BeginAttempt inserts the idempotency record, the PENDING payment and the
// link between them as one atomic unit. Committing before any provider I/O is
// what lets a concurrent duplicate observe IN_PROGRESS instead of racing the
// external call. A losing racer gets ErrIdempotencyKeyExists with nothing
// written.
func (s *Store) BeginAttempt(ctx context.Context, record *entity.IdempotencyRecord, payment *entity.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	idempotency := NewIdempotencyRepository(tx)
	payments := NewPaymentRepository(tx)

	if err := idempotency.Create(ctx, record); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := payments.Create(ctx, payment); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := idempotency.LinkPayment(ctx, record.MerchantID, record.IdempotencyKey, payment.PaymentID, payment.CreatedAt); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	paymentID := payment.PaymentID
	record.PaymentID = &paymentID
	return nil
}

// FinalizeAttempt persists a definite outcome into both stores atomically.
// The idempotency record's status guard runs first and is authoritative: if it
// reports that the record already left IN_PROGRESS, nothing is written.
func (s *Store) FinalizeAttempt(ctx context.Context, params *FinalizeAttemptParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	idempotency := NewIdempotencyRepository(tx)
	payments := NewPaymentRepository(tx)

	if err := idempotency.Finalize(ctx,
		params.MerchantID, params.IdempotencyKey,
		params.Status, params.ResponseCode, params.ResponseBody, params.Now,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := payments.Finalize(ctx, params.PaymentID, params.Status, params.ProviderChargeID, params.Now); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *Store) FindIdempotencyRecord(ctx context.Context, merchantID, idempotencyKey string) (*entity.IdempotencyRecord, error) {
	return s.idempotency.FindByKey(ctx, merchantID, idempotencyKey)
}

func (s *Store) FindPayment(ctx context.Context, paymentID string) (*entity.Payment, error) {
	return s.payments.FindByID(ctx, paymentID)
}

func (s *Store) ListStaleInProgress(ctx context.Context, before time.Time, limit int32) ([]*entity.IdempotencyRecord, error) {
	return s.idempotency.ListStaleInProgress(ctx, before, limit)
}
