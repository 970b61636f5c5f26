package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-charges/app/entity"
)

var (
	ErrIdempotencyKeyExists   = errors.New("idempotency key already exists")
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	ErrPaymentLinkMismatch    = errors.New("idempotency record already linked to a different payment")
	ErrAlreadyFinalized       = errors.New("idempotency record already finalized with this status")
	ErrTerminalConflict       = errors.New("idempotency record finalized with a different terminal status")
)

type IdempotencyRepository struct {
	db DBTX
}

func NewIdempotencyRepository(db DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Create is the insert-if-absent half of deduplication. The primary key on
// (merchant_id, idempotency_key) decides the race: exactly one concurrent
// caller wins, every other one gets ErrIdempotencyKeyExists.
func (r *IdempotencyRepository) Create(ctx context.Context, record *entity.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_keys (
			merchant_id, idempotency_key, request_hash, status,
			payment_id, response_code, response_body,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.MerchantID,
		record.IdempotencyKey,
		record.RequestHash,
		record.Status,
		nullableStringValue(record.PaymentID),
		nullableInt32Value(record.ResponseCode),
		nullableStringValue(record.ResponseBody),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrIdempotencyKeyExists
		}
		return err
	}

	return nil
}

func (r *IdempotencyRepository) FindByKey(ctx context.Context, merchantID, idempotencyKey string) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT merchant_id, idempotency_key, request_hash, status,
			payment_id, response_code, response_body,
			created_at, updated_at
		FROM idempotency_keys
		WHERE merchant_id = ? AND idempotency_key = ?
	`

	record := &entity.IdempotencyRecord{}
	if err := scanIdempotencyRecord(r.db.QueryRowContext(ctx, query, merchantID, idempotencyKey), record); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return record, nil
}

// LinkPayment sets the payment reference exactly once. Relinking to the same
// payment id is a no-op; relinking to a different one is refused.
func (r *IdempotencyRepository) LinkPayment(ctx context.Context, merchantID, idempotencyKey, paymentID string, now time.Time) error {
	query := `
		UPDATE idempotency_keys
		SET payment_id = ?, updated_at = ?
		WHERE merchant_id = ? AND idempotency_key = ?
		  AND (payment_id IS NULL OR payment_id = ?)
	`

	result, err := r.db.ExecContext(ctx, query, paymentID, now, merchantID, idempotencyKey, paymentID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := r.FindByKey(ctx, merchantID, idempotencyKey)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrIdempotencyKeyNotFound
		}
		if existing.PaymentID != nil && *existing.PaymentID == paymentID {
			return nil
		}
		return ErrPaymentLinkMismatch
	}

	return nil
}

// Finalize moves the record out of IN_PROGRESS. The status guard in the WHERE
// clause is what keeps terminal states terminal: a record that already reached
// the requested status reports ErrAlreadyFinalized, and a record that reached
// the other terminal status reports ErrTerminalConflict.
func (r *IdempotencyRepository) Finalize(ctx context.Context, merchantID, idempotencyKey, status string, responseCode int32, responseBody string, now time.Time) error {
	query := `
		UPDATE idempotency_keys
		SET status = ?, response_code = ?, response_body = ?, updated_at = ?
		WHERE merchant_id = ? AND idempotency_key = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		status, responseCode, responseBody, now,
		merchantID, idempotencyKey, entity.IdempotencyStatusInProgress,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := r.FindByKey(ctx, merchantID, idempotencyKey)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrIdempotencyKeyNotFound
		}
		if existing.Status == status {
			return ErrAlreadyFinalized
		}
		return ErrTerminalConflict
	}

	return nil
}

func (r *IdempotencyRepository) ListStaleInProgress(ctx context.Context, before time.Time, limit int32) ([]*entity.IdempotencyRecord, error) {
	query := `
		SELECT merchant_id, idempotency_key, request_hash, status,
			payment_id, response_code, response_body,
			created_at, updated_at
		FROM idempotency_keys
		WHERE status = ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.IdempotencyStatusInProgress, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*entity.IdempotencyRecord, 0)
	for rows.Next() {
		item := &entity.IdempotencyRecord{}
		if err := scanIdempotencyRecord(rows, item); err != nil {
			return nil, err
		}
		records = append(records, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func scanIdempotencyRecord(scan rowScanner, record *entity.IdempotencyRecord) error {
	var paymentID sql.NullString
	var responseCode sql.NullInt32
	var responseBody sql.NullString

	err := scan.Scan(
		&record.MerchantID,
		&record.IdempotencyKey,
		&record.RequestHash,
		&record.Status,
		&paymentID,
		&responseCode,
		&responseBody,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	record.PaymentID = stringPtrFromNull(paymentID)
	record.ResponseCode = int32PtrFromNull(responseCode)
	record.ResponseBody = stringPtrFromNull(responseBody)

	return nil
}
