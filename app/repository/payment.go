package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-charges/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			payment_id, merchant_id, customer_id,
			amount_cents, currency, payment_method_id,
			status, provider_charge_id,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.PaymentID,
		payment.MerchantID,
		payment.CustomerID,
		payment.AmountCents,
		payment.Currency,
		payment.PaymentMethodID,
		payment.Status,
		nullableStringValue(payment.ProviderChargeID),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (*entity.Payment, error) {
	query := `
		SELECT payment_id, merchant_id, customer_id,
			amount_cents, currency, payment_method_id,
			status, provider_charge_id,
			created_at, updated_at
		FROM payments
		WHERE payment_id = ?
	`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

// Finalize moves a payment from PENDING to a terminal status. A payment that
// already carries the requested status is left untouched; PENDING never comes
// back once a terminal status is written.
func (r *PaymentRepository) Finalize(ctx context.Context, paymentID, status string, providerChargeID *string, now time.Time) error {
	query := `
		UPDATE payments
		SET status = ?,
			provider_charge_id = COALESCE(?, provider_charge_id),
			updated_at = ?
		WHERE payment_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		status, nullableStringValue(providerChargeID), now,
		paymentID, entity.PaymentStatusPending,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := r.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrPaymentNotFound
		}
		if existing.Status == status {
			return nil
		}
		return ErrTerminalConflict
	}

	return nil
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var providerChargeID sql.NullString

	err := scan.Scan(
		&payment.PaymentID,
		&payment.MerchantID,
		&payment.CustomerID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.PaymentMethodID,
		&payment.Status,
		&providerChargeID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.ProviderChargeID = stringPtrFromNull(providerChargeID)

	return nil
}
