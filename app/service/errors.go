package service

import "errors"

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrKeyReuseMismatch = errors.New("idempotency key reused with a different payload")
)
