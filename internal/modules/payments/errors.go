package payments

import "errors"

var (
	ErrValidation      = errors.New("invalid payment request")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNotFound        = errors.New("transaction not found")
	ErrRefundNotFound  = errors.New("refund not found")
	ErrInvalidState    = errors.New("transaction is not refundable in its current state")
	ErrAmountExceeded  = errors.New("refund exceeds remaining refundable amount")

	// Webhook verification sentinels, shared by all provider adapters so the
	// HTTP layer can map them to 400 vs 403 uniformly.
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrSignatureInvalid = errors.New("invalid webhook signature")
)
