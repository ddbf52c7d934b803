package payments

import (
	"context"
	"net/http"
)

const (
	ChargeStatusSucceeded      = "succeeded"
	ChargeStatusRequiresAction = "requires_action"
	ChargeStatusFailed         = "failed"
)

type ChargeRequest struct {
	TransactionID   string
	AmountCents     int
	Currency        string
	PaymentMethodID string // provider-side token; raw card data never reaches this service
	IdempotencyKey  string // forwarded so network-level retries to the provider are idempotent too
	Metadata        map[string]string
}

// ChargeResponse is a definitive provider answer. A decline comes back as a
// normal response with ChargeStatusFailed; only transport-level failures
// (timeout, 5xx) are returned as errors, and only those are retried.
type ChargeResponse struct {
	ProviderTxnID string
	Status        string // succeeded|requires_action|failed
	FailureReason string
	Raw           []byte // provider payload snapshot for audit
}

type RefundRequest struct {
	ProviderTxnID  string
	RefundID       string
	AmountCents    int
	Currency       string
	Reason         string
	IdempotencyKey string
}

type RefundResponse struct {
	ProviderRefundID string
	Status           string // succeeded|processing|failed (processing = provider refunds async)
	FailureReason    string
	Raw              []byte
}

// WebhookEvent is the provider-neutral shape a verified callback is parsed
// into. Event types the dispatcher understands: payment.succeeded,
// payment.failed, payment.refund_completed. Anything else is logged and
// acknowledged without mutation.
type WebhookEvent struct {
	EventID          string
	Type             string
	ProviderTxnID    string
	ProviderRefundID string
	AmountCents      int
	Currency         string
	FailureReason    string
}

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventRefundCompleted  = "payment.refund_completed"
)

// Provider is the capability interface one external processor implements.
// Adapters are constructed at startup with their own credentials and injected
// through the Registry; there is no package-level client state.
type Provider interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResponse, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResponse, error)

	// VerifyAndParseWebhook authenticates the raw callback before anything is
	// trusted. Returns ErrMissingSignature / ErrSignatureInvalid (possibly
	// wrapped) on rejection.
	VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error)
}
