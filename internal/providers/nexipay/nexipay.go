// Package nexipay adapts the nexipay card processor. Its webhook scheme has
// no timestamp component, so replay protection relies entirely on the
// dispatcher's processed-event ledger.
package nexipay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
)

const (
	Name            = "nexipay"
	SignatureHeader = "X-Nexipay-Signature"
)

type Adapter struct {
	baseURL         string
	apiKey          string
	webhookSecret   []byte
	notificationURL string
	httpClient      *http.Client
}

func New(baseURL, apiKey, webhookSecret, notificationURL string) *Adapter {
	return &Adapter{
		baseURL:         baseURL,
		apiKey:          apiKey,
		webhookSecret:   []byte(webhookSecret),
		notificationURL: notificationURL,
		httpClient:      &http.Client{Timeout: 20 * time.Second},
	}
}

func (a *Adapter) Name() string { return Name }

type chargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // approved|pending_3ds|declined
	DeclineReason string `json:"decline_reason"`
}

func (a *Adapter) Charge(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResponse, error) {
	payload := map[string]any{
		"amount":    req.AmountCents,
		"currency":  req.Currency,
		"source":    req.PaymentMethodID,
		"reference": req.TransactionID,
		"metadata":  req.Metadata,
	}

	raw, err := a.post(ctx, "/v1/charges", payload, req.IdempotencyKey)
	if err != nil {
		return payments.ChargeResponse{}, err
	}

	var cr chargeResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return payments.ChargeResponse{}, fmt.Errorf("nexipay charge decode: %w", err)
	}

	resp := payments.ChargeResponse{ProviderTxnID: cr.ID, Raw: raw}
	switch cr.Status {
	case "approved":
		resp.Status = payments.ChargeStatusSucceeded
	case "pending_3ds":
		resp.Status = payments.ChargeStatusRequiresAction
	default:
		resp.Status = payments.ChargeStatusFailed
		resp.FailureReason = cr.DeclineReason
		if resp.FailureReason == "" {
			resp.FailureReason = "charge " + cr.Status
		}
	}
	return resp, nil
}

type refundResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // refunded|pending|failed
	FailureReason string `json:"failure_reason"`
}

func (a *Adapter) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResponse, error) {
	payload := map[string]any{
		"amount": req.AmountCents,
		"reason": req.Reason,
	}

	raw, err := a.post(ctx, "/v1/charges/"+req.ProviderTxnID+"/refunds", payload, req.IdempotencyKey)
	if err != nil {
		return payments.RefundResponse{}, err
	}

	var rr refundResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return payments.RefundResponse{}, fmt.Errorf("nexipay refund decode: %w", err)
	}

	resp := payments.RefundResponse{ProviderRefundID: rr.ID, Raw: raw}
	switch rr.Status {
	case "refunded":
		resp.Status = payments.RefundStatusSucceeded
	case "pending":
		resp.Status = payments.RefundStatusProcessing
	default:
		resp.Status = payments.RefundStatusFailed
		resp.FailureReason = rr.FailureReason
	}
	return resp, nil
}

// post sends a JSON request. 5xx answers come back as errors (retryable);
// anything else is a definitive provider answer and is decoded by the caller.
func (a *Adapter) post(ctx context.Context, path string, payload any, idempotencyKey string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nexipay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("nexipay response read: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("nexipay server error: status %d", resp.StatusCode)
	}
	return raw, nil
}

type webhookEnvelope struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"` // charge.succeeded|charge.failed|refund.completed
	Data      struct {
		ChargeID      string `json:"charge_id"`
		RefundID      string `json:"refund_id"`
		Amount        int    `json:"amount"`
		Currency      string `json:"currency"`
		DeclineReason string `json:"decline_reason"`
	} `json:"data"`
}

// VerifyAndParseWebhook checks the single signature header: base64 of an
// HMAC-SHA256 over the configured notification URL concatenated with the raw
// body.
func (a *Adapter) VerifyAndParseWebhook(headers http.Header, body []byte) (payments.WebhookEvent, error) {
	sig := headers.Get(SignatureHeader)
	if sig == "" {
		return payments.WebhookEvent{}, payments.ErrMissingSignature
	}

	mac := hmac.New(sha256.New, a.webhookSecret)
	mac.Write([]byte(a.notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return payments.WebhookEvent{}, payments.ErrSignatureInvalid
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("parse webhook: %w", err)
	}

	ev := payments.WebhookEvent{
		EventID:       env.EventID,
		Type:          env.EventType,
		ProviderTxnID: env.Data.ChargeID,
		AmountCents:   env.Data.Amount,
		Currency:      env.Data.Currency,
	}
	switch env.EventType {
	case "charge.succeeded":
		ev.Type = payments.EventPaymentSucceeded
	case "charge.failed":
		ev.Type = payments.EventPaymentFailed
		ev.FailureReason = env.Data.DeclineReason
	case "refund.completed":
		ev.Type = payments.EventRefundCompleted
		ev.ProviderRefundID = env.Data.RefundID
	}
	return ev, nil
}
