// Package swiftqr adapts the regional QR wallet processor. Customers scan a
// code and confirm in their banking app, so most charges come back
// pending and are finalized by webhook.
package swiftqr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
)

const (
	Name            = "swiftqr"
	SignatureHeader = "X-Swiftqr-Signature"
	RequestIDHeader = "X-Request-Id"
)

type Adapter struct {
	baseURL       string
	apiKey        string
	webhookSecret []byte
	httpClient    *http.Client
}

func New(baseURL, apiKey, webhookSecret string) *Adapter {
	return &Adapter{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: []byte(webhookSecret),
		httpClient:    &http.Client{Timeout: 20 * time.Second},
	}
}

func (a *Adapter) Name() string { return Name }

type chargeResponse struct {
	ChargeID string `json:"charge_id"`
	State    string `json:"state"` // paid|pending|rejected
	Reason   string `json:"reason"`
}

func (a *Adapter) Charge(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResponse, error) {
	payload := map[string]any{
		"amount":       req.AmountCents,
		"currency":     req.Currency,
		"qr_token":     req.PaymentMethodID,
		"merchant_ref": req.TransactionID,
	}

	raw, err := a.post(ctx, "/qr/charges", payload, req.IdempotencyKey)
	if err != nil {
		return payments.ChargeResponse{}, err
	}

	var cr chargeResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return payments.ChargeResponse{}, fmt.Errorf("swiftqr charge decode: %w", err)
	}

	resp := payments.ChargeResponse{ProviderTxnID: cr.ChargeID, Raw: raw}
	switch cr.State {
	case "paid":
		resp.Status = payments.ChargeStatusSucceeded
	case "pending":
		// Customer has not confirmed in-app yet; webhook finalizes.
		resp.Status = payments.ChargeStatusRequiresAction
	default:
		resp.Status = payments.ChargeStatusFailed
		resp.FailureReason = cr.Reason
	}
	return resp, nil
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
	State    string `json:"state"` // refunded|processing|rejected
	Reason   string `json:"reason"`
}

func (a *Adapter) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResponse, error) {
	payload := map[string]any{
		"charge_id": req.ProviderTxnID,
		"amount":    req.AmountCents,
		"reason":    req.Reason,
	}

	raw, err := a.post(ctx, "/qr/refunds", payload, req.IdempotencyKey)
	if err != nil {
		return payments.RefundResponse{}, err
	}

	var rr refundResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return payments.RefundResponse{}, fmt.Errorf("swiftqr refund decode: %w", err)
	}

	resp := payments.RefundResponse{ProviderRefundID: rr.RefundID, Raw: raw}
	switch rr.State {
	case "refunded":
		resp.Status = payments.RefundStatusSucceeded
	case "processing":
		resp.Status = payments.RefundStatusProcessing
	default:
		resp.Status = payments.RefundStatusFailed
		resp.FailureReason = rr.Reason
	}
	return resp, nil
}

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
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swiftqr request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("swiftqr response read: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("swiftqr server error: status %d", resp.StatusCode)
	}
	return raw, nil
}

type webhookEnvelope struct {
	NotificationID string `json:"notification_id"`
	Kind           string `json:"kind"` // payment.completed|payment.rejected|refund.completed
	ChargeID       string `json:"charge_id"`
	RefundID       string `json:"refund_id"`
	Amount         int    `json:"amount"`
	Currency       string `json:"currency"`
	Reason         string `json:"reason"`
}

// VerifyAndParseWebhook checks the `ts=<ts>,v1=<hex>` header (the gateway
// emits the pairs in either order) against an HMAC-SHA256 over
// "id=<reqID>;request-id=<reqID>;ts=<ts>;<body>".
func (a *Adapter) VerifyAndParseWebhook(headers http.Header, body []byte) (payments.WebhookEvent, error) {
	header := headers.Get(SignatureHeader)
	if header == "" {
		return payments.WebhookEvent{}, payments.ErrMissingSignature
	}
	requestID := headers.Get(RequestIDHeader)
	if requestID == "" {
		return payments.WebhookEvent{}, fmt.Errorf("%w: missing request id", payments.ErrSignatureInvalid)
	}

	ts, sig := parseSignatureHeader(header)
	if ts == "" || sig == "" {
		return payments.WebhookEvent{}, fmt.Errorf("%w: malformed header", payments.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, a.webhookSecret)
	fmt.Fprintf(mac, "id=%s;request-id=%s;ts=%s;", requestID, requestID, ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return payments.WebhookEvent{}, payments.ErrSignatureInvalid
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("parse webhook: %w", err)
	}

	ev := payments.WebhookEvent{
		EventID:       env.NotificationID,
		Type:          env.Kind,
		ProviderTxnID: env.ChargeID,
		AmountCents:   env.Amount,
		Currency:      env.Currency,
	}
	switch env.Kind {
	case "payment.completed":
		ev.Type = payments.EventPaymentSucceeded
	case "payment.rejected":
		ev.Type = payments.EventPaymentFailed
		ev.FailureReason = env.Reason
	case "refund.completed":
		ev.Type = payments.EventRefundCompleted
		ev.ProviderRefundID = env.RefundID
	}
	return ev, nil
}

// parseSignatureHeader accepts "ts=...,v1=..." with the keys in either order.
func parseSignatureHeader(header string) (ts, sig string) {
	for _, part := range bytes.Split([]byte(header), []byte(",")) {
		k, v, ok := bytes.Cut(bytes.TrimSpace(part), []byte("="))
		if !ok {
			continue
		}
		switch string(k) {
		case "ts":
			ts = string(v)
		case "v1":
			sig = string(v)
		}
	}
	return ts, sig
}
