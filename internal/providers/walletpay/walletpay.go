// Package walletpay adapts the walletpay wallet processor.
//
// Webhook authenticity: walletpay signs deliveries with a transmission
// signature verifiable against a provider-hosted certificate. This adapter
// only checks that the transmission headers are present and that the
// delivery's webhook id matches the one configured for this endpoint, a
// reduced security posture. Full certificate-chain verification of the
// transmission signature is a known gap.
package walletpay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
)

const (
	Name = "walletpay"

	TransmissionIDHeader  = "Walletpay-Transmission-Id"
	TransmissionSigHeader = "Walletpay-Transmission-Sig"
	CertURLHeader         = "Walletpay-Cert-Url"
	WebhookIDHeader       = "Walletpay-Webhook-Id"
)

type Adapter struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(baseURL, clientID, clientSecret, webhookID string) *Adapter {
	return &Adapter{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (a *Adapter) Name() string { return Name }

type chargeResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // COMPLETED|PAYER_ACTION_REQUIRED|DECLINED
	Details string `json:"details"`
}

func (a *Adapter) Charge(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResponse, error) {
	payload := map[string]any{
		"amount": map[string]any{
			"value":         req.AmountCents,
			"currency_code": req.Currency,
		},
		"wallet_token": req.PaymentMethodID,
		"reference_id": req.TransactionID,
	}

	raw, err := a.post(ctx, "/v1/wallet/charges", payload, req.IdempotencyKey)
	if err != nil {
		return payments.ChargeResponse{}, err
	}

	var cr chargeResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return payments.ChargeResponse{}, fmt.Errorf("walletpay charge decode: %w", err)
	}

	resp := payments.ChargeResponse{ProviderTxnID: cr.ID, Raw: raw}
	switch cr.Status {
	case "COMPLETED":
		resp.Status = payments.ChargeStatusSucceeded
	case "PAYER_ACTION_REQUIRED", "PENDING":
		resp.Status = payments.ChargeStatusRequiresAction
	default:
		resp.Status = payments.ChargeStatusFailed
		resp.FailureReason = cr.Details
		if resp.FailureReason == "" {
			resp.FailureReason = "charge " + strings.ToLower(cr.Status)
		}
	}
	return resp, nil
}

type refundResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // COMPLETED|PENDING|FAILED
	Details string `json:"details"`
}

func (a *Adapter) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResponse, error) {
	payload := map[string]any{
		"amount": map[string]any{
			"value":         req.AmountCents,
			"currency_code": req.Currency,
		},
		"note_to_payer": req.Reason,
	}

	raw, err := a.post(ctx, "/v1/wallet/charges/"+req.ProviderTxnID+"/refund", payload, req.IdempotencyKey)
	if err != nil {
		return payments.RefundResponse{}, err
	}

	var rr refundResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return payments.RefundResponse{}, fmt.Errorf("walletpay refund decode: %w", err)
	}

	resp := payments.RefundResponse{ProviderRefundID: rr.ID, Raw: raw}
	switch rr.Status {
	case "COMPLETED":
		resp.Status = payments.RefundStatusSucceeded
	case "PENDING":
		resp.Status = payments.RefundStatusProcessing
	default:
		resp.Status = payments.RefundStatusFailed
		resp.FailureReason = rr.Details
	}
	return resp, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload any, idempotencyKey string) ([]byte, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Walletpay-Request-Id", idempotencyKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("walletpay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("walletpay response read: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("walletpay server error: status %d", resp.StatusCode)
	}
	return raw, nil
}

// token fetches (and caches) a client-credentials access token.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+
		base64.StdEncoding.EncodeToString([]byte(a.clientID+":"+a.clientSecret)))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("walletpay token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("walletpay token: status %d", resp.StatusCode)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("walletpay token decode: %w", err)
	}

	a.accessToken = tr.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return a.accessToken, nil
}

type webhookEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"` // WALLET.PAYMENT.COMPLETED|WALLET.PAYMENT.DENIED|WALLET.REFUND.COMPLETED
	Resource  struct {
		ID          string `json:"id"`
		ChargeID    string `json:"charge_id"`
		StatusNote  string `json:"status_note"`
		Amount      struct {
			Value        int    `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

// VerifyAndParseWebhook performs the reduced check described in the package
// doc: transmission headers must be present and the webhook id must match.
func (a *Adapter) VerifyAndParseWebhook(headers http.Header, body []byte) (payments.WebhookEvent, error) {
	if headers.Get(TransmissionSigHeader) == "" {
		return payments.WebhookEvent{}, payments.ErrMissingSignature
	}
	if headers.Get(TransmissionIDHeader) == "" || headers.Get(CertURLHeader) == "" {
		return payments.WebhookEvent{}, fmt.Errorf("%w: incomplete transmission headers", payments.ErrSignatureInvalid)
	}
	if headers.Get(WebhookIDHeader) != a.webhookID {
		return payments.WebhookEvent{}, fmt.Errorf("%w: webhook id mismatch", payments.ErrSignatureInvalid)
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("parse webhook: %w", err)
	}

	ev := payments.WebhookEvent{
		EventID:     env.ID,
		Type:        env.EventType,
		AmountCents: env.Resource.Amount.Value,
		Currency:    env.Resource.Amount.CurrencyCode,
	}
	switch env.EventType {
	case "WALLET.PAYMENT.COMPLETED":
		ev.Type = payments.EventPaymentSucceeded
		ev.ProviderTxnID = env.Resource.ID
	case "WALLET.PAYMENT.DENIED":
		ev.Type = payments.EventPaymentFailed
		ev.ProviderTxnID = env.Resource.ID
		ev.FailureReason = env.Resource.StatusNote
	case "WALLET.REFUND.COMPLETED":
		ev.Type = payments.EventRefundCompleted
		ev.ProviderRefundID = env.Resource.ID
		ev.ProviderTxnID = env.Resource.ChargeID
	}
	return ev, nil
}
