// Package stripe adapts the Stripe card processor to the payment core's
// Provider interface. One instance per configured account; the SDK client is
// injected, never package-global.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
)

const (
	Name            = "stripe"
	SignatureHeader = "Stripe-Signature"

	defaultTolerance = 5 * time.Minute
)

type Adapter struct {
	api           *client.API
	webhookSecret []byte
	tolerance     time.Duration
	now           func() time.Time
}

func New(apiKey, webhookSecret string) *Adapter {
	api := &client.API{}
	api.Init(apiKey, nil)

	return &Adapter{
		api:           api,
		webhookSecret: []byte(webhookSecret),
		tolerance:     defaultTolerance,
		now:           time.Now,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Charge(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResponse, error) {
	params := &stripelib.PaymentIntentParams{
		Params: stripelib.Params{
			Context:        ctx,
			IdempotencyKey: stripelib.String(req.IdempotencyKey),
		},
		Amount:        stripelib.Int64(int64(req.AmountCents)),
		Currency:      stripelib.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripelib.String(req.PaymentMethodID),
		Confirm:       stripelib.Bool(true),
		AutomaticPaymentMethods: &stripelib.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripelib.Bool(true),
			AllowRedirects: stripelib.String("never"),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("transaction_id", req.TransactionID)

	intent, err := a.api.PaymentIntents.New(params)
	if err != nil {
		if resp, ok := declineResponse(err); ok {
			return resp, nil
		}
		return payments.ChargeResponse{}, fmt.Errorf("stripe charge: %w", err)
	}

	resp := payments.ChargeResponse{
		ProviderTxnID: intent.ID,
		Raw:           rawJSON(intent.LastResponse),
	}
	switch intent.Status {
	case stripelib.PaymentIntentStatusSucceeded:
		resp.Status = payments.ChargeStatusSucceeded
	case stripelib.PaymentIntentStatusRequiresAction,
		stripelib.PaymentIntentStatusProcessing:
		resp.Status = payments.ChargeStatusRequiresAction
	default:
		resp.Status = payments.ChargeStatusFailed
		if intent.LastPaymentError != nil {
			resp.FailureReason = intent.LastPaymentError.Msg
		} else {
			resp.FailureReason = "payment intent status " + string(intent.Status)
		}
	}
	return resp, nil
}

func (a *Adapter) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResponse, error) {
	params := &stripelib.RefundParams{
		Params: stripelib.Params{
			Context:        ctx,
			IdempotencyKey: stripelib.String(req.IdempotencyKey),
		},
		PaymentIntent: stripelib.String(req.ProviderTxnID),
		Amount:        stripelib.Int64(int64(req.AmountCents)),
	}

	ref, err := a.api.Refunds.New(params)
	if err != nil {
		if resp, ok := refundDeclineResponse(err); ok {
			return resp, nil
		}
		return payments.RefundResponse{}, fmt.Errorf("stripe refund: %w", err)
	}

	resp := payments.RefundResponse{
		ProviderRefundID: ref.ID,
		Raw:              rawJSON(ref.LastResponse),
	}
	switch ref.Status {
	case stripelib.RefundStatusSucceeded:
		resp.Status = payments.RefundStatusSucceeded
	case stripelib.RefundStatusPending:
		resp.Status = payments.RefundStatusProcessing
	default:
		resp.Status = payments.RefundStatusFailed
		resp.FailureReason = "refund status " + string(ref.Status)
	}
	return resp, nil
}

// declineResponse turns a definitive card decline into a normal failed
// response so the orchestrator does not retry it.
func declineResponse(err error) (payments.ChargeResponse, bool) {
	var se *stripelib.Error
	if !errors.As(err, &se) {
		return payments.ChargeResponse{}, false
	}
	if se.Type != stripelib.ErrorTypeCard && se.Type != stripelib.ErrorTypeInvalidRequest {
		return payments.ChargeResponse{}, false
	}

	resp := payments.ChargeResponse{
		Status:        payments.ChargeStatusFailed,
		FailureReason: se.Msg,
	}
	if se.PaymentIntent != nil {
		resp.ProviderTxnID = se.PaymentIntent.ID
	}
	return resp, true
}

func refundDeclineResponse(err error) (payments.RefundResponse, bool) {
	var se *stripelib.Error
	if !errors.As(err, &se) {
		return payments.RefundResponse{}, false
	}
	if se.Type != stripelib.ErrorTypeCard && se.Type != stripelib.ErrorTypeInvalidRequest {
		return payments.RefundResponse{}, false
	}
	return payments.RefundResponse{
		Status:        payments.RefundStatusFailed,
		FailureReason: se.Msg,
	}, true
}

func rawJSON(r *stripelib.APIResponse) []byte {
	if r == nil {
		return nil
	}
	return r.RawJSON
}

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// VerifyAndParseWebhook checks the `t=<ts>,v1=<hex>` signature header: an
// HMAC-SHA256 over "<ts>.<body>" with the endpoint secret, within the
// timestamp tolerance window.
func (a *Adapter) VerifyAndParseWebhook(headers http.Header, body []byte) (payments.WebhookEvent, error) {
	header := headers.Get(SignatureHeader)
	if header == "" {
		return payments.WebhookEvent{}, payments.ErrMissingSignature
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return payments.WebhookEvent{}, fmt.Errorf("%w: malformed header", payments.ErrSignatureInvalid)
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: bad timestamp", payments.ErrSignatureInvalid)
	}
	if age := a.now().Sub(time.Unix(tsInt, 0)); age > a.tolerance || age < -a.tolerance {
		return payments.WebhookEvent{}, fmt.Errorf("%w: timestamp outside tolerance", payments.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, a.webhookSecret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return payments.WebhookEvent{}, payments.ErrSignatureInvalid
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("parse webhook: %w", err)
	}

	ev := payments.WebhookEvent{EventID: env.ID, Type: env.Type}

	switch env.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi struct {
			ID               string `json:"id"`
			Amount           int    `json:"amount"`
			Currency         string `json:"currency"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		}
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil {
			return payments.WebhookEvent{}, fmt.Errorf("parse payment intent: %w", err)
		}
		ev.ProviderTxnID = pi.ID
		ev.AmountCents = pi.Amount
		ev.Currency = strings.ToUpper(pi.Currency)
		if env.Type == "payment_intent.succeeded" {
			ev.Type = payments.EventPaymentSucceeded
		} else {
			ev.Type = payments.EventPaymentFailed
			if pi.LastPaymentError != nil {
				ev.FailureReason = pi.LastPaymentError.Message
			}
		}
	case "charge.refund.updated", "refund.updated":
		var re struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			Status        string `json:"status"`
			Amount        int    `json:"amount"`
			Currency      string `json:"currency"`
		}
		if err := json.Unmarshal(env.Data.Object, &re); err != nil {
			return payments.WebhookEvent{}, fmt.Errorf("parse refund: %w", err)
		}
		if re.Status == "succeeded" {
			ev.Type = payments.EventRefundCompleted
			ev.ProviderRefundID = re.ID
			ev.ProviderTxnID = re.PaymentIntent
			ev.AmountCents = re.Amount
			ev.Currency = strings.ToUpper(re.Currency)
		}
	}
	return ev, nil
}
