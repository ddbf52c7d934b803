package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/http/middleware"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
)

type stubProvider struct {
	name     string
	verifyFn func(headers http.Header, body []byte) (payments.WebhookEvent, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Charge(context.Context, payments.ChargeRequest) (payments.ChargeResponse, error) {
	return payments.ChargeResponse{}, nil
}

func (s *stubProvider) Refund(context.Context, payments.RefundRequest) (payments.RefundResponse, error) {
	return payments.RefundResponse{}, nil
}

func (s *stubProvider) VerifyAndParseWebhook(headers http.Header, body []byte) (payments.WebhookEvent, error) {
	return s.verifyFn(headers, body)
}

func newWebhookRouter(t *testing.T, provider payments.Provider) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&payments.PaymentTransaction{}, &payments.Refund{}, &payments.ProviderEvent{}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWebhooksHandler(payments.NewRegistry(provider), payments.NewWebhookService(db, nil))

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger))
	r.POST("/webhooks/:provider", h.Receive)
	return r, db
}

func postWebhook(r *gin.Engine, provider, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveUnknownProvider(t *testing.T) {
	provider := &stubProvider{name: "nexipay"}
	r, _ := newWebhookRouter(t, provider)

	w := postWebhook(r, "unregistered", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReceiveMissingSignature(t *testing.T) {
	provider := &stubProvider{
		name: "nexipay",
		verifyFn: func(http.Header, []byte) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{}, payments.ErrMissingSignature
		},
	}
	r, _ := newWebhookRouter(t, provider)

	w := postWebhook(r, "nexipay", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveInvalidSignature(t *testing.T) {
	provider := &stubProvider{
		name: "nexipay",
		verifyFn: func(http.Header, []byte) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{}, payments.ErrSignatureInvalid
		},
	}
	r, db := newWebhookRouter(t, provider)

	w := postWebhook(r, "nexipay", `{"event_id":"evt_1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A rejected delivery leaves no trace in the event ledger.
	var count int64
	require.NoError(t, db.Model(&payments.ProviderEvent{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestReceiveVerifiedEvent(t *testing.T) {
	provider := &stubProvider{
		name: "nexipay",
		verifyFn: func(_ http.Header, body []byte) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{EventID: "evt_1", Type: "customer.updated"}, nil
		},
	}
	r, db := newWebhookRouter(t, provider)

	w := postWebhook(r, "nexipay", `{"event_id":"evt_1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var pe payments.ProviderEvent
	require.NoError(t, db.First(&pe, "event_id = ?", "evt_1").Error)
	assert.Equal(t, "nexipay", pe.Provider)
}

func TestReceiveEventWithoutID(t *testing.T) {
	provider := &stubProvider{
		name: "nexipay",
		verifyFn: func(http.Header, []byte) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{Type: "customer.updated"}, nil
		},
	}
	r, _ := newWebhookRouter(t, provider)

	w := postWebhook(r, "nexipay", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
