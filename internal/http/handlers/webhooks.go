package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/http/middleware"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/shared/apperr"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type WebhooksHandler struct {
	registry *payments.Registry
	service  *payments.WebhookService
}

func NewWebhooksHandler(registry *payments.Registry, service *payments.WebhookService) *WebhooksHandler {
	return &WebhooksHandler{registry: registry, service: service}
}

// POST /webhooks/:provider
//
// Verification failures must not be retried by the sender, so they answer
// 4xx; only a processing error after a verified event answers 5xx.
func (h *WebhooksHandler) Receive(c *gin.Context) {
	adapter, err := h.registry.Get(c.Param("provider"))
	if err != nil {
		middleware.Fail(c, apperr.NotFoundErr("Unknown webhook provider."))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("Unreadable request body.", nil))
		return
	}

	ev, err := adapter.VerifyAndParseWebhook(c.Request.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrMissingSignature):
			middleware.Fail(c, apperr.InvalidErr("Missing webhook signature.", nil))
		case errors.Is(err, payments.ErrSignatureInvalid):
			middleware.Fail(c, apperr.ForbiddenErr("Invalid webhook signature."))
		default:
			middleware.Fail(c, apperr.InvalidErr("Malformed webhook payload.", nil))
		}
		return
	}

	if err := h.service.Handle(c.Request.Context(), adapter.Name(), ev, body); err != nil {
		if errors.Is(err, payments.ErrValidation) {
			middleware.Fail(c, apperr.InvalidErr(err.Error(), nil))
			return
		}
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
