package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/http/middleware"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/shared/apperr"
)

type PaymentsHandler struct {
	payments *payments.Service
	refunds  *payments.RefundService
}

func NewPaymentsHandler(p *payments.Service, r *payments.RefundService) *PaymentsHandler {
	return &PaymentsHandler{payments: p, refunds: r}
}

type processPaymentRequest struct {
	OrderID         *string           `json:"orderId"`
	SessionID       string            `json:"sessionId"`
	AmountCents     int               `json:"amountCents"`
	Currency        string            `json:"currency"`
	Method          string            `json:"method"`
	Provider        string            `json:"provider"`
	PaymentMethodID string            `json:"paymentMethodId"`
	IdempotencyKey  string            `json:"idempotencyKey"`
	Metadata        map[string]string `json:"metadata"`
}

// POST /api/payments/process
func (h *PaymentsHandler) Process(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request body.", nil))
		return
	}

	key := req.IdempotencyKey
	if hk := c.GetHeader("Idempotency-Key"); hk != "" {
		key = hk
	}

	result, err := h.payments.ProcessPayment(c.Request.Context(), payments.ProcessPaymentInput{
		OrderID:         req.OrderID,
		SessionID:       req.SessionID,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		Method:          req.Method,
		Provider:        req.Provider,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  key,
		Metadata:        req.Metadata,
	})
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

type processRefundRequest struct {
	AmountCents int    `json:"amountCents"`
	Reason      string `json:"reason"`
}

// POST /api/payments/:transactionId/refund
func (h *PaymentsHandler) Refund(c *gin.Context) {
	var req processRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request body.", nil))
		return
	}

	result, err := h.refunds.ProcessRefund(c.Request.Context(), payments.ProcessRefundInput{
		TransactionID: c.Param("transactionId"),
		AmountCents:   req.AmountCents,
		Reason:        req.Reason,
	})
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// GET /api/payments/:transactionId
func (h *PaymentsHandler) GetTransaction(c *gin.Context) {
	txn, err := h.payments.GetTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}
	c.JSON(http.StatusOK, txn)
}

// GET /api/payments/:transactionId/refunds
func (h *PaymentsHandler) ListRefunds(c *gin.Context) {
	refs, err := h.refunds.ListRefundsForTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refs})
}

// GET /api/refunds/:refundId
func (h *PaymentsHandler) GetRefund(c *gin.Context) {
	ref, err := h.refunds.GetRefund(c.Request.Context(), c.Param("refundId"))
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}
	c.JSON(http.StatusOK, ref)
}

func mapPaymentErr(err error) error {
	switch {
	case errors.Is(err, payments.ErrValidation):
		return apperr.InvalidErr(err.Error(), nil)
	case errors.Is(err, payments.ErrUnknownProvider):
		return apperr.InvalidErr(err.Error(), nil)
	case errors.Is(err, payments.ErrNotFound):
		return apperr.NotFoundErr("Transaction not found.")
	case errors.Is(err, payments.ErrRefundNotFound):
		return apperr.NotFoundErr("Refund not found.")
	case errors.Is(err, payments.ErrInvalidState):
		return apperr.ConflictErr(err.Error())
	case errors.Is(err, payments.ErrAmountExceeded):
		return apperr.InvalidErr(err.Error(), nil)
	default:
		return apperr.Wrap(err)
	}
}
