package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"skillprob/internal/api"
	"skillprob/internal/auth"
	"skillprob/internal/gateway"
	"skillprob/internal/ledger"
)

type Handler struct {
	service  Service
	gateways *gateway.Registry
}

func NewHandler(service Service, gateways *gateway.Registry) *Handler {
	return &Handler{service: service, gateways: gateways}
}

type CreatePaymentRequest struct {
	Gateway      string                 `json:"gateway" binding:"required"`
	AmountCents  int64                  `json:"amount_cents" binding:"required"`
	Currency     string                 `json:"currency" binding:"required"`
	Description  string                 `json:"description"`
	CourseID     *int64                 `json:"course_id"`
	EnrollmentID *int64                 `json:"enrollment_id"`
	AmbassadorID *int64                 `json:"ambassador_id"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// CreatePayment godoc
// @Summary      Create a payment intent
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body CreatePaymentRequest true "Payment request"
// @Success      201 {object} CreateResult
// @Failure      400 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Failure      502 {object} api.ErrorResponse
// @Router       /payments [post]
func (h *Handler) CreatePayment(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.service.CreatePayment(c.Request.Context(), CreateParams{
		Gateway:      req.Gateway,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Description:  req.Description,
		PayerID:      userID,
		CourseID:     req.CourseID,
		EnrollmentID: req.EnrollmentID,
		AmbassadorID: req.AmbassadorID,
		Metadata:     req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCurrency):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, gateway.ErrUnknownGateway):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unknown gateway"})
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, api.ErrorResponse{Error: "insufficient wallet balance"})
		case errors.Is(err, ledger.ErrWalletFrozen):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "wallet is frozen"})
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "payment gateway unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create payment"})
		}
		return
	}

	c.JSON(http.StatusCreated, res)
}

// HandleWebhook godoc
// @Summary      Gateway webhook endpoint
// @Description  Accepts the gateway's native payload. Responds 200 once the
// @Description  event is durably accepted, including duplicates; 400 on a
// @Description  bad signature so the gateway retries.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        gateway path string true "Gateway name"
// @Success      200 {object} api.WebhookResponse
// @Failure      400 {object} api.ErrorResponse
// @Router       /webhooks/{gateway} [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	gatewayName := c.Param("gateway")

	adapter, err := h.gateways.Get(gatewayName)
	if err != nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "unknown gateway"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "failed to read payload"})
		return
	}

	signature := c.GetHeader(adapter.SignatureHeader())

	applied, err := h.service.HandleCallback(c.Request.Context(), gatewayName, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrBadSignature):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "signature verification failed"})
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "payment not found"})
		default:
			// Transport failure: the gateway will redeliver and the
			// idempotency guard keeps the retry safe.
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to process event"})
		}
		return
	}

	c.JSON(http.StatusOK, api.WebhookResponse{Applied: applied})
}

// GetPayment godoc
// @Summary      Get one payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        paymentID path string true "Payment ID"
// @Success      200 {object} Payment
// @Failure      404 {object} api.ErrorResponse
// @Router       /payments/{paymentID} [get]
func (h *Handler) GetPayment(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("paymentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid payment id"})
		return
	}

	p, err := h.service.GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load payment"})
		return
	}

	if p.PayerID != userID && !auth.IsAdmin(c) {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "not your payment"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// ListMyPayments godoc
// @Summary      List own payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Payment
// @Router       /payments [get]
func (h *Handler) ListMyPayments(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	payments, err := h.service.ListByPayer(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load payments"})
		return
	}

	c.JSON(http.StatusOK, payments)
}

type RefundRequest struct {
	AmountCents  int64  `json:"amount_cents" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
	OperationKey string `json:"operation_key"`
}

// CreateRefund godoc
// @Summary      Refund a captured payment (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        paymentID path string true "Payment ID"
// @Param        body body RefundRequest true "Refund request"
// @Success      201 {object} Refund
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/payments/{paymentID}/refunds [post]
func (h *Handler) CreateRefund(c *gin.Context) {
	actorID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("paymentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid payment id"})
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	refund, err := h.service.ProcessRefund(c.Request.Context(), id, req.AmountCents, req.Reason, actorID, req.OperationKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "payment not found"})
		case errors.Is(err, ErrInvalidState):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "payment is not refundable in its current state"})
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrRefundExceedsAmount):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrDuplicateOperation):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "operation key already used"})
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "payment gateway unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to process refund"})
		}
		return
	}

	c.JSON(http.StatusCreated, refund)
}

// ListRefunds godoc
// @Summary      List refunds for a payment (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        paymentID path string true "Payment ID"
// @Success      200 {array} Refund
// @Router       /admin/payments/{paymentID}/refunds [get]
func (h *Handler) ListRefunds(c *gin.Context) {
	id, err := uuid.Parse(c.Param("paymentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid payment id"})
		return
	}

	refunds, err := h.service.ListRefunds(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load refunds"})
		return
	}

	c.JSON(http.StatusOK, refunds)
}
