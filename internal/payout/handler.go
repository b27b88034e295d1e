package payout

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"skillprob/internal/api"
	"skillprob/internal/auth"
	"skillprob/internal/ledger"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreatePayoutRequest struct {
	Points      int64       `json:"points" binding:"required"`
	BankDetails BankDetails `json:"bank_details" binding:"required"`
}

// Create godoc
// @Summary      Request a payout (ambassador)
// @Tags         payouts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body CreatePayoutRequest true "Payout request"
// @Success      201 {object} PayoutRequest
// @Failure      400 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Router       /payouts [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Points <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "points and bank details are required"})
		return
	}

	p, err := h.service.Create(c.Request.Context(), userID, req.Points, req.BankDetails)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, api.ErrorResponse{Error: "insufficient spendable points"})
		case errors.Is(err, ledger.ErrWalletFrozen):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "wallet is frozen"})
		case errors.Is(err, ledger.ErrWalletKindMismatch):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "wallet is not an ambassador wallet"})
		case errors.Is(err, ErrInvalidPoints):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create payout request"})
		}
		return
	}

	c.JSON(http.StatusCreated, p)
}

// ListMy godoc
// @Summary      List own payout requests (ambassador)
// @Tags         payouts
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} PayoutRequest
// @Router       /payouts [get]
func (h *Handler) ListMy(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	requests, err := h.service.ListByAmbassador(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load payout requests"})
		return
	}

	c.JSON(http.StatusOK, requests)
}

// AdminList godoc
// @Summary      List payout requests, optionally by status (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "Filter by status"
// @Success      200 {array} PayoutRequest
// @Router       /admin/payouts [get]
func (h *Handler) AdminList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	requests, err := h.service.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load payout requests"})
		return
	}

	c.JSON(http.StatusOK, requests)
}

type ResolveRequest struct {
	Notes string `json:"notes"`
}

// Approve godoc
// @Summary      Approve a pending payout request (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        requestID path string true "Payout request ID"
// @Param        body body ResolveRequest false "Approver notes"
// @Success      200 {object} PayoutRequest
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/payouts/{requestID}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	h.resolve(c, func(id uuid.UUID, approverID int64, notes string) (*PayoutRequest, error) {
		return h.service.Approve(c.Request.Context(), id, approverID, notes)
	})
}

// Reject godoc
// @Summary      Reject a pending payout request (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        requestID path string true "Payout request ID"
// @Param        body body ResolveRequest false "Approver notes"
// @Success      200 {object} PayoutRequest
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/payouts/{requestID}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, func(id uuid.UUID, approverID int64, notes string) (*PayoutRequest, error) {
		return h.service.Reject(c.Request.Context(), id, approverID, notes)
	})
}

func (h *Handler) resolve(c *gin.Context, fn func(uuid.UUID, int64, string) (*PayoutRequest, error)) {
	approverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request id"})
		return
	}

	var req ResolveRequest
	_ = c.ShouldBindJSON(&req)

	p, err := fn(id, approverID, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

type SettleRequest struct {
	TransferReference string `json:"transfer_reference" binding:"required"`
}

// Settle godoc
// @Summary      Settle an approved payout request (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        requestID path string true "Payout request ID"
// @Param        body body SettleRequest true "External transfer reference"
// @Success      200 {object} PayoutRequest
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/payouts/{requestID}/settle [post]
func (h *Handler) Settle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request id"})
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "transfer_reference is required"})
		return
	}

	p, err := h.service.Settle(c.Request.Context(), id, req.TransferReference)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "payout request not found"})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "payout request is not in the expected state"})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to update payout request"})
	}
}
