package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"skillprob/internal/auth"
	"skillprob/internal/ledger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type BalanceResponse struct {
	WalletID        int64  `json:"wallet_id"`
	Points          int64  `json:"points"`
	SpendablePoints int64  `json:"spendable_points"`
	HeldPoints      int64  `json:"held_points"`
	CreditsCents    int64  `json:"credits_cents"`
	Currency        string `json:"currency"`
	TotalEarned     int64  `json:"total_earned"`
	TotalSpent      int64  `json:"total_spent"`
	TotalWithdrawn  int64  `json:"total_withdrawn"`
	Frozen          bool   `json:"frozen"`
}

func balanceResponse(w *ledger.Wallet) BalanceResponse {
	return BalanceResponse{
		WalletID:        w.ID,
		Points:          w.Points,
		SpendablePoints: w.SpendablePoints(),
		HeldPoints:      w.HeldPoints,
		CreditsCents:    w.CreditsCents,
		Currency:        w.Currency,
		TotalEarned:     w.TotalEarnedPoints,
		TotalSpent:      w.TotalSpentPoints,
		TotalWithdrawn:  w.TotalWithdrawnPoints,
		Frozen:          w.Frozen,
	}
}

// GetBalance godoc
// @Summary      Get own wallet balance
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} BalanceResponse
// @Failure      404 {object} gin.H
// @Router       /wallet [get]
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	w, err := h.service.BalanceByOwner(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, balanceResponse(w))
}

// ListTransactions godoc
// @Summary      List own wallet transactions, newest first
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query int   false "Page size"
// @Param        before  query int   false "Return rows older than this transaction id"
// @Success      200 {object} gin.H
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	w, err := h.service.BalanceByOwner(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusOK, gin.H{"transactions": []ledger.Transaction{}, "next": 0})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	before, _ := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)

	txs, next, err := h.service.Transactions(c.Request.Context(), w.ID, limit, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs, "next": next})
}

type ConvertRequest struct {
	Points  int64 `json:"points" binding:"required" validate:"gt=0"`
	RateBps int   `json:"rate_bps" validate:"gte=0"`
}

// Convert godoc
// @Summary      Convert points to credits
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body ConvertRequest true "Conversion request"
// @Success      200 {object} gin.H
// @Failure      400 {object} gin.H
// @Failure      422 {object} gin.H
// @Router       /wallet/convert [post]
func (h *Handler) Convert(defaultRateBps int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		var req ConvertRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Points <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "points must be positive"})
			return
		}
		rate := req.RateBps
		if rate == 0 {
			rate = defaultRateBps
		}

		w, err := h.service.BalanceByOwner(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}

		txn, err := h.service.ConvertPointsToCredits(c.Request.Context(), w.ID, req.Points, rate)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrInsufficientFunds):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient points"})
			case errors.Is(err, ledger.ErrWalletFrozen):
				c.JSON(http.StatusConflict, gin.H{"error": "wallet is frozen"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "conversion failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"credits_added_cents": txn.CreditsDeltaCents,
			"transaction":         txn,
		})
	}
}

// AdminGetWallet godoc
// @Summary      Get any wallet by id (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        walletID path int true "Wallet ID"
// @Success      200 {object} BalanceResponse
// @Failure      404 {object} gin.H
// @Router       /admin/wallets/{walletID} [get]
func (h *Handler) AdminGetWallet(c *gin.Context) {
	walletID, err := strconv.ParseInt(c.Param("walletID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet id"})
		return
	}

	w, err := h.service.Balance(c.Request.Context(), walletID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, balanceResponse(w))
}

type FreezeRequest struct {
	Frozen bool `json:"frozen"`
}

// AdminSetFrozen godoc
// @Summary      Freeze or unfreeze a wallet (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        walletID path int true "Wallet ID"
// @Param        body body FreezeRequest true "Freeze flag"
// @Success      200 {object} gin.H
// @Router       /admin/wallets/{walletID}/freeze [post]
func (h *Handler) AdminSetFrozen(c *gin.Context) {
	walletID, err := strconv.ParseInt(c.Param("walletID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet id"})
		return
	}

	var req FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.service.SetFrozen(c.Request.Context(), walletID, req.Frozen); err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "wallet updated", "frozen": req.Frozen})
}
