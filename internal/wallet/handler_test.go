package wallet

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skillprob/internal/auth"
	"skillprob/internal/ledger"
)

func setupWalletRouter(store *MockStore, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.ContextUserIDKey, userID)
	})

	h := NewHandler(NewService(store))
	r.GET("/wallet", h.GetBalance)
	r.POST("/wallet/convert", h.Convert(1000))
	return r
}

func TestGetBalance(t *testing.T) {
	store := new(MockStore)
	store.On("GetWalletByOwner", mock.Anything, int64(42)).Return(&ledger.Wallet{
		ID: 7, OwnerID: 42, Points: 100, HeldPoints: 30, CreditsCents: 500, Currency: "INR",
	}, nil)

	r := setupWalletRouter(store, 42)

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp.Points)
	assert.Equal(t, int64(70), resp.SpendablePoints)
}

func TestGetBalance_NoWallet(t *testing.T) {
	store := new(MockStore)
	store.On("GetWalletByOwner", mock.Anything, int64(42)).
		Return(nil, ledger.ErrWalletNotFound)

	r := setupWalletRouter(store, 42)

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConvert_DefaultRate(t *testing.T) {
	store := new(MockStore)
	store.On("GetWalletByOwner", mock.Anything, int64(42)).
		Return(&ledger.Wallet{ID: 7, OwnerID: 42, Points: 200}, nil)
	store.On("Append", mock.Anything, int64(7), ledger.Entry{
		Type:              ledger.TypeConversion,
		PointsDelta:       -100,
		CreditsDeltaCents: 1000,
		Description:       "points to credits conversion",
	}).Return(&ledger.Transaction{ID: 1, CreditsDeltaCents: 1000}, nil)

	r := setupWalletRouter(store, 42)

	body := bytes.NewBufferString(`{"points": 100}`)
	req := httptest.NewRequest(http.MethodPost, "/wallet/convert", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestConvert_InsufficientPoints(t *testing.T) {
	store := new(MockStore)
	store.On("GetWalletByOwner", mock.Anything, int64(42)).
		Return(&ledger.Wallet{ID: 7, OwnerID: 42, Points: 10}, nil)
	store.On("Append", mock.Anything, int64(7), mock.Anything).
		Return(nil, ledger.ErrInsufficientFunds)

	r := setupWalletRouter(store, 42)

	body := bytes.NewBufferString(`{"points": 100}`)
	req := httptest.NewRequest(http.MethodPost, "/wallet/convert", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestConvert_InvalidPoints(t *testing.T) {
	r := setupWalletRouter(new(MockStore), 42)

	body := bytes.NewBufferString(`{"points": -5}`)
	req := httptest.NewRequest(http.MethodPost, "/wallet/convert", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
