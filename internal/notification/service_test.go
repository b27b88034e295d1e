package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"skillprob/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

func newTestService(rdb *redis.Client, notifierURL string) *Service {
	return &Service{
		redis:       rdb,
		notifierURL: notifierURL,
		client:      &http.Client{Timeout: 2 * time.Second},
	}
}

func TestPayoutResolved(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("notifications", `.*payout_resolved.*`).SetVal(1)

	svc := newTestService(db, "")

	err := svc.PayoutResolved(ctx, 9, "req-1", "approved", "looks good")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCaptured(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("notifications", `.*payment_captured.*`).SetVal(1)

	svc := newTestService(db, "")

	err := svc.PaymentCaptured(ctx, 42, "pay-1", 50000, "INR")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("notifications", `.*`).SetErr(assert.AnError)

	svc := newTestService(db, "")

	err := svc.PaymentCaptured(ctx, 42, "pay-1", 50000, "INR")
	assert.Error(t, err)
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectLLen("notifications").SetVal(3)

	svc := newTestService(db, "")

	length := svc.QueueLength(ctx)
	assert.Equal(t, int64(3), length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliver_ForwardsToNotifier(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		delivered.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	db, _ := redismock.NewClientMock()
	svc := newTestService(db, srv.URL)

	err := svc.deliver(context.Background(), Job{UserID: 42, Type: "payment_captured"})
	assert.NoError(t, err)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestDeliver_NotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	db, _ := redismock.NewClientMock()
	svc := newTestService(db, srv.URL)

	err := svc.deliver(context.Background(), Job{UserID: 42, Type: "payment_captured"})
	assert.Error(t, err)
}

func TestDeliver_NoNotifierConfiguredDrops(t *testing.T) {
	db, _ := redismock.NewClientMock()
	svc := newTestService(db, "")

	err := svc.deliver(context.Background(), Job{UserID: 42, Type: "payment_captured"})
	assert.NoError(t, err)
}
