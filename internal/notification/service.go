package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"skillprob/internal/logger"
	"skillprob/internal/metrics"
)

const (
	queueKey       = "notifications"
	failedQueueKey = "notifications:failed"
	maxTries       = 3
)

// Job is one queued notification. Delivery goes to the external
// notification collaborator; this engine only queues and forwards.
type Job struct {
	UserID  int64                  `json:"user_id"`
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Tries   int                    `json:"tries"`
	Created time.Time              `json:"created"`
}

type Service struct {
	redis       *redis.Client
	notifierURL string
	client      *http.Client
}

func New(redisAddr, notifierURL string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		notifierURL: notifierURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Service) enqueue(ctx context.Context, job Job) error {
	job.Created = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal notification job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		metrics.NotificationsQueuedTotal.WithLabelValues(job.Type, "error").Inc()
		logger.Errorf("Failed to queue notification for user %d: %v", job.UserID, err)
		return err
	}

	metrics.NotificationsQueuedTotal.WithLabelValues(job.Type, "queued").Inc()
	logger.Infof("Notification queued: %s for user %d", job.Type, job.UserID)
	return nil
}

// PayoutResolved tells an ambassador their request was approved or
// rejected, carrying the approver's notes.
func (s *Service) PayoutResolved(ctx context.Context, ambassadorID int64, requestID, status, notes string) error {
	return s.enqueue(ctx, Job{
		UserID: ambassadorID,
		Type:   "payout_resolved",
		Payload: map[string]interface{}{
			"request_id": requestID,
			"status":     status,
			"notes":      notes,
		},
	})
}

// PaymentCaptured sends the payer a receipt.
func (s *Service) PaymentCaptured(ctx context.Context, payerID int64, paymentID string, amountCents int64, currency string) error {
	return s.enqueue(ctx, Job{
		UserID: payerID,
		Type:   "payment_captured",
		Payload: map[string]interface{}{
			"payment_id":   paymentID,
			"amount_cents": amountCents,
			"currency":     currency,
		},
	})
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad notification data: %v", err)
		return
	}

	job.Tries++
	if err := s.deliver(ctx, job); err != nil {
		logger.Errorf("Failed to deliver notification to user %d: %v", job.UserID, err)

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
		} else {
			logger.Errorf("Notification for user %d failed after %d attempts", job.UserID, maxTries)
			s.saveFailed(job, err)
		}
		return
	}

	logger.Infof("Notification delivered: %s to user %d", job.Type, job.UserID)
}

func (s *Service) deliver(ctx context.Context, job Job) error {
	if s.notifierURL == "" {
		// No collaborator configured (local dev): drop after logging.
		logger.Debugf("Notifier not configured, dropping %s for user %d", job.Type, job.UserID)
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.notifierURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier returned %s", resp.Status)
	}
	return nil
}

func (s *Service) saveFailed(job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	metrics.NotificationQueueLength.Set(float64(length))
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
