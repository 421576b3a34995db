package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueReconcile is the Redis list key for payment reconcile jobs.
	QueueReconcile = "worker:reconcile"
	// QueueNotifications is the Redis list key consumed by the email service.
	QueueNotifications = "worker:notifications"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// PopTimeout bounds one blocking pop so consumers notice shutdown.
	PopTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeReconcilePayment JobType = "reconcile_payment"
	JobTypeNotification     JobType = "notification"
)

// NotificationKind names the email template the notification service renders.
type NotificationKind string

const (
	NotifyEnrollmentConfirmed NotificationKind = "enrollment_confirmed"
	NotifyCertificateIssued   NotificationKind = "certificate_issued"
)

// ReconcilePayload is the payload for reconcile jobs.
type ReconcilePayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// NotificationPayload is the payload for notification jobs.
type NotificationPayload struct {
	Kind          NotificationKind `json:"kind"`
	UserID        uuid.UUID        `json:"user_id"`
	CourseID      uuid.UUID        `json:"course_id"`
	PaymentID     *uuid.UUID       `json:"payment_id,omitempty"`
	CertificateID *uuid.UUID       `json:"certificate_id,omitempty"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueReconcile enqueues a reconcile job for a checkout session.
func (q *Queue) EnqueueReconcile(ctx context.Context, payload ReconcilePayload) error {
	job, err := q.push(ctx, QueueReconcile, JobTypeReconcilePayment, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued reconcile job", zap.String("job_id", job.ID), zap.String("session_id", payload.SessionID))
	return nil
}

// EnqueueNotification enqueues a notification for the email service.
func (q *Queue) EnqueueNotification(ctx context.Context, payload NotificationPayload) error {
	job, err := q.push(ctx, QueueNotifications, JobTypeNotification, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued notification job", zap.String("job_id", job.ID), zap.String("kind", string(payload.Kind)))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, typ JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Queue:     key,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// Dequeue blocks up to PopTimeout for a job on key. A nil job with nil error
// means nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, key string) (*Job, error) {
	result, err := q.client.BLPop(ctx, PopTimeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, job.Queue, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
