// Package payments reconciles checkout sessions with the payment provider and
// applies the one-time effects of a successful payment.
package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/metrics"
	"github.com/learnhub/backend/pkg/queue"
)

var (
	ErrPaymentNotFound  = apperr.NotFound("payment_not_found", "Payment not found")
	ErrNotPaymentOwner  = apperr.Forbidden("not_payment_owner", "Not your payment")
	// ErrDuplicatePayment means the session or idempotency key is already recorded.
	ErrDuplicatePayment = apperr.Conflict("duplicate_payment", "Payment already recorded")
)

// Reconcile sources, used for logs and metrics.
const (
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
	SourceSweep   = "sweep"
)

// Settlement is the result of SettlePaid.
type Settlement struct {
	Payment           *models.Payment
	Transitioned      bool
	EnrollmentCreated bool
	InstructorShare   decimal.Decimal
}

// Store is the payment persistence used by the reconciler.
type Store interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	SettlePaid(ctx context.Context, sessionID string, commission decimal.Decimal) (*Settlement, error)
	MarkFailed(ctx context.Context, sessionID string) (bool, error)
}

// Notifier hands enrollment notifications to the email service.
type Notifier interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Reconciler applies the provider's authoritative session status to local state.
type Reconciler struct {
	store      Store
	provider   gateway.Provider
	notifier   Notifier
	commission decimal.Decimal
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewReconciler creates a reconciler. commission is the platform fraction in [0,1);
// notifier may be nil.
func NewReconciler(store Store, provider gateway.Provider, notifier Notifier, commission decimal.Decimal, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:      store,
		provider:   provider,
		notifier:   notifier,
		commission: commission,
		metrics:    m,
		logger:     logger,
	}
}

// InstructorShare is amount × (1 − commission), rounded to cents.
func InstructorShare(amount, commission decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(commission)).Round(2)
}

// Reconcile reads the session status from the provider and applies it. Paid and
// no_payment_required settle the payment at most once; an expired session fails a
// pending payment. The provider status is returned as-is.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID, source string) (*gateway.SessionStatus, error) {
	if _, err := r.store.GetBySessionID(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.apply(ctx, sessionID, source)
}

// ReconcileAs is Reconcile on behalf of p, who must own the payment or be an admin.
func (r *Reconciler) ReconcileAs(ctx context.Context, p models.Principal, sessionID string) (*gateway.SessionStatus, error) {
	pay, err := r.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if pay.UserID != p.ID && !p.IsAdmin() {
		return nil, ErrNotPaymentOwner
	}
	return r.apply(ctx, sessionID, SourcePoll)
}

func (r *Reconciler) apply(ctx context.Context, sessionID, source string) (*gateway.SessionStatus, error) {
	start := time.Now()
	st, err := r.provider.GetStatus(ctx, sessionID)
	if err != nil {
		r.metrics.Reconcile(source, "provider_error")
		return nil, err
	}

	switch {
	case st.Settled():
		s, err := r.store.SettlePaid(ctx, sessionID, r.commission)
		if err != nil {
			r.metrics.Reconcile(source, "error")
			return nil, err
		}
		if !s.Transitioned {
			r.metrics.Reconcile(source, "noop")
			break
		}
		r.metrics.Reconcile(source, "paid")
		r.logger.Info("payment settled",
			zap.String("session_id", sessionID),
			zap.String("source", source),
			zap.String("payment_status", st.PaymentStatus),
			zap.String("amount", s.Payment.Amount.StringFixed(2)),
			zap.String("instructor_share", s.InstructorShare.StringFixed(2)),
			zap.Bool("enrollment_created", s.EnrollmentCreated),
			zap.Duration("elapsed", time.Since(start)))
		r.notifyEnrollment(ctx, s.Payment)
	case st.Expired():
		failed, err := r.store.MarkFailed(ctx, sessionID)
		if err != nil {
			r.metrics.Reconcile(source, "error")
			return nil, err
		}
		if failed {
			r.metrics.Reconcile(source, "failed")
			r.logger.Info("payment failed, session expired", zap.String("session_id", sessionID), zap.String("source", source))
		} else {
			r.metrics.Reconcile(source, "noop")
		}
	default:
		r.metrics.Reconcile(source, "pending")
	}
	return st, nil
}

func (r *Reconciler) notifyEnrollment(ctx context.Context, p *models.Payment) {
	if r.notifier == nil {
		return
	}
	id := p.ID
	err := r.notifier.EnqueueNotification(ctx, queue.NotificationPayload{
		Kind:      queue.NotifyEnrollmentConfirmed,
		UserID:    p.UserID,
		CourseID:  p.CourseID,
		PaymentID: &id,
	})
	result := "ok"
	if err != nil {
		result = "error"
		r.logger.Warn("enrollment notification failed", zap.String("payment_id", id.String()), zap.Error(err))
	}
	r.metrics.Notification(string(queue.NotifyEnrollmentConfirmed), result)
}
