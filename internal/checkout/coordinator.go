// Package checkout turns a (user, course, optional coupon) request into a hosted
// payment session and a pending payment record.
package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/coupons"
	"github.com/learnhub/backend/internal/enrollments"
	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/internal/payments"
	"github.com/learnhub/backend/internal/pricing"
	"github.com/learnhub/backend/pkg/metrics"
)

// ErrIdempotencyKeyReused means the key already paid for a different course.
var ErrIdempotencyKeyReused = apperr.Conflict("idempotency_key_reused", "Idempotency-Key was used for another course")

// CourseReader resolves the course being bought.
type CourseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// EnrollmentChecker reports existing enrollments.
type EnrollmentChecker interface {
	Exists(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// CouponChecker runs the coupon redemption checks.
type CouponChecker interface {
	Check(ctx context.Context, code string, userID, courseID uuid.UUID) (*models.Coupon, error)
}

// PaymentWriter persists the pending payment and, when usage is set, redeems the
// coupon atomically with it. The lookups return payments.ErrPaymentNotFound.
type PaymentWriter interface {
	CreatePending(ctx context.Context, p *models.Payment, usage *models.CouponUsage) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Payment, error)
}

// Options configures session creation.
type Options struct {
	Currency      string
	PublicBaseURL string
}

// Request is one checkout attempt.
type Request struct {
	Principal  models.Principal
	CourseID   uuid.UUID
	CouponCode string
	// IdempotencyKey is forwarded to the provider and stored with the payment. A
	// retry under the same key returns the recorded session.
	IdempotencyKey string
}

// Result is the hosted checkout the client is redirected to.
type Result struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// Coordinator creates checkout sessions.
type Coordinator struct {
	courses     CourseReader
	enrollments EnrollmentChecker
	coupons     CouponChecker
	payments    PaymentWriter
	provider    gateway.Provider
	opts        Options
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewCoordinator creates a checkout coordinator.
func NewCoordinator(cr CourseReader, ec EnrollmentChecker, cc CouponChecker, pw PaymentWriter, provider gateway.Provider, opts Options, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Coordinator{
		courses:     cr,
		enrollments: ec,
		coupons:     cc,
		payments:    pw,
		provider:    provider,
		opts:        opts,
		metrics:     m,
		logger:      logger,
	}
}

// SuccessURL is where the provider sends the buyer after paying.
func (co *Coordinator) SuccessURL() string {
	return co.opts.PublicBaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where the provider sends the buyer after abandoning.
func (co *Coordinator) CancelURL() string {
	return co.opts.PublicBaseURL + "/payment/cancel"
}

// Create prices the course, opens a provider session and records a pending payment.
// A coupon that fails any check is dropped and the original price is charged; a
// coupon lost to a concurrent checkout fails the whole attempt. A request whose
// idempotency key is already recorded gets the stored session back.
func (co *Coordinator) Create(ctx context.Context, req Request) (*Result, error) {
	res, err := co.create(ctx, req)
	co.metrics.Checkout(outcome(err))
	return res, err
}

func (co *Coordinator) create(ctx context.Context, req Request) (*Result, error) {
	user := req.Principal
	log := co.logger.With(zap.String("user_id", user.ID.String()), zap.String("course_id", req.CourseID.String()))

	course, err := co.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	enrolled, err := co.enrollments.Exists(ctx, user.ID, course.ID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, enrollments.ErrAlreadyEnrolled
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		prior, err := co.replay(ctx, user.ID, course.ID, key)
		if err != nil || prior != nil {
			return prior, err
		}
	}

	coupon, err := co.applicableCoupon(ctx, log, req.CouponCode, user.ID, course.ID)
	if err != nil {
		return nil, err
	}
	quote := pricing.Price(course.Price, coupon)

	var couponCode *string
	meta := map[string]string{
		"user_id":         user.ID.String(),
		"course_id":       course.ID.String(),
		"user_email":      user.Email,
		"coupon_code":     "",
		"original_price":  quote.Original.StringFixed(pricing.Places),
		"discount_amount": quote.Discount.StringFixed(pricing.Places),
	}
	if coupon != nil {
		code := coupon.Code
		couponCode = &code
		meta["coupon_code"] = code
	}

	sess, err := co.provider.CreateSession(ctx, gateway.SessionRequest{
		Amount:            quote.Final,
		Currency:          co.opts.Currency,
		ProductName:       course.Title,
		CustomerEmail:     user.Email,
		ClientReferenceID: user.ID.String(),
		SuccessURL:        co.SuccessURL(),
		CancelURL:         co.CancelURL(),
		Metadata:          meta,
		IdempotencyKey:    key,
	})
	if err != nil {
		log.Warn("checkout session create failed", zap.Error(err))
		return nil, err
	}

	payment := &models.Payment{
		UserID:         user.ID,
		CourseID:       course.ID,
		Amount:         quote.Final,
		OriginalAmount: quote.Original,
		DiscountAmount: quote.Discount,
		CouponCode:     couponCode,
		SessionID:      sess.ID,
		CheckoutURL:    sess.URL,
		PaymentStatus:  models.PaymentStatusPending,
	}
	if key != "" {
		payment.IdempotencyKey = &key
	}
	var usage *models.CouponUsage
	if coupon != nil {
		usage = &models.CouponUsage{
			CouponID:       coupon.ID,
			UserID:         user.ID,
			CourseID:       course.ID,
			DiscountAmount: quote.Discount,
		}
	}
	if err := co.payments.CreatePending(ctx, payment, usage); err != nil {
		if errors.Is(err, payments.ErrDuplicatePayment) {
			return co.recorded(ctx, log, user.ID, course.ID, key, sess)
		}
		co.expire(ctx, log, sess.ID)
		if coupons.IsRejection(err) {
			log.Info("checkout lost coupon race", zap.String("session_id", sess.ID), zap.Error(err))
		} else {
			log.Error("persist pending payment failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, err
	}

	log.Info("checkout created",
		zap.String("session_id", sess.ID),
		zap.String("amount", quote.Final.StringFixed(pricing.Places)),
		zap.String("discount", quote.Discount.StringFixed(pricing.Places)))
	return &Result{URL: sess.URL, SessionID: sess.ID}, nil
}

// replay returns the result stored under key, or nil when the key is unused.
func (co *Coordinator) replay(ctx context.Context, userID, courseID uuid.UUID, key string) (*Result, error) {
	p, err := co.payments.FindByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.CourseID != courseID {
		return nil, ErrIdempotencyKeyReused
	}
	co.logger.Info("checkout replayed", zap.String("session_id", p.SessionID), zap.String("user_id", userID.String()))
	return &Result{URL: p.CheckoutURL, SessionID: p.SessionID}, nil
}

// recorded resolves a pending payment insert that hit an existing row. A session
// the provider returned again for a retried key is already persisted and must
// stay open; only a session nobody recorded is expired.
func (co *Coordinator) recorded(ctx context.Context, log *zap.Logger, userID, courseID uuid.UUID, key string, sess *gateway.Session) (*Result, error) {
	p, err := co.payments.GetBySessionID(ctx, sess.ID)
	switch {
	case err == nil:
		if p.UserID != userID || p.CourseID != courseID {
			return nil, payments.ErrDuplicatePayment
		}
		log.Info("checkout session already recorded", zap.String("session_id", sess.ID))
		return &Result{URL: sess.URL, SessionID: sess.ID}, nil
	case !errors.Is(err, payments.ErrPaymentNotFound):
		return nil, err
	}

	// A concurrent attempt under the same key recorded a different session.
	co.expire(ctx, log, sess.ID)
	if key == "" {
		return nil, payments.ErrDuplicatePayment
	}
	prior, err := co.replay(ctx, userID, courseID, key)
	if err == nil && prior == nil {
		err = payments.ErrDuplicatePayment
	}
	return prior, err
}

// applicableCoupon returns nil when no code was sent or the code was rejected.
func (co *Coordinator) applicableCoupon(ctx context.Context, log *zap.Logger, code string, userID, courseID uuid.UUID) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	c, err := co.coupons.Check(ctx, code, userID, courseID)
	if err == nil {
		return c, nil
	}
	if coupons.IsRejection(err) {
		log.Info("coupon ignored at checkout", zap.String("code", code), zap.String("reason", coupons.Reason(err)))
		return nil, nil
	}
	return nil, err
}

// expire releases a session whose payment was never recorded. Best effort.
func (co *Coordinator) expire(ctx context.Context, log *zap.Logger, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := co.provider.ExpireSession(ctx, sessionID); err != nil {
		log.Warn("expire orphan session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, enrollments.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, ErrIdempotencyKeyReused), errors.Is(err, payments.ErrDuplicatePayment):
		return "duplicate"
	case coupons.IsRejection(err):
		return "coupon_conflict"
	case apperr.KindOf(err) == apperr.KindNotFound:
		return "not_found"
	case errors.Is(err, gateway.ErrProviderDown), errors.Is(err, gateway.ErrProviderRejected), errors.Is(err, gateway.ErrNotConfigured):
		return "provider_error"
	default:
		return "error"
	}
}
