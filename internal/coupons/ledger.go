package coupons

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/internal/pricing"
	"github.com/learnhub/backend/pkg/metrics"
)

// Store is the coupon persistence the ledger reads from.
type Store interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	HasUsage(ctx context.Context, couponID, userID, courseID uuid.UUID) (bool, error)
}

// CourseReader resolves a course for pricing.
type CourseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// Validated is a coupon that passed every check, priced against a course.
type Validated struct {
	Coupon *models.Coupon
	Course *models.Course
	Quote  pricing.Quote
}

// Ledger decides whether a coupon may be redeemed by a user for a course.
type Ledger struct {
	store   Store
	courses CourseReader
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedger creates a coupon ledger.
func NewLedger(store Store, courses CourseReader, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, courses: courses, metrics: m, logger: logger, now: time.Now}
}

// Check runs the redemption checks in order and stops at the first failure.
// Both bounds of the validity window are inclusive and compared in UTC.
func (l *Ledger) Check(ctx context.Context, code string, userID, courseID uuid.UUID) (*models.Coupon, error) {
	c, err := l.check(ctx, code, userID, courseID)
	if err != nil {
		l.metrics.CouponValidation(Reason(err))
		l.logger.Debug("coupon rejected", zap.String("code", code), zap.String("user_id", userID.String()),
			zap.String("course_id", courseID.String()), zap.Error(err))
		return nil, err
	}
	l.metrics.CouponValidation("valid")
	return c, nil
}

func (l *Ledger) check(ctx context.Context, code string, userID, courseID uuid.UUID) (*models.Coupon, error) {
	c, err := l.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, ErrInactive
	}
	now := l.now().UTC()
	if now.Before(c.ValidFrom.UTC()) {
		return nil, ErrNotYetValid
	}
	if now.After(c.ValidUntil.UTC()) {
		return nil, ErrExpired
	}
	if c.Exhausted() {
		return nil, ErrLimitReached
	}
	if !c.AppliesTo(courseID) {
		return nil, ErrNotApplicable
	}
	used, err := l.store.HasUsage(ctx, c.ID, userID, courseID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrAlreadyUsed
	}
	return c, nil
}

// Validate checks the coupon and prices it against the course.
func (l *Ledger) Validate(ctx context.Context, code string, userID, courseID uuid.UUID) (*Validated, error) {
	c, err := l.Check(ctx, code, userID, courseID)
	if err != nil {
		return nil, err
	}
	course, err := l.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &Validated{Coupon: c, Course: course, Quote: pricing.Price(course.Price, c)}, nil
}
