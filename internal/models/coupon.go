package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType is percentage or fixed.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon is a discount code. Code is stored upper-cased.
type Coupon struct {
	ID            uuid.UUID       `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidUntil    time.Time       `json:"valid_until"`
	UsageLimit    *int            `json:"usage_limit"`
	UsedCount     int             `json:"used_count"`
	// ApplicableCourses nil means every course.
	ApplicableCourses []uuid.UUID `json:"applicable_courses"`
	IsActive          bool        `json:"is_active"`
	CreatedBy         uuid.UUID   `json:"created_by"`
	CreatedAt         time.Time   `json:"created_at"`
}

// AppliesTo reports whether the coupon may be used for the course.
func (c *Coupon) AppliesTo(courseID uuid.UUID) bool {
	if c.ApplicableCourses == nil {
		return true
	}
	for _, id := range c.ApplicableCourses {
		if id == courseID {
			return true
		}
	}
	return false
}

// Exhausted reports whether the usage cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// CouponUsage records one redemption per (coupon, user, course).
type CouponUsage struct {
	ID             uuid.UUID       `json:"id"`
	CouponID       uuid.UUID       `json:"coupon_id"`
	UserID         uuid.UUID       `json:"user_id"`
	CourseID       uuid.UUID       `json:"course_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	UsedAt         time.Time       `json:"used_at"`
}
