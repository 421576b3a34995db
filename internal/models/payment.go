package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus for payments.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is created pending at checkout and keyed by the provider session id.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	CourseID       uuid.UUID       `json:"course_id"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CouponCode     *string         `json:"coupon_code,omitempty"`
	SessionID      string          `json:"session_id"`
	CheckoutURL    string          `json:"checkout_url,omitempty"`
	IdempotencyKey *string         `json:"-"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
