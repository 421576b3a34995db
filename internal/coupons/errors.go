package coupons

import (
	"errors"

	"github.com/learnhub/backend/internal/apperr"
)

// Rejections returned by Ledger.Check, in check order.
var (
	ErrNotFound      = apperr.NotFound("invalid_coupon_code", "Invalid coupon code")
	ErrInactive      = apperr.Invalid("coupon_inactive", "Coupon is no longer active")
	ErrNotYetValid   = apperr.Invalid("coupon_not_yet_valid", "Coupon is not yet valid")
	ErrExpired       = apperr.Invalid("coupon_expired", "Coupon has expired")
	ErrLimitReached  = apperr.Conflict("coupon_limit_reached", "Coupon usage limit reached")
	ErrNotApplicable = apperr.Invalid("coupon_not_applicable", "Coupon not applicable to this course")
	ErrAlreadyUsed   = apperr.Conflict("coupon_already_used", "You have already used this coupon for this course")
)

// Administration errors.
var (
	ErrCouponNotFound = apperr.NotFound("coupon_not_found", "Coupon not found")
	ErrCodeExists     = apperr.Conflict("coupon_code_exists", "Coupon code already exists")
)

var rejections = []error{
	ErrNotFound, ErrInactive, ErrNotYetValid, ErrExpired,
	ErrLimitReached, ErrNotApplicable, ErrAlreadyUsed,
}

// IsRejection reports whether err means the coupon cannot be applied, as opposed
// to a storage or transport failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Reason returns the stable code of a rejection, or "error".
func Reason(err error) string {
	if e, ok := apperr.As(err); ok && IsRejection(err) {
		return e.Code
	}
	return "error"
}
