// Package gateway wraps the hosted-checkout payment provider.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/learnhub/backend/internal/apperr"
)

// Provider session states.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
)

// Provider payment states.
const (
	PaymentPaid              = "paid"
	PaymentUnpaid            = "unpaid"
	PaymentNoPaymentRequired = "no_payment_required"
)

// Webhook event types that drive reconciliation.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired        = "checkout.session.expired"
)

var (
	ErrSessionNotFound  = apperr.NotFound("session_not_found", "checkout session not found")
	ErrInvalidSignature = apperr.Invalid("invalid_signature", "invalid webhook signature")
	ErrProviderRejected = apperr.Invalid("provider_rejected", "payment provider rejected the request")
	ErrProviderDown     = apperr.Upstream("payment_provider_unavailable", "payment provider unavailable", nil)
	ErrNotConfigured    = apperr.Upstream("payment_provider_unconfigured", "payment provider not configured", nil)
)

// SessionRequest describes one hosted checkout for a single course.
type SessionRequest struct {
	Amount            decimal.Decimal
	Currency          string
	ProductName       string
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
	// IdempotencyKey guards against duplicate sessions on client retries.
	IdempotencyKey string
}

// Session is a created hosted checkout.
type Session struct {
	ID  string
	URL string
}

// SessionStatus is the provider's view of a session.
type SessionStatus struct {
	ID            string            `json:"session_id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   decimal.Decimal   `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Settled reports whether the provider considers the session paid.
func (s *SessionStatus) Settled() bool {
	return s.PaymentStatus == PaymentPaid || s.PaymentStatus == PaymentNoPaymentRequired
}

// Expired reports whether the session can no longer be paid.
func (s *SessionStatus) Expired() bool {
	return s.Status == SessionExpired
}

// WebhookEvent is a verified provider notification about a checkout session.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
}

// Provider is the hosted-checkout collaborator. Every call is bounded by the
// caller's context and the provider's own timeout.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
	ExpireSession(ctx context.Context, sessionID string) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// ToMinorUnits converts a 2-decimal amount to integer cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer cents to a 2-decimal amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
