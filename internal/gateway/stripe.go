package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// APIURL overrides the Stripe API base, used by tests.
	APIURL string
}

// StripeGateway implements Provider with Stripe Checkout Sessions.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	timeout       time.Duration
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway with its own HTTP client so calls obey cfg.Timeout.
func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, backends)
	return &StripeGateway{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
}

// CreateSession creates a one-line-item payment-mode checkout session.
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(ToMinorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Context = ctx

	s, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.mapStripeError("create session", err)
	}
	g.logger.Info("checkout session created", zap.String("session_id", s.ID))
	return &Session{ID: s.ID, URL: s.URL}, nil
}

// GetStatus fetches the current session state.
func (g *StripeGateway) GetStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, g.mapStripeError("get session", err)
	}
	return &SessionStatus{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   FromMinorUnits(s.AmountTotal),
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}, nil
}

// ExpireSession closes an open session so it can no longer be paid.
func (g *StripeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.client.CheckoutSessions.Expire(sessionID, params); err != nil {
		return g.mapStripeError("expire session", err)
	}
	return nil
}

type sessionObject struct {
	ID string `json:"id"`
}

// ParseWebhook verifies the Stripe-Signature header and extracts the session id.
// Events for other objects return a WebhookEvent with an empty SessionID.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, ErrInvalidSignature.Wrap(err)
	}
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventSessionCompleted, EventAsyncPaymentSucceeded, EventAsyncPaymentFailed, EventSessionExpired:
		var obj sessionObject
		if event.Data != nil && len(event.Data.Raw) > 0 {
			if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
				return nil, ErrInvalidSignature.Wrap(err)
			}
		}
		out.SessionID = obj.ID
	}
	return out, nil
}

// mapStripeError keeps stripe-go error types out of the service layer.
func (g *StripeGateway) mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			return ErrSessionNotFound.Wrap(err)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.Code == stripe.ErrorCodeRateLimit,
			stripeErr.Code == stripe.ErrorCodeLockTimeout:
			g.logger.Warn("stripe unavailable", zap.String("op", op), zap.Int("status", stripeErr.HTTPStatusCode))
			return ErrProviderDown.Wrap(err)
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			g.logger.Error("stripe rejected credentials", zap.String("op", op))
			return ErrProviderDown.Wrap(err)
		}
		g.logger.Warn("stripe rejected request", zap.String("op", op), zap.String("code", string(stripeErr.Code)), zap.String("msg", stripeErr.Msg))
		return ErrProviderRejected.Wrap(err)
	}
	g.logger.Warn("stripe unreachable", zap.String("op", op), zap.Bool("transient", isTransient(err)), zap.Error(err))
	return ErrProviderDown.Wrap(err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
