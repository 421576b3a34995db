package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/pkg/response"
)

// MaxWebhookBytes caps the webhook body read.
const MaxWebhookBytes = 64 << 10

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

// Archiver stores verified webhook bodies for audit.
type Archiver interface {
	ArchiveWebhook(ctx context.Context, eventID string, receivedAt time.Time, body []byte) (string, error)
}

// Handler handles payment status and provider webhook endpoints.
type Handler struct {
	reconciler *Reconciler
	provider   gateway.Provider
	archiver   Archiver
	logger     *zap.Logger
}

// NewHandler creates a payments handler. archiver may be nil.
func NewHandler(reconciler *Reconciler, provider gateway.Provider, archiver Archiver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reconciler: reconciler, provider: provider, archiver: archiver, logger: logger}
}

// Status handles GET /payments/status/:session_id.
func (h *Handler) Status(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	st, err := h.reconciler.ReconcileAs(c.Request.Context(), p, c.Param("session_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// Webhook handles POST /webhook/payment. Unknown sessions and unrelated events are
// acknowledged; upstream failures answer 503 so the provider redelivers.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBytes))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	ev, err := h.provider.ParseWebhook(body, c.GetHeader(SignatureHeader))
	if err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	log := h.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	if h.archiver != nil {
		if key, err := h.archiver.ArchiveWebhook(ctx, ev.ID, time.Now(), body); err != nil {
			log.Warn("webhook archive failed", zap.Error(err))
		} else {
			log.Debug("webhook archived", zap.String("key", key))
		}
	}

	if ev.SessionID == "" {
		log.Debug("webhook ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if _, err := h.reconciler.Reconcile(ctx, ev.SessionID, SourceWebhook); err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			log.Warn("webhook for unknown session", zap.String("session_id", ev.SessionID))
		case errors.Is(err, gateway.ErrSessionNotFound):
			log.Warn("webhook session unknown to provider", zap.String("session_id", ev.SessionID), zap.Error(err))
		case apperr.KindOf(err) == apperr.KindUpstreamUnavailable:
			log.Warn("webhook reconcile deferred", zap.String("session_id", ev.SessionID), zap.Error(err))
			response.Error(c, err)
			return
		default:
			log.Error("webhook reconcile failed", zap.String("session_id", ev.SessionID), zap.Error(err))
			response.Internal(c, "reconcile failed")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
