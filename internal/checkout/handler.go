package checkout

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/pkg/response"
)

// IdempotencyHeader is an optional client-chosen key forwarded to the provider.
const IdempotencyHeader = "Idempotency-Key"

// CreateRequest is the body for POST /checkout.
type CreateRequest struct {
	CourseID   uuid.UUID `json:"course_id" binding:"required"`
	CouponCode string    `json:"coupon_code"`
}

// Handler handles the checkout endpoint.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler creates a checkout handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// Create handles POST /checkout.
func (h *Handler) Create(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.coordinator.Create(c.Request.Context(), Request{
		Principal:      p,
		CourseID:       req.CourseID,
		CouponCode:     req.CouponCode,
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}
