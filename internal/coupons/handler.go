package coupons

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

// AdminStore is the coupon persistence used by the admin endpoints.
type AdminStore interface {
	List(ctx context.Context) ([]models.Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	Create(ctx context.Context, c *models.Coupon) error
	Update(ctx context.Context, c *models.Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ValidateRequest is the body for POST /coupons/validate.
type ValidateRequest struct {
	Code     string    `json:"code" binding:"required"`
	CourseID uuid.UUID `json:"course_id" binding:"required"`
}

// ValidateResponse is returned for a redeemable coupon.
type ValidateResponse struct {
	Valid          bool            `json:"valid"`
	Coupon         *models.Coupon  `json:"coupon"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}

// CreateRequest is the body for POST /coupons.
type CreateRequest struct {
	Code              string              `json:"code" binding:"required"`
	DiscountType      models.DiscountType `json:"discount_type" binding:"required"`
	DiscountValue     decimal.Decimal     `json:"discount_value"`
	ValidFrom         time.Time           `json:"valid_from"`
	ValidUntil        time.Time           `json:"valid_until"`
	UsageLimit        *int                `json:"usage_limit"`
	ApplicableCourses []uuid.UUID         `json:"applicable_courses"`
	IsActive          *bool               `json:"is_active"`
}

// Fields a PATCH /coupons/:id body may carry. Code, type and used_count are immutable.
var patchable = map[string]struct{}{
	"discount_value":     {},
	"valid_from":         {},
	"valid_until":        {},
	"usage_limit":        {},
	"applicable_courses": {},
	"is_active":          {},
}

// Handler handles coupon HTTP endpoints.
type Handler struct {
	ledger *Ledger
	store  AdminStore
}

// NewHandler creates a coupons handler.
func NewHandler(ledger *Ledger, store AdminStore) *Handler {
	return &Handler{ledger: ledger, store: store}
}

// Validate handles POST /coupons/validate.
func (h *Handler) Validate(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.ledger.Validate(c.Request.Context(), req.Code, p.ID, req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ValidateResponse{
		Valid:          true,
		Coupon:         v.Coupon,
		OriginalPrice:  v.Quote.Original,
		DiscountAmount: v.Quote.Discount,
		FinalPrice:     v.Quote.Final,
	})
}

// Create handles POST /coupons (admin).
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
	coupon := &models.Coupon{
		Code:              strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		ValidFrom:         req.ValidFrom.UTC(),
		ValidUntil:        req.ValidUntil.UTC(),
		UsageLimit:        req.UsageLimit,
		ApplicableCourses: req.ApplicableCourses,
		IsActive:          req.IsActive == nil || *req.IsActive,
		CreatedBy:         p.ID,
	}
	if err := validateCoupon(coupon); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.store.Create(c.Request.Context(), coupon); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coupon)
}

// List handles GET /coupons (admin).
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []models.Coupon{}
	}
	response.OK(c, list)
}

// Update handles PATCH /coupons/:id (admin).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid coupon id")
		return
	}
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	coupon, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := applyPatch(coupon, patch); err != nil {
		response.Error(c, err)
		return
	}
	if err := validateCoupon(coupon); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.store.Update(c.Request.Context(), coupon); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, coupon)
}

// Delete handles DELETE /coupons/:id (admin).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid coupon id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "deleted": true})
}

// applyPatch copies allow-listed fields from patch onto c. Unknown fields are rejected
// before anything is applied.
func applyPatch(c *models.Coupon, patch map[string]json.RawMessage) error {
	if len(patch) == 0 {
		return apperr.Invalid("empty_patch", "no fields to update")
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := patchable[k]; !ok {
			return apperr.Invalid("field_not_updatable", fmt.Sprintf("field %q cannot be updated", k))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := *c
	for _, k := range keys {
		raw := patch[k]
		var err error
		switch k {
		case "discount_value":
			err = json.Unmarshal(raw, &next.DiscountValue)
		case "valid_from":
			err = json.Unmarshal(raw, &next.ValidFrom)
			next.ValidFrom = next.ValidFrom.UTC()
		case "valid_until":
			err = json.Unmarshal(raw, &next.ValidUntil)
			next.ValidUntil = next.ValidUntil.UTC()
		case "usage_limit":
			next.UsageLimit = nil
			err = json.Unmarshal(raw, &next.UsageLimit)
		case "applicable_courses":
			next.ApplicableCourses = nil
			err = json.Unmarshal(raw, &next.ApplicableCourses)
		case "is_active":
			err = json.Unmarshal(raw, &next.IsActive)
		}
		if err != nil {
			return apperr.Invalid("invalid_field", fmt.Sprintf("invalid value for %s", k))
		}
	}
	*c = next
	return nil
}

var hundred = decimal.NewFromInt(100)

func validateCoupon(c *models.Coupon) error {
	if c.Code == "" {
		return apperr.Invalid("invalid_coupon", "code is required")
	}
	if !c.DiscountType.Valid() {
		return apperr.Invalid("invalid_coupon", "discount_type must be percentage or fixed")
	}
	if c.DiscountValue.IsNegative() {
		return apperr.Invalid("invalid_coupon", "discount_value must not be negative")
	}
	if c.DiscountType == models.DiscountPercentage && c.DiscountValue.GreaterThan(hundred) {
		return apperr.Invalid("invalid_coupon", "percentage discount must not exceed 100")
	}
	if c.ValidFrom.IsZero() || c.ValidUntil.IsZero() {
		return apperr.Invalid("invalid_coupon", "valid_from and valid_until are required")
	}
	if !c.ValidFrom.Before(c.ValidUntil) {
		return apperr.Invalid("invalid_coupon", "valid_from must be before valid_until")
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		return apperr.Invalid("invalid_coupon", "usage_limit must not be negative")
	}
	return nil
}
