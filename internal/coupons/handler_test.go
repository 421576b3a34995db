package coupons

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestRouter(h *Handler, p models.Principal) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextPrincipal, p); c.Next() })
	r.POST("/coupons/validate", h.Validate)
	r.POST("/coupons", h.Create)
	r.GET("/coupons", h.List)
	r.PATCH("/coupons/:id", h.Update)
	r.DELETE("/coupons/:id", h.Delete)
	return r
}

func doJSON(r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, response.Body) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out response.Body
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestValidateEndpoint(t *testing.T) {
	course := &models.Course{ID: uuid.New(), Price: decimal.RequireFromString("100.00")}
	c := newCoupon("SAVE20", models.DiscountPercentage, "20")
	s := newMemStore(c)
	h := NewHandler(newTestLedger(s, memCourses{course.ID: course}), s)
	r := newTestRouter(h, models.Principal{ID: uuid.New(), Role: models.RoleStudent})

	rec, body := doJSON(r, http.MethodPost, "/coupons/validate", gin.H{"code": "save20", "course_id": course.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.True(t, decimal.RequireFromString("80").Equal(decimal.RequireFromString(data["final_price"].(string))))

	rec, body = doJSON(r, http.MethodPost, "/coupons/validate", gin.H{"code": "NOPE", "course_id": course.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Invalid coupon code", body.Error)

	c.IsActive = false
	rec, body = doJSON(r, http.MethodPost, "/coupons/validate", gin.H{"code": "SAVE20", "course_id": course.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "coupon_inactive", body.Code)
}

func TestCreateCoupon(t *testing.T) {
	s := newMemStore()
	h := NewHandler(newTestLedger(s, nil), s)
	admin := models.Principal{ID: uuid.New(), Role: models.RoleAdmin}
	r := newTestRouter(h, admin)

	req := gin.H{
		"code":           " welcome10 ",
		"discount_type":  "percentage",
		"discount_value": 10,
		"valid_from":     fixedNow,
		"valid_until":    fixedNow.Add(48 * time.Hour),
	}
	rec, body := doJSON(r, http.MethodPost, "/coupons", req)
	require.Equal(t, http.StatusCreated, rec.Code, body.Error)
	data := body.Data.(map[string]any)
	assert.Equal(t, "WELCOME10", data["code"])
	assert.Equal(t, true, data["is_active"])
	assert.Equal(t, admin.ID.String(), data["created_by"])

	rec, body = doJSON(r, http.MethodPost, "/coupons", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "coupon_code_exists", body.Code)

	req["code"] = "BIG"
	req["discount_value"] = 150
	rec, _ = doJSON(r, http.MethodPost, "/coupons", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req["discount_value"] = 10
	req["valid_until"] = fixedNow.Add(-time.Hour)
	rec, _ = doJSON(r, http.MethodPost, "/coupons", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCouponAllowList(t *testing.T) {
	c := newCoupon("SPRING", models.DiscountFixed, "15")
	c.UsageLimit = intPtr(5)
	c.UsedCount = 2
	s := newMemStore(c)
	r := newTestRouter(NewHandler(newTestLedger(s, nil), s), models.Principal{ID: uuid.New(), Role: models.RoleAdmin})
	path := "/coupons/" + c.ID.String()

	rec, body := doJSON(r, http.MethodPatch, path, gin.H{"used_count": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field_not_updatable", body.Code)

	rec, _ = doJSON(r, http.MethodPatch, path, gin.H{"is_active": false, "code": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, s.coupons[c.ID].IsActive, "rejected patch must not be applied")

	rec, _ = doJSON(r, http.MethodPatch, path, gin.H{"valid_until": fixedNow.Add(-48 * time.Hour)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doJSON(r, http.MethodPatch, path, gin.H{"usage_limit": nil, "is_active": false, "discount_value": "20.50"})
	require.Equal(t, http.StatusOK, rec.Code, body.Error)
	got := s.coupons[c.ID]
	assert.Nil(t, got.UsageLimit)
	assert.False(t, got.IsActive)
	assert.Equal(t, 2, got.UsedCount)
	assert.True(t, decimal.RequireFromString("20.5").Equal(got.DiscountValue))

	rec, _ = doJSON(r, http.MethodPatch, "/coupons/"+uuid.NewString(), gin.H{"is_active": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCoupon(t *testing.T) {
	c := newCoupon("GONE", models.DiscountFixed, "1")
	s := newMemStore(c)
	r := newTestRouter(NewHandler(newTestLedger(s, nil), s), models.Principal{ID: uuid.New(), Role: models.RoleAdmin})

	rec, _ := doJSON(r, http.MethodDelete, "/coupons/"+c.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(r, http.MethodDelete, "/coupons/"+c.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
