package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/learnhub/backend/internal/auth"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/metrics"
	"github.com/learnhub/backend/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(svc *auth.JWTService) *gin.Engine {
	r := gin.New()
	r.Use(Logger(zap.NewNop(), metrics.New()))
	r.GET("/me", JWT(svc), func(c *gin.Context) {
		p, _ := Principal(c)
		c.String(http.StatusOK, p.ID.String())
	})
	r.GET("/admin", JWT(svc), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTSetsPrincipal(t *testing.T) {
	svc := auth.NewJWTService("s", 1)
	id := uuid.New()
	tok, err := svc.Generate(models.Principal{ID: id, Role: models.RoleStudent})
	require.NoError(t, err)

	rec := do(newRouter(svc), "/me", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String(), rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(newRouter(svc), "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(newRouter(svc), "/me", "nope").Code)
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("s", 1)
	student, _ := svc.Generate(models.Principal{ID: uuid.New(), Role: models.RoleStudent})
	admin, _ := svc.Generate(models.Principal{ID: uuid.New(), Role: models.RoleAdmin})

	assert.Equal(t, http.StatusForbidden, do(newRouter(svc), "/admin", student).Code)
	assert.Equal(t, http.StatusOK, do(newRouter(svc), "/admin", admin).Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://a.test,http://b.test"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://b.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://b.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggerRecordsHandlerError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core), metrics.New()))
	r.GET("/boom", func(c *gin.Context) {
		response.Error(c, errors.New("insert payment: connection reset"))
	})

	rec := do(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["errors"], "insert payment: connection reset")
}
