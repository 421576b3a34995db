package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/backend/internal/courses"
	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

func (m *memCerts) GetByID(_ context.Context, id uuid.UUID) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrCertificateNotFound
}

func (m *memCerts) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Certificate
	for k, c := range m.certs {
		if k.user == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memCourses map[uuid.UUID]*models.Course

func (m memCourses) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	c, ok := m[id]
	if !ok {
		return nil, courses.ErrCourseNotFound
	}
	return c, nil
}

type failingCourses struct{ err error }

func (f failingCourses) GetByID(context.Context, uuid.UUID) (*models.Course, error) {
	return nil, f.err
}

func (f *fixture) router() *gin.Engine {
	return f.routerWith(memCourses{f.course: {ID: f.course, Title: "Distributed Systems"}})
}

func (f *fixture) routerWith(cr CourseReader) *gin.Engine {
	h := NewHandler(f.engine, f.certs, cr)
	r := gin.New()
	r.GET("/certificates/:id", h.Get)
	auth := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, models.Principal{ID: f.user, Role: models.RoleStudent})
		c.Next()
	})
	auth.POST("/certificates/check-eligibility/:course_id", h.CheckEligibility)
	auth.GET("/certificates/my-certificates", h.MyCertificates)
	return r
}

func call(r http.Handler, method, path string) (*httptest.ResponseRecorder, response.Body) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var out response.Body
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestCheckEligibilityEndpoint(t *testing.T) {
	q := models.Quiz{ID: uuid.New(), Title: "Consensus"}
	f := newFixture(100, q)
	r := f.router()
	path := "/certificates/check-eligibility/" + f.course.String()

	rec, body := call(r, http.MethodPost, path)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]any)
	assert.Equal(t, false, data["eligible"])
	assert.Equal(t, ReasonQuizNotPassed, data["reason"])
	assert.Equal(t, "Consensus", data["quiz_title"])
	assert.Nil(t, data["certificate_id"])

	f.quizzes.scores[q.ID] = 90
	rec, body = call(r, http.MethodPost, path)
	require.Equal(t, http.StatusOK, rec.Code)
	data = body.Data.(map[string]any)
	assert.Equal(t, true, data["eligible"])
	assert.Equal(t, "Certificate generated!", data["message"])
	certID := data["certificate_id"].(string)

	rec, body = call(r, http.MethodPost, path)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, certID, body.Data.(map[string]any)["certificate_id"])

	rec, body = call(r, http.MethodGet, "/certificates/my-certificates")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Data, 1)
	view := body.Data.([]any)[0].(map[string]any)
	assert.Equal(t, certID, view["id"])
	assert.Equal(t, "Distributed Systems", view["course"].(map[string]any)["title"])

	rec, body = call(r, http.MethodGet, "/certificates/"+certID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, certID, body.Data.(map[string]any)["id"])

	rec, _ = call(r, http.MethodGet, "/certificates/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(r, http.MethodPost, "/certificates/check-eligibility/nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMyCertificatesCourseLookup(t *testing.T) {
	f := newFixture(100)
	id, err := f.engine.IssueIfEligible(context.Background(), f.user, f.course)
	require.NoError(t, err)
	require.NotNil(t, id)
	require.Len(t, f.certs.certs, 1)

	rec, body := call(f.routerWith(memCourses{}), http.MethodGet, "/certificates/my-certificates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body.Data, "certificate of a deleted course is skipped")

	rec, body = call(f.routerWith(failingCourses{err: errors.New("conn reset")}), http.MethodGet, "/certificates/my-certificates")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", body.Code)
}
