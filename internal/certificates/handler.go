package certificates

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnhub/backend/internal/courses"
	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

// Reader is the certificate lookup used by the handler.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error)
}

// CourseReader resolves a course by ID.
type CourseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// EligibilityResponse is the body of POST /certificates/check-eligibility/:course_id.
type EligibilityResponse struct {
	Eligible      bool       `json:"eligible"`
	CertificateID *uuid.UUID `json:"certificate_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	QuizTitle     string     `json:"quiz_title,omitempty"`
	Message       string     `json:"message"`
}

// CertificateView is a certificate with its course.
type CertificateView struct {
	models.Certificate
	Course *models.Course `json:"course"`
}

// Handler handles certificate HTTP endpoints.
type Handler struct {
	engine  *Engine
	reader  Reader
	courses CourseReader
}

// NewHandler creates a certificates handler.
func NewHandler(engine *Engine, reader Reader, courses CourseReader) *Handler {
	return &Handler{engine: engine, reader: reader, courses: courses}
}

// CheckEligibility handles POST /certificates/check-eligibility/:course_id and
// issues the certificate when eligible.
func (h *Handler) CheckEligibility(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	courseID, err := uuid.Parse(c.Param("course_id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	ctx := c.Request.Context()

	el, err := h.engine.CheckEligibility(ctx, p.ID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !el.Eligible {
		response.OK(c, EligibilityResponse{Reason: el.Reason, QuizTitle: el.QuizTitle, Message: el.Message})
		return
	}
	certID, err := h.engine.IssueIfEligible(ctx, p.ID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, EligibilityResponse{Eligible: true, CertificateID: certID, Message: "Certificate generated!"})
}

// MyCertificates handles GET /certificates/my-certificates.
func (h *Handler) MyCertificates(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	list, err := h.reader.ListByUser(ctx, p.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]CertificateView, 0, len(list))
	for _, cert := range list {
		course, err := h.courses.GetByID(ctx, cert.CourseID)
		if errors.Is(err, courses.ErrCourseNotFound) {
			continue
		}
		if err != nil {
			response.Error(c, err)
			return
		}
		out = append(out, CertificateView{Certificate: cert, Course: course})
	}
	response.OK(c, out)
}

// Get handles GET /certificates/:id. Certificates are publicly verifiable by id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid certificate id")
		return
	}
	ctx := c.Request.Context()
	cert, err := h.reader.GetByID(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.GetByID(ctx, cert.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, CertificateView{Certificate: *cert, Course: course})
}
