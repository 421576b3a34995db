package enrollments

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

// Store is the enrollment persistence used by the handler.
type Store interface {
	Create(ctx context.Context, e *models.Enrollment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]CourseEnrollment, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) (*models.Enrollment, error)
}

// CourseReader resolves a course by ID.
type CourseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// Issuer issues a certificate when the learner is eligible. A nil id means not eligible.
type Issuer interface {
	IssueIfEligible(ctx context.Context, userID, courseID uuid.UUID) (*uuid.UUID, error)
}

// EnrollRequest is the body for POST /enrollments.
type EnrollRequest struct {
	CourseID uuid.UUID `json:"course_id" binding:"required"`
}

// ProgressRequest is the body for PATCH /enrollments/:id/progress.
type ProgressRequest struct {
	Progress *float64 `json:"progress" binding:"required"`
}

// ProgressResponse reports the updated enrollment and any certificate it earned.
type ProgressResponse struct {
	Enrollment        *models.Enrollment `json:"enrollment"`
	CertificateEarned bool               `json:"certificate_earned"`
	CertificateID     *uuid.UUID         `json:"certificate_id,omitempty"`
}

// Handler handles enrollment HTTP endpoints.
type Handler struct {
	store   Store
	courses CourseReader
	issuer  Issuer
}

// NewHandler creates an enrollments handler.
func NewHandler(store Store, courses CourseReader, issuer Issuer) *Handler {
	return &Handler{store: store, courses: courses, issuer: issuer}
}

// Enroll handles POST /enrollments for free courses.
func (h *Handler) Enroll(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	course, err := h.courses.GetByID(c.Request.Context(), req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !course.IsFree() {
		response.Error(c, ErrPaymentRequired)
		return
	}
	e := &models.Enrollment{UserID: p.ID, CourseID: course.ID}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// MyCourses handles GET /enrollments/my-courses.
func (h *Handler) MyCourses(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	list, err := h.store.ListByUser(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []CourseEnrollment{}
	}
	response.OK(c, list)
}

// UpdateProgress handles PATCH /enrollments/:id/progress (owner only).
func (h *Handler) UpdateProgress(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid enrollment id")
		return
	}
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if *req.Progress < 0 || *req.Progress > models.CompleteProgress {
		response.Error(c, ErrInvalidProgress)
		return
	}
	ctx := c.Request.Context()

	e, err := h.store.GetByID(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if e.UserID != p.ID {
		response.Error(c, ErrNotOwner)
		return
	}
	e, err = h.store.UpdateProgress(ctx, id, *req.Progress)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := ProgressResponse{Enrollment: e}
	if e.Completed() {
		certID, err := h.issuer.IssueIfEligible(ctx, e.UserID, e.CourseID)
		if err != nil {
			response.Error(c, err)
			return
		}
		out.CertificateID = certID
		out.CertificateEarned = certID != nil
	}
	response.OK(c, out)
}
