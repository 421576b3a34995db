package quizzes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/response"
)

// Store is the quiz persistence used by the handler.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	CreateResult(ctx context.Context, res *models.QuizResult) error
}

// Issuer issues a certificate when the learner is eligible. A nil id means not eligible.
type Issuer interface {
	IssueIfEligible(ctx context.Context, userID, courseID uuid.UUID) (*uuid.UUID, error)
}

// SubmitRequest is the body for POST /quizzes/:id/submit.
type SubmitRequest struct {
	Answers []int `json:"answers" binding:"required"`
}

// SubmitResponse is the graded submission.
type SubmitResponse struct {
	Result            *models.QuizResult `json:"result"`
	Score             float64            `json:"score"`
	Correct           int                `json:"correct"`
	Total             int                `json:"total"`
	CertificateEarned bool               `json:"certificate_earned"`
	CertificateID     *uuid.UUID         `json:"certificate_id,omitempty"`
}

// Handler handles quiz HTTP endpoints.
type Handler struct {
	store  Store
	issuer Issuer
	logger *zap.Logger
}

// NewHandler creates a quizzes handler.
func NewHandler(store Store, issuer Issuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, issuer: issuer, logger: logger}
}

// Submit handles POST /quizzes/:id/submit.
func (h *Handler) Submit(c *gin.Context) {
	p, ok := middleware.MustPrincipal(c)
	if !ok {
		return
	}
	quizID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	quiz, err := h.store.GetByID(ctx, quizID)
	if err != nil {
		response.Error(c, err)
		return
	}
	score, correct := Score(quiz, req.Answers)
	res := &models.QuizResult{UserID: p.ID, QuizID: quiz.ID, CourseID: quiz.CourseID, Score: score}
	if err := h.store.CreateResult(ctx, res); err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("quiz submitted", zap.String("quiz_id", quiz.ID.String()),
		zap.String("user_id", p.ID.String()), zap.Float64("score", score))

	certID, err := h.issuer.IssueIfEligible(ctx, p.ID, quiz.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, SubmitResponse{
		Result:            res,
		Score:             score,
		Correct:           correct,
		Total:             len(quiz.Questions),
		CertificateEarned: certID != nil,
		CertificateID:     certID,
	})
}
