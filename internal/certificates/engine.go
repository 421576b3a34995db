// Package certificates decides certificate eligibility and issues certificates
// at most once per (user, course).
package certificates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/enrollments"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/metrics"
	"github.com/learnhub/backend/pkg/queue"
)

// Ineligibility reasons.
const (
	ReasonCourseNotCompleted = "CourseNotCompleted"
	ReasonQuizNotPassed      = "QuizNotPassed"
)

// DefaultPassScore is the minimum quiz score, in percent.
const DefaultPassScore = 70.0

// Store is the certificate persistence used by the engine.
type Store interface {
	Find(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, error)
	CreateIfAbsent(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, bool, error)
}

// EnrollmentReader resolves the learner's enrollment.
type EnrollmentReader interface {
	GetByUserCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
}

// QuizReader lists course quizzes in a stable order and the learner's latest scores.
type QuizReader interface {
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Quiz, error)
	LatestScores(ctx context.Context, userID, courseID uuid.UUID) (map[uuid.UUID]float64, error)
}

// Notifier hands certificate notifications to the email service.
type Notifier interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Eligibility is the outcome of a check. QuizTitle is set for ReasonQuizNotPassed.
type Eligibility struct {
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
	QuizTitle string `json:"quiz_title,omitempty"`
	Message   string `json:"message"`
}

// Engine evaluates eligibility from enrollment progress and quiz results.
type Engine struct {
	store       Store
	enrollments EnrollmentReader
	quizzes     QuizReader
	notifier    Notifier
	metrics     *metrics.Metrics
	passScore   float64
	logger      *zap.Logger
}

// NewEngine creates an eligibility engine. notifier may be nil.
func NewEngine(store Store, enr EnrollmentReader, qr QuizReader, notifier Notifier, passScore float64, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if passScore <= 0 {
		passScore = DefaultPassScore
	}
	return &Engine{
		store:       store,
		enrollments: enr,
		quizzes:     qr,
		notifier:    notifier,
		metrics:     m,
		passScore:   passScore,
		logger:      logger,
	}
}

// CheckEligibility requires 100% progress and a passing latest score on every quiz.
// The first failing quiz in creation order is reported.
func (e *Engine) CheckEligibility(ctx context.Context, userID, courseID uuid.UUID) (*Eligibility, error) {
	enr, err := e.enrollments.GetByUserCourse(ctx, userID, courseID)
	if err != nil && !errors.Is(err, enrollments.ErrEnrollmentNotFound) {
		return nil, err
	}
	if enr == nil || !enr.Completed() {
		return &Eligibility{Reason: ReasonCourseNotCompleted, Message: "Course not completed"}, nil
	}

	quizzes, err := e.quizzes.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(quizzes) > 0 {
		scores, err := e.quizzes.LatestScores(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
		for _, q := range quizzes {
			score, ok := scores[q.ID]
			if !ok || score < e.passScore {
				return &Eligibility{
					Reason:    ReasonQuizNotPassed,
					QuizTitle: q.Title,
					Message:   fmt.Sprintf("Quiz '%s' not passed (minimum %g%% required)", q.Title, e.passScore),
				}, nil
			}
		}
	}
	return &Eligibility{Eligible: true, Message: "Eligible"}, nil
}

// IssueIfEligible returns the certificate id for (user, course), issuing it when
// eligible. It returns nil without error when the learner is not eligible.
func (e *Engine) IssueIfEligible(ctx context.Context, userID, courseID uuid.UUID) (*uuid.UUID, error) {
	existing, err := e.store.Find(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &existing.ID, nil
	}
	el, err := e.CheckEligibility(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !el.Eligible {
		return nil, nil
	}
	cert, created, err := e.store.CreateIfAbsent(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if created {
		e.metrics.CertificateIssued()
		e.logger.Info("certificate issued", zap.String("certificate_id", cert.ID.String()),
			zap.String("user_id", userID.String()), zap.String("course_id", courseID.String()))
		e.notify(ctx, cert)
	}
	return &cert.ID, nil
}

func (e *Engine) notify(ctx context.Context, cert *models.Certificate) {
	if e.notifier == nil {
		return
	}
	id := cert.ID
	err := e.notifier.EnqueueNotification(ctx, queue.NotificationPayload{
		Kind:          queue.NotifyCertificateIssued,
		UserID:        cert.UserID,
		CourseID:      cert.CourseID,
		CertificateID: &id,
	})
	if err != nil {
		e.metrics.Notification(string(queue.NotifyCertificateIssued), "error")
		e.logger.Warn("certificate notification failed", zap.String("certificate_id", id.String()), zap.Error(err))
		return
	}
	e.metrics.Notification(string(queue.NotifyCertificateIssued), "ok")
}
