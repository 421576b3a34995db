package enrollments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/database"
)

var (
	ErrAlreadyEnrolled    = apperr.Conflict("already_enrolled", "Already enrolled")
	ErrEnrollmentNotFound = apperr.NotFound("enrollment_not_found", "Enrollment not found")
	ErrPaymentRequired    = apperr.Forbidden("payment_required", "Course requires payment, use checkout")
	ErrNotOwner           = apperr.Forbidden("not_enrollment_owner", "Not your enrollment")
	ErrInvalidProgress    = apperr.Invalid("invalid_progress", "progress must be between 0 and 100")
)

const enrollmentColumns = `id, user_id, course_id, progress, status, enrolled_at`

// Repository handles enrollment persistence.
type Repository struct {
	pool database.DB
}

// NewRepository creates an enrollments repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

func scanEnrollment(row pgx.Row) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Progress, &e.Status, &e.EnrolledAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Exists reports whether the user is enrolled in the course.
func (r *Repository) Exists(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&ok)
	return ok, err
}

// Create inserts an enrollment. An existing (user, course) pair returns ErrAlreadyEnrolled.
func (r *Repository) Create(ctx context.Context, e *models.Enrollment) error {
	created, err := insert(ctx, r.pool, e)
	if err != nil {
		return err
	}
	if !created {
		return ErrAlreadyEnrolled
	}
	return nil
}

// CreateTx inserts the enrollment inside tx if absent and reports whether it was created.
func CreateTx(ctx context.Context, tx pgx.Tx, userID, courseID uuid.UUID) (bool, error) {
	return insert(ctx, tx, &models.Enrollment{UserID: userID, CourseID: courseID})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insert(ctx context.Context, db querier, e *models.Enrollment) (bool, error) {
	const q = `INSERT INTO enrollments (id, user_id, course_id, progress, status)
		VALUES (gen_random_uuid(), $1, $2, 0, 'active')
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING ` + enrollmentColumns
	got, err := scanEnrollment(db.QueryRow(ctx, q, e.UserID, e.CourseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	*e = *got
	return true, nil
}

// GetByID returns an enrollment by ID or ErrEnrollmentNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	e, err := scanEnrollment(r.pool.QueryRow(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	return e, err
}

// GetByUserCourse returns the enrollment for (user, course) or ErrEnrollmentNotFound.
func (r *Repository) GetByUserCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	e, err := scanEnrollment(r.pool.QueryRow(ctx, q, userID, courseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	return e, err
}

// CourseEnrollment is an enrollment with its course title for the learner dashboard.
type CourseEnrollment struct {
	models.Enrollment
	CourseTitle string `json:"course_title"`
}

// ListByUser returns the user's enrollments, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]CourseEnrollment, error) {
	const q = `SELECT e.id, e.user_id, e.course_id, e.progress, e.status, e.enrolled_at, c.title
		FROM enrollments e JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1 ORDER BY e.enrolled_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []CourseEnrollment
	for rows.Next() {
		var ce CourseEnrollment
		e := &ce.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Progress, &e.Status, &e.EnrolledAt, &ce.CourseTitle); err != nil {
			return nil, err
		}
		list = append(list, ce)
	}
	return list, rows.Err()
}

// UpdateProgress sets progress. Reaching 100 marks the enrollment completed; a
// completed enrollment stays completed.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) (*models.Enrollment, error) {
	const q = `UPDATE enrollments SET progress = $2,
		status = CASE WHEN $2 >= 100 THEN 'completed' ELSE status END
		WHERE id = $1
		RETURNING ` + enrollmentColumns
	e, err := scanEnrollment(r.pool.QueryRow(ctx, q, id, progress))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	return e, err
}
