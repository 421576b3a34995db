package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/database"
)

var ErrCourseNotFound = apperr.NotFound("course_not_found", "Course not found")

// Repository reads catalog courses. Catalog writes belong to the catalog service.
type Repository struct {
	pool database.DB
}

// NewRepository creates a courses repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a course by ID or ErrCourseNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	const q = `SELECT id, instructor_id, title, price, status, created_at FROM courses WHERE id = $1`
	var c models.Course
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.InstructorID, &c.Title, &c.Price, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
