package quizzes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/database"
)

var ErrQuizNotFound = apperr.NotFound("quiz_not_found", "Quiz not found")

// Repository handles quiz reads and quiz result persistence.
type Repository struct {
	pool database.DB
}

// NewRepository creates a quizzes repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a quiz with its questions or ErrQuizNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	const q = `SELECT id, course_id, title, questions, created_at FROM quizzes WHERE id = $1`
	var qz models.Quiz
	err := r.pool.QueryRow(ctx, q, id).Scan(&qz.ID, &qz.CourseID, &qz.Title, &qz.Questions, &qz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	return &qz, nil
}

// ListByCourse returns the course's quizzes in creation order, ties broken by id.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Quiz, error) {
	const q = `SELECT id, course_id, title, created_at FROM quizzes WHERE course_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Quiz
	for rows.Next() {
		var qz models.Quiz
		if err := rows.Scan(&qz.ID, &qz.CourseID, &qz.Title, &qz.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, qz)
	}
	return list, rows.Err()
}

// CreateResult appends a quiz result.
func (r *Repository) CreateResult(ctx context.Context, res *models.QuizResult) error {
	const q = `INSERT INTO quiz_results (id, user_id, quiz_id, course_id, score)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, submitted_at`
	return r.pool.QueryRow(ctx, q, res.UserID, res.QuizID, res.CourseID, res.Score).Scan(&res.ID, &res.SubmittedAt)
}

// LatestScores returns the most recent score per quiz for the user in the course.
func (r *Repository) LatestScores(ctx context.Context, userID, courseID uuid.UUID) (map[uuid.UUID]float64, error) {
	const q = `SELECT DISTINCT ON (quiz_id) quiz_id, score FROM quiz_results
		WHERE user_id = $1 AND course_id = $2
		ORDER BY quiz_id, submitted_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scores := make(map[uuid.UUID]float64)
	for rows.Next() {
		var id uuid.UUID
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		scores[id] = score
	}
	return scores, rows.Err()
}
