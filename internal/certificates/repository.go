package certificates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/backend/internal/apperr"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/database"
)

var ErrCertificateNotFound = apperr.NotFound("certificate_not_found", "Certificate not found")

// Repository handles certificate persistence.
type Repository struct {
	pool database.DB
}

// NewRepository creates a certificates repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

// Find returns the certificate for (user, course), or nil if none was issued.
func (r *Repository) Find(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, error) {
	const q = `SELECT id, user_id, course_id, issued_date FROM certificates WHERE user_id = $1 AND course_id = $2`
	var cert models.Certificate
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.IssuedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// CreateIfAbsent inserts a certificate for (user, course). created is false when a
// concurrent issuer won; the returned certificate is then the existing one.
func (r *Repository) CreateIfAbsent(ctx context.Context, userID, courseID uuid.UUID) (*models.Certificate, bool, error) {
	const q = `INSERT INTO certificates (id, user_id, course_id)
		VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING id, user_id, course_id, issued_date`
	var cert models.Certificate
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.IssuedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.Find(ctx, userID, courseID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, errors.New("certificate vanished after conflict")
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &cert, true, nil
}

// GetByID returns a certificate by ID or ErrCertificateNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	const q = `SELECT id, user_id, course_id, issued_date FROM certificates WHERE id = $1`
	var cert models.Certificate
	err := r.pool.QueryRow(ctx, q, id).Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.IssuedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListByUser returns the user's certificates, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	const q = `SELECT id, user_id, course_id, issued_date FROM certificates WHERE user_id = $1 ORDER BY issued_date DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Certificate
	for rows.Next() {
		var cert models.Certificate
		if err := rows.Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.IssuedDate); err != nil {
			return nil, err
		}
		list = append(list, cert)
	}
	return list, rows.Err()
}
