package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/database"
)

const couponColumns = `id, code, discount_type, discount_value, valid_from, valid_until,
	usage_limit, used_count, applicable_courses, is_active, created_by, created_at`

// Repository handles coupon and coupon usage persistence.
type Repository struct {
	pool database.DB
}

// NewRepository creates a coupons repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	var c models.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.ValidFrom, &c.ValidUntil,
		&c.UsageLimit, &c.UsedCount, &c.ApplicableCourses, &c.IsActive, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByCode returns a coupon by case-insensitive code or ErrNotFound.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	q := `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	c, err := scanCoupon(r.pool.QueryRow(ctx, q, strings.TrimSpace(code)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByID returns a coupon by ID or ErrCouponNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	q := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	c, err := scanCoupon(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	return c, err
}

// List returns all coupons, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Coupon, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// Create inserts a coupon. A duplicate code returns ErrCodeExists.
func (r *Repository) Create(ctx context.Context, c *models.Coupon) error {
	const q = `INSERT INTO coupons (id, code, discount_type, discount_value, valid_from, valid_until,
		usage_limit, applicable_courses, is_active, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, used_count, created_at`
	err := r.pool.QueryRow(ctx, q, c.Code, c.DiscountType, c.DiscountValue, c.ValidFrom, c.ValidUntil,
		c.UsageLimit, c.ApplicableCourses, c.IsActive, c.CreatedBy).
		Scan(&c.ID, &c.UsedCount, &c.CreatedAt)
	if database.IsUniqueViolation(err) {
		return ErrCodeExists
	}
	return err
}

// Update writes the mutable fields of c. used_count is never written here.
func (r *Repository) Update(ctx context.Context, c *models.Coupon) error {
	const q = `UPDATE coupons SET discount_value = $2, valid_from = $3, valid_until = $4,
		usage_limit = $5, applicable_courses = $6, is_active = $7
		WHERE id = $1
		RETURNING used_count`
	err := r.pool.QueryRow(ctx, q, c.ID, c.DiscountValue, c.ValidFrom, c.ValidUntil,
		c.UsageLimit, c.ApplicableCourses, c.IsActive).Scan(&c.UsedCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCouponNotFound
	}
	return err
}

// Delete removes a coupon and, by cascade, its usage records.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// HasUsage reports whether the user already redeemed the coupon for the course.
func (r *Repository) HasUsage(ctx context.Context, couponID, userID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2 AND course_id = $3)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, couponID, userID, courseID).Scan(&ok)
	return ok, err
}

// RecordUsage inserts the usage and increments used_count in its own transaction.
func (r *Repository) RecordUsage(ctx context.Context, u *models.CouponUsage) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return RecordUsageTx(ctx, tx, u)
	})
}

// RecordUsageTx inserts the usage if absent and increments used_count while
// under the cap. A duplicate usage returns ErrAlreadyUsed; an exhausted cap
// returns ErrLimitReached. The caller must roll back tx on error.
func RecordUsageTx(ctx context.Context, tx pgx.Tx, u *models.CouponUsage) error {
	const ins = `INSERT INTO coupon_usages (id, coupon_id, user_id, course_id, discount_amount)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (coupon_id, user_id, course_id) DO NOTHING
		RETURNING id, used_at`
	err := tx.QueryRow(ctx, ins, u.CouponID, u.UserID, u.CourseID, u.DiscountAmount).Scan(&u.ID, &u.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}

	const inc = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`
	tag, err := tx.Exec(ctx, inc, u.CouponID)
	if err != nil {
		return fmt.Errorf("increment used_count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLimitReached
	}
	return nil
}
