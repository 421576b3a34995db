package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/learnhub/backend/internal/coupons"
	"github.com/learnhub/backend/internal/enrollments"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/pkg/database"
)

const paymentColumns = `id, user_id, course_id, amount, original_amount, discount_amount,
	coupon_code, session_id, checkout_url, idempotency_key, payment_status, created_at, updated_at`

// Repository handles payment persistence and the paid transition.
type Repository struct {
	pool database.DB
}

// NewRepository creates a payments repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.Amount, &p.OriginalAmount, &p.DiscountAmount,
		&p.CouponCode, &p.SessionID, &p.CheckoutURL, &p.IdempotencyKey, &p.PaymentStatus, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePending inserts a pending payment and, when usage is non-nil, redeems the
// coupon in the same transaction. Coupon conflicts roll the whole write back. A
// session id or idempotency key that is already recorded returns ErrDuplicatePayment.
func (r *Repository) CreatePending(ctx context.Context, p *models.Payment, usage *models.CouponUsage) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO payments (id, user_id, course_id, amount, original_amount, discount_amount,
			coupon_code, session_id, checkout_url, idempotency_key, payment_status)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')
			RETURNING ` + paymentColumns
		got, err := scanPayment(tx.QueryRow(ctx, q, p.UserID, p.CourseID, p.Amount, p.OriginalAmount,
			p.DiscountAmount, p.CouponCode, p.SessionID, p.CheckoutURL, p.IdempotencyKey))
		if database.IsUniqueViolation(err) {
			return ErrDuplicatePayment.Wrap(err)
		}
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		*p = *got
		if usage == nil {
			return nil
		}
		return coupons.RecordUsageTx(ctx, tx, usage)
	})
}

// GetBySessionID returns a payment by provider session id or ErrPaymentNotFound.
func (r *Repository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE session_id = $1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// FindByIdempotencyKey returns the user's payment recorded under key or ErrPaymentNotFound.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 AND idempotency_key = $2`
	p, err := scanPayment(r.pool.QueryRow(ctx, q, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// SettlePaid moves the payment to paid and applies its side effects in one
// transaction. Only the caller whose conditional update matched a non-paid row
// sees Transitioned; every other caller gets a no-op.
func (r *Repository) SettlePaid(ctx context.Context, sessionID string, commission decimal.Decimal) (*Settlement, error) {
	var out *Settlement
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const upd = `UPDATE payments SET payment_status = 'paid', updated_at = NOW()
			WHERE session_id = $1 AND payment_status <> 'paid'
			RETURNING ` + paymentColumns
		p, err := scanPayment(tx.QueryRow(ctx, upd, sessionID))
		if errors.Is(err, pgx.ErrNoRows) {
			out = &Settlement{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}

		created, err := enrollments.CreateTx(ctx, tx, p.UserID, p.CourseID)
		if err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}

		share := InstructorShare(p.Amount, commission)
		const credit = `UPDATE instructors i SET earnings = i.earnings + $2
			FROM courses c WHERE c.id = $1 AND i.id = c.instructor_id`
		if _, err := tx.Exec(ctx, credit, p.CourseID, share); err != nil {
			return fmt.Errorf("credit instructor: %w", err)
		}
		out = &Settlement{Payment: p, Transitioned: true, EnrollmentCreated: created, InstructorShare: share}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkFailed moves a pending payment to failed and reports whether it did.
func (r *Repository) MarkFailed(ctx context.Context, sessionID string) (bool, error) {
	const q = `UPDATE payments SET payment_status = 'failed', updated_at = NOW()
		WHERE session_id = $1 AND payment_status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStalePending returns up to limit pending payments created before cutoff, oldest first.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments
		WHERE payment_status = 'pending' AND created_at < $1
		ORDER BY created_at LIMIT $2`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}
