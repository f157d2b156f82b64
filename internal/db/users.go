package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/adshot/internal/models"
)

// GetUser retrieves a user by their identity-provider ID.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, name, image, credits, daily_credits, last_credit_reset, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Image,
		&user.Credits, &user.DailyCredits, &user.LastCreditReset,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpsertUser creates or updates a user record from an identity webhook event.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = COALESCE(EXCLUDED.name, users.name),
			image = COALESCE(EXCLUDED.image, users.image),
			updated_at = NOW()
		RETURNING credits, daily_credits, last_credit_reset, created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		user.ID, user.Email, user.Name, user.Image,
	).Scan(&user.Credits, &user.DailyCredits, &user.LastCreditReset, &user.CreatedAt, &user.UpdatedAt)
}

// DeleteUser removes a user record. Their projects are removed with it
// (ON DELETE CASCADE).
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	return nil
}

// ResetDailyCredits sets the daily balance back to the limit and stamps the
// reset time, but only when the stored reset stamp is from an earlier calendar
// day. The date guard in the WHERE clause serializes the reset against
// concurrent ledger writes the same way the debit's balance guard does: once
// any request has stamped today, a second reset matches no row and cannot
// clobber debits that landed in between. Returns ErrPreconditionFailed in that
// case; the caller re-reads for the current balances.
func (db *DB) ResetDailyCredits(ctx context.Context, id string, limit int, now time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET daily_credits = $1, last_credit_reset = $2, updated_at = NOW()
		WHERE id = $3 AND last_credit_reset::date < $2::date
		RETURNING id, email, name, image, credits, daily_credits, last_credit_reset, created_at, updated_at
	`

	user := &models.User{}
	err := db.QueryRowContext(ctx, query, limit, now, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Image,
		&user.Credits, &user.DailyCredits, &user.LastCreditReset,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("daily credits for user %s already reset: %w", id, ErrPreconditionFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset daily credits: %w", err)
	}

	return user, nil
}

// DebitCredits atomically decrements both balances by amount, but only when
// both can cover it. The conditional UPDATE is the serialization point: two
// concurrent debits against a balance only one can satisfy hit the row lock in
// turn, and the loser's WHERE clause no longer matches. Returns ok=false with
// no mutation when the balance check fails.
func (db *DB) DebitCredits(ctx context.Context, id string, amount int) (*models.User, bool, error) {
	query := `
		UPDATE users
		SET credits = credits - $1, daily_credits = daily_credits - $1, updated_at = NOW()
		WHERE id = $2 AND credits >= $1 AND daily_credits >= $1
		RETURNING id, email, name, image, credits, daily_credits, last_credit_reset, created_at, updated_at
	`

	user := &models.User{}
	err := db.QueryRowContext(ctx, query, amount, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Image,
		&user.Credits, &user.DailyCredits, &user.LastCreditReset,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to debit credits: %w", err)
	}

	return user, true, nil
}

// RefundCredits unconditionally increments both balances by amount. Used only
// to compensate a debit whose downstream work failed.
func (db *DB) RefundCredits(ctx context.Context, id string, amount int) (*models.User, error) {
	query := `
		UPDATE users
		SET credits = credits + $1, daily_credits = daily_credits + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, email, name, image, credits, daily_credits, last_credit_reset, created_at, updated_at
	`

	user := &models.User{}
	err := db.QueryRowContext(ctx, query, amount, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Image,
		&user.Credits, &user.DailyCredits, &user.LastCreditReset,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refund credits: %w", err)
	}

	return user, nil
}

// AddCredits tops up the total balance from a confirmed payment event. The
// daily balance is untouched; it refills on the next calendar-day reset.
func (db *DB) AddCredits(ctx context.Context, id string, amount int) error {
	result, err := db.ExecContext(
		ctx,
		`UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	return nil
}
