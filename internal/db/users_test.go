package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "email", "name", "image", "credits", "daily_credits",
	"last_credit_reset", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return &DB{conn}, mock
}

func userRow(credits, daily int, t0 time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).
		AddRow("user_1", "test@example.com", nil, nil, credits, daily, t0, t0, t0)
}

func TestGetUserNotFound(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, name, image, credits, daily_credits, last_credit_reset, created_at, updated_at FROM users WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := database.GetUser(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDebitCreditsSuccess(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users SET credits = credits - $1, daily_credits = daily_credits - $1, updated_at = NOW() WHERE id = $2 AND credits >= $1 AND daily_credits >= $1`)).
		WithArgs(5, "user_1").
		WillReturnRows(userRow(15, 15, now))

	user, ok, err := database.DebitCredits(context.Background(), "user_1", 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15, user.Credits)
	assert.Equal(t, 15, user.DailyCredits)
}

func TestDebitCreditsGuardRejects(t *testing.T) {
	database, mock := newMockDB(t)

	// The WHERE clause matched no row: either balance was short. ok=false,
	// nothing mutated, no error.
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $2 AND credits >= $1 AND daily_credits >= $1`)).
		WithArgs(10, "user_1").
		WillReturnError(sql.ErrNoRows)

	user, ok, err := database.DebitCredits(context.Background(), "user_1", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, user)
}

func TestResetDailyCredits(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users SET daily_credits = $1, last_credit_reset = $2, updated_at = NOW() WHERE id = $3 AND last_credit_reset::date < $2::date`)).
		WithArgs(20, now, "user_1").
		WillReturnRows(userRow(42, 20, now))

	user, err := database.ResetDailyCredits(context.Background(), "user_1", 20, now)
	require.NoError(t, err)
	assert.Equal(t, 20, user.DailyCredits)
	assert.Equal(t, 42, user.Credits)
}

func TestResetDailyCreditsAlreadyStamped(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now()

	// The date guard matched no row: someone already stamped today.
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $3 AND last_credit_reset::date < $2::date`)).
		WithArgs(20, now, "user_1").
		WillReturnError(sql.ErrNoRows)

	_, err := database.ResetDailyCredits(context.Background(), "user_1", 20, now)
	assert.True(t, errors.Is(err, ErrPreconditionFailed))
}

func TestRefundCredits(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users SET credits = credits + $1, daily_credits = daily_credits + $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(10, "user_1").
		WillReturnRows(userRow(20, 20, now))

	user, err := database.RefundCredits(context.Background(), "user_1", 10)
	require.NoError(t, err)
	assert.Equal(t, 20, user.Credits)
	assert.Equal(t, 20, user.DailyCredits)
}

func TestAddCredits(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(80, "user_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, database.AddCredits(context.Background(), "user_1", 80))
}

func TestAddCreditsUserNotFound(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET credits = credits + $1`)).
		WithArgs(80, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := database.AddCredits(context.Background(), "missing", 80)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteUser(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
		WithArgs("user_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, database.DeleteUser(context.Background(), "user_1"))
}
