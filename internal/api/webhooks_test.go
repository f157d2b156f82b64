package api

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bobarin/adshot/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewHandler(&db.DB{DB: conn}, nil, nil, nil), mock
}

func postWebhook(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/identity", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func TestHandleWebhookUserCreated(t *testing.T) {
	h, mock := newWebhookHandler(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (id, email, name, image)`)).
		WithArgs("user_1", "new@example.com", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"credits", "daily_credits", "last_credit_reset", "created_at", "updated_at"}).
			AddRow(0, 20, now, now, now))

	rec := postWebhook(h, `{"type":"user.created","data":{"id":"user_1","email":"new@example.com"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWebhookUserDeletedToleratesMissing(t *testing.T) {
	h, mock := newWebhookHandler(t)

	// The user may never have hit the backend; the event is still acknowledged.
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := postWebhook(h, `{"type":"user.deleted","data":{"id":"ghost"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWebhookPaymentPaid(t *testing.T) {
	h, mock := newWebhookHandler(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(80, "user_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postWebhook(h, `{"type":"payment.updated","data":{"user_id":"user_1","charge_type":"recurring","status":"paid","plan_slug":"pro"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWebhookPaymentNotSettled(t *testing.T) {
	h, _ := newWebhookHandler(t)

	// Unpaid events are acknowledged without touching the ledger.
	rec := postWebhook(h, `{"type":"payment.updated","data":{"user_id":"user_1","charge_type":"recurring","status":"pending","plan_slug":"pro"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWebhookUnknownPlan(t *testing.T) {
	h, _ := newWebhookHandler(t)

	rec := postWebhook(h, `{"type":"payment.updated","data":{"user_id":"user_1","charge_type":"checkout","status":"paid","plan_slug":"enterprise"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhookInvalidPayload(t *testing.T) {
	h, _ := newWebhookHandler(t)

	assert.Equal(t, http.StatusBadRequest, postWebhook(h, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postWebhook(h, `{"type":"user.created","data":{}}`).Code)
}
