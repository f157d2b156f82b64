package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/models"
)

// Phase costs and the daily cap. Refunds must always use the same constant as
// the debit they compensate.
const (
	ImageCost  = 5
	VideoCost  = 10
	DailyLimit = 20
)

// UserStore is the slice of the persistence layer the ledger needs. The store
// is responsible for making DebitCredits atomic per user (the Postgres
// implementation relies on a conditional UPDATE taking the row lock).
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ResetDailyCredits(ctx context.Context, id string, limit int, now time.Time) (*models.User, error)
	DebitCredits(ctx context.Context, id string, amount int) (*models.User, bool, error)
	RefundCredits(ctx context.Context, id string, amount int) (*models.User, error)
}

// Ledger meters generation credits: a total balance funded by payments and a
// daily-capped balance that refills once per calendar day.
type Ledger struct {
	store UserStore
	now   func() time.Time
}

func NewLedger(store UserStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// NewLedgerWithClock is for tests that need to control the calendar.
func NewLedgerWithClock(store UserStore, now func() time.Time) *Ledger {
	return &Ledger{store: store, now: now}
}

// ResetIfNewDay refills the daily balance when the last reset happened on an
// earlier calendar day. Same-day calls are no-ops, so the reset is idempotent
// within a day. The comparison uses date components, not elapsed time.
//
// The check here is only an optimization; the store's conditional write is the
// authority. When it reports the day already stamped, a concurrent request won
// the reset (and may have debited since), so the current row wins.
func (l *Ledger) ResetIfNewDay(ctx context.Context, userID string) (*models.User, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if sameCalendarDay(now, user.LastCreditReset) {
		return user, nil
	}

	reset, err := l.store.ResetDailyCredits(ctx, userID, DailyLimit, now)
	if errors.Is(err, db.ErrPreconditionFailed) {
		return l.store.GetUser(ctx, userID)
	}
	return reset, err
}

// TryDebit atomically takes amount from both balances. ok=false means at
// least one balance could not cover the amount and nothing was mutated.
func (l *Ledger) TryDebit(ctx context.Context, userID string, amount int) (*models.User, bool, error) {
	if amount <= 0 {
		return nil, false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return l.store.DebitCredits(ctx, userID, amount)
}

// Refund returns amount to both balances. It compensates a debit that was
// followed by a downstream failure and must be called with the exact amount
// that was debited.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	_, err := l.store.RefundCredits(ctx, userID, amount)
	return err
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
