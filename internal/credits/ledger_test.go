package credits

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUserStore is an in-memory UserStore with the same atomicity contract as
// the Postgres implementation: the balance check and the decrement happen
// under one lock.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserStore(users ...*models.User) *memUserStore {
	s := &memUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

var errUserNotFound = fmt.Errorf("user not found")

func (s *memUserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUserStore) ResetDailyCredits(ctx context.Context, id string, limit int, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errUserNotFound
	}
	// Same date-guard semantics as the conditional UPDATE.
	if sameCalendarDay(now, u.LastCreditReset) {
		return nil, fmt.Errorf("daily credits for user %s already reset: %w", id, db.ErrPreconditionFailed)
	}
	u.DailyCredits = limit
	u.LastCreditReset = now
	copied := *u
	return &copied, nil
}

func (s *memUserStore) DebitCredits(ctx context.Context, id string, amount int) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false, nil
	}
	if u.Credits < amount || u.DailyCredits < amount {
		return nil, false, nil
	}
	u.Credits -= amount
	u.DailyCredits -= amount
	copied := *u
	return &copied, true, nil
}

func (s *memUserStore) RefundCredits(ctx context.Context, id string, amount int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errUserNotFound
	}
	u.Credits += amount
	u.DailyCredits += amount
	copied := *u
	return &copied, nil
}

func testUser(credits, daily int, lastReset time.Time) *models.User {
	return &models.User{
		ID:              "user_1",
		Email:           "test@example.com",
		Credits:         credits,
		DailyCredits:    daily,
		LastCreditReset: lastReset,
	}
}

func TestResetIfNewDayResetsOnNewCalendarDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC)
	yesterday := time.Date(2025, 6, 1, 23, 55, 0, 0, time.UTC)

	store := newMemUserStore(testUser(100, 3, yesterday))
	ledger := NewLedgerWithClock(store, func() time.Time { return now })

	user, err := ledger.ResetIfNewDay(context.Background(), "user_1")
	require.NoError(t, err)

	// Only minutes elapsed, but the calendar day changed.
	assert.Equal(t, DailyLimit, user.DailyCredits)
	assert.Equal(t, 100, user.Credits)
	assert.Equal(t, now, user.LastCreditReset)
}

func TestResetIfNewDayIdempotentWithinDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	store := newMemUserStore(testUser(100, 3, yesterday))
	ledger := NewLedgerWithClock(store, func() time.Time { return now })

	user, err := ledger.ResetIfNewDay(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, DailyLimit, user.DailyCredits)

	// Spend some, then check again the same day: no second reset.
	_, ok, err := ledger.TryDebit(context.Background(), "user_1", ImageCost)
	require.NoError(t, err)
	require.True(t, ok)

	user, err = ledger.ResetIfNewDay(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, DailyLimit-ImageCost, user.DailyCredits)
}

// gatedResetStore delays one reset write so another ledger operation can land
// in between the ledger's read and the write, reproducing a reset/debit race.
type gatedResetStore struct {
	*memUserStore
	beforeReset func()
}

func (s *gatedResetStore) ResetDailyCredits(ctx context.Context, id string, limit int, now time.Time) (*models.User, error) {
	if hook := s.beforeReset; hook != nil {
		s.beforeReset = nil
		hook()
	}
	return s.memUserStore.ResetDailyCredits(ctx, id, limit, now)
}

func TestResetIfNewDayDoesNotClobberConcurrentDebit(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	inner := newMemUserStore(testUser(50, 3, yesterday))
	clock := func() time.Time { return now }

	store := &gatedResetStore{memUserStore: inner}
	ledger := NewLedgerWithClock(store, clock)

	// While the first request sits between its stale read and the reset
	// write, a second request runs the full reset-then-debit sequence.
	store.beforeReset = func() {
		other := NewLedgerWithClock(inner, clock)
		_, err := other.ResetIfNewDay(context.Background(), "user_1")
		require.NoError(t, err)
		_, ok, err := other.TryDebit(context.Background(), "user_1", ImageCost)
		require.NoError(t, err)
		require.True(t, ok)
	}

	user, err := ledger.ResetIfNewDay(context.Background(), "user_1")
	require.NoError(t, err)

	// The late reset must not rewind the debit back to the cap.
	assert.Equal(t, DailyLimit-ImageCost, user.DailyCredits)
	assert.Equal(t, 50-ImageCost, user.Credits)

	current, err := inner.GetUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, DailyLimit-ImageCost, current.DailyCredits)
}

func TestResetIfNewDayUserNotFound(t *testing.T) {
	store := newMemUserStore()
	ledger := NewLedger(store)

	_, err := ledger.ResetIfNewDay(context.Background(), "missing")
	require.Error(t, err)
}

func TestTryDebitRejectsWhenEitherBalanceShort(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		credits int
		daily   int
		wantOK  bool
	}{
		{"both sufficient", 10, 10, true},
		{"total short", 4, 10, false},
		{"daily short", 10, 4, false},
		{"both short", 4, 4, false},
		{"exact", 5, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemUserStore(testUser(tt.credits, tt.daily, now))
			ledger := NewLedger(store)

			user, ok, err := ledger.TryDebit(context.Background(), "user_1", ImageCost)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)

			if ok {
				assert.Equal(t, tt.credits-ImageCost, user.Credits)
				assert.Equal(t, tt.daily-ImageCost, user.DailyCredits)
			} else {
				// Failed debit mutates nothing.
				current, err := store.GetUser(context.Background(), "user_1")
				require.NoError(t, err)
				assert.Equal(t, tt.credits, current.Credits)
				assert.Equal(t, tt.daily, current.DailyCredits)
			}

			// Balances never go negative.
			current, err := store.GetUser(context.Background(), "user_1")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, current.Credits, 0)
			assert.GreaterOrEqual(t, current.DailyCredits, 0)
		})
	}
}

func TestTryDebitConcurrentNoDoubleSpend(t *testing.T) {
	const (
		workers = 10
		amount  = 5
	)
	// Balance covers exactly workers-1 debits.
	balance := (workers - 1) * amount

	store := newMemUserStore(testUser(balance, balance, time.Now()))
	ledger := NewLedger(store)

	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := ledger.TryDebit(context.Background(), "user_1", amount)
			require.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for ok := range results {
		if ok {
			succeeded++
		}
	}

	assert.Equal(t, workers-1, succeeded)

	user, err := store.GetUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Credits)
	assert.Equal(t, 0, user.DailyCredits)
}

func TestRefundRestoresBothBalances(t *testing.T) {
	store := newMemUserStore(testUser(20, 20, time.Now()))
	ledger := NewLedger(store)

	_, ok, err := ledger.TryDebit(context.Background(), "user_1", VideoCost)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ledger.Refund(context.Background(), "user_1", VideoCost))

	user, err := store.GetUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 20, user.Credits)
	assert.Equal(t, 20, user.DailyCredits)
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	store := newMemUserStore(testUser(20, 20, time.Now()))
	ledger := NewLedger(store)

	_, _, err := ledger.TryDebit(context.Background(), "user_1", 0)
	assert.Error(t, err)

	assert.Error(t, ledger.Refund(context.Background(), "user_1", -5))
}
