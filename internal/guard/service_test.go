package guard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loginguard/internal/audit"
	"loginguard/internal/models"
	"loginguard/internal/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockStore implements audit.Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Record(ctx context.Context, ev *models.BlockEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockStore) List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error) {
	args := m.Called(ctx, filter)
	events, _ := args.Get(0).([]*models.BlockEvent)
	return events, args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error { return nil }

var testPolicy = ratelimit.Config{
	MaxAttempts:   3,
	Window:        time.Minute,
	BlockDuration: 5 * time.Minute,
}

func newTestService(t *testing.T, store audit.Store) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter, err := ratelimit.NewMemoryLimiter(testPolicy,
		ratelimit.WithClock(clock),
		ratelimit.WithReapInterval(time.Hour))
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	svc := NewService(limiter, testPolicy, store)
	svc.now = clock.Now
	return svc, clock
}

func requireServiceError(t *testing.T, err error, status int) *ServiceError {
	t.Helper()
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status, se.StatusCode)
	return se
}

func TestService_RecordAttempt(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for i, want := range []int{2, 1} {
		resp, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "Alice", Namespace: "login"})
		require.NoError(t, err, "attempt %d", i+1)
		assert.True(t, resp.Allowed)
		assert.Equal(t, want, resp.RemainingAttempts)
		assert.Nil(t, resp.RetryAfterMs)
		assert.Equal(t, "alice", resp.Identifier)
	}

	// Third attempt reaches the limit: allowed, block armed.
	resp, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "alice", Namespace: "login"})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Zero(t, resp.RemainingAttempts)
	require.NotNil(t, resp.RetryAfterMs)
	assert.Equal(t, int64(5*60*1000), *resp.RetryAfterMs)

	// Case-folded identifier shares the budget and is denied.
	resp, err = svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: " ALICE ", Namespace: "login"})
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	require.NotNil(t, resp.RetryAfterMs)
}

func TestService_RecordAttempt_NamespacesAreIndependent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "bob", Namespace: "login"})
		require.NoError(t, err)
	}

	resp, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "bob", Namespace: "email"})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Equal(t, 2, resp.RemainingAttempts)
}

func TestService_RecordAttempt_Invalid(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.RecordAttempt(context.Background(), &models.AttemptRequest{Identifier: "  "})
	se := requireServiceError(t, err, http.StatusUnprocessableEntity)
	assert.Equal(t, models.ErrorCodeValidation, se.Code)

	_, err = svc.RecordAttempt(context.Background(), &models.AttemptRequest{Identifier: "x", Namespace: "phone"})
	requireServiceError(t, err, http.StatusUnprocessableEntity)
}

func TestService_CheckStatusAndReset(t *testing.T) {
	svc, clock := newTestService(t, nil)
	ctx := context.Background()

	status, err := svc.CheckStatus(ctx, "carol", "login")
	require.NoError(t, err)
	assert.False(t, status.RateLimited)
	assert.Equal(t, clock.Now(), status.CheckedAt)

	for i := 0; i < 3; i++ {
		_, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "carol", Namespace: "login"})
		require.NoError(t, err)
	}

	status, err = svc.CheckStatus(ctx, "Carol", "login")
	require.NoError(t, err)
	assert.True(t, status.RateLimited)

	key, err := svc.Reset(ctx, " CAROL ", "Login")
	require.NoError(t, err)
	assert.Equal(t, "login:carol", key)

	status, err = svc.CheckStatus(ctx, "carol", "login")
	require.NoError(t, err)
	assert.False(t, status.RateLimited)

	_, err = svc.CheckStatus(ctx, "", "")
	requireServiceError(t, err, http.StatusUnprocessableEntity)
	_, err = svc.Reset(ctx, "", "")
	requireServiceError(t, err, http.StatusUnprocessableEntity)
}

func TestService_BlockExpires(t *testing.T) {
	svc, clock := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "10.0.0.1", Namespace: "ip"})
		require.NoError(t, err)
	}

	clock.Advance(5 * time.Minute)
	resp, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "10.0.0.1", Namespace: "ip"})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
}

func TestService_Stats(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "dave"})
		require.NoError(t, err)
	}
	_, err := svc.RecordAttempt(ctx, &models.AttemptRequest{Identifier: "erin"})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTrackedIdentifiers)
	assert.Equal(t, 1, stats.TotalBlockedIdentifiers)
	assert.Equal(t, 3, stats.MaxAttempts)
	assert.Equal(t, "1m0s", stats.Window)
	assert.Equal(t, "5m0s", stats.BlockDuration)
	assert.False(t, stats.AuditEnabled)
}

func TestService_ListBlocks(t *testing.T) {
	store := &MockStore{}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	events := []*models.BlockEvent{
		models.NewBlockEvent("login:frank", 3, time.Now(), time.Now().Add(time.Minute)),
	}
	store.On("List", mock.Anything, models.BlockEventFilter{Identifier: "login:frank", Limit: 10}).Return(events, nil)

	resp, err := svc.ListBlocks(ctx, &models.ListBlocksRequest{Identifier: "Frank", Namespace: "login", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, events, resp.Events)
	store.AssertExpectations(t)
}

func TestService_ListBlocks_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("journal disabled", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		_, err := svc.ListBlocks(ctx, &models.ListBlocksRequest{})
		requireServiceError(t, err, http.StatusServiceUnavailable)
	})

	t.Run("invalid limit", func(t *testing.T) {
		svc, _ := newTestService(t, &MockStore{})
		_, err := svc.ListBlocks(ctx, &models.ListBlocksRequest{Limit: models.MaxListLimit + 1})
		requireServiceError(t, err, http.StatusUnprocessableEntity)
	})

	t.Run("store failure", func(t *testing.T) {
		store := &MockStore{}
		store.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
		svc, _ := newTestService(t, store)

		_, err := svc.ListBlocks(ctx, &models.ListBlocksRequest{})
		se := requireServiceError(t, err, http.StatusInternalServerError)
		assert.Contains(t, se.Error(), "connection reset")
	})
}

func TestService_Ping(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t, nil)
	assert.NoError(t, svc.Ping(ctx))

	store := &MockStore{}
	store.On("Ping", mock.Anything).Return(audit.ErrUnavailable)
	svc, _ = newTestService(t, store)
	err := svc.Ping(ctx)
	requireServiceError(t, err, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, audit.ErrUnavailable)
}
