package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loginguard/internal/guard"
	"loginguard/internal/models"
)

// MockGuardService implements the guard.ServiceInterface for testing
type MockGuardService struct {
	mock.Mock
}

func (m *MockGuardService) RecordAttempt(ctx context.Context, req *models.AttemptRequest) (*models.AttemptResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.AttemptResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) CheckStatus(ctx context.Context, identifier, namespace string) (*models.StatusResponse, error) {
	args := m.Called(ctx, identifier, namespace)
	resp, _ := args.Get(0).(*models.StatusResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) Reset(ctx context.Context, identifier, namespace string) (string, error) {
	args := m.Called(ctx, identifier, namespace)
	return args.String(0), args.Error(1)
}

func (m *MockGuardService) Stats(ctx context.Context) (*models.StatsResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*models.StatsResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) ListBlocks(ctx context.Context, req *models.ListBlocksRequest) (*models.ListBlocksResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.ListBlocksResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func openConfig() *models.Config {
	config := models.NewDefaultConfig()
	config.Security.EnableAuth = false
	return config
}

func serve(t *testing.T, svc guard.ServiceInterface, config *models.Config, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := SetupRoutes(NewHandlers(svc, WithVersion("test")), config)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestNewHandlers(t *testing.T) {
	mockService := &MockGuardService{}
	handlers := NewHandlers(mockService, WithVersion("1.2.3"))

	assert.Equal(t, mockService, handlers.guardService)
	assert.Equal(t, "1.2.3", handlers.version)
	assert.False(t, handlers.startTime.IsZero())
}

func TestHandlers_RecordAttempt_Allowed(t *testing.T) {
	mockService := &MockGuardService{}
	mockService.On("RecordAttempt", mock.Anything, &models.AttemptRequest{Identifier: "alice", Namespace: "login"}).
		Return(&models.AttemptResponse{Identifier: "alice", Allowed: true, RemainingAttempts: 4}, nil)

	body := bytes.NewBufferString(`{"identifier":"alice","namespace":"login"}`)
	rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodPost, "/api/v1/attempts", body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Empty(t, rr.Header().Get("Retry-After"))

	var resp models.AttemptResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
	assert.Equal(t, 4, resp.RemainingAttempts)
	mockService.AssertExpectations(t)
}

func TestHandlers_RecordAttempt_Denied(t *testing.T) {
	denied := &models.AttemptResponse{Identifier: "alice", Allowed: false}
	denied.SetRetryAfter(1500 * time.Millisecond)

	mockService := &MockGuardService{}
	mockService.On("RecordAttempt", mock.Anything, mock.Anything).Return(denied, nil)

	body := bytes.NewBufferString(`{"identifier":"alice"}`)
	rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodPost, "/api/v1/attempts", body))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	var resp models.AttemptResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
	require.NotNil(t, resp.RetryAfterMs)
	assert.Equal(t, int64(1500), *resp.RetryAfterMs)
}

func TestHandlers_RecordAttempt_Errors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		mockService := &MockGuardService{}
		body := bytes.NewBufferString(`{not json`)
		rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodPost, "/api/v1/attempts", body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "RecordAttempt", mock.Anything, mock.Anything)
	})

	t.Run("validation error", func(t *testing.T) {
		mockService := &MockGuardService{}
		mockService.On("RecordAttempt", mock.Anything, mock.Anything).
			Return(nil, guard.NewValidationError("invalid attempt request", errors.New("identifier is required")))

		body := bytes.NewBufferString(`{"identifier":""}`)
		rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodPost, "/api/v1/attempts", body))

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, models.ErrorCodeValidation, resp.Code)
		assert.Contains(t, resp.Message, "identifier is required")
	})

	t.Run("unexpected error hides details", func(t *testing.T) {
		mockService := &MockGuardService{}
		mockService.On("RecordAttempt", mock.Anything, mock.Anything).Return(nil, errors.New("secret detail"))

		body := bytes.NewBufferString(`{"identifier":"x"}`)
		rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodPost, "/api/v1/attempts", body))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "secret detail")
	})
}

func TestHandlers_GetStatus(t *testing.T) {
	checkedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mockService := &MockGuardService{}
	mockService.On("CheckStatus", mock.Anything, "bob@example.com", "email").
		Return(&models.StatusResponse{Identifier: "bob@example.com", RateLimited: true, CheckedAt: checkedAt}, nil)

	rr := serve(t, mockService, openConfig(),
		httptest.NewRequest(http.MethodGet, "/api/v1/identifiers/bob@example.com?namespace=email", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.RateLimited)
	assert.Equal(t, checkedAt, resp.CheckedAt)
	mockService.AssertExpectations(t)
}

func TestHandlers_ResetIdentifier(t *testing.T) {
	mockService := &MockGuardService{}
	mockService.On("Reset", mock.Anything, "Carol", "LOGIN").Return("login:carol", nil)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	rr := serve(t, mockService, openConfig(),
		httptest.NewRequest(http.MethodDelete, "/api/v1/identifiers/Carol?namespace=LOGIN", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp models.ResetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "login:carol", resp.Identifier)
	assert.Contains(t, logs.String(), `"identifier":"login:carol"`)
	assert.NotContains(t, logs.String(), "LOGIN:Carol")
	mockService.AssertExpectations(t)
}

func TestHandlers_GetStats(t *testing.T) {
	mockService := &MockGuardService{}
	mockService.On("Stats", mock.Anything).Return(&models.StatsResponse{
		TotalTrackedIdentifiers: 7,
		TotalBlockedIdentifiers: 2,
		MaxAttempts:             5,
		Window:                  "15m0s",
		BlockDuration:           "30m0s",
	}, nil)

	rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp models.StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.TotalTrackedIdentifiers)
	assert.Equal(t, 2, resp.TotalBlockedIdentifiers)
}

func TestHandlers_ListBlocks(t *testing.T) {
	t.Run("passes filter", func(t *testing.T) {
		mockService := &MockGuardService{}
		mockService.On("ListBlocks", mock.Anything, &models.ListBlocksRequest{Identifier: "dave", Namespace: "login", Limit: 5}).
			Return(&models.ListBlocksResponse{Events: []*models.BlockEvent{}, Count: 0}, nil)

		rr := serve(t, mockService, openConfig(),
			httptest.NewRequest(http.MethodGet, "/api/v1/blocks?identifier=dave&namespace=login&limit=5", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("bad limit", func(t *testing.T) {
		mockService := &MockGuardService{}
		rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodGet, "/api/v1/blocks?limit=abc", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("journal disabled", func(t *testing.T) {
		mockService := &MockGuardService{}
		mockService.On("ListBlocks", mock.Anything, mock.Anything).
			Return(nil, guard.NewUnavailableError("audit journal is disabled", nil))

		rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodGet, "/api/v1/blocks", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestHandlers_HealthCheck(t *testing.T) {
	for _, path := range []string{"/health", "/api/v1/health"} {
		t.Run(path, func(t *testing.T) {
			mockService := &MockGuardService{}
			mockService.On("Ping", mock.Anything).Return(nil)

			rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, rr.Code)
			var resp models.HealthCheckResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, models.StatusHealthy, resp.Status)
			assert.Equal(t, "test", resp.Version)
			assert.Contains(t, resp.Components, "limiter")
			assert.Contains(t, resp.Components, "audit")
		})
	}

	t.Run("degraded when audit store is down", func(t *testing.T) {
		mockService := &MockGuardService{}
		mockService.On("Ping", mock.Anything).Return(guard.NewUnavailableError("audit store unreachable", nil))

		rr := serve(t, mockService, openConfig(), httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp models.HealthCheckResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, models.StatusDegraded, resp.Status)
		assert.Equal(t, models.StatusUnhealthy, resp.Components["audit"].Status)
	})
}

func TestRouting_MethodNotAllowed(t *testing.T) {
	rr := serve(t, &MockGuardService{}, openConfig(), httptest.NewRequest(http.MethodGet, "/api/v1/attempts", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouting_NotFound(t *testing.T) {
	rr := serve(t, &MockGuardService{}, openConfig(), httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), models.ErrorCodeInternalError)
}

func TestRetryAfterHeader(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "1"},
		{1, "1"},
		{1000, "1"},
		{1001, "2"},
		{120000, "120"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfterHeader(tt.ms), "ms=%d", tt.ms)
	}
}
