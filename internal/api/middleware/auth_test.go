package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docrag/internal/domain"
)

type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func TestBearerAuth_Success(t *testing.T) {
	mockValidator := new(MockTokenValidator)
	mockValidator.On("ValidateToken", mock.Anything, "tok-alice").Return("alice", nil)

	var capturedActorID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedActorID = GetActorID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := BearerAuth(mockValidator)(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", capturedActorID)
	mockValidator.AssertExpectations(t)
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	BearerAuth(new(MockTokenValidator))(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestBearerAuth_InvalidFormat(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()

	BearerAuth(new(MockTokenValidator))(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestBearerAuth_ValidationFails(t *testing.T) {
	mockValidator := new(MockTokenValidator)
	mockValidator.On("ValidateToken", mock.Anything, "bad").Return("", errors.New("invalid key"))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()

	BearerAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid api token")
	mockValidator.AssertExpectations(t)
}

func TestStaticTokens(t *testing.T) {
	tokens := NewStaticTokens(map[string]string{
		"alice": "tok-a",
		"bob":   "tok-b",
		"empty": "",
	})
	ctx := context.Background()

	actor, err := tokens.ValidateToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, "alice", actor)

	actor, err = tokens.ValidateToken(ctx, "tok-b")
	require.NoError(t, err)
	assert.Equal(t, "bob", actor)

	_, err = tokens.ValidateToken(ctx, "tok-c")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)

	_, err = tokens.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey, "actors without a token never match")
}

func TestGetActorID(t *testing.T) {
	ctx := context.WithValue(context.Background(), ActorIDKey, "actor-123")
	assert.Equal(t, "actor-123", GetActorID(ctx))
	assert.Equal(t, "", GetActorID(context.Background()))
}
