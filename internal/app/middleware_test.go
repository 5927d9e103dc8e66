package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

func newNopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestIdentityMiddlewareExtractsClaims(t *testing.T) {
	var captured authz.UserContext
	var present bool
	handler := IdentityMiddleware(newNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, present = authz.UserFromContext(r.Context())
	}))

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/authz/decide", nil)
	req.Header.Set(HeaderUserID, userID.String())
	req.Header.Set(HeaderUserRole, "member")
	req.Header.Set(HeaderSubscriptionTier, "pro")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, present)
	require.Equal(t, userID, captured.UserID)
	require.Equal(t, authz.RoleMember, captured.Role)
	require.Equal(t, authz.TierPro, captured.Tier)
}

func TestIdentityMiddlewareRejectsMalformedClaims(t *testing.T) {
	handler := IdentityMiddleware(newNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for malformed claims")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderUserID, uuid.NewString())
	req.Header.Set(HeaderUserRole, "member")
	req.Header.Set(HeaderSubscriptionTier, "platinum")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIdentityMiddlewarePassesAnonymousRequests(t *testing.T) {
	var present bool
	handler := IdentityMiddleware(newNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = authz.UserFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, present)
}

func TestAdminTokenMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	var reached bool
	handler := AdminTokenMiddleware(string(hash), newNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/roles", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.False(t, reached)

	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.False(t, reached)

	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, reached)
}
