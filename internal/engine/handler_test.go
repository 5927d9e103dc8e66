package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/authz"
)

type memorySink struct {
	events []audit.Event
}

func (m *memorySink) Record(ctx context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

func newDecideServer(t *testing.T, f *engineFixture) (*chi.Mux, *memorySink) {
	t.Helper()
	sink := &memorySink{}
	handler := NewHandler(nil, f.engine, audit.NewRecorder(sink, sink, nil))
	r := chi.NewRouter()
	r.Route("/v1/authz", handler.MountRoutes)
	return r, sink
}

func asUser(req *http.Request, user authz.UserContext) *http.Request {
	return req.WithContext(authz.ContextWithUser(req.Context(), user))
}

func TestDecideEndpointAllows(t *testing.T) {
	f := newFixture(t)
	router, sink := newDecideServer(t, f)
	user := authz.UserContext{UserID: uuid.New(), Role: authz.RoleMember, Tier: authz.TierFree}

	body := `{"resource":"task","action":"create","target":{"owner_id":"` + user.UserID.String() + `","visibility":"personal"}}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/authz/decide", strings.NewReader(body)), user)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"allowed":true`)
	require.Contains(t, rr.Body.String(), `"scope":"own"`)
	require.Contains(t, rr.Body.String(), `"max_items":100`)
	require.Len(t, sink.events, 1, "every decision is audited")
}

func TestDecideEndpointAppliesUsage(t *testing.T) {
	f := newFixture(t)
	router, _ := newDecideServer(t, f)
	user := authz.UserContext{UserID: uuid.New(), Role: authz.RoleMember, Tier: authz.TierFree}

	body := `{"resource":"task","action":"create","current_items":100,"target":{"owner_id":"` + user.UserID.String() + `","visibility":"personal"}}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/authz/decide", strings.NewReader(body)), user)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"quota_exceeded"`)
}

func TestDecideEndpointRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	router, _ := newDecideServer(t, f)

	req := httptest.NewRequest(http.MethodPost, "/v1/authz/decide", strings.NewReader(`{"resource":"task","action":"view"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDecideEndpointRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	router, _ := newDecideServer(t, f)
	user := authz.UserContext{UserID: uuid.New(), Role: authz.RoleMember, Tier: authz.TierFree}

	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/authz/decide", strings.NewReader(`{"resource":`)), user)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
