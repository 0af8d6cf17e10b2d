package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/credstore"
	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/session"
)

const signInPath = "/sign-in"

func signedToken(t *testing.T) string {
	t.Helper()
	claims := domain.ConsoleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func testUser() *domain.CachedUser {
	return &domain.CachedUser{UserName: "asha.rao", Role: domain.RoleAdmin, Status: domain.StatusActive}
}

// newSignedInClient wires a client over a real store with an authenticated
// session.
func newSignedInClient(t *testing.T, upstream *httptest.Server) (*Client, *session.Manager) {
	t.Helper()
	store := credstore.NewFileStore(t.TempDir(), zap.NewNop())
	sessions := session.NewManager(store, zap.NewNop())
	sessions.Bootstrap()
	sessions.Login(testUser(), signedToken(t))

	client := NewClient(upstream.URL, upstream.Client(), store, sessions, signInPath, zap.NewNop())
	return client, sessions
}

// emptyStore never persists anything; it backs a memory-only session whose
// requests go out without a bearer token.
type emptyStore struct{}

func (emptyStore) SetCredential(string, *domain.CachedUser) bool { return false }
func (emptyStore) Token() (string, bool)                         { return "", false }
func (emptyStore) User() (*domain.CachedUser, bool)              { return nil, false }
func (emptyStore) Clear()                                        {}
func (emptyStore) IsExpired() bool                               { return true }

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	resp, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/farmers"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, gotAuth, "Bearer ")
}

func TestMissingTokenIsNotAnError(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	store := credstore.NewFileStore(t.TempDir(), zap.NewNop())
	sessions := session.NewManager(store, zap.NewNop())
	sessions.Bootstrap()
	client := NewClient(upstream.URL, upstream.Client(), store, sessions, signInPath, zap.NewNop())

	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/public"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func unauthorizedUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

func TestUnauthorizedWithTokenForcesExpiry(t *testing.T) {
	upstream := unauthorizedUpstream(t)
	client, sessions := newSignedInClient(t, upstream)

	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/farmers"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.True(t, statusErr.SessionEnded)
	assert.False(t, sessions.IsAuthenticated())
}

func TestUnauthorizedWithoutTokenPassesThrough(t *testing.T) {
	upstream := unauthorizedUpstream(t)

	sessions := session.NewManager(emptyStore{}, zap.NewNop())
	sessions.Bootstrap()
	sessions.Login(testUser(), signedToken(t)) // memory-only, nothing persisted
	client := NewClient(upstream.URL, upstream.Client(), emptyStore{}, sessions, signInPath, zap.NewNop())

	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/v1/farmers"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.SessionEnded)
	assert.True(t, sessions.IsAuthenticated())
}

func TestUnauthorizedOnCredentialIssuingPassesThrough(t *testing.T) {
	upstream := unauthorizedUpstream(t)
	client, sessions := newSignedInClient(t, upstream)

	_, err := client.Do(context.Background(), Request{
		Method:            http.MethodPost,
		Path:              "/api/v1/auth/login",
		CredentialIssuing: true,
	})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.SessionEnded)
	assert.True(t, sessions.IsAuthenticated())
}

func TestUnauthorizedOnSignInRoutePassesThrough(t *testing.T) {
	upstream := unauthorizedUpstream(t)
	client, sessions := newSignedInClient(t, upstream)

	_, err := client.Do(context.Background(), Request{
		Method:      http.MethodGet,
		Path:        "/api/v1/farmers",
		SourceRoute: signInPath,
	})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.SessionEnded)
	assert.True(t, sessions.IsAuthenticated())
}

func TestForbiddenNeverEndsSession(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	}))
	defer upstream.Close()

	tests := []struct {
		name string
		req  Request
	}{
		{"configuration endpoint", Request{Method: http.MethodGet, Path: "/api/v1/configuration", ConfigurationClass: true}},
		{"ordinary endpoint", Request{Method: http.MethodDelete, Path: "/api/v1/farmers/42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, sessions := newSignedInClient(t, upstream)
			_, err := client.Do(context.Background(), tt.req)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
			assert.False(t, statusErr.SessionEnded)
			assert.True(t, sessions.IsAuthenticated())
		})
	}
}

func TestFetchMatrixParsesUpstreamShape(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/asha.rao/permissions", r.URL.Path)
		w.Write([]byte(`{
			"role": "ADMIN",
			"modules": [
				{"module_name": "FARMER", "can_add": true, "can_view": true},
				{"module_name": "KYC", "can_view": true, "can_edit": true}
			]
		}`))
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	matrix, err := client.FetchMatrix(context.Background(), "asha.rao")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, matrix.Role)
	require.Len(t, matrix.Modules, 2)
	assert.True(t, matrix.Modules[0].CanAdd)
	assert.False(t, matrix.Modules[1].CanDelete)
}

func TestFetchMatrixUnknownRoleGetsNoAccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"role":"INTERGALACTIC_OVERLORD","modules":[{"module_name":"FARMER","can_view":true}]}`))
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	matrix, err := client.FetchMatrix(context.Background(), "asha.rao")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, matrix.Role)
	assert.Empty(t, matrix.Modules)
}

func TestFetchMatrixUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client, _ := newSignedInClient(t, upstream)
	_, err := client.FetchMatrix(context.Background(), "asha.rao")
	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr))
}
