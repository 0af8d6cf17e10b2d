package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/credstore"
	"github.com/agriview/console-gateway/internal/domain"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := domain.ConsoleClaims{
		UserName: "asha.rao",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func testUser() *domain.CachedUser {
	return &domain.CachedUser{
		UserName: "asha.rao",
		Name:     "Asha Rao",
		Role:     domain.RoleEmployee,
		Status:   domain.StatusActive,
	}
}

func newManager(t *testing.T) (*Manager, credstore.Store) {
	store := credstore.NewFileStore(t.TempDir(), zap.NewNop())
	return NewManager(store, zap.NewNop()), store
}

func TestStateIsUnknownBeforeBootstrap(t *testing.T) {
	m, _ := newManager(t)
	assert.Equal(t, StateUnknown, m.State())
	assert.True(t, m.Loading())
}

func TestBootstrapWithEmptyStore(t *testing.T) {
	m, _ := newManager(t)
	assert.Equal(t, StateUnauthenticated, m.Bootstrap())
	assert.False(t, m.Loading())
	_, ok := m.CurrentUser()
	assert.False(t, ok)
}

func TestBootstrapRestoresValidCredential(t *testing.T) {
	m, store := newManager(t)
	require.True(t, store.SetCredential(signedToken(t, time.Now().Add(time.Hour)), testUser()))

	assert.Equal(t, StateAuthenticated, m.Bootstrap())
	user, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "asha.rao", user.UserName)
	assert.NotEmpty(t, m.Epoch())
}

func TestBootstrapClearsExpiredCredential(t *testing.T) {
	m, store := newManager(t)
	expired := signedToken(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, store.SetCredential(expired, testUser()))

	assert.Equal(t, StateUnauthenticated, m.Bootstrap())

	_, hasToken := store.Token()
	_, hasUser := store.User()
	assert.False(t, hasToken)
	assert.False(t, hasUser)
}

func TestLoginEstablishesSession(t *testing.T) {
	m, store := newManager(t)
	m.Bootstrap()

	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))

	assert.True(t, m.IsAuthenticated())
	_, hasToken := store.Token()
	_, hasUser := store.User()
	assert.True(t, hasToken)
	assert.True(t, hasUser)
}

func TestLoginRotatesEpoch(t *testing.T) {
	m, _ := newManager(t)
	m.Bootstrap()

	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))
	first := m.Epoch()
	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))
	second := m.Epoch()

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestLogoutIsIdempotent(t *testing.T) {
	m, store := newManager(t)
	m.Bootstrap()
	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))

	m.Logout()
	stateAfterOne := m.State()
	_, tokenAfterOne := store.Token()

	m.Logout()

	assert.Equal(t, stateAfterOne, m.State())
	_, tokenAfterTwo := store.Token()
	assert.Equal(t, tokenAfterOne, tokenAfterTwo)
	assert.Empty(t, m.Epoch())
	_, ok := m.CurrentUser()
	assert.False(t, ok)
}

func TestForceExpireActsLikeLogout(t *testing.T) {
	m, store := newManager(t)
	m.Bootstrap()
	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))

	m.ForceExpire()

	assert.Equal(t, StateUnauthenticated, m.State())
	_, hasToken := store.Token()
	_, hasUser := store.User()
	assert.False(t, hasToken)
	assert.False(t, hasUser)
}

// The token/user pair in the store moves as one unit through any sequence of
// login, logout and expiry transitions.
func TestCredentialPairNeverHalfPresent(t *testing.T) {
	m, store := newManager(t)
	m.Bootstrap()

	bothOrNeither := func() {
		t.Helper()
		_, hasToken := store.Token()
		_, hasUser := store.User()
		assert.Equal(t, hasToken, hasUser)
	}

	bothOrNeither()
	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))
	bothOrNeither()
	m.ForceExpire()
	bothOrNeither()
	m.Login(testUser(), signedToken(t, time.Now().Add(time.Hour)))
	bothOrNeither()
	m.Logout()
	bothOrNeither()
	m.Logout()
	bothOrNeither()
}
