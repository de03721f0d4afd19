package session_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/apiclient/fakebackend"
	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/tokens/memorybackend"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/stretchr/testify/require"
)

const (
	mePath = "/auth/users/me/"

	clientEmail = "client@example.com"
	staffEmail  = "staff@example.com"
	password    = "Secret123"
)

type testFixture struct {
	backend  *fakebackend.Backend
	storage  tokens.Backend
	store    *tokens.Store
	client   *apiclient.Client
	provider *session.Provider
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := fakebackend.New(t)
	backend.AddUser(clientEmail, password, users.User{FirstName: "Cara", LastName: "Client"})
	backend.AddUser(staffEmail, password, users.User{FirstName: "Sam", IsStaff: true, Groups: []string{"Main Admin"}})

	f := &testFixture{backend: backend, storage: memorybackend.New()}
	f.boot(t)
	return f
}

// boot builds a fresh client and provider over the same storage, like an application restart
func (f *testFixture) boot(t *testing.T) {
	t.Helper()
	f.store = tokens.NewStore(f.storage)
	client, err := apiclient.New(f.backend.URL(), f.store)
	require.NoError(t, err)
	f.client = client
	f.provider = session.New(f.store, client)
	client.Subscribe(f.provider)
}

func (f *testFixture) requireEmpty(t *testing.T) {
	t.Helper()
	state := f.provider.State()
	require.Nil(t, state.User)
	require.Nil(t, state.Tokens)
	require.False(t, state.Authenticated())

	pair, err := f.store.Load()
	require.NoError(t, err)
	require.Nil(t, pair)
	require.Empty(t, f.client.DefaultAuthorization())
}

func TestProvider_Restore(t *testing.T) {
	t.Run("idempotent across boots", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(f.backend.Issue(clientEmail)))

		require.True(t, f.provider.State().Loading)
		first := f.provider.Restore(context.Background())
		require.False(t, first.Loading)
		require.True(t, first.Authenticated())
		<-f.provider.Ready()

		f.boot(t)
		require.True(t, f.provider.State().Loading)
		second := f.provider.Restore(context.Background())
		require.False(t, second.Loading)
		require.Equal(t, first.User, second.User)
		require.Equal(t, first.Tokens, second.Tokens)
	})

	t.Run("runs once", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(f.backend.Issue(clientEmail)))

		f.provider.Restore(context.Background())
		f.provider.Restore(context.Background())
		require.Equal(t, 1, f.backend.Calls(mePath))
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := setupTestFixture(t)
		state := f.provider.Restore(context.Background())
		require.False(t, state.Loading)
		require.Nil(t, state.User)
		require.Equal(t, 0, f.backend.Calls(mePath))
		require.NoError(t, f.provider.Wait(context.Background()))
	})

	t.Run("failed verification clears everything", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(f.backend.Issue(clientEmail)))
		f.backend.Script(mePath, http.StatusInternalServerError)

		state := f.provider.Restore(context.Background())
		require.False(t, state.Loading)
		f.requireEmpty(t)
	})

	t.Run("expired access is refreshed during restore", func(t *testing.T) {
		f := setupTestFixture(t)
		old := f.backend.Issue(clientEmail)
		require.NoError(t, f.store.Save(old))
		f.backend.ExpireAccessTokens()

		state := f.provider.Restore(context.Background())
		require.True(t, state.Authenticated())
		require.NotEqual(t, old.Access, state.Tokens.Access)

		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, stored, state.Tokens)
	})

	t.Run("wait respects context", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, f.provider.Wait(ctx), context.Canceled)
	})
}

func TestProvider_Login(t *testing.T) {
	t.Run("publishes tokens and user", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		pair := f.backend.Issue(clientEmail)

		user, err := f.provider.Login(context.Background(), pair.Access, pair.Refresh)
		require.NoError(t, err)
		require.Equal(t, clientEmail, user.Email)

		state := f.provider.State()
		require.True(t, state.Authenticated())
		require.Equal(t, pair, *state.Tokens)
		require.Equal(t, pair.Access, f.client.DefaultAuthorization())

		cached, err := f.store.LoadProfile()
		require.NoError(t, err)
		require.Equal(t, user.ID, cached.ID)
	})

	t.Run("profile failure rolls back", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		pair := f.backend.Issue(clientEmail)
		f.backend.Script(mePath, http.StatusInternalServerError)

		_, err := f.provider.Login(context.Background(), pair.Access, pair.Refresh)
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, session.KindUnexpected, authErr.Kind)
		f.requireEmpty(t)
	})

	t.Run("partial pair", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.Login(context.Background(), "access-only", "")
		require.ErrorIs(t, err, errors.ErrPartialTokenPair)
		f.requireEmpty(t)
	})
}

func TestProvider_SignIn(t *testing.T) {
	t.Run("bad credentials leave the session alone", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		_, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)
		before := f.provider.State()

		_, err = f.provider.SignIn(context.Background(), clientEmail, "wrong-password")
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, session.KindCredentials, authErr.Kind)
		require.Equal(t, "No active account found with the given credentials", authErr.Message())
		require.ErrorIs(t, err, errors.ErrInvalidCredentials)
		require.Equal(t, before, f.provider.State())
	})

	t.Run("malformed email never reaches the backend", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.SignIn(context.Background(), "not-an-email", password)
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, session.KindCredentials, authErr.Kind)
		require.Equal(t, 0, f.backend.Calls("/auth/jwt/create/"))
	})

	t.Run("staff entry point rejects clients", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())

		_, err := f.provider.SignIn(context.Background(), clientEmail, password, session.RequireStaff())
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, session.KindForbidden, authErr.Kind)
		require.ErrorIs(t, err, errors.ErrForbiddenRole)
		require.Equal(t, "You do not have permission to access the admin dashboard.", authErr.Message())
		f.requireEmpty(t)
	})

	t.Run("staff entry point admits staff", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())

		user, err := f.provider.SignIn(context.Background(), staffEmail, password, session.RequireStaff())
		require.NoError(t, err)
		require.True(t, user.IsStaff)
		require.True(t, f.provider.State().Authenticated())
	})

	t.Run("a slow failing restore does not undo a login", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(f.backend.Issue(clientEmail)))
		f.backend.ExpireAccessTokens()
		f.backend.RevokeRefreshTokens()
		f.backend.RefreshDelay = 200 * time.Millisecond

		restored := make(chan session.State, 1)
		go func() { restored <- f.provider.Restore(context.Background()) }()
		require.Eventually(t, func() bool { return f.backend.Calls(mePath) > 0 }, time.Second, 5*time.Millisecond)

		user, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)
		require.Equal(t, clientEmail, user.Email)
		<-restored

		state := f.provider.State()
		require.True(t, state.Authenticated())
		require.Equal(t, clientEmail, state.User.Email)
		stored, err := f.store.Load()
		require.NoError(t, err)
		require.Equal(t, state.Tokens, stored)
		require.Equal(t, stored.Access, f.client.DefaultAuthorization())
	})

	t.Run("a login before any restore skips it", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(f.backend.Issue(staffEmail)))

		user, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)
		require.NoError(t, f.provider.Wait(context.Background()))

		state := f.provider.Restore(context.Background())
		require.True(t, state.Authenticated())
		require.Equal(t, user.ID, state.User.ID)
		require.Equal(t, 1, f.backend.Calls(mePath))
	})
}

func TestProvider_Logout(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.Restore(context.Background())
	_, err := f.provider.SignIn(context.Background(), clientEmail, password)
	require.NoError(t, err)

	f.provider.Logout()
	f.requireEmpty(t)

	profile, err := f.store.LoadProfile()
	require.NoError(t, err)
	require.Nil(t, profile)

	t.Run("logout twice", func(t *testing.T) {
		f.provider.Logout()
		f.requireEmpty(t)
	})
}

func TestProvider_FetchUser(t *testing.T) {
	t.Run("without a session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		_, err := f.provider.FetchUser(context.Background())
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("refreshes the profile", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		_, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)

		user, err := f.provider.FetchUser(context.Background())
		require.NoError(t, err)
		require.Equal(t, "Cara Client", user.DisplayName())
	})

	t.Run("failure ends the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		_, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)
		f.backend.Script(mePath, http.StatusBadGateway)

		_, err = f.provider.FetchUser(context.Background())
		require.Error(t, err)
		f.requireEmpty(t)
	})
}

func TestProvider_ClientNotifications(t *testing.T) {
	t.Run("silent refresh replaces tokens only", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		_, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)
		before := f.provider.State()

		f.backend.ExpireAccessTokens()
		_, err = f.client.ListServices(context.Background())
		require.NoError(t, err)

		after := f.provider.State()
		require.Equal(t, before.User, after.User)
		require.NotEqual(t, before.Tokens.Access, after.Tokens.Access)
		require.NotEqual(t, before.Tokens.Refresh, after.Tokens.Refresh)
	})

	t.Run("failed refresh ends the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Restore(context.Background())
		_, err := f.provider.SignIn(context.Background(), clientEmail, password)
		require.NoError(t, err)

		f.backend.ExpireAccessTokens()
		f.backend.RevokeRefreshTokens()
		_, err = f.client.ListServices(context.Background())
		require.ErrorIs(t, err, errors.ErrSessionExpired)
		f.requireEmpty(t)
	})

	t.Run("refresh without a session does not create one", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.TokensRefreshed(tokens.Pair{Access: "a", Refresh: "r"})
		require.Nil(t, f.provider.State().Tokens)
	})
}

func TestAuthError(t *testing.T) {
	err := &session.AuthError{Kind: session.KindExpired, Err: errors.ErrSessionExpired}
	require.Equal(t, "expired: session expired", err.Error())
	require.Equal(t, "Your session has expired. Please log in again.", err.Message())
	require.Equal(t, "An unexpected error occurred.", (&session.AuthError{Err: errors.ErrInternal}).Message())
}
