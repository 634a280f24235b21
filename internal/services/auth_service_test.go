package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/repository"
	"fintrack/internal/repository/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newAuthFixture() (*AuthService, *memory.Store, *testClock) {
	store := memory.New()
	clock := &testClock{t: march}
	return NewAuthService(store, WithAuthClock(clock.Now)), store, clock
}

var alice = core.RegisterInput{Username: "alice_1", Password: "secret123", FullName: "Alice Liddell"}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newAuthFixture()

	user, session, err := svc.Register(ctx, alice)
	require.NoError(t, err)
	assert.Positive(t, user.ID)
	assert.Equal(t, "Alice Liddell", user.FullName)
	assert.NotEqual(t, alice.Password, user.PasswordHash)
	assert.Len(t, session.Token, 64)
	assert.Equal(t, march.Add(auth.SessionDuration), session.ExpiresAt)

	stored, err := store.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)

	t.Run("duplicate username is a field error", func(t *testing.T) {
		dup := alice
		dup.Username = "ALICE_1"
		_, _, err := svc.Register(ctx, dup)

		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"Username already exists"}, verr.Fields["username"])
	})

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := svc.Register(ctx, core.RegisterInput{Username: "a!", Password: "123", FullName: ""})

		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "username")
		assert.Contains(t, verr.Fields, "password")
		assert.Contains(t, verr.Fields, "fullName")
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthFixture()
	registered, _, err := svc.Register(ctx, alice)
	require.NoError(t, err)

	t.Run("regular session", func(t *testing.T) {
		user, session, err := svc.Login(ctx, core.LoginInput{Username: "alice_1", Password: "secret123"})
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		assert.Equal(t, auth.SessionDuration, session.Lifetime)
	})

	t.Run("remember me", func(t *testing.T) {
		_, session, err := svc.Login(ctx, core.LoginInput{Username: "alice_1", Password: "secret123", RememberMe: true})
		require.NoError(t, err)
		assert.Equal(t, march.Add(auth.RememberMeDuration), session.ExpiresAt)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, core.LoginInput{Username: "alice_1", Password: "nope"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := svc.Login(ctx, core.LoginInput{Username: "bob", Password: "secret123"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, _, err := svc.Login(ctx, core.LoginInput{})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"Username is required"}, verr.Fields["username"])
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid session", func(t *testing.T) {
		svc, _, clock := newAuthFixture()
		user, session, err := svc.Register(ctx, alice)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		got, renewed, err := svc.Authenticate(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, session.ExpiresAt, renewed.ExpiresAt, "not renewed before half-life")
		assert.False(t, renewed.Renewed)
	})

	t.Run("rolling renewal past half-life", func(t *testing.T) {
		svc, store, clock := newAuthFixture()
		_, session, err := svc.Register(ctx, alice)
		require.NoError(t, err)

		clock.Advance(13 * time.Hour)
		_, renewed, err := svc.Authenticate(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(auth.SessionDuration), renewed.ExpiresAt)
		assert.True(t, renewed.Renewed)

		stored, err := store.GetSession(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, renewed.ExpiresAt, stored.ExpiresAt)
		assert.Equal(t, clock.Now(), stored.LastActivity)
	})

	t.Run("expired session is rejected and removed", func(t *testing.T) {
		svc, store, clock := newAuthFixture()
		_, session, err := svc.Register(ctx, alice)
		require.NoError(t, err)

		clock.Advance(25 * time.Hour)
		_, _, err = svc.Authenticate(ctx, session.Token)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)

		_, err = store.GetSession(ctx, session.Token)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		svc, _, _ := newAuthFixture()
		_, _, err := svc.Authenticate(ctx, "deadbeef")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		_, _, err = svc.Authenticate(ctx, "")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("logout ends the session", func(t *testing.T) {
		svc, _, _ := newAuthFixture()
		_, session, err := svc.Register(ctx, alice)
		require.NoError(t, err)

		require.NoError(t, svc.Logout(ctx, session.Token))
		_, _, err = svc.Authenticate(ctx, session.Token)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		assert.NoError(t, svc.Logout(ctx, ""))
	})
}

func TestAuthService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthFixture()
	user, _, err := svc.Register(ctx, alice)
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, user.ID+1, user.ID, core.ProfileInput{FullName: "Mallory"})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.UpdateProfile(ctx, user.ID, user.ID, core.ProfileInput{FullName: "  "})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)

	updated, err := svc.UpdateProfile(ctx, user.ID, user.ID, core.ProfileInput{FullName: " Alice L. "})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", updated.FullName)
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthFixture()
	user, _, err := svc.Register(ctx, alice)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID+1, user.ID, core.PasswordChangeInput{CurrentPassword: "secret123", NewPassword: "newsecret1"})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	err = svc.ChangePassword(ctx, user.ID, user.ID, core.PasswordChangeInput{CurrentPassword: "wrong", NewPassword: "newsecret1"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Current password is incorrect"}, verr.Fields["currentPassword"])

	err = svc.ChangePassword(ctx, user.ID, user.ID, core.PasswordChangeInput{CurrentPassword: "secret123", NewPassword: "short"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "newPassword")

	require.NoError(t, svc.ChangePassword(ctx, user.ID, user.ID, core.PasswordChangeInput{CurrentPassword: "secret123", NewPassword: "newsecret1"}))

	_, _, err = svc.Login(ctx, core.LoginInput{Username: alice.Username, Password: "secret123"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, core.LoginInput{Username: alice.Username, Password: "newsecret1"})
	assert.NoError(t, err)
}

func TestAuthService_PurgeExpiredSessions(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newAuthFixture()
	_, _, err := svc.Register(ctx, alice)
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, core.LoginInput{Username: alice.Username, Password: alice.Password, RememberMe: true})
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	n, err := svc.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the 24h session expired")
}

func TestAuthService_RunSessionJanitorStops(t *testing.T) {
	svc, _, _ := newAuthFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.RunSessionJanitor(ctx, time.Millisecond) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal(errors.New("janitor did not stop"))
	}
}
