package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/repository"
)

// AuthStore is the slice of the repository the auth service needs.
type AuthStore interface {
	repository.UserStore
	repository.SessionStore
}

// AuthService owns registration, login, sessions and account changes.
type AuthService struct {
	store  AuthStore
	logger *applog.Logger
	now    func() time.Time
}

type AuthOption func(*AuthService)

func WithAuthLogger(l *applog.Logger) AuthOption {
	return func(s *AuthService) { s.logger = l }
}

func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(store AuthStore, opts ...AuthOption) *AuthService {
	s := &AuthService{
		store:  store,
		logger: applog.New(applog.DefaultConfig()),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(applog.ComponentAuth)
	return s
}

// Register creates the user and logs them in with a regular session.
func (s *AuthService) Register(ctx context.Context, in core.RegisterInput) (core.User, core.Session, error) {
	if err := in.Validate(); err != nil {
		return core.User{}, core.Session{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return core.User{}, core.Session{}, err
	}

	user, err := s.store.CreateUser(ctx, core.User{
		Username:     in.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return core.User{}, core.Session{}, core.NewFieldError("username", "Username already exists")
	}
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("register user: %w", err)
	}

	session, err := s.startSession(ctx, user.ID, auth.SessionDuration)
	if err != nil {
		return core.User{}, core.Session{}, err
	}

	s.logger.InfoContext(ctx, "User registered",
		applog.FieldUserID, user.ID,
		applog.FieldUsername, user.Username,
		applog.FieldOperation, applog.OpRegister)
	return user, session, nil
}

// Login checks the credentials and opens a session. Unknown users and wrong
// passwords both yield auth.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in core.LoginInput) (core.User, core.Session, error) {
	if err := in.Validate(); err != nil {
		return core.User{}, core.Session{}, err
	}

	user, err := s.store.GetUserByUsername(ctx, in.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return core.User{}, core.Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) {
		s.logger.WarnContext(ctx, "Failed login attempt", applog.FieldUsername, in.Username)
		return core.User{}, core.Session{}, auth.ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, user.ID, auth.LifetimeFor(in.RememberMe))
	if err != nil {
		return core.User{}, core.Session{}, err
	}

	s.logger.InfoContext(ctx, "User logged in",
		applog.FieldUserID, user.ID,
		applog.FieldOperation, applog.OpLogin,
		"remember_me", in.RememberMe)
	return user, session, nil
}

func (s *AuthService) startSession(ctx context.Context, userID int64, lifetime time.Duration) (core.Session, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return core.Session{}, err
	}
	now := s.now().UTC()
	session := core.Session{
		Token:        token,
		UserID:       userID,
		Lifetime:     lifetime,
		ExpiresAt:    now.Add(lifetime),
		LastActivity: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return core.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Logout ends the session. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.DebugContext(ctx, "Session ended", applog.FieldOperation, applog.OpLogout)
	return nil
}

// Authenticate resolves a session token to its user. A session past half
// its lifetime is extended; the returned session reflects the renewal.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.User, core.Session, error) {
	if token == "" {
		return core.User{}, core.Session{}, auth.ErrUnauthenticated
	}

	session, err := s.store.GetSession(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return core.User{}, core.Session{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("load session: %w", err)
	}

	now := s.now().UTC()
	if session.Expired(now) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete expired session", applog.FieldError, err)
		}
		return core.User{}, core.Session{}, auth.ErrUnauthenticated
	}

	user, err := s.store.GetUser(ctx, session.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return core.User{}, core.Session{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return core.User{}, core.Session{}, fmt.Errorf("load session user: %w", err)
	}

	if auth.NeedsRenewal(session.ExpiresAt, session.Lifetime, now) {
		session.ExpiresAt = now.Add(session.Lifetime)
		session.LastActivity = now
		session.Renewed = true
		if err := s.store.RenewSession(ctx, token, session.ExpiresAt, session.LastActivity); err != nil {
			return core.User{}, core.Session{}, fmt.Errorf("renew session: %w", err)
		}
		s.logger.DebugContext(ctx, "Session renewed", applog.FieldUserID, user.ID)
	}

	return user, session, nil
}

// UpdateProfile changes the full name of targetID. Only the owner may do so.
func (s *AuthService) UpdateProfile(ctx context.Context, actorID, targetID int64, in core.ProfileInput) (core.User, error) {
	if actorID != targetID {
		return core.User{}, auth.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return core.User{}, err
	}

	user, err := s.store.UpdateUserProfile(ctx, targetID, strings.TrimSpace(in.FullName))
	if err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password of targetID after checking the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, actorID, targetID int64, in core.PasswordChangeInput) error {
	if actorID != targetID {
		return auth.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, in.CurrentPassword) {
		return core.NewFieldError("currentPassword", "Current password is incorrect")
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, targetID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.logger.InfoContext(ctx, "Password changed", applog.FieldUserID, targetID, applog.FieldOperation, applog.OpUpdate)
	return nil
}

// PurgeExpiredSessions deletes every session expired at the current time.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}

// RunSessionJanitor purges expired sessions every interval until ctx ends.
func (s *AuthService) RunSessionJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Session janitor started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.PurgeExpiredSessions(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Session purge failed", applog.FieldError, err, applog.FieldOperation, applog.OpPurge)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "Expired sessions purged", "count", n, applog.FieldOperation, applog.OpPurge)
			}
		}
	}
}
