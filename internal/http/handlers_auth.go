package http

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "fintrack_session"

type userContextKey struct{}

func userFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(core.User)
	return u, ok
}

// requireAuth resolves the session token to a user or answers 401. Renewed
// sessions get a refreshed cookie.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		user, session, err := s.auth.Authenticate(r.Context(), token)
		if errors.Is(err, auth.ErrUnauthenticated) {
			if _, cerr := r.Cookie(SessionCookieName); cerr == nil {
				clearSessionCookie(w, r)
			}
			writeUnauthorized(w)
			return
		}
		if err != nil {
			respondError(w, r, err, "Unauthorized", "Failed to authenticate")
			return
		}
		if session.Renewed {
			setSessionCookie(w, r, session)
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		logger := applog.FromContext(ctx).With(applog.FieldUserID, user.ID)
		ctx = applog.NewContext(ctx, logger)
		next(w, r.WithContext(ctx))
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, session core.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in core.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err, "Invalid registration data", "Failed to register")
		return
	}

	user, session, err := s.auth.Register(r.Context(), in)
	if err != nil {
		respondError(w, r, err, "Invalid registration data", "Failed to register")
		return
	}

	setSessionCookie(w, r, session)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in core.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err, "Invalid login data", "Failed to log in")
		return
	}

	user, session, err := s.auth.Login(r.Context(), in)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		atomic.AddInt64(&s.appMetrics.failedLogins, 1)
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		respondError(w, r, err, "Invalid login data", "Failed to log in")
		return
	}

	atomic.AddInt64(&s.appMetrics.logins, 1)
	setSessionCookie(w, r, session)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		respondError(w, r, err, "Invalid logout request", "Failed to log out")
		return
	}
	clearSessionCookie(w, r)
	writeMessage(w, http.StatusOK, "Logged out")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	target, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if actor.ID != target {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}

	var in core.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err, "Invalid profile data", "Failed to update profile")
		return
	}

	user, err := s.auth.UpdateProfile(r.Context(), actor.ID, target, in)
	if err != nil {
		respondError(w, r, err, "Invalid profile data", "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	target, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if actor.ID != target {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}

	var in core.PasswordChangeInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err, "Invalid password data", "Failed to change password")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), actor.ID, target, in); err != nil {
		respondError(w, r, err, "Invalid password data", "Failed to change password")
		return
	}
	writeMessage(w, http.StatusOK, "Password updated")
}
