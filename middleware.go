package authkit

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

type identityContextKey struct{}

// Middleware resolves the current identity for server-rendered pages and
// gates protected routes. Unauthenticated access to a protected page
// redirects to the login entry point carrying the original path, so a
// successful login can send the user back to exactly where they were.
type Middleware struct {
	Sessions *SessionManager

	// LoginPath is the login entry point. Defaults to "/auth/login".
	LoginPath string

	// ReturnParam carries the original path on the redirect. Defaults to
	// "return".
	ReturnParam string

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (m *Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Middleware) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Middleware) loginPath() string {
	if m.LoginPath != "" {
		return m.LoginPath
	}
	return "/auth/login"
}

func (m *Middleware) returnParam() string {
	if m.ReturnParam != "" {
		return m.ReturnParam
	}
	return "return"
}

// ExtractIdentity resolves the session and, when one exists, makes the
// identity available to downstream handlers. It never redirects: anonymous
// requests proceed with no identity in context.
func (m *Middleware) ExtractIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.Sessions.Validate(m.Sessions.TokenFromRequest(r), m.now())
		if err != nil {
			m.logger().Warn("resolving session", "err", err)
		}
		if identity != nil {
			r = r.WithContext(context.WithValue(r.Context(), identityContextKey{}, identity))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity enforces a signed-in identity, redirecting anonymous
// requests to login with the original path as the return parameter.
func (m *Middleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.Sessions.Validate(m.Sessions.TokenFromRequest(r), m.now())
		if err != nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		if identity == nil {
			target := m.loginPath() + "?" + m.returnParam() + "=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentIdentity returns the signed-in identity placed on the request by
// ExtractIdentity or RequireIdentity, or nil for anonymous requests.
func CurrentIdentity(r *http.Request) *Identity {
	identity, _ := r.Context().Value(identityContextKey{}).(*Identity)
	return identity
}
