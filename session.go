package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the fixed session lifetime when SessionManager.TTL
// is zero. There is no sliding renewal; a fresh sign-in mints a new session.
const DefaultSessionTTL = 7 * 24 * time.Hour

// DefaultSessionCookie is the cookie name used by the HTTP helpers
const DefaultSessionCookie = "lyria_session"

// SessionManager mints, validates, and destroys sessions. The raw token is
// opaque and unguessable; only its hash is stored. The value handed to the
// web layer is a JWT wrapping the token, signed with the session secret, so
// a tampered cookie is rejected before any store lookup.
type SessionManager struct {
	Store      SessionStore
	Identities IdentityStore

	// Secret signs the session cookie JWT. Required.
	Secret []byte

	// Issuer is the JWT issuer claim. Defaults to "lyriasong".
	Issuer string

	// TTL is the fixed session lifetime.
	TTL time.Duration

	// CookieName overrides DefaultSessionCookie.
	CookieName string
}

func (m *SessionManager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultSessionTTL
}

func (m *SessionManager) issuer() string {
	if m.Issuer != "" {
		return m.Issuer
	}
	return "lyriasong"
}

func (m *SessionManager) cookieName() string {
	if m.CookieName != "" {
		return m.CookieName
	}
	return DefaultSessionCookie
}

// Create mints a session for an existing identity and returns the signed
// token for the cookie. Fails only if the identity does not exist or the
// store errors.
func (m *SessionManager) Create(identityID string, meta SessionMetadata, now time.Time) (string, *Session, error) {
	if _, err := m.Identities.GetByID(identityID); err != nil {
		return "", nil, err
	}

	raw, err := generateSessionToken()
	if err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}

	sess := &Session{
		ID:         newSessionID(),
		TokenHash:  hashToken(raw),
		IdentityID: identityID,
		Metadata:   meta,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl()),
	}
	if err := m.Store.Create(sess); err != nil {
		return "", nil, fmt.Errorf("persisting session: %w", err)
	}

	signed, err := m.signToken(raw, sess.ExpiresAt, now)
	if err != nil {
		// Roll the session back so a signing failure cannot leave an
		// unusable orphan behind.
		_ = m.Store.DeleteByTokenHash(sess.TokenHash)
		return "", nil, err
	}
	return signed, sess, nil
}

// Validate resolves the identity for a signed token. Absence is a normal
// outcome: a missing, malformed, unknown, or expired token returns
// (nil, nil). Only store failures return an error.
func (m *SessionManager) Validate(token string, now time.Time) (*Identity, error) {
	raw, ok := m.verifyToken(token)
	if !ok {
		return nil, nil
	}

	sess, err := m.Store.GetByTokenHash(hashToken(raw))
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(now) {
		_ = m.Store.DeleteByTokenHash(sess.TokenHash)
		return nil, nil
	}

	identity, err := m.Identities.GetByID(sess.IdentityID)
	if err != nil {
		// A session must reference a live identity; fail closed.
		_ = m.Store.DeleteByTokenHash(sess.TokenHash)
		return nil, nil
	}
	return identity, nil
}

// Destroy removes the session for a signed token. Idempotent: unknown or
// garbage tokens are a no-op.
func (m *SessionManager) Destroy(token string) error {
	raw, ok := m.verifyToken(token)
	if !ok {
		return nil
	}
	return m.Store.DeleteByTokenHash(hashToken(raw))
}

// DestroyAllForIdentity revokes every session an identity owns, e.g. after
// a password change.
func (m *SessionManager) DestroyAllForIdentity(identityID string) error {
	return m.Store.DeleteByIdentity(identityID)
}

// SetCookie writes the session cookie on the response
func (m *SessionManager) SetCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie
func (m *SessionManager) ClearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest extracts the signed session token from the cookie, or ""
func (m *SessionManager) TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName())
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m *SessionManager) signToken(raw string, expiresAt, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": raw,
		"iss": m.issuer(),
		"exp": expiresAt.Unix(),
		"iat": now.Unix(),
	})
	signed, err := token.SignedString(m.Secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// verifyToken checks the JWT signature and returns the wrapped raw token.
// JWT expiry is intentionally not the source of truth here; the store
// record decides, so revocation always wins.
func (m *SessionManager) verifyToken(signed string) (string, bool) {
	if signed == "" {
		return "", false
	}
	token, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return m.Secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	raw, _ := claims["sid"].(string)
	return raw, raw != ""
}

func generateSessionToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func newSessionID() string {
	var b [16]byte
	rand.Read(b[:])
	return "sess_" + hex.EncodeToString(b[:])
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
