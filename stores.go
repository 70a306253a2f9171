package authkit

import (
	"strings"
	"time"
)

// Identity is a user account, keyed by a unique id and a unique
// case-insensitive email. An identity is created on first successful
// sign-in (any path) and never implicitly deleted.
type Identity struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"` // stored lowercased
	DisplayName string          `json:"display_name,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	Accounts    []LinkedAccount `json:"accounts,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasProvider reports whether the identity has a linked account for provider
func (i *Identity) HasProvider(provider string) bool {
	for _, a := range i.Accounts {
		if a.Provider == provider {
			return true
		}
	}
	return false
}

// LinkedAccount ties an identity to a social provider account.
// (provider, subject) is unique: one provider account belongs to at most
// one identity.
type LinkedAccount struct {
	Provider   string    `json:"provider"` // "google", "github", "x"
	Subject    string    `json:"subject"`  // provider-side user id
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Credential holds the local password credential for an identity, plus the
// failed-attempt lockout state shared with the OTP discipline.
type Credential struct {
	IdentityID     string    `json:"identity_id"`
	PasswordHash   string    `json:"-"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Locked reports whether the credential is locked out at the given time
func (c *Credential) Locked(now time.Time) bool {
	return !c.LockedUntil.IsZero() && now.Before(c.LockedUntil)
}

// Session is a server-side login session. The raw token is opaque and only
// its hash is stored; sessions are immutable once created except for
// deletion (sign-out, expiry, revocation).
type Session struct {
	ID         string          `json:"id"`
	TokenHash  string          `json:"-"`
	IdentityID string          `json:"identity_id"`
	Metadata   SessionMetadata `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// SessionMetadata records where a session was created from
type SessionMetadata struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// Expired reports whether the session has expired at the given time
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// OTPChallenge is a short-lived sign-in code bound to (email, purpose).
// At most one active challenge exists per pair; issuing a new one
// supersedes the prior.
type OTPChallenge struct {
	Email      string    `json:"email"`
	Purpose    string    `json:"purpose"` // "sign-in"
	CodeHash   string    `json:"-"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Consumed   bool      `json:"consumed"`
	Superseded bool      `json:"superseded"`
	Attempts   int       `json:"attempts"`
}

// Active reports whether the challenge can still be verified
func (c *OTPChallenge) Active(now time.Time) bool {
	return !c.Consumed && !c.Superseded && !now.After(c.ExpiresAt)
}

// PurposeSignIn is the only purpose the flow controller issues today.
// Purposes are data: stores and the verifier accept any tag.
const PurposeSignIn = "sign-in"

// IdentityStore manages identities, linked provider accounts, and local
// credentials.
type IdentityStore interface {
	// GetByID retrieves an identity by id, with linked accounts populated
	GetByID(id string) (*Identity, error)

	// GetByEmail retrieves an identity by normalized email.
	// Returns ErrIdentityNotFound if absent.
	GetByEmail(email string) (*Identity, error)

	// FindOrCreateByEmail atomically resolves or creates the identity for
	// an email (upsert semantics, safe under concurrent callers)
	FindOrCreateByEmail(email string) (identity *Identity, created bool, err error)

	// Save updates an identity's profile fields
	Save(identity *Identity) error

	// LinkAccount attaches a provider account to an identity, replacing any
	// prior link for the same (provider, subject)
	LinkAccount(account *LinkedAccount) error

	// GetByProviderSubject resolves an identity through a linked account.
	// Returns ErrIdentityNotFound if no such link exists.
	GetByProviderSubject(provider, subject string) (*Identity, error)

	// GetCredential returns the local credential for an identity, or
	// ErrIdentityNotFound if none was ever set
	GetCredential(identityID string) (*Credential, error)

	// SaveCredential creates or updates a local credential (upsert)
	SaveCredential(cred *Credential) error
}

// SessionStore manages persisted sessions
type SessionStore interface {
	// Create persists a new session
	Create(sess *Session) error

	// GetByTokenHash looks a session up by its token hash.
	// Absence is normal: returns (nil, nil) when not found.
	GetByTokenHash(hash string) (*Session, error)

	// DeleteByTokenHash removes a session. Idempotent.
	DeleteByTokenHash(hash string) error

	// DeleteByIdentity revokes every session owned by an identity
	DeleteByIdentity(identityID string) error
}

// ChallengeStore manages OTP challenges. Replace and Consume must be atomic
// so concurrent requests for the same (email, purpose) cannot both hold an
// active challenge or both consume one.
type ChallengeStore interface {
	// Replace marks any existing challenge for (email, purpose) superseded
	// and inserts the new one as a single unit
	Replace(ch *OTPChallenge) error

	// Get returns the current (non-superseded) challenge for (email,
	// purpose), consumed or not. Returns (nil, nil) when none exists.
	Get(email, purpose string) (*OTPChallenge, error)

	// Update persists attempt-counter changes on the current challenge
	Update(ch *OTPChallenge) error

	// Consume marks the current challenge consumed iff it is still
	// unconsumed and unexpired at now. Returns ErrNoActiveChallenge
	// otherwise (one-shot).
	Consume(email, purpose string, now time.Time) error

	// WasIssued reports whether codeHash belongs to a superseded or
	// consumed challenge for (email, purpose). Lets the verifier tell a
	// stale code apart from one that was never issued.
	WasIssued(email, purpose, codeHash string) (bool, error)
}

// NormalizeEmail lowercases and trims an address. All store lookups key on
// the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
