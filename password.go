package authkit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Password lockout defaults. Password attempts share the OTP attempt
// discipline: a counter persisted on the credential, so it holds across
// requests and processes.
const (
	DefaultMaxPasswordAttempts = 5
	DefaultPasswordLockout     = 15 * time.Minute
	MinPasswordLength          = 8
)

// PasswordAuthenticator verifies local email+password credentials
type PasswordAuthenticator struct {
	Identities IdentityStore
	Sessions   SessionStore

	MaxAttempts int
	Lockout     time.Duration

	Logger *slog.Logger
}

func (p *PasswordAuthenticator) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxPasswordAttempts
}

func (p *PasswordAuthenticator) lockout() time.Duration {
	if p.Lockout > 0 {
		return p.Lockout
	}
	return DefaultPasswordLockout
}

func (p *PasswordAuthenticator) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Verify compares a submitted password against the stored hash. Any miss
// (unknown email, no local credential, wrong password) is
// ErrInvalidCredentials, so callers cannot distinguish which part failed.
// Crossing the attempt threshold locks the credential for the lockout
// window and returns ErrTooManyAttempts until it elapses.
func (p *PasswordAuthenticator) Verify(email, password string, now time.Time) (*Identity, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	identity, err := p.Identities.GetByEmail(email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	cred, err := p.Identities.GetCredential(identity.ID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	if cred.Locked(now) {
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		cred.FailedAttempts++
		if cred.FailedAttempts >= p.maxAttempts() {
			cred.LockedUntil = now.Add(p.lockout())
			cred.FailedAttempts = 0
			p.logger().Warn("password credential locked", "identity", identity.ID)
		}
		if err := p.Identities.SaveCredential(cred); err != nil {
			return nil, fmt.Errorf("recording failed attempt: %w", err)
		}
		if !cred.LockedUntil.IsZero() && now.Before(cred.LockedUntil) {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidCredentials
	}

	if cred.FailedAttempts != 0 || !cred.LockedUntil.IsZero() {
		cred.FailedAttempts = 0
		cred.LockedUntil = time.Time{}
		if err := p.Identities.SaveCredential(cred); err != nil {
			return nil, fmt.Errorf("resetting attempts: %w", err)
		}
	}
	return identity, nil
}

// SetPassword hashes and stores a new password for the identity and revokes
// all of its sessions, so a password change signs out every other device.
func (p *PasswordAuthenticator) SetPassword(identityID, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return NewAuthError("weak_password",
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength), "password")
	}

	if _, err := p.Identities.GetByID(identityID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	cred := &Credential{
		IdentityID:   identityID,
		PasswordHash: string(hash),
	}
	if err := p.Identities.SaveCredential(cred); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}

	if p.Sessions != nil {
		if err := p.Sessions.DeleteByIdentity(identityID); err != nil {
			return fmt.Errorf("revoking sessions: %w", err)
		}
	}
	p.logger().Info("password updated", "identity", identityID)
	return nil
}
