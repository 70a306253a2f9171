package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"time"
)

// Default OTP policy values, used when the corresponding OTPVerifier fields
// are zero.
const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultMaxOTPAttempts = 5
)

// OTPVerifier issues and verifies one-time sign-in codes. Codes are 6
// digits sampled uniformly from 000000-999999 and stored hashed; at most
// one active challenge exists per (email, purpose).
type OTPVerifier struct {
	Challenges ChallengeStore
	Identities IdentityStore
	Mailer     CodeMailer

	TTL         time.Duration
	MaxAttempts int

	Logger *slog.Logger
}

func (v *OTPVerifier) ttl() time.Duration {
	if v.TTL > 0 {
		return v.TTL
	}
	return DefaultOTPTTL
}

func (v *OTPVerifier) maxAttempts() int {
	if v.MaxAttempts > 0 {
		return v.MaxAttempts
	}
	return DefaultMaxOTPAttempts
}

func (v *OTPVerifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// RequestCode invalidates any active challenge for (email, purpose),
// persists a fresh one, and dispatches the code through the mailer.
// A mailer failure surfaces as ErrDeliveryFailed but the challenge stays
// persisted: a resend re-enters this path and supersedes it.
func (v *OTPVerifier) RequestCode(email, purpose string, now time.Time) error {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}

	ch := &OTPChallenge{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  hashCode(email, purpose, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(v.ttl()),
	}
	if err := v.Challenges.Replace(ch); err != nil {
		return fmt.Errorf("persisting challenge: %w", err)
	}

	if err := v.Mailer.SendSignInCode(email, code, purpose); err != nil {
		v.logger().Warn("otp delivery failed", "email", email, "purpose", purpose, "err", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// VerifyCode checks a submitted code against the active challenge. On a
// match the challenge is consumed one-shot and the identity for the email
// is resolved or created; the caller turns it into a session.
func (v *OTPVerifier) VerifyCode(email, purpose, code string, now time.Time) (*Identity, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !validCodeFormat(code) {
		return nil, ErrCodeMismatch
	}

	ch, err := v.Challenges.Get(email, purpose)
	if err != nil {
		return nil, fmt.Errorf("loading challenge: %w", err)
	}
	if ch == nil || !ch.Active(now) {
		return nil, ErrNoActiveChallenge
	}
	if ch.Attempts >= v.maxAttempts() {
		return nil, ErrTooManyAttempts
	}

	if submitted := hashCode(email, purpose, code); submitted != ch.CodeHash {
		// A code from a superseded or already-consumed challenge is not a
		// guess; it reports the same way as having no challenge at all.
		stale, err := v.Challenges.WasIssued(email, purpose, submitted)
		if err != nil {
			return nil, fmt.Errorf("checking stale code: %w", err)
		}
		if stale {
			return nil, ErrNoActiveChallenge
		}
		ch.Attempts++
		if err := v.Challenges.Update(ch); err != nil {
			return nil, fmt.Errorf("recording attempt: %w", err)
		}
		if ch.Attempts >= v.maxAttempts() {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrCodeMismatch
	}

	// One-shot: the conditional consume also closes the race where two
	// verifications carry the same correct code.
	if err := v.Challenges.Consume(email, purpose, now); err != nil {
		return nil, err
	}

	identity, created, err := v.Identities.FindOrCreateByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	if created {
		v.logger().Info("identity created via otp sign-in", "identity", identity.ID)
	}
	return identity, nil
}

func validateEmail(email string) error {
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email address", "email")
	}
	return nil
}

func validCodeFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// generateCode samples a 6-digit code uniformly, keeping leading zeros
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashCode(email, purpose, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + purpose + ":" + code))
	return hex.EncodeToString(sum[:])
}
