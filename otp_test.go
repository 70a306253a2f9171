package authkit_test

import (
	"errors"
	"testing"
	"time"

	ak "github.com/lyriasong/authkit"
)

func TestRequestCodeRejectsBadEmail(t *testing.T) {
	j := setupJourney(t)

	for _, bad := range []string{"", "not-an-email", "a b@example.com"} {
		if err := j.OTP.RequestCode(bad, ak.PurposeSignIn, j.now()); err == nil {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
	if len(j.Mailer.Sent) != 0 {
		t.Errorf("No code should be sent for invalid emails, got %d", len(j.Mailer.Sent))
	}
}

func TestRequestCodeSendsSixDigits(t *testing.T) {
	j := setupJourney(t)

	if err := j.OTP.RequestCode("alice@example.com", ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code := j.Mailer.LastCode(t)
	if len(code) != 6 {
		t.Fatalf("Expected 6-digit code, got %q", code)
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			t.Fatalf("Expected digits only, got %q", code)
		}
	}
}

func TestVerifyCodeWithoutChallenge(t *testing.T) {
	j := setupJourney(t)

	_, err := j.OTP.VerifyCode("nobody@example.com", ak.PurposeSignIn, "123456", j.now())
	if !errors.Is(err, ak.ErrNoActiveChallenge) {
		t.Fatalf("Expected ErrNoActiveChallenge, got %v", err)
	}
}

func TestVerifyCodeCreatesIdentity(t *testing.T) {
	j := setupJourney(t)
	email := "newuser@example.com"

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	identity, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, j.Mailer.LastCode(t), j.now())
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if identity.Email != email {
		t.Errorf("Expected identity for %s, got %s", email, identity.Email)
	}

	// A second sign-in resolves to the same identity
	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("Second RequestCode failed: %v", err)
	}
	again, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, j.Mailer.LastCode(t), j.now())
	if err != nil {
		t.Fatalf("Second VerifyCode failed: %v", err)
	}
	if again.ID != identity.ID {
		t.Errorf("Expected same identity, got %s and %s", identity.ID, again.ID)
	}
}

func TestVerifyCodeIsOneShot(t *testing.T) {
	j := setupJourney(t)
	email := "replay@example.com"

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code := j.Mailer.LastCode(t)

	if _, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, code, j.now()); err != nil {
		t.Fatalf("First verification failed: %v", err)
	}
	_, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, code, j.now())
	if !errors.Is(err, ak.ErrNoActiveChallenge) {
		t.Fatalf("Expected replay to fail with ErrNoActiveChallenge, got %v", err)
	}
}

func TestVerifyCodeSupersededChallenge(t *testing.T) {
	j := setupJourney(t)
	email := "resend@example.com"

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("First RequestCode failed: %v", err)
	}
	first := j.Mailer.LastCode(t)
	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("Second RequestCode failed: %v", err)
	}
	second := j.Mailer.LastCode(t)
	if first == second {
		t.Skip("Codes collided; cannot distinguish superseded from current")
	}

	_, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, first, j.now())
	if !errors.Is(err, ak.ErrNoActiveChallenge) {
		t.Fatalf("Expected superseded code to fail with ErrNoActiveChallenge, got %v", err)
	}

	// The stale code must not have burned an attempt
	ch, err := j.Challenges.Get(email, ak.PurposeSignIn)
	if err != nil || ch == nil {
		t.Fatalf("Loading current challenge: %v", err)
	}
	if ch.Attempts != 0 {
		t.Errorf("Expected stale code to not count as an attempt, got %d", ch.Attempts)
	}

	if _, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, second, j.now()); err != nil {
		t.Fatalf("Current code should verify, got %v", err)
	}
}

func TestVerifyCodeExpiry(t *testing.T) {
	j := setupJourney(t)
	email := "slow@example.com"

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code := j.Mailer.LastCode(t)

	// Just inside the window still verifies
	at := j.now().Add(ak.DefaultOTPTTL - time.Second)
	if _, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, code, at); err != nil {
		t.Fatalf("Code inside TTL should verify, got %v", err)
	}

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code = j.Mailer.LastCode(t)

	at = j.now().Add(ak.DefaultOTPTTL + time.Second)
	_, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, code, at)
	if !errors.Is(err, ak.ErrNoActiveChallenge) {
		t.Fatalf("Expected expired code to fail with ErrNoActiveChallenge, got %v", err)
	}
}

func TestVerifyCodeAttemptBoundary(t *testing.T) {
	j := setupJourney(t)
	email := "guesser@example.com"

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code := j.Mailer.LastCode(t)
	bad := wrongCode(code)

	for i := 0; i < ak.DefaultMaxOTPAttempts-1; i++ {
		_, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, bad, j.now())
		if !errors.Is(err, ak.ErrCodeMismatch) {
			t.Fatalf("Attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}

	// Crossing the threshold flips the error
	_, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, bad, j.now())
	if !errors.Is(err, ak.ErrTooManyAttempts) {
		t.Fatalf("Expected ErrTooManyAttempts at threshold, got %v", err)
	}

	// The correct code no longer helps
	_, err = j.OTP.VerifyCode(email, ak.PurposeSignIn, code, j.now())
	if !errors.Is(err, ak.ErrTooManyAttempts) {
		t.Fatalf("Expected ErrTooManyAttempts for correct code after lockout, got %v", err)
	}
}

func TestVerifyCodeBadFormat(t *testing.T) {
	j := setupJourney(t)
	email := "format@example.com"

	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}

	for _, bad := range []string{"", "12345", "1234567", "12a456"} {
		_, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, bad, j.now())
		if !errors.Is(err, ak.ErrCodeMismatch) {
			t.Errorf("Expected %q to fail with ErrCodeMismatch, got %v", bad, err)
		}
	}

	// Malformed input never reaches the attempt counter
	ch, err := j.Challenges.Get(email, ak.PurposeSignIn)
	if err != nil || ch == nil {
		t.Fatalf("Loading challenge: %v", err)
	}
	if ch.Attempts != 0 {
		t.Errorf("Expected 0 recorded attempts, got %d", ch.Attempts)
	}
}

func TestDeliveryFailureKeepsChallenge(t *testing.T) {
	j := setupJourney(t)
	email := "flaky@example.com"

	j.Mailer.Fail = true
	err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now())
	if !errors.Is(err, ak.ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}

	// The challenge persisted; a retry supersedes it cleanly
	ch, err := j.Challenges.Get(email, ak.PurposeSignIn)
	if err != nil {
		t.Fatalf("Loading challenge: %v", err)
	}
	if ch == nil {
		t.Fatal("Expected challenge to persist despite delivery failure")
	}

	j.Mailer.Fail = false
	if err := j.OTP.RequestCode(email, ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if _, err := j.OTP.VerifyCode(email, ak.PurposeSignIn, j.Mailer.LastCode(t), j.now()); err != nil {
		t.Fatalf("Retried code should verify, got %v", err)
	}
}

func TestEmailNormalization(t *testing.T) {
	j := setupJourney(t)

	if err := j.OTP.RequestCode("  Alice@Example.COM ", ak.PurposeSignIn, j.now()); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	identity, err := j.OTP.VerifyCode("alice@example.com", ak.PurposeSignIn, j.Mailer.LastCode(t), j.now())
	if err != nil {
		t.Fatalf("Expected normalized lookup to verify, got %v", err)
	}
	if identity.Email != "alice@example.com" {
		t.Errorf("Expected stored email lowercased, got %q", identity.Email)
	}
}
