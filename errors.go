package authkit

import "errors"

// Recoverable authentication conditions. Handlers render these as inline
// errors; they never abort the flow.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrDeliveryFailed        = errors.New("code delivery failed")
	ErrNoActiveChallenge     = errors.New("no active challenge")
	ErrCodeMismatch          = errors.New("code mismatch")
	ErrTooManyAttempts       = errors.New("too many attempts")
	ErrProviderError         = errors.New("provider error")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrIdentityNotFound      = errors.New("identity not found")
)

// ErrStoreUnavailable indicates the backing store is missing or unreachable.
// Unlike the conditions above this is fatal: callers should refuse to start
// rather than run with authentication silently broken.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Error codes used in HTTP error payloads
const (
	ErrCodeInvalidCreds      = "invalid_credentials"
	ErrCodeDeliveryFailed    = "delivery_failed"
	ErrCodeNoChallenge       = "no_active_challenge"
	ErrCodeCodeMismatch      = "code_mismatch"
	ErrCodeTooManyAttempts   = "too_many_attempts"
	ErrCodeProviderError     = "provider_error"
	ErrCodeProviderDisabled  = "provider_not_configured"
	ErrCodeMissingField      = "missing_field"
	ErrCodeInvalidEmail      = "invalid_email"
	ErrCodeFlowStep          = "invalid_flow_step"
	ErrCodeInternal          = "internal_error"
)

// AuthError is the wire shape for authentication failures
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates an AuthError with the given code, message, and field
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// WireError maps a taxonomy error to its HTTP payload. Unknown errors map to
// an internal error so store failures are never leaked verbatim.
func WireError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return NewAuthError(ErrCodeInvalidCreds, "Invalid email or password", "password")
	case errors.Is(err, ErrDeliveryFailed):
		return NewAuthError(ErrCodeDeliveryFailed, "Failed to send code", "email")
	case errors.Is(err, ErrNoActiveChallenge):
		return NewAuthError(ErrCodeNoChallenge, "Invalid or expired code", "code")
	case errors.Is(err, ErrCodeMismatch):
		return NewAuthError(ErrCodeCodeMismatch, "Invalid or expired code", "code")
	case errors.Is(err, ErrTooManyAttempts):
		return NewAuthError(ErrCodeTooManyAttempts, "Too many attempts, request a new code", "code")
	case errors.Is(err, ErrProviderError):
		return NewAuthError(ErrCodeProviderError, "Sign-in with this provider failed", "")
	case errors.Is(err, ErrProviderNotConfigured):
		return NewAuthError(ErrCodeProviderDisabled, "This sign-in provider is not available", "")
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewAuthError(ErrCodeInternal, "Something went wrong", "")
}
