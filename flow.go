package authkit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"

	"github.com/lyriasong/authkit/social"
)

// FlowStep is the client-visible state of the login flow
type FlowStep string

const (
	StepLogin  FlowStep = "LOGIN"
	StepVerify FlowStep = "VERIFY"
)

// Flow session keys. The flow state is ephemeral: it lives in a cookie
// session for the lifetime of one login attempt and is cleared on success
// or back.
const (
	flowKeyStep   = "authflow_step"
	flowKeyEmail  = "authflow_email"
	flowKeyReturn = "authflow_return"
)

// FlowState is the ephemeral state of one login attempt. Step decides which
// fields are meaningful: Email is only set in VERIFY.
type FlowState struct {
	Step       FlowStep `json:"step"`
	Email      string   `json:"email,omitempty"`
	ReturnPath string   `json:"-"`
}

// Controller sequences the LOGIN/VERIFY flow over the OTP verifier, the
// password path, and the social broker, and decides the post-login
// destination. It owns no persistent state; the ephemeral flow state lives
// in an scs cookie session.
type Controller struct {
	Sessions   *SessionManager
	OTP        *OTPVerifier
	Passwords  *PasswordAuthenticator
	Broker     *social.Broker
	Identities IdentityStore

	// Flow manages the ephemeral flow-state cookie session.
	Flow *scs.SessionManager

	// LandingPath is the default post-login destination.
	LandingPath string

	// LoginURL is where social callback failures land, as a full-page
	// redirect target.
	LoginURL string

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewController wires a controller with a cookie-backed flow session
func NewController(sessions *SessionManager, otp *OTPVerifier, passwords *PasswordAuthenticator, broker *social.Broker, identities IdentityStore) *Controller {
	flow := scs.New()
	flow.Lifetime = 30 * time.Minute
	flow.Cookie.Name = "lyria_authflow"
	flow.Cookie.HttpOnly = true
	flow.Cookie.SameSite = http.SameSiteLaxMode
	return &Controller{
		Sessions:   sessions,
		OTP:        otp,
		Passwords:  passwords,
		Broker:     broker,
		Identities: identities,
		Flow:       flow,
	}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Controller) landing() string {
	if c.LandingPath != "" {
		return c.LandingPath
	}
	return "/"
}

func (c *Controller) loginURL() string {
	if c.LoginURL != "" {
		return c.LoginURL
	}
	return "/auth/login"
}

// Handler returns the auth HTTP surface, intended to be mounted at /auth
func (c *Controller) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/login", c.handleBegin).Methods(http.MethodGet)
	r.HandleFunc("/login/email", c.handleSubmitEmail).Methods(http.MethodPost)
	r.HandleFunc("/login/verify", c.handleVerify).Methods(http.MethodPost)
	r.HandleFunc("/login/resend", c.handleResend).Methods(http.MethodPost)
	r.HandleFunc("/login/back", c.handleBack).Methods(http.MethodPost)
	r.HandleFunc("/login/password", c.handlePasswordLogin).Methods(http.MethodPost)
	r.HandleFunc("/social/{provider}", c.handleSocialBegin).Methods(http.MethodGet)
	r.HandleFunc("/social/{provider}/callback", c.handleSocialCallback).Methods(http.MethodGet)
	r.HandleFunc("/logout", c.handleLogout)
	r.HandleFunc("/me", c.handleMe).Methods(http.MethodGet)
	return c.Flow.LoadAndSave(r)
}

// handleBegin enters the flow: resets to LOGIN and captures the sanitized
// return path for the eventual post-login redirect.
func (c *Controller) handleBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c.Flow.Put(ctx, flowKeyStep, string(StepLogin))
	c.Flow.Remove(ctx, flowKeyEmail)
	c.Flow.Put(ctx, flowKeyReturn, SafeReturnPath(r.URL.Query().Get("return"), c.landing()))
	writeJSON(w, http.StatusOK, c.state(r))
}

// handleSubmitEmail is LOGIN + submit(email): request a code and move to
// VERIFY. On DeliveryError the flow stays in LOGIN with an inline error.
func (c *Controller) handleSubmitEmail(w http.ResponseWriter, r *http.Request) {
	email, err := formField(r, "email")
	if err != nil {
		c.writeError(w, err)
		return
	}
	email = NormalizeEmail(email)

	if err := c.OTP.RequestCode(email, PurposeSignIn, c.now()); err != nil {
		c.logger().Warn("otp request failed", "err", err)
		c.writeError(w, err)
		return
	}

	ctx := r.Context()
	c.Flow.Put(ctx, flowKeyStep, string(StepVerify))
	c.Flow.Put(ctx, flowKeyEmail, email)
	writeJSON(w, http.StatusOK, c.state(r))
}

// handleVerify is VERIFY + 6 digits. On success the session is created and
// the flow resets; on any challenge error the client clears its digits and
// stays in VERIFY.
func (c *Controller) handleVerify(w http.ResponseWriter, r *http.Request) {
	st := c.state(r)
	if st.Step != StepVerify {
		c.writeError(w, NewAuthError(ErrCodeFlowStep, "No verification in progress", ""))
		return
	}

	code, err := formField(r, "code")
	if err != nil {
		c.writeError(w, err)
		return
	}

	identity, err := c.OTP.VerifyCode(st.Email, PurposeSignIn, code, c.now())
	if err != nil {
		c.writeError(w, err)
		return
	}

	c.finishLogin(w, r, identity)
}

// handleResend is VERIFY + resend: supersedes the pending challenge and
// stays in VERIFY.
func (c *Controller) handleResend(w http.ResponseWriter, r *http.Request) {
	st := c.state(r)
	if st.Step != StepVerify {
		c.writeError(w, NewAuthError(ErrCodeFlowStep, "No verification in progress", ""))
		return
	}
	if err := c.OTP.RequestCode(st.Email, PurposeSignIn, c.now()); err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleBack discards the challenge context client-side and returns to
// LOGIN. The server-side challenge is left to expire or be superseded.
func (c *Controller) handleBack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c.Flow.Put(ctx, flowKeyStep, string(StepLogin))
	c.Flow.Remove(ctx, flowKeyEmail)
	writeJSON(w, http.StatusOK, c.state(r))
}

// handlePasswordLogin is LOGIN + submit credentials: the password path
// bypasses the OTP step entirely.
func (c *Controller) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	email, err := formField(r, "email")
	if err != nil {
		c.writeError(w, err)
		return
	}
	password, err := formField(r, "password")
	if err != nil {
		c.writeError(w, err)
		return
	}

	identity, err := c.Passwords.Verify(email, password, c.now())
	if err != nil {
		c.writeError(w, err)
		return
	}

	c.finishLogin(w, r, identity)
}

// handleSocialBegin abandons the flow state machine: the browser navigates
// away to the provider and a fresh evaluation happens on callback.
func (c *Controller) handleSocialBegin(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	returnPath := SafeReturnPath(r.URL.Query().Get("return"), c.landing())
	if err := c.Broker.Begin(w, r, provider, returnPath); err != nil {
		c.writeError(w, mapSocialError(err))
	}
}

func (c *Controller) handleSocialCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	profile, returnPath, err := c.Broker.Complete(w, r, provider)
	if err != nil {
		c.logger().Warn("social callback failed", "provider", provider, "err", err)
		c.redirectLoginError(w, r, mapSocialError(err))
		return
	}

	identity, err := EnsureSocialIdentity(c.Identities, profile)
	if err != nil {
		c.logger().Warn("social identity resolution failed", "provider", provider, "err", err)
		c.redirectLoginError(w, r, err)
		return
	}

	token, sess, err := c.Sessions.Create(identity.ID, requestMetadata(r), c.now())
	if err != nil {
		c.redirectLoginError(w, r, err)
		return
	}
	c.Sessions.SetCookie(w, r, token, sess.ExpiresAt)
	http.Redirect(w, r, SafeReturnPath(returnPath, c.landing()), http.StatusFound)
}

func (c *Controller) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := c.Sessions.TokenFromRequest(r); token != "" {
		if err := c.Sessions.Destroy(token); err != nil {
			c.logger().Warn("destroying session", "err", err)
		}
	}
	c.Sessions.ClearCookie(w, r)
	http.Redirect(w, r, SafeReturnPath(r.URL.Query().Get("to"), "/"), http.StatusFound)
}

// handleMe renders session state for the page layer: the signed-in identity
// or null. Anonymous is a normal outcome, not an error.
func (c *Controller) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, err := c.Sessions.Validate(c.Sessions.TokenFromRequest(r), c.now())
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity})
}

// finishLogin is the terminal exit of either path: mint the session, reset
// the flow, and hand the return path to the page layer.
func (c *Controller) finishLogin(w http.ResponseWriter, r *http.Request, identity *Identity) {
	ctx := r.Context()
	returnPath := SafeReturnPath(c.Flow.GetString(ctx, flowKeyReturn), c.landing())

	token, sess, err := c.Sessions.Create(identity.ID, requestMetadata(r), c.now())
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.Sessions.SetCookie(w, r, token, sess.ExpiresAt)

	c.Flow.Put(ctx, flowKeyStep, string(StepLogin))
	c.Flow.Remove(ctx, flowKeyEmail)
	c.Flow.Remove(ctx, flowKeyReturn)

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"redirect":      returnPath,
	})
}

// state reads the flow state from the cookie session. A missing or unknown
// step means a fresh flow in LOGIN.
func (c *Controller) state(r *http.Request) FlowState {
	ctx := r.Context()
	st := FlowState{
		Step:       StepLogin,
		ReturnPath: c.Flow.GetString(ctx, flowKeyReturn),
	}
	if FlowStep(c.Flow.GetString(ctx, flowKeyStep)) == StepVerify {
		email := c.Flow.GetString(ctx, flowKeyEmail)
		if email != "" {
			st.Step = StepVerify
			st.Email = email
		}
	}
	return st
}

func (c *Controller) redirectLoginError(w http.ResponseWriter, r *http.Request, err error) {
	http.Redirect(w, r, c.loginURL()+"?error="+url.QueryEscape(WireError(err).Code), http.StatusFound)
}

func (c *Controller) writeError(w http.ResponseWriter, err error) {
	wire := WireError(err)
	status := http.StatusBadRequest
	switch wire.Code {
	case ErrCodeInvalidCreds:
		status = http.StatusUnauthorized
	case ErrCodeTooManyAttempts:
		status = http.StatusTooManyRequests
	case ErrCodeInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, wire)
}

func mapSocialError(err error) error {
	switch {
	case errors.Is(err, social.ErrNotConfigured):
		return ErrProviderNotConfigured
	case errors.Is(err, social.ErrDenied), errors.Is(err, social.ErrNoEmail):
		return ErrProviderError
	}
	return err
}

// SafeReturnPath validates a post-login destination against open-redirect
// abuse: only in-application relative paths are honored, anything else
// falls back.
func SafeReturnPath(path, fallback string) string {
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return fallback
	}
	if strings.ContainsAny(path, "\\\r\n") {
		return fallback
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return path
}

func requestMetadata(r *http.Request) SessionMetadata {
	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i > 0 {
		ip = ip[:i]
	}
	return SessionMetadata{UserAgent: r.UserAgent(), IP: ip}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// formField reads a field from a form-encoded or JSON request body
func formField(r *http.Request, name string) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if r.Form == nil {
			var data map[string]any
			if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
				return "", NewAuthError("parse_error", "Invalid post body", "")
			}
			r.Form = url.Values{}
			for k, v := range data {
				if s, ok := v.(string); ok {
					r.Form.Set(k, s)
				}
			}
		}
	} else if err := r.ParseForm(); err != nil {
		return "", NewAuthError("parse_error", "Error parsing form", "")
	}
	value := r.Form.Get(name)
	if value == "" {
		return "", NewAuthError(ErrCodeMissingField, name+" is required", name)
	}
	return value, nil
}
