// Package social brokers federated sign-in against third-party OAuth2
// identity providers and normalizes their callback payloads into a single
// profile shape the identity layer can consume.
package social

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNotConfigured means the provider has no credentials and is disabled
	ErrNotConfigured = errors.New("social provider not configured")

	// ErrDenied covers provider-reported errors and state mismatches
	ErrDenied = errors.New("social sign-in denied by provider")

	// ErrNoEmail means the provider payload carried no usable email address
	ErrNoEmail = errors.New("social provider returned no email")
)

const (
	stateCookie    = "oauthstate"
	returnCookie   = "oauthreturn"
	verifierCookie = "oauthverifier"
)

// Credentials configure one provider
type Credentials struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Profile is the normalized result of a completed social sign-in
type Profile struct {
	Provider  string
	Subject   string // provider-side user id
	Email     string
	Name      string
	AvatarURL string
}

// Provider is one configured identity provider
type Provider struct {
	Name        string
	Config      oauth2.Config
	UserInfoURL string

	// PKCE sends a code challenge with the authorization request and the
	// matching verifier with the code exchange. Required by some providers
	// (X rejects exchanges without it).
	PKCE bool

	// parseUserInfo extracts the normalized profile from the provider's
	// userinfo response
	parseUserInfo func(data map[string]any) (Profile, error)
}

// Broker redirects to and resolves callbacks from the enabled providers.
// It holds no per-flow state: the CSRF state and return path travel in
// short-lived cookies through the provider redirect.
type Broker struct {
	providers map[string]*Provider

	// Client is used for userinfo fetches and the code exchange.
	// Injectable for tests; defaults to a client with Timeout.
	Client *http.Client

	// Timeout bounds the exchange and userinfo calls so a slow provider
	// fails fast instead of hanging the flow.
	Timeout time.Duration
}

// NewBroker builds a broker over the enabled providers
func NewBroker(providers ...*Provider) *Broker {
	m := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		m[p.Name] = p
	}
	return &Broker{providers: m}
}

// Enabled returns the names of the configured providers
func (b *Broker) Enabled() []string {
	names := make([]string, 0, len(b.providers))
	for name := range b.providers {
		names = append(names, name)
	}
	return names
}

// Provider looks up a configured provider by name
func (b *Broker) Provider(name string) (*Provider, error) {
	p, ok := b.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return p, nil
}

func (b *Broker) timeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout
	}
	return 10 * time.Second
}

func (b *Broker) httpClient() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return &http.Client{Timeout: b.timeout()}
}

// Begin starts the authorization-code flow: it drops the CSRF state and
// return-path cookies and redirects to the provider's authorization URL.
func (b *Broker) Begin(w http.ResponseWriter, r *http.Request, name, returnPath string) error {
	p, err := b.Provider(name)
	if err != nil {
		return err
	}

	state, err := generateState()
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if returnPath != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     returnCookie,
			Value:    returnPath,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	var opts []oauth2.AuthCodeOption
	if p.PKCE {
		verifier := oauth2.GenerateVerifier()
		http.SetCookie(w, &http.Cookie{
			Name:     verifierCookie,
			Value:    verifier,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	http.Redirect(w, r, p.Config.AuthCodeURL(state, opts...), http.StatusFound)
	return nil
}

// Complete finishes the flow on the provider callback. It validates the
// CSRF state, exchanges the code, fetches the provider userinfo, and
// returns the normalized profile plus the return path captured at Begin.
func (b *Broker) Complete(w http.ResponseWriter, r *http.Request, name string) (Profile, string, error) {
	p, err := b.Provider(name)
	if err != nil {
		return Profile{}, "", err
	}

	returnPath := ""
	if c, _ := r.Cookie(returnCookie); c != nil {
		returnPath = c.Value
	}
	verifier := ""
	if c, _ := r.Cookie(verifierCookie); c != nil {
		verifier = c.Value
	}
	clearCookie(w, stateCookie)
	clearCookie(w, returnCookie)
	clearCookie(w, verifierCookie)

	if msg := r.FormValue("error"); msg != "" {
		return Profile{}, returnPath, fmt.Errorf("%w: %s", ErrDenied, msg)
	}

	state, _ := r.Cookie(stateCookie)
	if state == nil || state.Value == "" || r.FormValue("state") != state.Value {
		return Profile{}, returnPath, fmt.Errorf("%w: state mismatch", ErrDenied)
	}

	ctx, cancel := context.WithTimeout(r.Context(), b.timeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient())

	var opts []oauth2.AuthCodeOption
	if p.PKCE {
		if verifier == "" {
			return Profile{}, returnPath, fmt.Errorf("%w: missing code verifier", ErrDenied)
		}
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := p.Config.Exchange(ctx, r.FormValue("code"), opts...)
	if err != nil {
		return Profile{}, returnPath, fmt.Errorf("%w: code exchange: %v", ErrDenied, err)
	}

	data, err := b.fetchUserInfo(ctx, p, token)
	if err != nil {
		return Profile{}, returnPath, err
	}

	profile, err := p.parseUserInfo(data)
	if err != nil {
		return Profile{}, returnPath, err
	}
	profile.Provider = p.Name
	return profile, returnPath, nil
}

func (b *Broker) fetchUserInfo(ctx context.Context, p *Provider, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo fetch: %v", ErrDenied, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo read: %v", ErrDenied, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", ErrDenied, resp.StatusCode)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: userinfo parse: %v", ErrDenied, err)
	}
	return data, nil
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
