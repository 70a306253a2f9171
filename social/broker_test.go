package social_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/lyriasong/authkit/social"
)

// fakeProvider spins up a stub OAuth2 backend and points a google-shaped
// provider at it
func fakeProvider(t *testing.T, userinfo map[string]any) (*social.Provider, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "stub-access-token",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer stub-access-token" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userinfo)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	p := social.NewGoogle(social.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://app.example/auth/social/google/callback",
	})
	p.Config.Endpoint = oauth2.Endpoint{
		AuthURL:  ts.URL + "/authorize",
		TokenURL: ts.URL + "/token",
	}
	p.UserInfoURL = ts.URL + "/userinfo"
	return p, ts
}

// beginFlow runs Begin and returns the issued state plus the cookies to
// carry into the callback
func beginFlow(t *testing.T, b *social.Broker, returnPath string) (string, []*http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/social/google", nil)
	if err := b.Begin(rec, req, "google", returnPath); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Parsing redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("Expected state in authorization URL")
	}
	return state, rec.Result().Cookies()
}

func callbackRequest(state, code string, cookies []*http.Cookie) *http.Request {
	target := "/auth/social/google/callback?state=" + url.QueryEscape(state) + "&code=" + url.QueryEscape(code)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestBrokerUnknownProvider(t *testing.T) {
	b := social.NewBroker()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/social/google", nil)
	if err := b.Begin(rec, req, "google", "/"); !errors.Is(err, social.ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured from Begin, got %v", err)
	}
	if _, _, err := b.Complete(rec, req, "google"); !errors.Is(err, social.ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured from Complete, got %v", err)
	}
}

func TestBrokerEnabled(t *testing.T) {
	p, _ := fakeProvider(t, nil)
	b := social.NewBroker(p)

	enabled := b.Enabled()
	if len(enabled) != 1 || enabled[0] != "google" {
		t.Fatalf("Expected [google], got %v", enabled)
	}
	if _, err := b.Provider("google"); err != nil {
		t.Fatalf("Provider lookup failed: %v", err)
	}
}

func TestBrokerBeginRedirectsWithState(t *testing.T) {
	p, _ := fakeProvider(t, nil)
	b := social.NewBroker(p)

	state, cookies := beginFlow(t, b, "/studio")

	var stateCookie, returnCookie *http.Cookie
	for _, c := range cookies {
		switch c.Name {
		case "oauthstate":
			stateCookie = c
		case "oauthreturn":
			returnCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value != state {
		t.Errorf("Expected state cookie matching the auth URL, got %+v", stateCookie)
	}
	if returnCookie == nil || returnCookie.Value != "/studio" {
		t.Errorf("Expected return cookie /studio, got %+v", returnCookie)
	}
}

func TestBrokerCompleteRoundTrip(t *testing.T) {
	p, ts := fakeProvider(t, map[string]any{
		"id":      "goog-1",
		"email":   "alice@example.com",
		"name":    "Alice",
		"picture": "https://img.example.com/alice.png",
	})
	b := social.NewBroker(p)
	b.Client = ts.Client()

	state, cookies := beginFlow(t, b, "/studio/song-1")

	rec := httptest.NewRecorder()
	profile, returnPath, err := b.Complete(rec, callbackRequest(state, "auth-code", cookies), "google")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if profile.Provider != "google" || profile.Subject != "goog-1" || profile.Email != "alice@example.com" {
		t.Errorf("Unexpected profile %+v", profile)
	}
	if returnPath != "/studio/song-1" {
		t.Errorf("Expected return path /studio/song-1, got %q", returnPath)
	}

	// Flow cookies are cleared on the way out
	for _, c := range rec.Result().Cookies() {
		if (c.Name == "oauthstate" || c.Name == "oauthreturn") && c.MaxAge >= 0 {
			t.Errorf("Expected %s cleared, got MaxAge %d", c.Name, c.MaxAge)
		}
	}
}

func TestBrokerCompleteStateMismatch(t *testing.T) {
	p, ts := fakeProvider(t, map[string]any{"id": "goog-1", "email": "a@example.com"})
	b := social.NewBroker(p)
	b.Client = ts.Client()

	_, cookies := beginFlow(t, b, "/")

	rec := httptest.NewRecorder()
	_, _, err := b.Complete(rec, callbackRequest("forged-state", "auth-code", cookies), "google")
	if !errors.Is(err, social.ErrDenied) {
		t.Fatalf("Expected ErrDenied on state mismatch, got %v", err)
	}
}

func TestBrokerCompleteMissingStateCookie(t *testing.T) {
	p, _ := fakeProvider(t, nil)
	b := social.NewBroker(p)

	rec := httptest.NewRecorder()
	_, _, err := b.Complete(rec, callbackRequest("some-state", "auth-code", nil), "google")
	if !errors.Is(err, social.ErrDenied) {
		t.Fatalf("Expected ErrDenied without state cookie, got %v", err)
	}
}

func TestBrokerCompleteProviderDenial(t *testing.T) {
	p, _ := fakeProvider(t, nil)
	b := social.NewBroker(p)

	state, cookies := beginFlow(t, b, "/studio")

	req := httptest.NewRequest(http.MethodGet,
		"/auth/social/google/callback?error=access_denied&state="+url.QueryEscape(state), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	_, returnPath, err := b.Complete(rec, req, "google")
	if !errors.Is(err, social.ErrDenied) {
		t.Fatalf("Expected ErrDenied, got %v", err)
	}
	if returnPath != "/studio" {
		t.Errorf("Expected return path preserved for the error redirect, got %q", returnPath)
	}
}

func TestBrokerCompleteNoEmail(t *testing.T) {
	p, ts := fakeProvider(t, map[string]any{"id": "goog-1", "name": "No Email"})
	b := social.NewBroker(p)
	b.Client = ts.Client()

	state, cookies := beginFlow(t, b, "/")

	rec := httptest.NewRecorder()
	_, _, err := b.Complete(rec, callbackRequest(state, "auth-code", cookies), "google")
	if !errors.Is(err, social.ErrNoEmail) {
		t.Fatalf("Expected ErrNoEmail, got %v", err)
	}
}

// fakeXProvider points an X-shaped provider at a stub backend whose token
// endpoint insists on a PKCE verifier, like the real one does
func fakeXProvider(t *testing.T) (*social.Provider, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Parsing token request: %v", err)
		}
		if r.PostForm.Get("code_verifier") == "" {
			t.Error("Expected code_verifier in the token request")
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "stub-access-token",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":              "13371337",
				"username":        "alice",
				"confirmed_email": "alice@example.com",
			},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	p := social.NewX(social.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://app.example/auth/social/x/callback",
	})
	p.Config.Endpoint = oauth2.Endpoint{
		AuthURL:  ts.URL + "/authorize",
		TokenURL: ts.URL + "/token",
	}
	p.UserInfoURL = ts.URL + "/userinfo"
	return p, ts
}

func TestBrokerPKCERoundTrip(t *testing.T) {
	p, ts := fakeXProvider(t)
	b := social.NewBroker(p)
	b.Client = ts.Client()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/social/x", nil)
	if err := b.Begin(rec, req, "x", "/studio"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Parsing redirect: %v", err)
	}
	if loc.Query().Get("code_challenge") == "" {
		t.Error("Expected code_challenge in authorization URL")
	}
	if got := loc.Query().Get("code_challenge_method"); got != "S256" {
		t.Errorf("Expected S256 challenge method, got %q", got)
	}

	state := loc.Query().Get("state")
	cookies := rec.Result().Cookies()
	var verifierCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "oauthverifier" {
			verifierCookie = c
		}
	}
	if verifierCookie == nil || verifierCookie.Value == "" {
		t.Fatal("Expected verifier cookie from Begin")
	}

	target := "/auth/social/x/callback?state=" + url.QueryEscape(state) + "&code=auth-code"
	cb := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		cb.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	profile, returnPath, err := b.Complete(rec, cb, "x")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if profile.Provider != "x" || profile.Subject != "13371337" || profile.Email != "alice@example.com" {
		t.Errorf("Unexpected profile %+v", profile)
	}
	if returnPath != "/studio" {
		t.Errorf("Expected return path /studio, got %q", returnPath)
	}

	// The verifier is single-use: its cookie is cleared with the rest
	for _, c := range rec.Result().Cookies() {
		if c.Name == "oauthverifier" && c.MaxAge >= 0 {
			t.Errorf("Expected verifier cookie cleared, got MaxAge %d", c.MaxAge)
		}
	}
}

func TestBrokerPKCEMissingVerifier(t *testing.T) {
	p, ts := fakeXProvider(t)
	b := social.NewBroker(p)
	b.Client = ts.Client()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/social/x", nil)
	if err := b.Begin(rec, req, "x", "/"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	state := loc.Query().Get("state")

	// Replay the callback without the verifier cookie
	target := "/auth/social/x/callback?state=" + url.QueryEscape(state) + "&code=auth-code"
	cb := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range rec.Result().Cookies() {
		if c.Name != "oauthverifier" {
			cb.AddCookie(c)
		}
	}
	rec = httptest.NewRecorder()
	_, _, err := b.Complete(rec, cb, "x")
	if !errors.Is(err, social.ErrDenied) {
		t.Fatalf("Expected ErrDenied without verifier, got %v", err)
	}
}

func TestGithubProviderShape(t *testing.T) {
	p := social.NewGithub(social.Credentials{ClientID: "id", ClientSecret: "secret"})
	if p.Name != "github" {
		t.Fatalf("Expected provider name github, got %q", p.Name)
	}
	if !strings.Contains(p.Config.Endpoint.AuthURL, "github.com") {
		t.Errorf("Unexpected auth URL %q", p.Config.Endpoint.AuthURL)
	}
}
