package authkit

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/lyriasong/authkit/social"
)

// Config holds everything the auth subsystem needs at startup. Values are
// read once from the environment; social providers are enabled only when
// both a client id and secret are present, so the broker consumes the
// enabled set as data rather than probing the environment at runtime.
type Config struct {
	// DatabaseURL is the credential store DSN. Required.
	DatabaseURL string `env:"LYRIA_AUTH_DATABASE_URL"`

	// SessionSecret signs the session cookie. Required.
	SessionSecret string `env:"LYRIA_AUTH_SESSION_SECRET"`

	// BaseURL is used to build provider callback URLs.
	BaseURL string `env:"LYRIA_AUTH_BASE_URL" envDefault:"http://localhost:8080"`

	// LandingPath is the post-login destination when no return path was
	// supplied.
	LandingPath string `env:"LYRIA_AUTH_LANDING_PATH" envDefault:"/"`

	SessionTTL     time.Duration `env:"LYRIA_AUTH_SESSION_TTL"      envDefault:"168h"`
	OTPTTL         time.Duration `env:"LYRIA_AUTH_OTP_TTL"          envDefault:"10m"`
	MaxOTPAttempts int           `env:"LYRIA_AUTH_OTP_MAX_ATTEMPTS" envDefault:"5"`

	// Password lockout shares the OTP attempt discipline.
	MaxPasswordAttempts int           `env:"LYRIA_AUTH_PASSWORD_MAX_ATTEMPTS" envDefault:"5"`
	PasswordLockout     time.Duration `env:"LYRIA_AUTH_PASSWORD_LOCKOUT"      envDefault:"15m"`

	GoogleClientID     string `env:"LYRIA_AUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"LYRIA_AUTH_GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"LYRIA_AUTH_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"LYRIA_AUTH_GITHUB_CLIENT_SECRET"`
	XClientID          string `env:"LYRIA_AUTH_X_CLIENT_ID"`
	XClientSecret      string `env:"LYRIA_AUTH_X_CLIENT_SECRET"`
}

// LoadConfigFromEnv reads configuration from environment variables
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing auth config: %w", err)
	}
	return cfg, nil
}

// Validate fails fast on missing required configuration. Call at startup:
// running with a broken credential store or unsigned cookies is worse than
// refusing to start.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: LYRIA_AUTH_DATABASE_URL is not set", ErrStoreUnavailable)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("LYRIA_AUTH_SESSION_SECRET is not set")
	}
	if c.SessionTTL <= 0 || c.OTPTTL <= 0 {
		return fmt.Errorf("session and otp TTLs must be positive")
	}
	return nil
}

// EnabledProviders builds the social providers that have credentials
// configured. Callback URLs follow the /auth/social/{provider}/callback
// route convention.
func (c Config) EnabledProviders() []*social.Provider {
	callback := func(name string) string {
		return c.BaseURL + "/auth/social/" + name + "/callback"
	}
	var providers []*social.Provider
	if c.GoogleClientID != "" && c.GoogleClientSecret != "" {
		providers = append(providers, social.NewGoogle(social.Credentials{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			CallbackURL:  callback("google"),
		}))
	}
	if c.GithubClientID != "" && c.GithubClientSecret != "" {
		providers = append(providers, social.NewGithub(social.Credentials{
			ClientID:     c.GithubClientID,
			ClientSecret: c.GithubClientSecret,
			CallbackURL:  callback("github"),
		}))
	}
	if c.XClientID != "" && c.XClientSecret != "" {
		providers = append(providers, social.NewX(social.Credentials{
			ClientID:     c.XClientID,
			ClientSecret: c.XClientSecret,
			CallbackURL:  callback("x"),
		}))
	}
	return providers
}
