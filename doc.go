// Package authkit implements authentication and session management for the
// LyriaSong web application: a dual-path login flow (passwordless one-time
// codes and email+password) layered over federated social sign-in, backed
// by a persistent credential store.
//
// # Architecture
//
// Identity: a unique user account, keyed by a case-insensitive email.
// Identities are created on the first successful sign-in through any path
// and accumulate linked social-provider accounts and an optional local
// password credential.
//
// Session: a server-side login record with a fixed TTL. The browser holds
// a signed cookie wrapping an opaque token; only the token hash is stored.
//
// OTPChallenge: a short-lived 6-digit sign-in code bound to an email and a
// purpose. At most one challenge is active per pair; codes are single-use
// and lock out after repeated failures.
//
// # Basic Usage
//
// Load configuration, open the store, and wire the components:
//
//	import gormstore "github.com/lyriasong/authkit/stores/gorm"
//
//	cfg, err := authkit.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := gormstore.AutoMigrate(db); err != nil {
//	    log.Fatal(err)
//	}
//	identities := gormstore.NewIdentityStore(db)
//	sessions := &authkit.SessionManager{
//	    Store:      gormstore.NewSessionStore(db),
//	    Identities: identities,
//	    Secret:     []byte(cfg.SessionSecret),
//	    TTL:        cfg.SessionTTL,
//	}
//	otp := &authkit.OTPVerifier{
//	    Challenges: gormstore.NewChallengeStore(db),
//	    Identities: identities,
//	    Mailer:     &authkit.ConsoleCodeMailer{},
//	    TTL:        cfg.OTPTTL,
//	}
//
// Mount the flow controller and gate protected pages:
//
//	broker := social.NewBroker(cfg.EnabledProviders()...)
//	passwords := &authkit.PasswordAuthenticator{Identities: identities}
//	controller := authkit.NewController(sessions, otp, passwords, broker, identities)
//
//	mux := http.NewServeMux()
//	mux.Handle("/auth/", http.StripPrefix("/auth", controller.Handler()))
//
//	authmw := &authkit.Middleware{Sessions: sessions}
//	mux.Handle("/user/my-songs", authmw.RequireIdentity(mySongsHandler))
//
// # Security
//
// Passwords are hashed with bcrypt at default cost. Session tokens and
// sign-in codes are generated from crypto/rand and stored hashed. Post-login
// redirects only honor in-application relative paths. Failed password and
// code attempts share a lockout discipline persisted in the store.
package authkit
