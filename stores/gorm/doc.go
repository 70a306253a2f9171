// Package gorm provides GORM-based implementations of the authkit store
// interfaces. It supports any database GORM supports; production runs on
// PostgreSQL while the test suite runs on in-memory SQLite.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - identities: user accounts keyed by normalized email
//   - linked_accounts: social-provider (provider, subject) links
//   - credentials: local password credentials with lockout state
//   - sessions: opaque-token sessions, keyed by token hash
//   - otp_challenges: one-time sign-in codes, including superseded rows
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	if err := gormstore.AutoMigrate(db); err != nil {
//		log.Fatal(err)
//	}
//	identities := gormstore.NewIdentityStore(db)
//	sessions := gormstore.NewSessionStore(db)
//	challenges := gormstore.NewChallengeStore(db)
//
// # Concurrency
//
// Replace, Consume, and FindOrCreateByEmail run as transactions or
// conditional single statements, so concurrent sign-in attempts for the
// same user serialize in the database rather than in process memory.
package gorm
