package gorm

import (
	"time"

	ak "github.com/lyriasong/authkit"
)

// IdentityModel is the GORM model for identities
type IdentityModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Email       string    `gorm:"size:255;uniqueIndex"` // stored lowercased
	DisplayName string    `gorm:"size:255"`
	AvatarURL   string    `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (IdentityModel) TableName() string {
	return "identities"
}

func (m *IdentityModel) ToIdentity() *ak.Identity {
	return &ak.Identity{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// LinkedAccountModel is the GORM model for social-provider links
type LinkedAccountModel struct {
	Provider   string    `gorm:"primaryKey;size:32"`
	Subject    string    `gorm:"primaryKey;size:255"`
	IdentityID string    `gorm:"size:64;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (LinkedAccountModel) TableName() string {
	return "linked_accounts"
}

func (m *LinkedAccountModel) ToAccount() ak.LinkedAccount {
	return ak.LinkedAccount{
		Provider:   m.Provider,
		Subject:    m.Subject,
		IdentityID: m.IdentityID,
		CreatedAt:  m.CreatedAt,
	}
}

// CredentialModel is the GORM model for local password credentials
type CredentialModel struct {
	IdentityID     string    `gorm:"primaryKey;size:64"`
	PasswordHash   string    `gorm:"size:128"`
	FailedAttempts int       `gorm:"default:0"`
	LockedUntil    time.Time
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (CredentialModel) TableName() string {
	return "credentials"
}

func (m *CredentialModel) ToCredential() *ak.Credential {
	return &ak.Credential{
		IdentityID:     m.IdentityID,
		PasswordHash:   m.PasswordHash,
		FailedAttempts: m.FailedAttempts,
		LockedUntil:    m.LockedUntil,
		UpdatedAt:      m.UpdatedAt,
	}
}

// SessionModel is the GORM model for sessions
type SessionModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	TokenHash  string `gorm:"size:64;uniqueIndex"`
	IdentityID string `gorm:"size:64;index"`
	UserAgent  string `gorm:"size:512"`
	IP         string `gorm:"size:64"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToSession() *ak.Session {
	return &ak.Session{
		ID:         m.ID,
		TokenHash:  m.TokenHash,
		IdentityID: m.IdentityID,
		Metadata:   ak.SessionMetadata{UserAgent: m.UserAgent, IP: m.IP},
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
	}
}

func SessionToModel(s *ak.Session) *SessionModel {
	return &SessionModel{
		ID:         s.ID,
		TokenHash:  s.TokenHash,
		IdentityID: s.IdentityID,
		UserAgent:  s.Metadata.UserAgent,
		IP:         s.Metadata.IP,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

// ChallengeModel is the GORM model for OTP challenges. Superseded rows
// stay until purged so stale codes remain recognizable.
type ChallengeModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Email      string `gorm:"size:255;index:idx_challenge_key"`
	Purpose    string `gorm:"size:32;index:idx_challenge_key"`
	CodeHash   string `gorm:"size:64;index"`
	IssuedAt   time.Time
	ExpiresAt  time.Time `gorm:"index"`
	Consumed   bool      `gorm:"default:false"`
	Superseded bool      `gorm:"default:false"`
	Attempts   int       `gorm:"default:0"`
}

func (ChallengeModel) TableName() string {
	return "otp_challenges"
}

func (m *ChallengeModel) ToChallenge() *ak.OTPChallenge {
	return &ak.OTPChallenge{
		Email:      m.Email,
		Purpose:    m.Purpose,
		CodeHash:   m.CodeHash,
		IssuedAt:   m.IssuedAt,
		ExpiresAt:  m.ExpiresAt,
		Consumed:   m.Consumed,
		Superseded: m.Superseded,
		Attempts:   m.Attempts,
	}
}

func ChallengeToModel(c *ak.OTPChallenge) *ChallengeModel {
	return &ChallengeModel{
		Email:      c.Email,
		Purpose:    c.Purpose,
		CodeHash:   c.CodeHash,
		IssuedAt:   c.IssuedAt,
		ExpiresAt:  c.ExpiresAt,
		Consumed:   c.Consumed,
		Superseded: c.Superseded,
		Attempts:   c.Attempts,
	}
}
