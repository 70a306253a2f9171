package gorm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	ak "github.com/lyriasong/authkit"
)

// AutoMigrate runs database migrations for all authkit tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&IdentityModel{},
		&LinkedAccountModel{},
		&CredentialModel{},
		&SessionModel{},
		&ChallengeModel{},
	)
}

// =============================================================================
// IdentityStore
// =============================================================================

// IdentityStore implements ak.IdentityStore using GORM
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) GetByID(id string) (*ak.Identity, error) {
	var model IdentityModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ak.ErrIdentityNotFound
		}
		return nil, err
	}
	return s.withAccounts(&model)
}

func (s *IdentityStore) GetByEmail(email string) (*ak.Identity, error) {
	email = ak.NormalizeEmail(email)
	var model IdentityModel
	if err := s.db.First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ak.ErrIdentityNotFound
		}
		return nil, err
	}
	return s.withAccounts(&model)
}

// FindOrCreateByEmail resolves or creates the identity for an email inside
// a transaction, so two near-simultaneous first sign-ins for the same
// address cannot create two identities. The unique email index backs the
// race: the loser of a concurrent insert retries the lookup.
func (s *IdentityStore) FindOrCreateByEmail(email string) (*ak.Identity, bool, error) {
	email = ak.NormalizeEmail(email)
	if email == "" {
		return nil, false, fmt.Errorf("email required")
	}

	var model IdentityModel
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&model, "email = ?", email).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		model = IdentityModel{ID: newIdentityID(), Email: email}
		if err := tx.Create(&model).Error; err != nil {
			// Unique-index collision: someone else created it first
			if lookupErr := tx.First(&model, "email = ?", email).Error; lookupErr == nil {
				return nil
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	identity, err := s.withAccounts(&model)
	return identity, created, err
}

func (s *IdentityStore) Save(identity *ak.Identity) error {
	return s.db.Model(&IdentityModel{}).
		Where("id = ?", identity.ID).
		Updates(map[string]any{
			"display_name": identity.DisplayName,
			"avatar_url":   identity.AvatarURL,
		}).Error
}

func (s *IdentityStore) LinkAccount(account *ak.LinkedAccount) error {
	model := &LinkedAccountModel{
		Provider:   account.Provider,
		Subject:    account.Subject,
		IdentityID: account.IdentityID,
	}
	return s.db.Save(model).Error
}

func (s *IdentityStore) GetByProviderSubject(provider, subject string) (*ak.Identity, error) {
	var link LinkedAccountModel
	err := s.db.First(&link, "provider = ? AND subject = ?", provider, subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ak.ErrIdentityNotFound
		}
		return nil, err
	}
	return s.GetByID(link.IdentityID)
}

func (s *IdentityStore) GetCredential(identityID string) (*ak.Credential, error) {
	var model CredentialModel
	if err := s.db.First(&model, "identity_id = ?", identityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ak.ErrIdentityNotFound
		}
		return nil, err
	}
	return model.ToCredential(), nil
}

func (s *IdentityStore) SaveCredential(cred *ak.Credential) error {
	model := &CredentialModel{
		IdentityID:     cred.IdentityID,
		PasswordHash:   cred.PasswordHash,
		FailedAttempts: cred.FailedAttempts,
		LockedUntil:    cred.LockedUntil,
	}
	return s.db.Save(model).Error
}

func (s *IdentityStore) withAccounts(model *IdentityModel) (*ak.Identity, error) {
	identity := model.ToIdentity()
	var links []LinkedAccountModel
	if err := s.db.Where("identity_id = ?", model.ID).Find(&links).Error; err != nil {
		return nil, err
	}
	for _, l := range links {
		identity.Accounts = append(identity.Accounts, l.ToAccount())
	}
	return identity, nil
}

func newIdentityID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "usr_" + hex.EncodeToString(b)
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements ak.SessionStore using GORM
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(sess *ak.Session) error {
	return s.db.Create(SessionToModel(sess)).Error
}

func (s *SessionStore) GetByTokenHash(hash string) (*ak.Session, error) {
	var model SessionModel
	if err := s.db.First(&model, "token_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToSession(), nil
}

func (s *SessionStore) DeleteByTokenHash(hash string) error {
	return s.db.Delete(&SessionModel{}, "token_hash = ?", hash).Error
}

func (s *SessionStore) DeleteByIdentity(identityID string) error {
	return s.db.Delete(&SessionModel{}, "identity_id = ?", identityID).Error
}

// =============================================================================
// ChallengeStore
// =============================================================================

// ChallengeStore implements ak.ChallengeStore using GORM. Replace and
// Consume run as single statements/transactions so concurrent code
// requests or verifications for the same (email, purpose) serialize in the
// database.
type ChallengeStore struct {
	db *gorm.DB
}

func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) Replace(ch *ak.OTPChallenge) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&ChallengeModel{}).
			Where("email = ? AND purpose = ? AND superseded = ?", ch.Email, ch.Purpose, false).
			Update("superseded", true).Error
		if err != nil {
			return err
		}
		return tx.Create(ChallengeToModel(ch)).Error
	})
}

func (s *ChallengeStore) Get(email, purpose string) (*ak.OTPChallenge, error) {
	var model ChallengeModel
	err := s.db.
		Where("email = ? AND purpose = ? AND superseded = ?", email, purpose, false).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToChallenge(), nil
}

func (s *ChallengeStore) Update(ch *ak.OTPChallenge) error {
	return s.db.Model(&ChallengeModel{}).
		Where("email = ? AND purpose = ? AND superseded = ?", ch.Email, ch.Purpose, false).
		Updates(map[string]any{
			"attempts": ch.Attempts,
			"consumed": ch.Consumed,
		}).Error
}

// Consume is the one-shot step: the conditional update only succeeds for a
// still-active challenge, so a replayed code or a concurrent double-verify
// loses here.
func (s *ChallengeStore) Consume(email, purpose string, now time.Time) error {
	res := s.db.Model(&ChallengeModel{}).
		Where("email = ? AND purpose = ? AND superseded = ? AND consumed = ? AND expires_at > ?",
			email, purpose, false, false, now).
		Update("consumed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ak.ErrNoActiveChallenge
	}
	return nil
}

func (s *ChallengeStore) WasIssued(email, purpose, codeHash string) (bool, error) {
	var count int64
	err := s.db.Model(&ChallengeModel{}).
		Where("email = ? AND purpose = ? AND code_hash = ? AND (superseded = ? OR consumed = ?)",
			email, purpose, codeHash, true, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
