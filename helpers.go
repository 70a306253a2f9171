package authkit

import (
	"errors"
	"fmt"

	"github.com/lyriasong/authkit/social"
)

// EnsureSocialIdentity resolves a completed social sign-in into exactly one
// identity. The linked (provider, subject) pair wins when known; otherwise
// the identity is matched by email and the provider link is attached, so a
// password account and a social account with the same address end up as
// one identity with both credentials.
func EnsureSocialIdentity(identities IdentityStore, profile social.Profile) (*Identity, error) {
	if profile.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrProviderError)
	}
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrProviderError)
	}

	identity, err := identities.GetByProviderSubject(profile.Provider, profile.Subject)
	if err != nil && !errors.Is(err, ErrIdentityNotFound) {
		return nil, fmt.Errorf("resolving provider link: %w", err)
	}

	if identity == nil {
		identity, _, err = identities.FindOrCreateByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("resolving identity: %w", err)
		}
		if err := identities.LinkAccount(&LinkedAccount{
			Provider:   profile.Provider,
			Subject:    profile.Subject,
			IdentityID: identity.ID,
		}); err != nil {
			return nil, fmt.Errorf("linking provider account: %w", err)
		}
	}

	// Backfill profile fields the provider knows and we don't
	dirty := false
	if identity.DisplayName == "" && profile.Name != "" {
		identity.DisplayName = profile.Name
		dirty = true
	}
	if identity.AvatarURL == "" && profile.AvatarURL != "" {
		identity.AvatarURL = profile.AvatarURL
		dirty = true
	}
	if dirty {
		if err := identities.Save(identity); err != nil {
			return nil, fmt.Errorf("updating profile: %w", err)
		}
	}
	return identity, nil
}
