package social

import "golang.org/x/oauth2"

// NewX builds the X (Twitter) provider. X uses OAuth2 with its v2 user
// endpoint; the confirmed email is only present for apps with elevated
// access, so sign-in fails with ErrNoEmail otherwise.
func NewX(creds Credentials) *Provider {
	return &Provider{
		Name: "x",
		Config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://x.com/i/oauth2/authorize",
				TokenURL: "https://api.x.com/2/oauth2/token",
			},
			Scopes: []string{"users.read", "tweet.read"},
		},
		UserInfoURL:   "https://api.x.com/2/users/me?user.fields=profile_image_url,confirmed_email",
		PKCE:          true,
		parseUserInfo: parseXUserInfo,
	}
}

func parseXUserInfo(data map[string]any) (Profile, error) {
	// The v2 API nests the user object under "data"
	user, _ := data["data"].(map[string]any)
	if user == nil {
		user = data
	}
	email, _ := user["confirmed_email"].(string)
	if email == "" {
		return Profile{}, ErrNoEmail
	}
	subject, _ := user["id"].(string)
	name, _ := user["name"].(string)
	if name == "" {
		name, _ = user["username"].(string)
	}
	avatar, _ := user["profile_image_url"].(string)
	return Profile{
		Subject:   subject,
		Email:     email,
		Name:      name,
		AvatarURL: avatar,
	}, nil
}
