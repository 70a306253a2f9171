package social

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewGoogle builds the Google provider
func NewGoogle(creds Credentials) *Provider {
	return &Provider{
		Name: "google",
		Config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		UserInfoURL:   "https://www.googleapis.com/oauth2/v2/userinfo",
		parseUserInfo: parseGoogleUserInfo,
	}
}

func parseGoogleUserInfo(data map[string]any) (Profile, error) {
	email, _ := data["email"].(string)
	if email == "" {
		return Profile{}, ErrNoEmail
	}
	subject, _ := data["id"].(string)
	name, _ := data["name"].(string)
	picture, _ := data["picture"].(string)
	return Profile{
		Subject:   subject,
		Email:     email,
		Name:      name,
		AvatarURL: picture,
	}, nil
}
