package social

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// NewGithub builds the GitHub provider
func NewGithub(creds Credentials) *Provider {
	return &Provider{
		Name: "github",
		Config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL:   "https://api.github.com/user",
		parseUserInfo: parseGithubUserInfo,
	}
}

func parseGithubUserInfo(data map[string]any) (Profile, error) {
	email, _ := data["email"].(string)
	if email == "" {
		return Profile{}, ErrNoEmail
	}
	// GitHub user ids are numeric in the JSON payload
	var subject string
	switch id := data["id"].(type) {
	case float64:
		subject = fmt.Sprintf("%.0f", id)
	case string:
		subject = id
	}
	name, _ := data["name"].(string)
	if name == "" {
		name, _ = data["login"].(string)
	}
	avatar, _ := data["avatar_url"].(string)
	return Profile{
		Subject:   subject,
		Email:     email,
		Name:      name,
		AvatarURL: avatar,
	}, nil
}
