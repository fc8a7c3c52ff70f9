package oauth

import (
	"context"

	"authority/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type Google struct {
	conf        *oauth2.Config
	userInfoURL string
}

func NewGoogle(c Credentials) *Google {
	return &Google{
		conf: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "profile", "email"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

func (g *Google) ResolveProfile(ctx context.Context, code string) (domain.ExternalProfile, error) {
	client, err := exchange(ctx, g.conf, code)
	if err != nil {
		return domain.ExternalProfile{}, err
	}
	var info googleUserInfo
	if err := getJSON(ctx, client, g.userInfoURL, &info); err != nil {
		return domain.ExternalProfile{}, err
	}
	if info.Email == "" || !info.EmailVerified {
		return domain.ExternalProfile{}, ErrNoVerifiedEmail
	}
	return domain.ExternalProfile{
		Provider:   g.Name(),
		ExternalID: info.Sub,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
	}, nil
}
