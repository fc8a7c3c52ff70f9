package oauth

import (
	"context"
	"strconv"

	"authority/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const githubAPI = "https://api.github.com"

type GitHub struct {
	conf    *oauth2.Config
	apiBase string
}

func NewGitHub(c Credentials) *GitHub {
	return &GitHub{
		conf: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: githubAPI,
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthCodeURL(state string) string { return g.conf.AuthCodeURL(state) }

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ResolveProfile reads /user for identity and /user/emails for the address,
// since the public profile email may be empty or unverified.
func (g *GitHub) ResolveProfile(ctx context.Context, code string) (domain.ExternalProfile, error) {
	client, err := exchange(ctx, g.conf, code)
	if err != nil {
		return domain.ExternalProfile{}, err
	}
	var u githubUser
	if err := getJSON(ctx, client, g.apiBase+"/user", &u); err != nil {
		return domain.ExternalProfile{}, err
	}
	var emails []githubEmail
	if err := getJSON(ctx, client, g.apiBase+"/user/emails", &emails); err != nil {
		return domain.ExternalProfile{}, err
	}
	email := pickEmail(emails)
	if email == "" {
		return domain.ExternalProfile{}, ErrNoVerifiedEmail
	}
	name := u.Name
	if name == "" {
		name = u.Login
	}
	return domain.ExternalProfile{
		Provider:   g.Name(),
		ExternalID: strconv.FormatInt(u.ID, 10),
		Email:      email,
		Name:       name,
		Picture:    u.AvatarURL,
	}, nil
}

// pickEmail prefers the primary verified address, then any verified one.
func pickEmail(emails []githubEmail) string {
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}
