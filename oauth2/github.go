package oauth2

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

type GithubOAuth2 struct {
	*BaseOAuth2
}

// NewGithubOAuth2 requests GitHub's default scope, which exposes the public
// profile email.
func NewGithubOAuth2(clientId, clientSecret, callbackUrl string) *GithubOAuth2 {
	out := &GithubOAuth2{
		BaseOAuth2: NewBaseOAuth2(clientId, clientSecret, callbackUrl, github.Endpoint),
	}
	out.ProfileURL = "https://api.github.com/user"
	return out
}

func (g *GithubOAuth2) Name() string { return "github" }

func (g *GithubOAuth2) FetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var profile struct {
		Email *string `json:"email"`
	}
	if err := g.fetchProfile(ctx, token, &profile); err != nil {
		return "", err
	}
	if profile.Email == nil || strings.TrimSpace(*profile.Email) == "" {
		return "", ErrNoEmail
	}
	return strings.TrimSpace(*profile.Email), nil
}
