package oauth2

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

type FacebookOAuth2 struct {
	*BaseOAuth2
}

func NewFacebookOAuth2(clientId, clientSecret, callbackUrl string) *FacebookOAuth2 {
	out := &FacebookOAuth2{
		BaseOAuth2: NewBaseOAuth2(clientId, clientSecret, callbackUrl, facebook.Endpoint, "email"),
	}
	out.ProfileURL = "https://graph.facebook.com/me?fields=email"
	return out
}

func (f *FacebookOAuth2) Name() string { return "facebook" }

func (f *FacebookOAuth2) FetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var profile struct {
		Email string `json:"email"`
	}
	if err := f.fetchProfile(ctx, token, &profile); err != nil {
		return "", err
	}
	email := strings.TrimSpace(profile.Email)
	if email == "" {
		return "", ErrNoEmail
	}
	return email, nil
}
